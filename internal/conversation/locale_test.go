package conversation

import "testing"

func TestDetectLocale_ArabicScript(t *testing.T) {
	if got := DetectLocale("مرحبا، بغيت نأكد الطلب"); got != LocaleArabic {
		t.Fatalf("DetectLocale(arabic) = %q", got)
	}
}

func TestDetectLocale_DarijaLatin(t *testing.T) {
	cases := []string{
		"salam bghit nlgi talabiya",
		"wakha safi daba",
		"chhal taman dyal livraison?",
	}
	for _, text := range cases {
		if got := DetectLocale(text); got != LocaleDarija {
			t.Fatalf("DetectLocale(%q) = %q, want %q", text, got, LocaleDarija)
		}
	}
}

func TestDetectLocale_French(t *testing.T) {
	if got := DetectLocale("Oui je confirme ma commande merci"); got != LocaleFrench {
		t.Fatalf("DetectLocale(french) = %q", got)
	}
}

func TestDetectLocale_English(t *testing.T) {
	if got := DetectLocale("yes please confirm the order"); got != LocaleEnglish {
		t.Fatalf("DetectLocale(english) = %q", got)
	}
}

func TestDetectLocale_DarijaBeatsFrench(t *testing.T) {
	// A single strong Darija token wins even in a mostly French sentence.
	if got := DetectLocale("oui bghit la livraison demain"); got != LocaleDarija {
		t.Fatalf("DetectLocale(mixed) = %q", got)
	}
}

func TestDetectLocale_Ambiguous(t *testing.T) {
	for _, text := range []string{"", "   ", "123456", "xxxx yyyy zzzz"} {
		if got := DetectLocale(text); got != "" {
			t.Fatalf("DetectLocale(%q) = %q, want ambiguous", text, got)
		}
	}
}

func TestNextLocale_Sticky(t *testing.T) {
	if got := nextLocale(LocaleDarija, ""); got != LocaleDarija {
		t.Fatalf("ambiguous detection changed locale: %q", got)
	}
	if got := nextLocale(LocaleFrench, LocaleArabic); got != LocaleArabic {
		t.Fatalf("clear detection ignored: %q", got)
	}
	if got := nextLocale("", ""); got != "" {
		t.Fatalf("empty stays empty, got %q", got)
	}
}

func TestPrompts_FallbackToFrench(t *testing.T) {
	if defaultAskText("xx") != defaultAskText(LocaleFrench) {
		t.Fatal("unknown locale did not fall back to French")
	}
}

func TestGreetingText(t *testing.T) {
	text, choices := greetingText(LocaleFrench, "Montre X", "199.90")
	if text == "" || len(choices) != 3 {
		t.Fatalf("greeting = %q, choices = %v", text, choices)
	}

	bare, _ := greetingText(LocaleFrench, "", "")
	if bare == text {
		t.Fatal("bare greeting should differ from detailed greeting")
	}
}
