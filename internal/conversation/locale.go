package conversation

import (
	"strings"
	"unicode"
)

// Locale tags used across the conversation layer.
const (
	LocaleArabic  = "ar"  // Arabic script
	LocaleDarija  = "ary" // Moroccan Darija in Latin transliteration
	LocaleFrench  = "fr"
	LocaleEnglish = "en"
)

// Darija words as commonly transliterated in chat. A single hit is a strong
// signal; these spellings rarely occur in French or English.
var darijaWords = map[string]bool{
	"bghit": true, "bghiti": true, "wakha": true, "makayn": true, "makaynch": true,
	"mzyan": true, "mezyan": true, "safi": true, "daba": true, "chhal": true,
	"bch7al": true, "khoya": true, "khouya": true, "dyal": true, "dyali": true,
	"ghadi": true, "ghadee": true, "mashi": true, "machi": true, "nlgi": true,
	"nelghi": true, "kanbghi": true, "3afak": true, "afak": true, "lmohim": true,
	"wach": true, "wash": true, "kayn": true, "hadi": true, "hadchi": true,
	"drari": true, "zwina": true, "zwin": true, "llah": true, "nchallah": true,
	"inchallah": true, "yallah": true, "smahli": true, "smah": true, "fin": true,
	"fink": true, "mli": true, "walakin": true, "hit": true, "3lach": true,
	"3lash": true, "chno": true, "shno": true, "achno": true, "kifach": true,
	"kifash": true, "mra7ba": true, "mrhba": true, "salam": true, "saha": true,
}

var frenchWords = map[string]bool{
	"oui": true, "non": true, "je": true, "bonjour": true, "bonsoir": true,
	"merci": true, "confirme": true, "confirmer": true, "annuler": true,
	"annule": true, "commande": true, "accord": true, "d'accord": true,
	"livraison": true, "adresse": true, "svp": true, "oui!": true,
	"voudrais": true, "veux": true, "c'est": true, "pas": true, "quand": true,
}

var englishWords = map[string]bool{
	"yes": true, "no": true, "please": true, "confirm": true, "cancel": true,
	"order": true, "thanks": true, "thank": true, "hello": true, "hi": true,
	"want": true, "when": true, "delivery": true, "address": true, "okay": true,
}

// DetectLocale runs the per-message locale heuristics. It returns "" when
// the message is ambiguous, so the caller keeps the stored preference.
func DetectLocale(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if arabicScriptRatio(trimmed) >= 0.3 {
		return LocaleArabic
	}

	darija, french, english := 0, 0, 0
	for _, word := range strings.Fields(strings.ToLower(trimmed)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		switch {
		case darijaWords[word]:
			darija++
		case frenchWords[word]:
			french++
		case englishWords[word]:
			english++
		}
	}

	switch {
	case darija > 0:
		return LocaleDarija
	case french > 0 && french >= english:
		return LocaleFrench
	case english > 0:
		return LocaleEnglish
	default:
		return ""
	}
}

// nextLocale applies stickiness: detection only changes the stored locale
// when it produced a different, non-empty tag.
func nextLocale(current, detected string) string {
	if detected == "" {
		return current
	}
	return detected
}

func arabicScriptRatio(s string) float64 {
	letters, arabic := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(arabic) / float64(letters)
}
