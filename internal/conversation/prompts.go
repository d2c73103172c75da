package conversation

import "fmt"

// Scripted outbound texts per locale tag. French is the default commerce
// locale; every other tag falls back to it when a text is missing.

type promptSet struct {
	greeting     string // fmt: product, total
	greetingBare string // greeting without order details
	choices      [3]string
	defaultAsk   string
	confirmReply string
	cancelReply  string
	askLocation  string
}

var prompts = map[string]promptSet{
	LocaleFrench: {
		greeting:     "Bonjour ! Nous avons bien reçu votre commande (%s, %s MAD). Merci de confirmer votre commande.",
		greetingBare: "Bonjour ! Nous avons bien reçu votre commande. Merci de la confirmer.",
		choices:      [3]string{"Confirmer", "Annuler", "Plus d'infos"},
		defaultAsk:   "Merci de choisir une option : Confirmer, Annuler, ou Plus d'infos.",
		confirmReply: "Merci ! Votre commande est confirmée et sera traitée rapidement.",
		cancelReply:  "Votre commande a été annulée. N'hésitez pas à nous recontacter.",
		askLocation:  "Pouvez-vous nous envoyer votre adresse ou votre localisation pour la livraison ?",
	},
	LocaleEnglish: {
		greeting:     "Hello! We received your order (%s, %s MAD). Please confirm your order.",
		greetingBare: "Hello! We received your order. Please confirm it.",
		choices:      [3]string{"Confirm", "Cancel", "More info"},
		defaultAsk:   "Please choose an option: Confirm, Cancel, or More info.",
		confirmReply: "Thank you! Your order is confirmed and will be processed shortly.",
		cancelReply:  "Your order has been cancelled. Feel free to contact us again.",
		askLocation:  "Could you send us your address or location for delivery?",
	},
	LocaleArabic: {
		greeting:     "مرحبا! توصلنا بطلبك (%s، %s درهم). المرجو تأكيد الطلب.",
		greetingBare: "مرحبا! توصلنا بطلبك. المرجو تأكيده.",
		choices:      [3]string{"تأكيد", "إلغاء", "معلومات أكثر"},
		defaultAsk:   "المرجو اختيار: تأكيد، إلغاء، أو معلومات أكثر.",
		confirmReply: "شكرا! تم تأكيد طلبك وسيتم تجهيزه قريبا.",
		cancelReply:  "تم إلغاء طلبك. مرحبا بك في أي وقت.",
		askLocation:  "المرجو إرسال عنوانك أو موقعك من أجل التوصيل.",
	},
	LocaleDarija: {
		greeting:     "Salam! Touslatna talabiya dyalk (%s, %s DH). 3afak akkedha.",
		greetingBare: "Salam! Touslatna talabiya dyalk. 3afak akkedha.",
		choices:      [3]string{"N'akked", "Nelghi", "Info zyada"},
		defaultAsk:   "3afak khtar: N'akked, Nelghi, wla Info zyada.",
		confirmReply: "Choukran! Talabiya dyalk tekkedat o ghadi njhzoha daba.",
		cancelReply:  "Talabiya dyalk telghat. Mrhba bik f ay wa9t.",
		askLocation:  "3afak sift lina l'adresse wla localisation dyalk bach nwslo lik.",
	},
}

func promptsFor(locale string) promptSet {
	if set, ok := prompts[locale]; ok {
		return set
	}
	return prompts[LocaleFrench]
}

// greetingText composes the three-choice greeting for an order.
func greetingText(locale, product, total string) (string, []string) {
	set := promptsFor(locale)
	text := set.greetingBare
	if product != "" && total != "" {
		text = fmt.Sprintf(set.greeting, product, total)
	}
	return text, set.choices[:]
}

func defaultAskText(locale string) string   { return promptsFor(locale).defaultAsk }
func confirmReplyText(locale string) string { return promptsFor(locale).confirmReply }
func cancelReplyText(locale string) string  { return promptsFor(locale).cancelReply }
func askLocationText(locale string) string  { return promptsFor(locale).askLocation }
