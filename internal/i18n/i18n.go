// Package i18n holds the per-locale strings injected into prompts and API
// responses. Supported locales are English and Simplified Chinese; anything
// else falls back to English.
package i18n

const DefaultLocale = "en"

var instructions = map[string]string{
	"en": "Respond in English.",
	"zh": "Respond in Simplified Chinese (简体中文). Keep proper nouns such as town names, scheme names and acronyms (HDB, BTO, CPF) in their original form.",
}

var welcomes = map[string]string{
	"en": "Hi! I'm your Singapore housing assistant. Ask me anything about buying, renting or selling HDB flats and private property, grants and eligibility, or living in a particular neighbourhood.",
	"zh": "您好！我是您的新加坡住房助手。关于购买、租赁或出售组屋和私人房产、津贴与资格条件，或某个社区的生活情况，您都可以问我。",
}

// Normalize maps an arbitrary locale tag to a supported one.
func Normalize(locale string) string {
	if _, ok := instructions[locale]; ok {
		return locale
	}
	return DefaultLocale
}

// Instruction returns the language directive appended to model prompts.
func Instruction(locale string) string {
	return instructions[Normalize(locale)]
}

// Welcome returns the greeting shown when a client opens a new thread.
func Welcome(locale string) string {
	return welcomes[Normalize(locale)]
}

// Locales lists the supported locale tags.
func Locales() []string {
	return []string{"en", "zh"}
}
