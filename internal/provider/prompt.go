package provider

import (
	"fmt"
	"strings"
)

// systemPrompt builds the translator instruction shared by the chat-style
// providers.
func systemPrompt(targetLang string, opts Options) string {
	var b strings.Builder
	b.WriteString("You are a professional translator. ")
	fmt.Fprintf(&b, "Translate the user text to %s. ", targetLang)
	switch strings.ToLower(opts.Domain) {
	case "review":
		b.WriteString("The text is a customer review; keep the reviewer's voice and sentiment. ")
	case "social":
		b.WriteString("The text is a social media post; keep slang, hashtags and mentions. ")
	}
	switch strings.ToLower(opts.Formality) {
	case "formal":
		b.WriteString("Use a formal register. ")
	case "informal":
		b.WriteString("Use an informal register. ")
	}
	b.WriteString("Preserve meaning, tone, brand and product names, and URLs. ")
	if opts.PreserveEmojis {
		b.WriteString("Keep emojis exactly as they appear. ")
	}
	return strings.TrimSpace(b.String())
}
