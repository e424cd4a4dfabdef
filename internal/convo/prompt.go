package convo

import (
	"strings"
)

// personality directives keyed by settings.personality_mode.
var personalityDirectives = map[string]string{
	"warm":       "Respond warmly and with care, in your own voice.",
	"playful":    "Respond playfully and lightly, in your own voice.",
	"reflective": "Respond thoughtfully and reflectively, in your own voice.",
	"concise":    "Respond briefly, in your own voice.",
}

// BuildPrompt renders the context window followed by the new message into a
// plain-text prompt ending with an assistant cue.
func BuildPrompt(window []Turn, message, personalityMode string) string {
	var b strings.Builder
	if d := directiveFor(personalityMode); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	for _, t := range window {
		writeLine(&b, t.Role, t.Text)
	}
	writeLine(&b, RoleUser, message)
	b.WriteString("Assistant:")
	return b.String()
}

func directiveFor(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return ""
	}
	if d, ok := personalityDirectives[mode]; ok {
		return d
	}
	return "Respond in a " + mode + " manner, in your own voice."
}

func writeLine(b *strings.Builder, role Role, text string) {
	switch role {
	case RoleAssistant:
		b.WriteString("Assistant: ")
	default:
		b.WriteString("User: ")
	}
	// one turn per line
	b.WriteString(strings.Join(strings.Fields(text), " "))
	b.WriteByte('\n')
}
