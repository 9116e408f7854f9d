package memory

import (
	"fmt"
	"strings"
)

const personaStatement = "You are Jarvis, an AI business assistant. You are helpful, professional, and efficient."

const closingRules = `Keep responses concise and suited to the platform you are messaging on.
When something you remember about the user is relevant, bring it up naturally instead of listing it.
You remember conversations with the user across sessions.
If you don't know something, say so honestly. Always be friendly and professional.`

// BuildSystemPrompt assembles the system instruction for a reply. It is a
// pure function of its inputs: identical profile, facts, and platform always
// produce identical text.
func BuildSystemPrompt(profile UserProfile, facts []MemoryFact, platform Platform) string {
	var b strings.Builder
	b.WriteString(personaStatement)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("You are currently talking with the user over %s.", platform))

	if name := strings.TrimSpace(profile.Name); name != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("The user's name is %s.", name))
	}

	if summary := strings.TrimSpace(profile.Summary); summary != "" {
		b.WriteString("\n\nWhat you know about the user so far: ")
		b.WriteString(summary)
	}

	if len(facts) > 0 {
		b.WriteString("\n\nThings you have learned about the user:")
		for _, fact := range facts {
			b.WriteString("\n- ")
			b.WriteString(fact.Text)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(closingRules)
	return b.String()
}
