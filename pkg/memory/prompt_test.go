package memory

import (
	"strings"
	"testing"
)

func TestBuildSystemPrompt_Deterministic(t *testing.T) {
	profile := UserProfile{UserID: "telegram:1", Name: "Dana", Summary: "Manages logistics."}
	facts := []MemoryFact{
		{Text: "Works at Denver warehouse"},
		{Text: "Prefers morning calls"},
	}

	first := BuildSystemPrompt(profile, facts, PlatformTelegram)
	second := BuildSystemPrompt(profile, facts, PlatformTelegram)
	if first != second {
		t.Fatalf("prompt assembly is not deterministic")
	}
}

func TestBuildSystemPrompt_SectionsInOrder(t *testing.T) {
	profile := UserProfile{Name: "Dana", Summary: "Manages logistics."}
	facts := []MemoryFact{{Text: "Works at Denver warehouse"}}

	prompt := BuildSystemPrompt(profile, facts, PlatformDiscord)

	markers := []string{
		"You are Jarvis",
		"talking with the user over discord",
		"The user's name is Dana.",
		"Manages logistics.",
		"- Works at Denver warehouse",
		"friendly and professional",
	}
	last := -1
	for _, marker := range markers {
		idx := strings.Index(prompt, marker)
		if idx < 0 {
			t.Fatalf("prompt missing %q:\n%s", marker, prompt)
		}
		if idx < last {
			t.Fatalf("marker %q out of order", marker)
		}
		last = idx
	}
}

func TestBuildSystemPrompt_OmitsEmptySections(t *testing.T) {
	prompt := BuildSystemPrompt(UserProfile{}, nil, PlatformSMS)

	if strings.Contains(prompt, "The user's name") {
		t.Fatalf("unknown name should be omitted")
	}
	if strings.Contains(prompt, "What you know about the user") {
		t.Fatalf("empty summary should be omitted")
	}
	if strings.Contains(prompt, "Things you have learned") {
		t.Fatalf("empty fact list should be omitted")
	}
	if !strings.Contains(prompt, "talking with the user over sms") {
		t.Fatalf("platform line missing:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_FactOrderPreserved(t *testing.T) {
	facts := []MemoryFact{
		{Text: "first"},
		{Text: "second"},
		{Text: "third"},
	}
	prompt := BuildSystemPrompt(UserProfile{}, facts, PlatformTelegram)

	a := strings.Index(prompt, "- first")
	b := strings.Index(prompt, "- second")
	c := strings.Index(prompt, "- third")
	if a < 0 || b < 0 || c < 0 || !(a < b && b < c) {
		t.Fatalf("facts not rendered in insertion order:\n%s", prompt)
	}
}
