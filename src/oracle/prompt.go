package oracle

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/parley/src/node"
)

func describe(b *strings.Builder, p node.Profile) {
	fmt.Fprintf(b, "- %s (id %s)\n", p.Name, p.ID)
	if p.Personality != "" {
		fmt.Fprintf(b, "  personality: %s\n", p.Personality)
	}
	if p.Story != "" {
		fmt.Fprintf(b, "  story: %s\n", p.Story)
	}
	if p.Sample != "" {
		fmt.Fprintf(b, "  sample: %s\n", p.Sample)
	}
}

// systemPrompt tells the model who it is and how to answer.
func systemPrompt(s Situation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, one of several companions talking in a shared conversation.\n", s.Self.Name)
	b.WriteString("About you:\n")
	describe(&b, s.Self)

	if len(s.Companions) > 0 {
		b.WriteString("The other companions:\n")
		for _, c := range s.Companions {
			describe(&b, c)
		}
	}

	fmt.Fprintf(&b, `
Speaking consumes a shared budget of %.2f units that recovers over time.
Every character costs %.2f units. Speak only when you have something to add,
keep it short, and leave room for the others.

Answer with a single JSON object and nothing else:
{"speak": true|false, "amount": <units to consume>, "message": "<what you say>"}
`, s.Capacity, CostPerChar)

	return b.String()
}

// userPrompt describes the current state of the conversation.
func userPrompt(s Situation) string {
	var b strings.Builder

	if len(s.History) == 0 {
		b.WriteString("Nobody has spoken yet.\n")
	} else {
		b.WriteString("Conversation so far:\n")
		for _, u := range s.History {
			fmt.Fprintf(&b, "[%s] %s\n", u.ActorID, u.Payload)
		}
	}

	fmt.Fprintf(&b, "\nAvailable budget: %.2f of %.2f.\n", s.Available, s.Capacity)
	b.WriteString("Do you speak now?")

	return b.String()
}
