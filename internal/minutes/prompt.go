package minutes

import (
	"fmt"
	"strings"
	"time"
)

const systemInstruction = "You are a meeting assistant. Produce accurate, " +
	"concise meeting minutes from the transcript you are given. Use only " +
	"information present in the transcript."

// buildPrompt renders the user prompt requesting the structured minutes
// layout: summary, key points, decisions, action items.
func buildPrompt(transcript string, hints Hints) string {
	var b strings.Builder

	b.WriteString("Write meeting minutes for the following transcript.\n\n")
	b.WriteString("Structure the minutes with these sections:\n")
	b.WriteString("## Summary\n")
	b.WriteString("## Key Points\n")
	b.WriteString("## Decisions\n")
	b.WriteString("## Action Items\n\n")
	b.WriteString("Use bullet lists inside each section. If a section has no ")
	b.WriteString("content, write \"None\".\n")

	if len(hints.Participants) > 0 {
		b.WriteString(fmt.Sprintf("\nParticipants: %s\n", strings.Join(hints.Participants, ", ")))
	}

	if len(hints.Vocabulary) > 0 {
		b.WriteString(fmt.Sprintf("\nDomain terms that may appear (spell them exactly): %s\n",
			strings.Join(hints.Vocabulary, ", ")))
	}

	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)

	return b.String()
}

// formatMinutes prepends the title and timestamp header to the generated
// body.
func formatMinutes(body string, hints Hints) string {
	title := hints.Title
	if title == "" {
		title = "Meeting Minutes"
	}

	date := hints.Date
	if date.IsZero() {
		date = time.Now()
	}

	return fmt.Sprintf("# %s\n_%s_\n\n%s", title, date.Format("2006-01-02 15:04 MST"), strings.TrimSpace(body))
}
