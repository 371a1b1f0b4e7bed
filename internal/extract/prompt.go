package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/murmurhq/murmur/internal/storage"
)

// BuildPrompt renders the extraction prompt for a note. The pending item
// list gives the model the numeric IDs it needs for status updates; the
// current time anchors relative dates like "tomorrow at 5".
func BuildPrompt(content string, pending []storage.ActionItem, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are an assistant that extracts structured action items from a user's note.\n")
	b.WriteString("Analyze the note and respond with ONLY a JSON object, no other text.\n\n")

	fmt.Fprintf(&b, "Current date and time: %s\n\n", now.Format("2006-01-02 15:04:05"))

	if len(pending) > 0 {
		b.WriteString("The user's existing pending items (use the numeric id when marking one completed or dismissed):\n")
		for _, it := range pending {
			fmt.Fprintf(&b, "- id=%d [%s] %s\n", it.ID, it.Type, it.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Note content:\n")
	b.WriteString(content)
	b.WriteString("\n\n")

	b.WriteString(`Respond with this JSON structure:
{
  "priority": "Low|Medium|High",
  "summary": "one sentence summary of the note",
  "new_items": [
    {
      "type": "Task|Reminder|Shopping|Fact|StudyNote|Habit|Meeting",
      "content": "the item text",
      "due_date": "YYYY-MM-DD HH:MM:SS (optional)",
      "end_time": "YYYY-MM-DD HH:MM:SS (optional, meetings only)",
      "location": "where (optional, meetings only)",
      "habit_name": "name of the habit (Habit type only)",
      "value": 0,
      "unit": "unit for the habit value (Habit type only)",
      "reasoning": "why you extracted this"
    }
  ],
  "alarms": [
    {"time": "HH:MM", "label": "what the alarm is for"}
  ],
  "updates": [
    {"id": 0, "status": "Completed|Dismissed", "reasoning": "why"}
  ],
  "email_intent": {"detected": false, "recipient": "", "subject": "", "body": ""},
  "search_intent": {"detected": false, "queries": []}
}

Rules:
- Only extract items the user clearly stated. Do not invent tasks.
- Use "Reminder" with a due_date and an alarm when the user wants to be reminded at a time.
- Use "Meeting" for appointments with other people; include end_time and location when stated.
- Use "Habit" when the user logs a recurring measurable activity (ran 5 km, drank 2 liters of water).
- Use "Shopping" for things to buy, "Fact" for things to remember, "StudyNote" for things to learn.
- Resolve relative dates ("tomorrow", "next Friday") against the current date above.
- Omit due_date entirely when the user gave no time. Never echo the placeholder text.
- Only add an update when the note clearly says an existing pending item is done or no longer needed.
- Set email_intent.detected true only when the user asks to send an email, and draft it.
- Set search_intent.detected true only when the user asks to look something up on the web.
- If the note contains nothing actionable, return empty lists with priority "Low".
`)

	return b.String()
}
