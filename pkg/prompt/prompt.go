// Package prompt composes the text sent to providers from the caller's
// prompt, the session's accumulated context, and retrieved reference
// documents. The system instruction is never folded into this text; it
// travels as its own request field end to end.
package prompt

import (
	"fmt"
	"strings"

	"github.com/quillgate/quillgate/pkg/rag"
)

// Input is the material available for one generation call.
type Input struct {
	// Prompt is the caller's text. Required.
	Prompt string

	// SessionContext is the accumulated conversation so far, possibly
	// empty.
	SessionContext string

	// Documents are retrieved reference results, ranked best first.
	Documents []rag.Document
}

// Build composes the user-role prompt. Sections appear in a fixed order
// (references, conversation, current prompt) so the model always finds
// the caller's actual request last.
func Build(in Input) string {
	var b strings.Builder

	if len(in.Documents) > 0 {
		b.WriteString("Reference material:\n")
		for i, doc := range in.Documents {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, doc.Title, doc.Snippet)
		}
		b.WriteString("\n")
	}

	if in.SessionContext != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(in.SessionContext)
		b.WriteString("\n\n")
	}

	b.WriteString(in.Prompt)
	return b.String()
}
