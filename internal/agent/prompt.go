package agent

import (
	"fmt"
	"strings"
)

// maxPromptOutput bounds how much previous output is replayed into a prompt.
const maxPromptOutput = 2000

// BuildPrompt renders the user prompt for one attempt.
func BuildPrompt(a Attempt) string {
	var b strings.Builder
	st := a.SubTask

	fmt.Fprintf(&b, "## %s\n\n", st.Title)
	if st.Description != "" {
		b.WriteString(st.Description)
		b.WriteString("\n\n")
	}
	if st.Context != "" && st.Context != st.Description {
		b.WriteString("### Full task\n\n")
		b.WriteString(st.Context)
		b.WriteString("\n\n")
	}
	if a.Budget > 0 {
		fmt.Fprintf(&b, "Iteration %d of %d.\n", a.Iteration, a.Budget)
	}
	if a.PreviousOutput != "" {
		b.WriteString("\n### Your previous output\n\n")
		b.WriteString(tail(a.PreviousOutput, maxPromptOutput))
		b.WriteString("\n")
	}
	if a.Feedback != "" {
		b.WriteString("\n### Verification feedback\n\n")
		b.WriteString(a.Feedback)
		b.WriteString("\n\nAddress the feedback before declaring the work complete.\n")
	}
	return b.String()
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}
