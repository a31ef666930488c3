package storage

import (
	"fmt"
	"strings"
)

// ExportMarkdown renders a share as a markdown document.
func ExportMarkdown(s *Share) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Shared snippet %s\n\n", s.ID)
	fmt.Fprintf(&b, "- **Created:** %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Expires:** %s\n", s.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Views:** %d\n", s.Views)
	b.WriteString("\n---\n\n")

	b.WriteString("## Main.java\n\n```java\n")
	b.WriteString(strings.TrimRight(s.Code, "\n"))
	b.WriteString("\n```\n")

	if s.Output != "" {
		b.WriteString("\n## Output\n\n```\n")
		b.WriteString(strings.TrimRight(s.Output, "\n"))
		b.WriteString("\n```\n")
	}
	return b.String()
}
