package failover

import (
	"strings"

	"github.com/vietddude/exlog/internal/core/domain"
)

const indentUnit = "  "

// Format renders an error chain as an indented tree. Each inner error is introduced by an
// "Inner:" line and indented one level deeper than its parent.
func Format(c *domain.CapturedException) string {
	var b strings.Builder
	writeChain(&b, c, 0)
	return strings.TrimRight(b.String(), "\n")
}

// FormatSymptom renders the error being logged under "Actual:" and the failure that prevented
// logging it under "Symptom:".
func FormatSymptom(symptom, actual *domain.CapturedException) string {
	var b strings.Builder
	b.WriteString("Actual:\n")
	writeChain(&b, actual, 1)
	b.WriteString("Symptom:\n")
	writeChain(&b, symptom, 1)
	return strings.TrimRight(b.String(), "\n")
}

func writeChain(b *strings.Builder, c *domain.CapturedException, depth int) {
	for node := c; node != nil; node = node.Inner {
		if node != c {
			writeIndented(b, "Inner:", depth)
			depth++
		}
		writeIndented(b, nodeText(node), depth)
	}
}

func nodeText(c *domain.CapturedException) string {
	text := c.Text
	if text == "" {
		text = c.TypeName + ": " + c.Message
	}
	if c.StackTrace != "" {
		text += "\n" + strings.TrimRight(c.StackTrace, "\n")
	}
	return text
}

func writeIndented(b *strings.Builder, text string, depth int) {
	prefix := strings.Repeat(indentUnit, depth)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
