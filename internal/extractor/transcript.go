package extractor

import "strings"

// FormatTranscript renders turns as "Speaker: text" lines.
func FormatTranscript(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = "Unknown"
		}
		sb.WriteString(speaker)
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}
