// Package formatter builds the line-numbering contract shared by the TXT
// and DOCX exporters: a header block followed by contiguous numbered line
// entries, one per final segment (plus continuations for embedded
// newlines).
package formatter

import (
	"fmt"
	"strings"
	"time"

	"interviewscribe/internal/model"
)

// LineEntry is one row of the exported transcript body.
type LineEntry struct {
	Number  int
	Speaker *model.Role // nil for blank separator rows
	Text    string
}

// Header holds the fixed Danish header block fields.
type Header struct {
	SourceName  string
	Date        time.Time
	DurationMin int
}

// BuildHeader fills in the header block. An empty sourceNameOverride keeps
// the job's own source name.
func BuildHeader(job *model.Job, sourceNameOverride string) Header {
	name := job.SourceName
	if sourceNameOverride != "" {
		name = sourceNameOverride
	}
	durationMin := int(job.DurationSec / 60)
	if durationMin < 1 {
		durationMin = 1
	}
	return Header{SourceName: name, Date: job.UpdatedAt, DurationMin: durationMin}
}

// HeaderLines renders the fixed Danish header block as plain text lines,
// not yet numbered (the body's numbering starts after it).
func (h Header) HeaderLines() []string {
	return []string{
		h.SourceName,
		h.Date.Format("2006-01-02"),
		fmt.Sprintf("%d minutter", h.DurationMin),
		"",
		"Deltagere:",
		"Interviewer (I)",
		"Deltager (D)",
		"",
	}
}

// BuildLineEntries produces the contiguous, 1-indexed line entries for the
// transcript body: one entry per embedded-newline-separated line of each
// segment, the speaker prefix only on the first line of a block, and a
// blank entry inserted between speaker changes unless the previous
// segment's text already ended in a newline.
func BuildLineEntries(transcript []model.Segment) []LineEntry {
	var out []LineEntry
	number := 1
	for i, seg := range transcript {
		if i > 0 {
			prev := transcript[i-1]
			if prev.Speaker != seg.Speaker && !strings.HasSuffix(prev.Text, "\n") {
				out = append(out, LineEntry{Number: number})
				number++
			}
		}
		lines := strings.Split(seg.Text, "\n")
		for j, line := range lines {
			entry := LineEntry{Number: number, Text: line}
			if j == 0 {
				speaker := seg.Speaker
				entry.Speaker = &speaker
			}
			out = append(out, entry)
			number++
		}
	}
	return out
}

// RenderTXT serializes header + body per the TXT contract: "\tspeaker: text"
// per non-blank entry, blank entries emit only the number and a tab, file
// terminated with a single trailing newline.
func RenderTXT(header Header, entries []LineEntry) string {
	var b strings.Builder
	for _, line := range header.HeaderLines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("%d\t", e.Number))
		if e.Speaker != nil {
			b.WriteString(string(*e.Speaker))
			b.WriteString(": ")
		}
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}
