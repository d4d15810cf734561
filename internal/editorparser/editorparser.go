// Package editorparser round-trips between the final transcript and a
// plain-text editor format: "I: ..." / "D: ..." lines, tolerant of leading
// line numbers, full-width colons, and invisible prefix characters.
package editorparser

import (
	"fmt"
	"regexp"
	"strings"

	"interviewscribe/internal/model"
	"interviewscribe/internal/perr"
)

var invisiblePrefixChars = []rune{
	'﻿', // BOM
	'​', // ZWSP
	'‍', // ZWJ
	'‌', // ZWNJ
	'⁠', // word joiner
}

var linePrefixRe = regexp.MustCompile(`^\s*(?:\d+[).]\s*)?([IiDd])\s*[:：]\s*(.*)$`)

func stripInvisible(line string) string {
	for {
		trimmed := false
		for _, ch := range invisiblePrefixChars {
			if strings.HasPrefix(line, string(ch)) {
				line = strings.TrimPrefix(line, string(ch))
				trimmed = true
			}
		}
		if !trimmed {
			break
		}
	}
	return line
}

// Parse reads editorText into an ordered list of final, role-labeled
// segments. It synthesizes monotonically increasing times at a 3-second
// stride; when prior carries a segment at the same index, that segment's
// confidence is copied forward.
func Parse(editorText string, prior []model.Segment) ([]model.Segment, error) {
	lines := strings.Split(editorText, "\n")

	type pending struct {
		speaker model.Role
		text    strings.Builder
	}
	var open *pending
	var results []*pending

	flush := func() {
		if open != nil {
			results = append(results, open)
			open = nil
		}
	}

	for i, raw := range lines {
		line := stripInvisible(raw)
		trimmed := strings.TrimRight(line, "\r")

		if strings.TrimSpace(trimmed) == "" {
			flush()
			continue
		}

		if m := linePrefixRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			speaker := model.RoleInterviewer
			if strings.EqualFold(m[1], "d") {
				speaker = model.RoleParticipant
			}
			body := m[2]
			if strings.TrimSpace(body) == "" {
				return nil, &perr.ParsingFailed{Message: fmt.Sprintf("empty body after speaker prefix at line %d", i+1)}
			}
			open = &pending{speaker: speaker}
			open.text.WriteString(body)
			continue
		}

		if open == nil {
			return nil, &perr.ParsingFailed{Message: fmt.Sprintf("line %d has no speaker prefix and no open utterance", i+1)}
		}
		open.text.WriteString("\n")
		open.text.WriteString(trimmed)
	}
	flush()

	out := make([]model.Segment, 0, len(results))
	for i, p := range results {
		start := float64(i) * 3
		seg := model.Segment{
			StartSec: start,
			EndSec:   start + 1,
			Speaker:  p.speaker,
			Text:     p.text.String(),
		}
		if i < len(prior) {
			seg.Confidence = prior[i].Confidence
		}
		out = append(out, seg)
	}
	return out, nil
}

// Render produces the editor text form of transcript: one "SPEAKER: text"
// line per segment (continuation lines of embedded newlines stream without
// a prefix), with a single blank line inserted at every speaker change
// (suppressed when the previous segment's text already ends in a newline).
func Render(transcript []model.Segment) string {
	var b strings.Builder
	for i, seg := range transcript {
		if i > 0 {
			prev := transcript[i-1]
			if prev.Speaker != seg.Speaker && !strings.HasSuffix(prev.Text, "\n") {
				b.WriteString("\n")
			}
		}
		lines := strings.Split(seg.Text, "\n")
		b.WriteString(string(seg.Speaker))
		b.WriteString(": ")
		b.WriteString(lines[0])
		b.WriteString("\n")
		for _, cont := range lines[1:] {
			b.WriteString(cont)
			b.WriteString("\n")
		}
	}
	return b.String()
}
