package formatter

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
)

// Twip column widths and margins, per the fixed three-column layout.
const (
	numberColWidth  = 601
	gapColWidth     = 329
	textColWidth    = 8708
	pageMarginTB    = 1701
	pageMarginLR    = 1134
	rowMinHeight    = 283
	bodyFontSize    = 12
	avgCharWidthTwp = 90 // rough per-character width at 12pt minor-Latin, used for wrap estimation
)

// RenderDOCX writes header + body to outPath as a three-column fixed-layout
// table (numbers|gap|text). Long lines are pre-wrapped against
// textColWidth-8pt so each wrapped fragment becomes its own numbered row;
// the speaker prefix is emitted once per block, bold, on its first row.
func RenderDOCX(header Header, entries []LineEntry, outPath string) error {
	w := docx.New().WithDefaultTheme()
	w.Document.Body.SetPageMargins(pageMarginTB, pageMarginTB, pageMarginLR, pageMarginLR)

	for _, line := range header.HeaderLines() {
		p := w.AddParagraph()
		p.AddText(line).Size(fmt.Sprintf("%d", bodyFontSize*2))
	}

	wrapped := wrapEntries(entries, textColWidth-8*20) // 8pt margin, twips
	table := w.AddTable(len(wrapped), 3, numberColWidth+gapColWidth+textColWidth, nil)
	for i, row := range wrapped {
		table.TableRows[i].TableCells[0].Paragraphs[0].AddText(fmt.Sprintf("%d", row.Number))
		table.TableRows[i].TableCells[1].Paragraphs[0].AddText("")
		textCell := table.TableRows[i].TableCells[2].Paragraphs[0]
		if row.Speaker != nil {
			textCell.AddText(string(*row.Speaker) + ": ").Bold()
		}
		textCell.AddText(row.Text)
		table.TableRows[i].Height = rowMinHeight
		table.TableRows[i].HeightRule = "atLeast"
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("formatter: create docx: %w", err)
	}
	defer f.Close()
	if _, err := w.WriteTo(f); err != nil {
		return fmt.Errorf("formatter: write docx: %w", err)
	}
	return nil
}

// wrapEntries pre-wraps each entry's text against the available column
// width (approximated by average character width), emitting the speaker
// prefix only on the first wrapped row of a block.
func wrapEntries(entries []LineEntry, availableTwips int) []LineEntry {
	maxChars := availableTwips / avgCharWidthTwp
	if maxChars < 10 {
		maxChars = 10
	}

	var out []LineEntry
	number := 1
	for _, e := range entries {
		if e.Text == "" && e.Speaker == nil {
			out = append(out, LineEntry{Number: number})
			number++
			continue
		}
		fragments := wrapText(e.Text, maxChars)
		if len(fragments) == 0 {
			fragments = []string{""}
		}
		for i, frag := range fragments {
			entry := LineEntry{Number: number, Text: frag}
			if i == 0 {
				entry.Speaker = e.Speaker
			}
			out = append(out, entry)
			number++
		}
	}
	return out
}

func wrapText(text string, maxChars int) []string {
	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}
	var frags []string
	runes := []rune(text)
	for len(runes) > 0 {
		end := maxChars
		if end > len(runes) {
			end = len(runes)
		}
		// Prefer breaking on the last space within the window.
		breakAt := end
		if end < len(runes) {
			for i := end; i > 1; i-- {
				if runes[i-1] == ' ' {
					breakAt = i - 1
					break
				}
			}
		}
		frags = append(frags, string(runes[:breakAt]))
		runes = runes[breakAt:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	return frags
}
