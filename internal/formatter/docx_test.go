package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewscribe/internal/model"
)

func TestWrapText_ShortTextUnwrapped(t *testing.T) {
	frags := wrapText("kort sætning", 80)
	require.Len(t, frags, 1)
	assert.Equal(t, "kort sætning", frags[0])
}

func TestWrapText_BreaksOnWordBoundary(t *testing.T) {
	text := "dette er en rigtig lang sætning der skal wrappes over flere linjer i dokumentet"
	frags := wrapText(text, 20)
	require.True(t, len(frags) > 1)
	for _, f := range frags {
		assert.LessOrEqual(t, len([]rune(f)), 20)
		assert.False(t, strings.HasPrefix(f, " "))
	}
	assert.Equal(t, text, strings.Join(frags, " "))
}

func TestWrapEntries_OnlyFirstFragmentCarriesSpeaker(t *testing.T) {
	speaker := interviewerRole()
	entries := []LineEntry{
		{Number: 1, Speaker: &speaker, Text: strings.Repeat("ord ", 30)},
	}
	wrapped := wrapEntries(entries, 2000)
	require.True(t, len(wrapped) >= 1)
	assert.NotNil(t, wrapped[0].Speaker)
	for _, w := range wrapped[1:] {
		assert.Nil(t, w.Speaker)
	}
	// numbering stays contiguous across the wrapped fragments
	for i, w := range wrapped {
		assert.Equal(t, i+1, w.Number)
	}
}
