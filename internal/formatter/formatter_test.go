package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewscribe/internal/model"
)

func TestBuildHeader(t *testing.T) {
	job := &model.Job{SourceName: "interview_01.wav", UpdatedAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), DurationSec: 125}
	h := BuildHeader(job, "")
	assert.Equal(t, "interview_01.wav", h.SourceName)
	assert.Equal(t, 2, h.DurationMin)

	h2 := BuildHeader(job, "override.wav")
	assert.Equal(t, "override.wav", h2.SourceName)
}

func TestBuildHeader_RoundsShortDurationUpToOneMinute(t *testing.T) {
	job := &model.Job{SourceName: "x.wav", UpdatedAt: time.Now(), DurationSec: 30}
	h := BuildHeader(job, "")
	assert.Equal(t, 1, h.DurationMin)
}

func TestBuildLineEntries_NumbersContiguouslyAndPrefixesFirstLineOnly(t *testing.T) {
	transcript := []model.Segment{
		{Speaker: model.RoleInterviewer, Text: "Velkommen.\nHåber du har det godt."},
		{Speaker: model.RoleParticipant, Text: "Tak for det."},
	}
	entries := BuildLineEntries(transcript)

	require.Len(t, entries, 4) // 2 lines + blank separator + 1 line
	assert.Equal(t, 1, entries[0].Number)
	require.NotNil(t, entries[0].Speaker)
	assert.Equal(t, model.RoleInterviewer, *entries[0].Speaker)
	assert.Equal(t, "Velkommen.", entries[0].Text)

	assert.Nil(t, entries[1].Speaker)
	assert.Equal(t, "Håber du har det godt.", entries[1].Text)

	assert.Nil(t, entries[2].Speaker) // speaker-change blank separator
	assert.Equal(t, "", entries[2].Text)

	require.NotNil(t, entries[3].Speaker)
	assert.Equal(t, model.RoleParticipant, *entries[3].Speaker)
}

func TestRenderTXT_ContainsHeaderAndNumberedBody(t *testing.T) {
	job := &model.Job{SourceName: "session.wav", UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), DurationSec: 600}
	header := BuildHeader(job, "")
	entries := BuildLineEntries([]model.Segment{
		{Speaker: model.RoleInterviewer, Text: "Tak fordi du ville deltage."},
	})

	out := RenderTXT(header, entries)
	assert.True(t, strings.Contains(out, "session.wav"))
	assert.True(t, strings.Contains(out, "10 minutter"))
	assert.True(t, strings.Contains(out, "1\tI: Tak fordi du ville deltage."))
}
