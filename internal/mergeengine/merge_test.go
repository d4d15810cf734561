package mergeengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewscribe/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestMerge_InterviewerParticipantAlternation(t *testing.T) {
	cfg := model.DefaultSpeakerRoleConfig()
	raw := []model.RawSegment{
		{StartSec: 0, EndSec: 4, SpeakerID: "spk1", Text: "Hvordan har du det med dit nye job?", Confidence: ptr(0.9)},
		{StartSec: 4.5, EndSec: 9, SpeakerID: "spk2", Text: "Det går rigtig godt, jeg er glad for det.", Confidence: ptr(0.85)},
		{StartSec: 9.5, EndSec: 13, SpeakerID: "spk1", Text: "Hvad kan du bedst lide ved det?", Confidence: ptr(0.9)},
		{StartSec: 13.5, EndSec: 20, SpeakerID: "spk2", Text: "Kollegerne er søde og opgaverne er spændende.", Confidence: ptr(0.88)},
	}

	out := Merge(raw, cfg)
	require.Len(t, out, 4)

	assert.Equal(t, model.RoleInterviewer, out[0].Speaker)
	assert.Equal(t, model.RoleParticipant, out[1].Speaker)
	assert.Equal(t, model.RoleInterviewer, out[2].Speaker)
	assert.Equal(t, model.RoleParticipant, out[3].Speaker)
}

func TestMerge_SingleSpeakerIsInterviewer(t *testing.T) {
	cfg := model.DefaultSpeakerRoleConfig()
	raw := []model.RawSegment{
		{StartSec: 0, EndSec: 2, SpeakerID: "only", Text: "Test af lydniveau.", Confidence: ptr(0.5)},
	}
	out := Merge(raw, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, model.RoleInterviewer, out[0].Speaker)
}

func TestMerge_DropsPureBackchannels(t *testing.T) {
	cfg := model.DefaultSpeakerRoleConfig()
	raw := []model.RawSegment{
		{StartSec: 0, EndSec: 3, SpeakerID: "a", Text: "Fortæl mig om din baggrund.", Confidence: ptr(0.9)},
		{StartSec: 3.2, EndSec: 3.6, SpeakerID: "b", Text: "mm", Confidence: ptr(0.6)},
		{StartSec: 4, EndSec: 9, SpeakerID: "a", Text: "Jeg har arbejdet med data i ti år.", Confidence: ptr(0.9)},
	}
	out := Merge(raw, cfg)
	for _, s := range out {
		assert.NotEqual(t, "mm", s.Text)
	}
}

func TestMerge_CompactsMicroInterruptions(t *testing.T) {
	cfg := model.DefaultSpeakerRoleConfig()
	raw := []model.RawSegment{
		{StartSec: 0, EndSec: 5, SpeakerID: "a", Text: "Jeg synes vi skal begynde med", Confidence: ptr(0.9)},
		{StartSec: 5.2, EndSec: 5.8, SpeakerID: "b", Text: "ja", Confidence: ptr(0.6)},
		{StartSec: 6, EndSec: 10, SpeakerID: "a", Text: "at tale om dit studie.", Confidence: ptr(0.9)},
	}
	out := Merge(raw, cfg)
	// the backchannel should be compacted away, leaving the two "a" segments
	// fused into one continuous utterance
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "begynde med")
	assert.Contains(t, out[0].Text, "dit studie")
}

func TestDedup_FusesNearDuplicateOverlaps(t *testing.T) {
	raw := []model.RawSegment{
		{StartSec: 0, EndSec: 3, SpeakerID: "a", Text: "Det var en god oplevelse", Confidence: ptr(0.7)},
		{StartSec: 0.1, EndSec: 3.2, SpeakerID: "a", Text: "det var en god oplevelse", Confidence: ptr(0.95)},
	}
	segs := dedup(raw)
	require.Len(t, segs, 1)
	assert.InDelta(t, 0.95, *segs[0].confidence, 0.0001)
}

func TestStripFillers(t *testing.T) {
	assert.Equal(t, "jeg tror det", stripFillers("øh jeg øhm tror det"))
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 1, roundHalfAwayFromZero(0.5))
	assert.Equal(t, -1, roundHalfAwayFromZero(-0.5))
	assert.Equal(t, 2, roundHalfAwayFromZero(1.5))
}
