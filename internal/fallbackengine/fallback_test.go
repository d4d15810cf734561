package fallbackengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentencesTrimsAndDropsEmpty(t *testing.T) {
	got := splitSentences("Hej med dig.  Hvordan går det? Fint tak!  ")
	assert.Equal(t, []string{"Hej med dig.", "Hvordan går det?", "Fint tak!"}, got)
}

func TestSplitSentencesEmptyInput(t *testing.T) {
	assert.Nil(t, splitSentences("   "))
}

func TestAlternateSpeakersAssignsEvenOddSpeakers(t *testing.T) {
	segments := alternateSpeakers([]string{"a", "b", "c"})
	require.Len(t, segments, 3)
	assert.Equal(t, "speaker_0", segments[0].SpeakerID)
	assert.Equal(t, "speaker_1", segments[1].SpeakerID)
	assert.Equal(t, "speaker_0", segments[2].SpeakerID)
}

func TestAlternateSpeakersEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, alternateSpeakers(nil))
}

func TestAlternateSpeakersDurationFloorsAtTwoSeconds(t *testing.T) {
	// 240 sentences -> 240/240 = 1.0s/sentence, floored up to the 2.0s minimum.
	sentences := make([]string, 240)
	for i := range sentences {
		sentences[i] = "x"
	}
	segments := alternateSpeakers(sentences)
	require.Len(t, segments, 240)
	assert.InDelta(t, 2.0, segments[0].EndSec-segments[0].StartSec, 1e-9)
	assert.InDelta(t, 0.0, segments[0].StartSec, 1e-9)
	assert.InDelta(t, 2.0, segments[1].StartSec, 1e-9)
}

func TestAlternateSpeakersDurationScalesAboveFloor(t *testing.T) {
	// 2 sentences -> 240/2 = 120s/sentence, well above the floor.
	segments := alternateSpeakers([]string{"a", "b"})
	require.Len(t, segments, 2)
	assert.InDelta(t, 120.0, segments[0].EndSec-segments[0].StartSec, 1e-9)
	assert.InDelta(t, 120.0, segments[1].StartSec, 1e-9)
}
