package editorparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewscribe/internal/model"
)

func TestParse_BasicTwoSpeaker(t *testing.T) {
	text := "I: Hvordan går det?\n\nD: Det går fint.\n"
	out, err := Parse(text, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, model.RoleInterviewer, out[0].Speaker)
	assert.Equal(t, "Hvordan går det?", out[0].Text)
	assert.Equal(t, model.RoleParticipant, out[1].Speaker)
	assert.Equal(t, "Det går fint.", out[1].Text)
}

func TestParse_ToleratesLineNumbersAndFullWidthColon(t *testing.T) {
	text := "1. I： Velkommen til interviewet.\n\n2) d: Tak fordi jeg må være med."
	out, err := Parse(text, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, model.RoleInterviewer, out[0].Speaker)
	assert.Equal(t, model.RoleParticipant, out[1].Speaker)
}

func TestParse_StripsInvisibleCharacters(t *testing.T) {
	text := "﻿I: Hej med BOM-præfiks."
	out, err := Parse(text, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Hej med BOM-præfiks.", out[0].Text)
}

func TestParse_ContinuationLines(t *testing.T) {
	text := "I: Første linje\nanden linje uden præfiks"
	out, err := Parse(text, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Første linje\nanden linje uden præfiks", out[0].Text)
}

func TestParse_OrphanContinuationErrors(t *testing.T) {
	_, err := Parse("dette er en linje uden en taler-præfiks", nil)
	assert.Error(t, err)
}

func TestParse_EmptyBodyErrors(t *testing.T) {
	_, err := Parse("I:", nil)
	assert.Error(t, err)
}

func TestParse_CopiesPriorConfidenceByIndex(t *testing.T) {
	conf := 0.77
	prior := []model.Segment{{Confidence: &conf}}
	out, err := Parse("I: uændret tekst", prior)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Confidence)
	assert.InDelta(t, 0.77, *out[0].Confidence, 0.0001)
}

func TestRender_RoundTripsSpeakerLines(t *testing.T) {
	transcript := []model.Segment{
		{Speaker: model.RoleInterviewer, Text: "Hvordan går det?"},
		{Speaker: model.RoleParticipant, Text: "Det går fint."},
	}
	rendered := Render(transcript)
	parsed, err := Parse(rendered, nil)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, transcript[0].Speaker, parsed[0].Speaker)
	assert.Equal(t, transcript[0].Text, parsed[0].Text)
	assert.Equal(t, transcript[1].Speaker, parsed[1].Speaker)
	assert.Equal(t, transcript[1].Text, parsed[1].Text)
}
