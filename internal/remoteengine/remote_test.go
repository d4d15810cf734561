package remoteengine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunk(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk_0000.m4a")
	require.NoError(t, os.WriteFile(path, []byte("fake audio"), 0o644))
	return path
}

// newEngineForServer builds an Engine pointed at a TLS-backed test server,
// since upload() always dials https://<host>.
func newEngineForServer(t *testing.T, srv *httptest.Server) *Engine {
	t.Helper()
	e := New(srv.Listener.Addr().String(), "test-key", "diarize-model", "text-model", 1)
	e.httpClient = srv.Client()
	e.rngSource = rand.New(rand.NewSource(1))
	return e
}

// parseResponseFormat extracts the response_format form field. It consumes
// the request body; the parsed form stays available on r.MultipartForm.
func parseResponseFormat(r *http.Request) string {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		return ""
	}
	return r.FormValue("response_format")
}

func TestFieldOrderPreserved(t *testing.T) {
	var seenFields []string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		require.NoError(t, err)
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			seenFields = append(seenFields, part.FormName())
			if part.FormName() == "file" {
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"segments":[{"start":0,"end":1,"text":"hej","speaker":"speaker_0"}]}`)
	}))
	defer srv.Close()

	e := newEngineForServer(t, srv)
	_, err := e.upload(context.Background(), newTestChunk(t), multipartFields{
		model: "m", language: "da", responseFormat: "diarized_json", chunkingStrategy: "auto",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "language", "response_format", "chunking_strategy", "file"}, seenFields)
}

// TestHTTPRetrySemantics scripts [timeout, 2xx-diarize, 2xx-text] and
// expects RemoteEngine to succeed after exactly 3 upload calls total.
func TestHTTPRetrySemantics(t *testing.T) {
	var calls int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			// Simulate a slow handler the client's short timeout will trip.
			time.Sleep(50 * time.Millisecond)
			return
		}
		format := parseResponseFormat(r)
		w.Header().Set("Content-Type", "application/json")
		if format == "diarized_json" {
			fmt.Fprint(w, `{"segments":[{"start":0,"end":2,"text":"hej der","speaker":"speaker_0","confidence":0.9}]}`)
			return
		}
		fmt.Fprint(w, `{"segments":[{"start":0,"end":2,"text":"hej der","confidence":0.9}]}`)
	}))
	defer srv.Close()

	e := newEngineForServer(t, srv)
	e.httpClient = &http.Client{Transport: srv.Client().Transport, Timeout: 10 * time.Millisecond}
	e.MaxRetries = 5

	chunk := newTestChunk(t)
	segs, _, err := e.TranscribeChunk(context.Background(), chunk)
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// TestFormatNegotiation scripts [400 unsupported-format, 2xx diarize, 2xx
// text] and expects the observed response_format sequence
// ["diarized_json", "json", "verbose_json"].
func TestFormatNegotiation(t *testing.T) {
	var seenFormats []string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := parseResponseFormat(r)
		seenFormats = append(seenFormats, format)
		if format == "diarized_json" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"unsupported_value: response_format"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"segments":[{"start":0,"end":1,"text":"hej","speaker":"speaker_0"}]}`)
	}))
	defer srv.Close()

	e := newEngineForServer(t, srv)
	chunk := newTestChunk(t)
	_, _, err := e.TranscribeChunk(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, []string{"diarized_json", "json", "verbose_json"}, seenFormats)
}

// TestTimeoutMessageShape checks two consecutive timeouts produce a message
// containing "timed out efter 123" without a doubled generic wrapper.
func TestTimeoutMessageShape(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	e := newEngineForServer(t, srv)
	e.httpClient = &http.Client{Transport: srv.Client().Transport, Timeout: 5 * time.Millisecond}
	e.RequestTimeoutSec = 123
	e.MaxRetries = 2

	chunk := newTestChunk(t)
	_, err := e.uploadWithRetry(context.Background(), chunk, multipartFields{
		model: "m", language: "da", responseFormat: "diarized_json",
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "timed out efter 123")
	assert.Equal(t, 1, countOccurrences(msg, "timed out"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}

func TestMergePassesOverlapAssignment(t *testing.T) {
	diarized := []rawAPISegment{
		{Start: 0, End: 5, SpeakerID: "speaker_0"},
		{Start: 5, End: 10, SpeakerID: "speaker_1"},
	}
	text := []rawAPISegment{
		{Start: 1, End: 4, Text: "hej"},
		{Start: 6, End: 9, Text: "svar"},
	}
	merged := mergePasses(diarized, text)
	require.Len(t, merged, 2)
	assert.Equal(t, "speaker_0", merged[0].SpeakerID)
	assert.Equal(t, "speaker_1", merged[1].SpeakerID)
}

func TestMergePassesEmptyTextReturnsDiarizationVerbatim(t *testing.T) {
	diarized := []rawAPISegment{{Start: 0, End: 5, SpeakerID: "speaker_0", Text: "hej"}}
	merged := mergePasses(diarized, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "speaker_0", merged[0].SpeakerID)
}

func TestConfidenceFromAvgLogprob(t *testing.T) {
	body := []byte(`{"segments":[{"start":0,"end":1,"text":"hej","avg_logprob":-0.1}]}`)
	segs, err := parseTextSegments(body)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.NotNil(t, segs[0].Confidence)
	assert.InDelta(t, clamp01(math.Exp(-0.1)), *segs[0].Confidence, 1e-9)
}

func TestEmptyResponseIsInvalid(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"segments":[]}`)
	}))
	defer srv.Close()

	e := newEngineForServer(t, srv)
	chunk := newTestChunk(t)
	_, _, err := e.TranscribeChunk(context.Background(), chunk)
	require.Error(t, err)
}
