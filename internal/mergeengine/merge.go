// Package mergeengine turns a job's globalized raw segments into the final,
// role-labeled transcript: dedup, style-noise filtering, micro-interruption
// compaction, same-speaker run merging, and speaker-to-role assignment.
package mergeengine

import (
	"math"
	"sort"
	"strings"

	"interviewscribe/internal/model"
)

var fillerTokens = []string{"øh", "øhm", "eh", "ehm", "hmm", "øhh", "æh"}

var backchannelWords = map[string]bool{
	"ja": true, "jo": true, "nej": true, "ok": true, "okay": true,
	"mm": true, "mhm": true, "klart": true, "nåh": true, "nå": true, "præcis": true,
}

var technicalShortKeywords = []string{
	"optager", "mikrofon", "lydfil", "teknisk", "pause optagelsen", "skru op",
}

var technicalStrongPhrases = []string{
	"kan du gentage det, optagelsen gik ud",
	"vi tester lige mikrofonen inden vi starter",
	"skal vi lige tjekke at optagelsen virker",
}

// Merge runs the full pipeline over globalized raw segments and returns the
// final, time-ordered, role-labeled transcript.
func Merge(raw []model.RawSegment, cfg model.SpeakerRoleConfig) []model.Segment {
	segs := dedup(raw)
	segs = styleFilter(segs)
	segs = compactMicroInterruptions(segs)
	segs = mergeSameSpeakerRuns(segs)
	return assignRoles(segs, cfg)
}

type workingSegment struct {
	start, end float64
	speakerID  string
	text       string
	confidence *float64
}

func toWorking(raw []model.RawSegment) []workingSegment {
	out := make([]workingSegment, len(raw))
	for i, r := range raw {
		out[i] = workingSegment{start: r.StartSec, end: r.EndSec, speakerID: r.SpeakerID, text: r.Text, confidence: r.Confidence}
	}
	return out
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// dedup sorts by (start, end) and fuses consecutive segments that are
// near-duplicates of each other.
func dedup(raw []model.RawSegment) []workingSegment {
	segs := toWorking(raw)
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].start != segs[j].start {
			return segs[i].start < segs[j].start
		}
		return segs[i].end < segs[j].end
	})

	var out []workingSegment
	for _, s := range segs {
		if len(out) == 0 {
			out = append(out, s)
			continue
		}
		last := &out[len(out)-1]
		overlaps := s.start <= last.end+0.25
		normLast, normCur := normalize(last.text), normalize(s.text)

		if overlaps && normLast == normCur {
			last.end = math.Max(last.end, s.end)
			last.confidence = maxConfidence(last.confidence, s.confidence)
			continue
		}
		if overlaps && last.speakerID == s.speakerID && isPrefix(normLast, normCur) {
			*last = pickLonger(*last, s)
			continue
		}
		out = append(out, s)
	}
	return out
}

func isPrefix(a, b string) bool {
	return strings.HasPrefix(b, a) || strings.HasPrefix(a, b)
}

func pickLonger(a, b workingSegment) workingSegment {
	longer := a
	if len(b.text) > len(a.text) {
		longer = b
	}
	longer.end = math.Max(a.end, b.end)

	later := a
	if b.start > a.start || (b.start == a.start && b.end > a.end) {
		later = b
	}
	longer.confidence = later.confidence
	return longer
}

func maxConfidence(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a >= *b {
		return a
	}
	return b
}

// styleFilter strips filler tokens then drops pure backchannels and
// technical-meta utterances.
func styleFilter(segs []workingSegment) []workingSegment {
	var out []workingSegment
	for _, s := range segs {
		s.text = stripFillers(s.text)
		words := strings.Fields(normalize(s.text))
		if isPureBackchannel(words) {
			continue
		}
		if isTechnicalMeta(normalize(s.text), words) {
			continue
		}
		s.text = strings.TrimSpace(s.text)
		if s.text == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func stripFillers(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		trimmed := strings.Trim(strings.ToLower(w), ".,!?;:")
		isFiller := false
		for _, f := range fillerTokens {
			if trimmed == f {
				isFiller = true
				break
			}
		}
		if !isFiller {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func isPureBackchannel(words []string) bool {
	if len(words) == 0 || len(words) > 2 {
		return false
	}
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:")
		if !backchannelWords[w] {
			return false
		}
	}
	return true
}

func isTechnicalMeta(normText string, words []string) bool {
	if len(words) <= 10 {
		for _, kw := range technicalShortKeywords {
			if strings.Contains(normText, kw) {
				return true
			}
		}
	}
	if len(words) <= 20 {
		for _, phrase := range technicalStrongPhrases {
			if strings.Contains(normText, phrase) {
				return true
			}
		}
	}
	return false
}

// compactMicroInterruptions removes short backchannel interjections
// sandwiched between two utterances from the same other speaker.
func compactMicroInterruptions(segs []workingSegment) []workingSegment {
	if len(segs) < 3 {
		return segs
	}
	remove := make([]bool, len(segs))
	for i := 1; i < len(segs)-1; i++ {
		prev, curr, next := segs[i-1], segs[i], segs[i+1]
		words := strings.Fields(normalize(curr.text))
		if len(words) > 3 {
			continue
		}
		backchannel := true
		for _, w := range words {
			if !backchannelWords[strings.Trim(w, ".,!?;:")] {
				backchannel = false
				break
			}
		}
		if !backchannel {
			continue
		}
		if prev.speakerID != next.speakerID || prev.speakerID == curr.speakerID {
			continue
		}
		if curr.start-prev.end > 8 || next.start-curr.end > 8 {
			continue
		}
		remove[i] = true
	}
	var out []workingSegment
	for i, s := range segs {
		if !remove[i] {
			out = append(out, s)
		}
	}
	return out
}

// mergeSameSpeakerRuns fuses consecutive same-speaker segments whose gap is
// within 10 seconds.
func mergeSameSpeakerRuns(segs []workingSegment) []workingSegment {
	var out []workingSegment
	for _, s := range segs {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.speakerID == s.speakerID && s.start-last.end <= 10 {
				last.end = math.Max(last.end, s.end)
				last.text = collapseWhitespace(last.text + " " + s.text)
				last.confidence = maxConfidence(last.confidence, s.confidence)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type speakerStats struct {
	id           string
	first        float64
	utterances   int
	questions    int
	totalWords   int
}

// assignRoles maps internal speaker ids to I/D per the scoring heuristic.
func assignRoles(segs []workingSegment, cfg model.SpeakerRoleConfig) []model.Segment {
	stats := map[string]*speakerStats{}
	order := []string{}
	for _, s := range segs {
		st, ok := stats[s.speakerID]
		if !ok {
			st = &speakerStats{id: s.speakerID, first: s.start}
			stats[s.speakerID] = st
			order = append(order, s.speakerID)
		}
		st.utterances++
		st.questions += strings.Count(s.text, "?")
		st.totalWords += len(strings.Fields(s.text))
		if s.start < st.first {
			st.first = s.start
		}
	}

	roleOf := map[string]model.Role{}
	if len(order) == 1 {
		roleOf[order[0]] = model.RoleInterviewer
	} else if len(order) > 1 {
		type scored struct {
			id    string
			score float64
			first float64
		}
		var ranked []scored
		for _, id := range order {
			st := stats[id]
			avgWords := math.Max(1, float64(st.totalWords)/float64(st.utterances))
			startBonus := math.Max(0, 1-math.Min(st.first/120, 1))
			score := 3*(float64(st.questions)/float64(st.utterances)) + startBonus + 2*(1/avgWords)
			ranked = append(ranked, scored{id: id, score: score, first: st.first})
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].score != ranked[j].score {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].first < ranked[j].first
		})

		unique := len(order)
		var slotCount int
		if cfg.Participants > 0 {
			slotCount = clamp(roundHalfAwayFromZero(float64(unique)*float64(cfg.Interviewers)/float64(cfg.Interviewers+cfg.Participants)), 1, unique-1)
		} else {
			slotCount = clamp(roundHalfAwayFromZero(float64(unique)*float64(cfg.Interviewers)/float64(cfg.Interviewers+cfg.Participants)), 1, unique)
		}

		for i, r := range ranked {
			if i < slotCount {
				roleOf[r.id] = model.RoleInterviewer
			} else {
				roleOf[r.id] = model.RoleParticipant
			}
		}
	}

	out := make([]model.Segment, 0, len(segs))
	for _, s := range segs {
		out = append(out, model.Segment{
			StartSec:   roundMillis(s.start),
			EndSec:     roundMillis(s.end),
			Speaker:    roleOf[s.speakerID],
			Text:       strings.TrimSpace(s.text),
			Confidence: s.confidence,
		})
	}
	return out
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(math.Floor(v + 0.5))
	}
	return int(math.Ceil(v - 0.5))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundMillis(v float64) float64 { return math.Round(v*1000) / 1000 }
