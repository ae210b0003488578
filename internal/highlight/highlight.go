// Package highlight estimates which sentence is being spoken at a given
// playback offset.
package highlight

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMsPerChar is the estimated speaking time per character at speed 1.
const DefaultMsPerChar = 65.0

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Split breaks text into sentences after '.', '!' or '?' followed by
// whitespace. Sentences are trimmed and blank ones dropped.
func Split(text string) []string {
	var out []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : m[0]+1]); s != "" {
			out = append(out, s)
		}
		start = m[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Track maps playback offsets to sentences.
type Track struct {
	sentences []string
	// offsets has one more entry than sentences: offsets[i] is where
	// sentence i starts and the last entry is the estimated total.
	offsets []int64
}

// NewTrack splits text and estimates each sentence's start from its
// character count. A non-positive speed is treated as 1.
func NewTrack(text string, msPerChar, speed float64) *Track {
	if speed <= 0 {
		speed = 1
	}
	if msPerChar <= 0 {
		msPerChar = DefaultMsPerChar
	}
	perChar := msPerChar / speed

	sentences := Split(text)
	offsets := make([]int64, 1, len(sentences)+1)
	var total float64
	for _, s := range sentences {
		total += float64(utf8.RuneCountInString(s)) * perChar
		offsets = append(offsets, int64(total))
	}
	return &Track{sentences: sentences, offsets: offsets}
}

// Len returns the number of sentences.
func (t *Track) Len() int { return len(t.sentences) }

// Sentence returns sentence i.
func (t *Track) Sentence(i int) string { return t.sentences[i] }

// Sentences returns all sentences.
func (t *Track) Sentences() []string { return t.sentences }

// Offsets returns the cumulative start offsets in milliseconds, followed by
// the estimated total.
func (t *Track) Offsets() []int64 { return t.offsets }

// Duration returns the estimated total speaking time.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.offsets[len(t.offsets)-1]) * time.Millisecond
}

// Start returns the estimated start of sentence i.
func (t *Track) Start(i int) time.Duration {
	return time.Duration(t.offsets[i]) * time.Millisecond
}

// Index returns the sentence spoken at offsetMs, or -1 when the offset is
// before the first or past the last sentence.
func (t *Track) Index(offsetMs int64) int {
	// First boundary strictly after the offset.
	j := sort.Search(len(t.offsets), func(i int) bool { return t.offsets[i] > offsetMs })
	if j == 0 || j == len(t.offsets) {
		return -1
	}
	return j - 1
}

// At is Index for a duration.
func (t *Track) At(offset time.Duration) int {
	return t.Index(offset.Milliseconds())
}
