package highlight

import (
	"reflect"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "  \n ", nil},
		{"single", "Hello there", []string{"Hello there"}},
		{"mixed", "One. Two! Three? Four", []string{"One.", "Two!", "Three?", "Four"}},
		{"newlines", "First line.\n\nSecond line.", []string{"First line.", "Second line."}},
		{"no space", "v1.2 is out. Yes", []string{"v1.2 is out.", "Yes"}},
		{"trailing", "Done.  ", []string{"Done."}},
		{"ellipsis", "Wait... what?", []string{"Wait...", "what?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Split(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestTrackOffsets(t *testing.T) {
	// 4 + 6 characters at 100ms/char and speed 2.
	tr := NewTrack("Abc. Defgh.", 100, 2)
	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tr.Len())
	}
	want := []int64{0, 200, 500}
	if got := tr.Offsets(); !reflect.DeepEqual(got, want) {
		t.Errorf("Offsets() = %v, want %v", got, want)
	}
	if tr.Duration() != 500*time.Millisecond {
		t.Errorf("Duration() = %v", tr.Duration())
	}
	if tr.Start(1) != 200*time.Millisecond {
		t.Errorf("Start(1) = %v", tr.Start(1))
	}
}

func TestTrackIndex(t *testing.T) {
	tr := NewTrack("Abc. Defgh.", 100, 2)

	tests := []struct {
		offset int64
		want   int
	}{
		{-1, -1},
		{0, 0},
		{199, 0},
		{200, 1},
		{499, 1},
		{500, -1},
		{10_000, -1},
	}
	for _, tt := range tests {
		if got := tr.Index(tt.offset); got != tt.want {
			t.Errorf("Index(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
	if got := tr.At(250 * time.Millisecond); got != 1 {
		t.Errorf("At(250ms) = %d, want 1", got)
	}
}

func TestTrackDefaults(t *testing.T) {
	tr := NewTrack("Hi.", 0, 0)
	if got := tr.Offsets(); got[1] != int64(3*DefaultMsPerChar) {
		t.Errorf("Offsets() = %v with defaults", got)
	}

	empty := NewTrack("", 65, 1)
	if empty.Len() != 0 || empty.Index(0) != -1 || empty.Duration() != 0 {
		t.Error("empty track should have no sentences")
	}
}
