package labelcodec

import (
	"errors"
	"testing"

	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
)

func TestMultiHotRoundTrip(t *testing.T) {
	enc := NewEncoder([]string{"pets", "parking", "noise", "parking"})
	if enc.Size() != 3 {
		t.Fatalf("expected deduplicated size 3, got %d", enc.Size())
	}

	// Every subset must round-trip through encode/decode.
	subsets := [][]string{
		{},
		{"pets"},
		{"parking"},
		{"noise"},
		{"pets", "parking"},
		{"noise", "pets"},
		{"parking", "noise", "pets"},
	}
	for _, labels := range subsets {
		vec, err := enc.EncodeMultiHot(labels)
		if err != nil {
			t.Fatalf("EncodeMultiHot(%v): %v", labels, err)
		}
		got := enc.DecodeMultiHot(vec, 0.5)
		if len(got) != len(labels) {
			t.Fatalf("round trip %v -> %v", labels, got)
		}
		want := map[string]bool{}
		for _, l := range labels {
			want[l] = true
		}
		for _, l := range got {
			if !want[l] {
				t.Fatalf("round trip %v -> %v", labels, got)
			}
		}
	}
}

func TestEncodeUnknownLabelFailsLoudly(t *testing.T) {
	enc := NewEncoder([]string{"pets", "parking"})
	if _, err := enc.EncodeMultiHot([]string{"aliens"}); !errors.Is(err, apperr.ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if _, err := enc.EncodeIndex("aliens"); !errors.Is(err, apperr.ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestStableOrdering(t *testing.T) {
	a := NewEncoder([]string{"zebra", "apple", "mango"})
	b := NewEncoder([]string{"mango", "zebra", "apple"})
	at, bt := a.Tags(), b.Tags()
	for i := range at {
		if at[i] != bt[i] {
			t.Fatalf("index assignment not stable: %v vs %v", at, bt)
		}
	}
}

func TestDecodeIndex(t *testing.T) {
	enc := NewEncoder([]string{"pets", "parking"})
	i, err := enc.EncodeIndex("pets")
	if err != nil {
		t.Fatalf("EncodeIndex: %v", err)
	}
	got, err := enc.DecodeIndex(i)
	if err != nil || got != "pets" {
		t.Fatalf("DecodeIndex: %q err=%v", got, err)
	}
	if _, err := enc.DecodeIndex(99); !errors.Is(err, apperr.ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel for out of range index, got %v", err)
	}
}
