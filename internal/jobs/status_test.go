package jobs

import (
	"errors"
	"testing"
)

func TestStatusSets(t *testing.T) {
	runnable := []Status{StatusQueued, StatusDeferred, StatusInProgress}
	for _, s := range runnable {
		if !s.Runnable() {
			t.Errorf("%s should be runnable", s)
		}
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	terminal := []Status{StatusSuccess, StatusFailed, StatusNotFound}
	for _, s := range terminal {
		if s.Runnable() {
			t.Errorf("%s should not be runnable", s)
		}
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if len(RunnableStatuses()) != 3 {
		t.Fatalf("unexpected runnable set: %v", RunnableStatuses())
	}
}

func TestDerive(t *testing.T) {
	if got := Derive(nil); got != StatusSuccess {
		t.Fatalf("Derive(nil) = %s", got)
	}
	if got := Derive(errors.New("boom")); got != StatusFailed {
		t.Fatalf("Derive(err) = %s", got)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusQueued, StatusDeferred},
		{StatusQueued, StatusInProgress},
		{StatusDeferred, StatusQueued},
		{StatusDeferred, StatusInProgress},
		{StatusInProgress, StatusComplete},
		{StatusComplete, StatusSuccess},
		{StatusComplete, StatusFailed},
		{StatusQueued, StatusNotFound},
		{StatusSuccess, StatusNotFound},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s -> %s allowed", edge[0], edge[1])
		}
	}
	denied := [][2]Status{
		{StatusQueued, StatusSuccess},
		{StatusDeferred, StatusComplete},
		{StatusSuccess, StatusQueued},
		{StatusFailed, StatusInProgress},
		{StatusComplete, StatusQueued},
	}
	for _, edge := range denied {
		if CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s -> %s denied", edge[0], edge[1])
		}
	}
}

func TestValidKind(t *testing.T) {
	for _, k := range []string{KindClustering, KindMultiLabel, KindEntity} {
		if !ValidKind(k) {
			t.Errorf("kind %s should be valid", k)
		}
	}
	if ValidKind("sentiment") {
		t.Error("unexpected kind accepted")
	}
}
