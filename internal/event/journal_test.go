package event

import (
	"testing"

	"github.com/noesisproject/noesis/internal/world"
)

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()

	j := NewFileJournal(dir)
	l := NewLog(j)

	attempt, err := l.Append(TypeCreateAttempt, "system", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	batch := []*Event{{
		Category: CategoryWorld,
		Type:     TypeObjectCreated,
		Actor:    "system",
		Effects: []world.Effect{
			world.Create("hall", &world.EntitySpec{Name: "The Hall", Kind: world.KindLocation, Layers: []string{"material"}}),
		},
	}}
	if err := l.Resolve(attempt.Seq, batch, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("closing journal: %v", err)
	}

	events, err := ReadJournal(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("read %d events, expected 2", len(events))
	}
	if events[0].Type != TypeCreateAttempt || events[1].Type != TypeObjectCreated {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].Attempt != 1 {
		t.Errorf("back-ref = %d, expected 1", events[1].Attempt)
	}
	if len(events[1].Effects) != 1 || events[1].Effects[0].Kind != world.EffectCreate {
		t.Error("effects did not survive the round trip")
	}
	if events[1].Effects[0].Spec == nil || events[1].Effects[0].Spec.Name != "The Hall" {
		t.Error("create spec did not survive the round trip")
	}
}

func TestReadJournalMissingDir(t *testing.T) {
	events, err := ReadJournal(t.TempDir() + "/never-written")
	if err != nil {
		t.Fatalf("missing journal dir should read as empty, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestReadJournalDetectsGaps(t *testing.T) {
	dir := t.TempDir()
	j := NewFileJournal(dir)

	if err := j.Write(&Event{Seq: 1, Category: CategoryAttempt, Type: TypeSayAttempt}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Write(&Event{Seq: 3, Category: CategoryWorld, Type: TypeSay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("closing journal: %v", err)
	}

	if _, err := ReadJournal(dir); err == nil {
		t.Fatal("expected a gap error")
	}
}
