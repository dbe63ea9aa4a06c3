package world

import (
	"errors"
	"testing"
	"time"

	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/storage"
)

func roomSpec(name string) *EntitySpec {
	return &EntitySpec{Name: name, Kind: KindLocation, Layers: []string{"material", "umbra"}}
}

func viewerSpec(name string, loc storage.Identifier) *EntitySpec {
	return &EntitySpec{
		Name:     name,
		Kind:     KindCharacter,
		Layers:   []string{"material"},
		Location: loc,
		Viewer:   &ViewerSpec{Loc: "material", See: []string{"material"}},
	}
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	err := s.Apply(1, []Effect{
		Create("hall", roomSpec("The Hall")),
		Create("crypt", roomSpec("The Crypt")),
		Create("ava", viewerSpec("Ava", "hall")),
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return s
}

func TestApplyCreateAndLocate(t *testing.T) {
	s := seededStore(t)
	snap := s.Snapshot()

	if snap.Seq != 1 {
		t.Errorf("snapshot seq = %d, expected 1", snap.Seq)
	}

	ava, err := snap.Entity("ava")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ava.Viewer() {
		t.Error("ava should be a viewer")
	}
	if !ava.Perception.See().Has(layer.Material) {
		t.Error("ava's SEE should cover material")
	}

	loc, ok := snap.LocationOf("ava")
	if !ok || loc != "hall" {
		t.Errorf("ava located in %q, expected hall", loc)
	}
}

func TestApplyMove(t *testing.T) {
	s := seededStore(t)

	if err := s.Apply(2, []Effect{Move("ava", "crypt")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loc, ok := s.Snapshot().LocationOf("ava")
	if !ok || loc != "crypt" {
		t.Errorf("ava located in %q, expected crypt", loc)
	}
}

func TestApplyDestroyCascades(t *testing.T) {
	s := seededStore(t)

	// Destroying ava in the same batch as her social link must drop both
	// the entity and every relation touching it.
	if err := s.Apply(2, []Effect{Relate(RelLink, "ava", "crypt")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Apply(3, []Effect{Destroy("ava")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	if _, err := snap.Entity("ava"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, ok := snap.LocationOf("ava"); ok {
		t.Error("destroyed entity still has a location relation")
	}
	if got := snap.Related(RelLink, "ava"); len(got) != 0 {
		t.Errorf("destroyed entity still has link relations: %v", got)
	}
}

func TestApplyAtomicity(t *testing.T) {
	s := seededStore(t)

	// Second effect fails: the first must not land either.
	err := s.Apply(2, []Effect{
		Move("ava", "crypt"),
		Move("ava", "no-such-room"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	loc, _ := s.Snapshot().LocationOf("ava")
	if loc != "hall" {
		t.Errorf("failed batch mutated state: ava in %q", loc)
	}
	if s.Seq() != 1 {
		t.Errorf("failed batch advanced seq to %d", s.Seq())
	}
}

func TestApplyOutOfOrder(t *testing.T) {
	s := seededStore(t)

	err := s.Apply(1, []Effect{Move("ava", "crypt")})
	var iv *InvariantViolationError
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
}

func TestShiftLocRederivesMasks(t *testing.T) {
	s := seededStore(t)

	if err := s.Apply(2, []Effect{ShiftLoc("ava", layer.Umbra)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	ava, _ := snap.Entity("ava")
	p := ava.Perception

	if p.Loc != layer.Umbra {
		t.Errorf("LOC = %s, expected umbra", p.Loc)
	}
	if !p.See().Has(layer.Umbra) {
		t.Error("SEE must be re-derived to cover the new LOC")
	}
	if !p.See().Has(layer.Material) {
		t.Error("SEE base must keep previously covered layers")
	}
	if p.Touch() != layer.Umbra {
		t.Errorf("TOUCH = %s, expected reset to new LOC", p.Touch())
	}
}

func TestShiftLocRejectsMultiLayer(t *testing.T) {
	s := seededStore(t)

	err := s.Apply(2, []Effect{ShiftLoc("ava", layer.Material|layer.Umbra)})
	var iv *InvariantViolationError
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
	if iv.Entity != "ava" {
		t.Errorf("violation attributed to %q, expected ava", iv.Entity)
	}
}

func TestBonusGrantAndClear(t *testing.T) {
	s := seededStore(t)
	expiry := time.Now().Add(time.Minute)

	if err := s.Apply(2, []Effect{GrantBonus("ava", layer.Umbra, layer.Umbra, expiry)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ava, _ := s.Snapshot().Entity("ava")
	if !ava.Perception.See().Has(layer.Umbra) {
		t.Error("SEE bonus not applied")
	}
	if !ava.Perception.BonusActive(time.Now()) {
		t.Error("bonus should be active before expiry")
	}

	// Clearing the bonus must leave the base-mask invariants intact.
	if err := s.Apply(3, []Effect{ClearBonus("ava")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ava, _ = s.Snapshot().Entity("ava")
	p := ava.Perception
	if p.See().Has(layer.Umbra) {
		t.Error("SEE bonus survived the clear")
	}
	if !p.See().Has(p.Loc) {
		t.Error("SEE must still cover LOC using only the base mask")
	}
	if p.BonusActive(time.Now()) {
		t.Error("cleared bonus reported active")
	}
}

func TestRelateRejectsDanglingTarget(t *testing.T) {
	s := seededStore(t)

	err := s.Apply(2, []Effect{Relate(RelContains, "hall", "ghost")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReservedAttributeRejected(t *testing.T) {
	s := seededStore(t)

	err := s.Apply(2, []Effect{SetAttr("ava", "see", []byte(`"everything"`))})
	var iv *InvariantViolationError
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := seededStore(t)
	snap := s.Snapshot()

	if err := s.Apply(2, []Effect{Move("ava", "crypt")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The earlier snapshot still shows the pre-commit world.
	loc, _ := snap.LocationOf("ava")
	if loc != "hall" {
		t.Errorf("snapshot mutated by later commit: ava in %q", loc)
	}
	if snap.Seq != 1 {
		t.Errorf("snapshot seq changed to %d", snap.Seq)
	}
}

func TestExitFrom(t *testing.T) {
	s := seededStore(t)

	spec := &EntitySpec{
		Name:     "north exit",
		Kind:     KindExit,
		Layers:   []string{"material"},
		Location: "hall",
	}
	spec.Attrs = storage.ExtensionState{}
	if err := spec.Attrs.Set(AttrDirection, "north"); err != nil {
		t.Fatal(err)
	}
	if err := spec.Attrs.Set(AttrExitTo, "crypt"); err != nil {
		t.Fatal(err)
	}

	if err := s.Apply(2, []Effect{Create("hall-north", spec)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	exit, ok := snap.ExitFrom("hall", "north")
	if !ok {
		t.Fatal("exit not found")
	}
	if exit.ID != "hall-north" {
		t.Errorf("found %q, expected hall-north", exit.ID)
	}
	if _, ok := snap.ExitFrom("hall", "down"); ok {
		t.Error("found an exit that does not exist")
	}
}
