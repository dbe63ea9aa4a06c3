package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/perception"
	"github.com/noesisproject/noesis/internal/rules"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureDispatch struct {
	mu      sync.Mutex
	packets []*perception.Information
}

func (c *captureDispatch) Offer(_ context.Context, infos []*perception.Information) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, infos...)
}

func (c *captureDispatch) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = nil
}

func (c *captureDispatch) forViewer(viewer storage.Identifier) []*perception.Information {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*perception.Information
	for _, p := range c.packets {
		if p.ViewerID == viewer {
			out = append(out, p)
		}
	}
	return out
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshalling payload: %v", err)
	}
	return raw
}

func seedSpecs(t *testing.T) map[string]*world.EntitySpec {
	t.Helper()
	grant := storage.ExtensionState{}
	if err := grant.Set(rules.AttrGrant, rules.GrantSpec{See: []string{"umbra"}, Touch: []string{"umbra"}, Duration: "10m"}); err != nil {
		t.Fatalf("building grant attr: %v", err)
	}
	exit := storage.ExtensionState{}
	for k, v := range map[string]any{
		world.AttrDirection: "north",
		world.AttrExitTo:    "crypt",
		world.AttrExitAllow: []string{"material"},
	} {
		if err := exit.Set(k, v); err != nil {
			t.Fatalf("building exit attr: %v", err)
		}
	}

	return map[string]*world.EntitySpec{
		"hall":  {Name: "The Hall", Kind: world.KindLocation, Layers: []string{"material", "umbra"}},
		"crypt": {Name: "The Crypt", Kind: world.KindLocation, Layers: []string{"material", "umbra"}},
		"hall-north": {Name: "north", Kind: world.KindExit, Layers: []string{"material", "umbra"},
			Location: "hall", Attrs: exit},
		"ava": {Name: "Ava", Kind: world.KindCharacter, Layers: []string{"material"}, Location: "hall",
			Viewer: &world.ViewerSpec{Loc: "material", See: []string{"material"}}},
		"wraith": {Name: "Wraith", Kind: world.KindCharacter, Layers: []string{"umbra"}, Location: "hall",
			Viewer: &world.ViewerSpec{Loc: "umbra", See: []string{"umbra", "material"}}},
		"seer": {Name: "Seer", Kind: world.KindCharacter, Layers: []string{"material"}, Location: "hall",
			Viewer: &world.ViewerSpec{Loc: "material", See: []string{"material", "umbra"}}},
		"talisman": {Name: "Talisman", Kind: world.KindItem, Layers: []string{"material"}, Location: "hall",
			Attrs: grant},
	}
}

type harness struct {
	eng   *Engine
	log   *event.Log
	store *world.Store
	disp  *captureDispatch
	clock *testClock
	ctx   context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		log:   event.NewLog(nil),
		store: world.NewStore(),
		disp:  &captureDispatch{},
		clock: &testClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
	}
	h.eng = New(h.log, h.store, h.disp, WithClock(h.clock.Now), WithRunID("test-run"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.ctx = ctx

	if err := h.eng.Bootstrap(ctx, nil, seedSpecs(t)); err != nil {
		t.Fatalf("bootstrapping: %v", err)
	}
	go h.eng.Start(ctx)

	h.disp.reset()
	return h
}

func (h *harness) submit(t *testing.T, actor storage.Identifier, typ event.Type, payload any) uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	seq, err := h.eng.Submit(ctx, actor, typ, mustJSON(t, payload))
	if err != nil {
		t.Fatalf("submitting %s: %v", typ, err)
	}
	return seq
}

func TestSayCommitsPairedEvents(t *testing.T) {
	h := newHarness(t)

	seq := h.submit(t, "ava", event.TypeSayAttempt, rules.SayPayload{Message: "hello"})

	events := h.log.Events(seq, 0)
	testutil.AssertEqual(t, "events", len(events), 2)
	testutil.AssertEqual(t, "attempt category", events[0].Category, event.CategoryAttempt)
	testutil.AssertEqual(t, "world type", events[1].Type, event.TypeSay)
	testutil.AssertEqual(t, "back reference", events[1].Attempt, seq)
	testutil.AssertEqual(t, "no open attempts", len(h.log.Open()), 0)
}

func TestMoveCommitsBatchAndMutates(t *testing.T) {
	h := newHarness(t)

	seq := h.submit(t, "ava", event.TypeMoveAttempt, rules.MovePayload{Direction: "north"})

	events := h.log.Events(seq, 0)
	testutil.AssertEqual(t, "events", len(events), 3)
	testutil.AssertEqual(t, "departure", events[1].Type, event.TypeEntityLeft)
	testutil.AssertEqual(t, "arrival", events[2].Type, event.TypeEntityEntered)
	testutil.AssertEqual(t, "departure back ref", events[1].Attempt, seq)
	testutil.AssertEqual(t, "arrival back ref", events[2].Attempt, seq)
	testutil.AssertEqual(t, "gap free", events[2].Seq, seq+2)

	loc, _ := h.store.Snapshot().LocationOf("ava")
	testutil.AssertEqual(t, "ava moved", loc, storage.Identifier("crypt"))
}

func TestRefusalIsCommittedData(t *testing.T) {
	h := newHarness(t)
	before := h.store.Snapshot().Seq

	seq := h.submit(t, "ava", event.TypeMoveAttempt, rules.MovePayload{Direction: "west"})

	events := h.log.Events(seq, 0)
	testutil.AssertEqual(t, "events", len(events), 2)
	testutil.AssertEqual(t, "refusal category", events[1].Category, event.CategoryRefusal)
	testutil.AssertEqual(t, "refusal type", events[1].Type, event.TypeMoveDenied)
	testutil.AssertEqual(t, "reason", events[1].Reason, rules.ReasonNoExit)
	testutil.AssertEqual(t, "world untouched", h.store.Snapshot().Seq, before)

	// Only the actor learns of the refusal.
	testutil.AssertEqual(t, "actor packets", len(h.disp.forViewer("ava")), 1)
	testutil.AssertEqual(t, "bystander packets", len(h.disp.forViewer("seer")), 0)
}

func TestUnknownActorIsRefusedNotFatal(t *testing.T) {
	h := newHarness(t)

	seq := h.submit(t, "nobody", event.TypeSayAttempt, rules.SayPayload{Message: "hi"})

	events := h.log.Events(seq, 0)
	testutil.AssertEqual(t, "refusal type", events[1].Type, event.TypeSayDenied)
	testutil.AssertEqual(t, "reason", events[1].Reason, rules.ReasonUnknownEntity)
}

func TestStealthySpeakerSilentToBlindViewer(t *testing.T) {
	h := newHarness(t)

	h.submit(t, "wraith", event.TypeSayAttempt, rules.SayPayload{Message: "boo"})

	testutil.AssertEqual(t, "ava packets", len(h.disp.forViewer("ava")), 0)
	testutil.AssertEqual(t, "seer packets", len(h.disp.forViewer("seer")), 1)
	testutil.AssertEqual(t, "speaker packets", len(h.disp.forViewer("wraith")), 1)
}

func TestBonusGrantAndExpiry(t *testing.T) {
	h := newHarness(t)

	// Touching the talisman grants umbral sight for ten minutes.
	h.submit(t, "ava", event.TypeInteractAttempt, rules.InteractPayload{Target: "talisman", Verb: "touch"})

	ava, _ := h.store.Snapshot().Entity("ava")
	testutil.AssertEqual(t, "bonus see", ava.Perception.SeeBonus, layer.Umbra)

	// The umbral speaker is audible while the bonus holds.
	h.disp.reset()
	h.submit(t, "wraith", event.TypeSayAttempt, rules.SayPayload{Message: "psst"})
	testutil.AssertEqual(t, "ava hears umbra", len(h.disp.forViewer("ava")), 1)

	// Past the deadline the tick lapses the bonus through the log.
	h.clock.Advance(11 * time.Minute)
	if err := h.eng.Tick(h.ctx); err != nil {
		t.Fatalf("ticking: %v", err)
	}

	ava, _ = h.store.Snapshot().Entity("ava")
	testutil.AssertEqual(t, "bonus cleared", ava.Perception.SeeBonus, layer.Mask(0))
	testutil.AssertEqual(t, "expiry cleared", ava.Perception.BonusExpiry.IsZero(), true)
	if !ava.Perception.See().Has(ava.Perception.Loc) {
		t.Error("SEE must still cover LOC on base masks alone")
	}

	events := h.log.Events(h.log.Seq()-1, 0)
	testutil.AssertEqual(t, "cleared on the record", events[1].Type, event.TypeBonusCleared)

	// A second tick finds nothing to clear.
	before := h.log.Seq()
	if err := h.eng.Tick(h.ctx); err != nil {
		t.Fatalf("ticking again: %v", err)
	}
	testutil.AssertEqual(t, "tick idempotent", h.log.Seq(), before)
}

func TestBootstrapVoidsOpenAttempts(t *testing.T) {
	journaled := []*event.Event{
		{
			Seq:       1,
			Timestamp: time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC),
			Category:  event.CategoryAttempt,
			Type:      event.TypeSayAttempt,
			Actor:     "ava",
			Payload:   []byte(`{"message":"interrupted"}`),
		},
	}

	lg := event.NewLog(nil)
	eng := New(lg, world.NewStore(), &captureDispatch{}, WithRunID("test-run"))
	if err := eng.Bootstrap(context.Background(), journaled, nil); err != nil {
		t.Fatalf("bootstrapping: %v", err)
	}

	testutil.AssertEqual(t, "open attempts", len(lg.Open()), 0)
	events := lg.Events(2, 0)
	testutil.AssertEqual(t, "voided", events[0].Type, event.TypeAttemptVoided)
	testutil.AssertEqual(t, "back reference", events[0].Attempt, uint64(1))
	testutil.AssertEqual(t, "reason", events[0].Reason, rules.ReasonVoided)
}

func TestBootstrapSeedsOnlyMissing(t *testing.T) {
	h := newHarness(t)

	// A second bootstrap over the same seeds must not duplicate anything.
	lg2 := event.NewLog(nil)
	store2 := world.NewStore()
	eng2 := New(lg2, store2, &captureDispatch{}, WithRunID("test-run-2"))
	if err := eng2.Bootstrap(context.Background(), h.log.Events(1, 0), seedSpecs(t)); err != nil {
		t.Fatalf("rebootstrapping: %v", err)
	}

	testutil.AssertEqual(t, "no new events", lg2.Seq(), h.log.Seq())
	testutil.AssertEqual(t, "same world seq", store2.Snapshot().Seq, h.store.Snapshot().Seq)
}

func TestReplayMatchesLiveState(t *testing.T) {
	h := newHarness(t)

	h.submit(t, "ava", event.TypeSayAttempt, rules.SayPayload{Message: "hello"})
	h.submit(t, "ava", event.TypeMoveAttempt, rules.MovePayload{Direction: "north"})
	h.submit(t, "seer", event.TypeAttributeAttempt, rules.AttributePayload{
		Entity: "hall", Key: "desc", Value: mustJSON(t, "A dusty hall."),
	})
	h.submit(t, "ava", event.TypeMoveAttempt, rules.MovePayload{Direction: "south"}) // refused

	replayer := NewReplayer(h.log.Events(1, 0))
	snap, err := replayer.Rebuild(0)
	if err != nil {
		t.Fatalf("rebuilding: %v", err)
	}

	live := h.store.Snapshot()
	testutil.AssertEqual(t, "seq", snap.Seq, live.Seq)

	replayLoc, _ := snap.LocationOf("ava")
	liveLoc, _ := live.LocationOf("ava")
	testutil.AssertEqual(t, "ava location", replayLoc, liveLoc)

	var desc string
	hall, _ := snap.Entity("hall")
	if ok, _ := hall.Attrs.Get("desc", &desc); !ok {
		t.Fatal("replayed hall is missing its description")
	}
	testutil.AssertEqual(t, "hall desc", desc, "A dusty hall.")
}

func TestReperceiveMatchesLiveDispatch(t *testing.T) {
	h := newHarness(t)
	start := h.log.Seq() + 1

	h.submit(t, "wraith", event.TypeSayAttempt, rules.SayPayload{Message: "boo"})
	h.submit(t, "ava", event.TypeMoveAttempt, rules.MovePayload{Direction: "north"})
	h.submit(t, "seer", event.TypeSayAttempt, rules.SayPayload{Message: "gone?"})

	replayer := NewReplayer(h.log.Events(1, 0))
	replayed, err := replayer.Reperceive("seer", start, 0)
	if err != nil {
		t.Fatalf("reperceiving: %v", err)
	}

	live := h.disp.forViewer("seer")
	testutil.AssertEqual(t, "packet count", len(replayed), len(live))
	for i := range live {
		testutil.AssertEqual(t, "packet id", replayed[i].PacketID, live[i].PacketID)
		testutil.AssertEqual(t, "event type", replayed[i].EventType, live[i].EventType)
	}
}
