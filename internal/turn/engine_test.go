package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/llm"
)

// memoryCheckpoints is a map-backed CheckpointManager for engine tests. The
// real implementations live in internal/checkpoint, which this package cannot
// import from its tests.
type memoryCheckpoints struct {
	mu        sync.Mutex
	snaps     map[string]Snapshot
	failSaves error
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{snaps: make(map[string]Snapshot)}
}

func (m *memoryCheckpoints) Load(_ context.Context, threadID string) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[threadID]
	return snap, ok, nil
}

func (m *memoryCheckpoints) Save(_ context.Context, snap Snapshot) error {
	if m.failSaves != nil {
		return m.failSaves
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.UpdatedAt = time.Now().UTC()
	m.snaps[snap.ThreadID] = snap
	return nil
}

func (m *memoryCheckpoints) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, threadID)
	return nil
}

func (m *memoryCheckpoints) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, snap := range m.snaps {
		if snap.UpdatedAt.Before(cutoff) {
			delete(m.snaps, id)
			n++
		}
	}
	return n, nil
}

func newTestEngine(provider llm.Provider, mgr CheckpointManager) *Engine {
	cfg := testTurnConfig()
	route := config.LLMRoutingConfig{}
	branch := NewBranch(provider, cfg, route, nil, nil)
	return NewEngine(
		NewCompressor(provider, cfg, route, nil),
		NewAnalyzer(provider, cfg, route, nil),
		NewDispatcher(branch, cfg, 2, nil),
		NewAggregator(provider, route, nil),
		mgr,
		cfg,
		nil,
		nil,
	)
}

func terminalOf(t *testing.T, events []Event) Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("stream emitted no events")
	}
	last := events[len(events)-1]
	if !last.Terminal() {
		t.Fatalf("stream ended without terminal event: %+v", last)
	}
	for _, e := range events[:len(events)-1] {
		if e.Terminal() {
			t.Fatalf("terminal event before end of stream: %+v", e)
		}
	}
	return last
}

func TestSubmitAnswersAndPersists(t *testing.T) {
	stub := newStub(
		reply(`{"is_clear": true, "questions": ["What is the income ceiling for a BTO flat?"], "clarification": ""}`),
		reply(`{"action":"final","answer":"The ceiling is $14,000 for most BTO flats.","citations":["hdb-eligibility"]}`),
		reply("For most BTO flats the household income ceiling is $14,000."),
	)
	mgr := newMemoryCheckpoints()
	e := newTestEngine(stub, mgr)

	stream, err := e.Submit(context.Background(), "th-1", "u-1", "what's the income ceiling for bto", "en")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	events := drain(stream)
	term := terminalOf(t, events)
	if term.Kind != EventAnswer {
		t.Fatalf("terminal = %+v", term)
	}
	if len(events) < 2 {
		t.Fatal("no tokens streamed before the answer")
	}

	snap, ok, _ := mgr.Load(context.Background(), "th-1")
	if !ok {
		t.Fatal("no checkpoint written")
	}
	if snap.State.Aggregated == nil {
		t.Fatal("persisted state has no aggregated answer")
	}
	msgs := snap.Thread.Messages
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("thread messages = %+v", msgs)
	}
}

func TestClarificationRoundTrip(t *testing.T) {
	stub := newStub(
		// First turn: ambiguous.
		reply(`{"is_clear": false, "questions": [], "clarification": "Which town are you asking about?"}`),
		// Resume: clear.
		reply(`{"is_clear": true, "questions": ["What are resale prices in Tampines?"], "clarification": ""}`),
		reply(`{"action":"final","answer":"Median 4-room resale in Tampines is around $600k.","citations":["resale-stats"]}`),
		reply("Around $600k for a 4-room resale in Tampines."),
	)
	mgr := newMemoryCheckpoints()
	e := newTestEngine(stub, mgr)
	ctx := context.Background()

	stream, err := e.Submit(ctx, "th-1", "", "how much are flats there", "en")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	term := terminalOf(t, drain(stream))
	if term.Kind != EventClarification {
		t.Fatalf("terminal = %+v", term)
	}

	snap, _, _ := mgr.Load(ctx, "th-1")
	if !snap.State.Suspended() {
		t.Fatal("checkpoint not suspended")
	}
	gen := snap.State.Generation

	// A new submission is rejected while the clarification is pending.
	if _, err := e.Submit(ctx, "th-1", "", "another question", "en"); !errors.Is(err, ErrClarificationPending) {
		t.Fatalf("submit while suspended: %v", err)
	}

	stream, err = e.Resume(ctx, "th-1", "Tampines", "en")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	term = terminalOf(t, drain(stream))
	if term.Kind != EventAnswer {
		t.Fatalf("resume terminal = %+v", term)
	}

	snap, _, _ = mgr.Load(ctx, "th-1")
	if snap.State.Suspended() {
		t.Fatal("still suspended after resume")
	}
	if snap.State.Generation != gen+1 {
		t.Fatalf("generation = %d, want %d", snap.State.Generation, gen+1)
	}
}

func TestResumeWithoutPendingClarification(t *testing.T) {
	e := newTestEngine(newStub(), newMemoryCheckpoints())
	if _, err := e.Resume(context.Background(), "th-1", "answer", "en"); !errors.Is(err, ErrNotSuspended) {
		t.Fatalf("err = %v, want ErrNotSuspended", err)
	}
}

func TestPersistenceFailureTerminatesWithError(t *testing.T) {
	stub := newStub(
		reply(`{"is_clear": true, "questions": ["What is the MOP for a BTO flat?"], "clarification": ""}`),
		reply(`{"action":"final","answer":"Five years."}`),
		reply("The minimum occupation period is five years."),
	)
	mgr := newMemoryCheckpoints()
	mgr.failSaves = errors.New("disk full")
	e := newTestEngine(stub, mgr)

	stream, err := e.Submit(context.Background(), "th-1", "", "what's the MOP", "en")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	term := terminalOf(t, drain(stream))
	if term.Kind != EventError {
		t.Fatalf("terminal = %+v, want error", term)
	}
}

func TestClearDeletesThread(t *testing.T) {
	mgr := newMemoryCheckpoints()
	ctx := context.Background()
	if err := mgr.Save(ctx, Snapshot{ThreadID: "th-1"}); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(newStub(), mgr)
	next, err := e.Clear(ctx, "th-1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if next == "" || next == "th-1" {
		t.Fatalf("clear should allocate a fresh thread id, got %q", next)
	}
	if _, ok, _ := mgr.Load(ctx, "th-1"); ok {
		t.Fatal("checkpoint survived clear")
	}
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	gate := make(chan struct{})
	provider := &gatedProvider{gate: gate}
	e := newTestEngine(provider, newMemoryCheckpoints())
	ctx := context.Background()

	stream, err := e.Submit(ctx, "th-1", "", "first question", "en")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := e.Submit(ctx, "th-1", "", "second question", "en"); !errors.Is(err, ErrThreadBusy) {
		t.Fatalf("concurrent submit: %v, want ErrThreadBusy", err)
	}

	// A different thread is unaffected.
	other, err := e.Submit(ctx, "th-2", "", "unrelated", "en")
	if err != nil {
		t.Fatalf("other thread submit: %v", err)
	}

	close(gate)
	terminalOf(t, drain(stream))
	terminalOf(t, drain(other))

	// The lock is released once the turn terminates.
	stream, err = e.Submit(ctx, "th-1", "", "third question", "en")
	if err != nil {
		t.Fatalf("submit after release: %v", err)
	}
	terminalOf(t, drain(stream))
}

// gatedProvider blocks every call until the gate closes, then fails, driving
// the engine down its degrade paths while keeping the turn alive long enough
// to observe the lock.
type gatedProvider struct{ gate chan struct{} }

func (g *gatedProvider) wait() error {
	<-g.gate
	return errors.New("provider offline")
}

func (g *gatedProvider) Generate(context.Context, string, string, map[string]interface{}) (string, error) {
	return "", g.wait()
}

func (g *gatedProvider) GenerateWithTokens(context.Context, string, string, map[string]interface{}) (string, int64, int64, error) {
	return "", 0, 0, g.wait()
}

func (g *gatedProvider) GenerateStream(context.Context, string, string, map[string]interface{}, func(string)) (string, error) {
	return "", g.wait()
}

func (g *gatedProvider) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	return make([][]float32, len(input)), nil
}

func (g *gatedProvider) CalculateCost(int64, int64, string) float64 { return 0 }
