package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

type fakeStateStore struct {
	mu      sync.Mutex
	states  map[string]*LeadState
	loadErr error
	saveErr error
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]*LeadState)}
}

func (s *fakeStateStore) LoadState(_ context.Context, leadID string) (*LeadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.states[leadID].Clone(), nil
}

func (s *fakeStateStore) SaveState(_ context.Context, leadID string, state *LeadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[leadID] = state.Clone()
	return nil
}

func newTestEngine(t *testing.T, states *fakeStateStore, turns TurnStore) *Engine {
	t.Helper()
	logger := logging.Default()
	history := NewHistoryLoader(turns, newFakeSummaryStore(), nil, "", logger)
	extractor := NewExtractor(nil, "", logger)
	responder := NewResponder(nil, nil, logger)
	return NewEngine(states, history, turns, extractor, responder, nil, logger)
}

func TestProcessMessageFirstContact(t *testing.T) {
	states := newFakeStateStore()
	turns := NewMemoryTurnStore()
	engine := newTestEngine(t, states, turns)

	resp, err := engine.ProcessMessage(context.Background(), MessageRequest{
		LeadID:  "lead-1",
		Message: "Quero agendar avaliação",
	})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if !strings.HasPrefix(resp.Reply, greetingScript) {
		t.Errorf("first contact must greet, got %q", resp.Reply)
	}
	if !strings.Contains(resp.Reply, stageScripts[StageAskTherapy]) {
		t.Errorf("first contact must ask the therapy area, got %q", resp.Reply)
	}
	if resp.Stage != StageAskTherapy {
		t.Errorf("stage = %q, want ask_therapy", resp.Stage)
	}

	recorded, _ := turns.LoadTurns(context.Background(), "lead-1")
	if len(recorded) != 2 {
		t.Fatalf("expected user and assistant turns recorded, got %d", len(recorded))
	}
	if recorded[0].Role != ChatRoleUser || recorded[0].Text != "Quero agendar avaliação" {
		t.Errorf("user turn not recorded first: %+v", recorded[0])
	}
	if recorded[1].Role != ChatRoleAssistant || recorded[1].Text != resp.Reply {
		t.Errorf("assistant turn mismatch: %+v", recorded[1])
	}
}

func TestProcessMessageAdvancesStages(t *testing.T) {
	states := newFakeStateStore()
	turns := NewMemoryTurnStore()
	engine := newTestEngine(t, states, turns)
	ctx := context.Background()

	steps := []struct {
		message   string
		wantStage Stage
	}{
		{"Procuro fonoaudiologia para meu filho", StageAskComplaint},
		{"Ele gagueja bastante quando fica nervoso", StageAskAge},
		{"7", StageAskPeriod},
		{"de manhã", StageReady},
	}

	for i, step := range steps {
		resp, err := engine.ProcessMessage(ctx, MessageRequest{LeadID: "lead-1", Message: step.message})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if resp.Stage != step.wantStage {
			t.Fatalf("step %d (%q): stage = %q, want %q", i, step.message, resp.Stage, step.wantStage)
		}
	}

	final := states.states["lead-1"]
	if final.TherapyArea != TherapyAreaSpeech || final.Age == nil || *final.Age != 7 || final.Period != PeriodMorning {
		t.Fatalf("final state incomplete: %+v", final)
	}
}

func TestProcessMessageValidatesInput(t *testing.T) {
	engine := newTestEngine(t, newFakeStateStore(), NewMemoryTurnStore())

	if _, err := engine.ProcessMessage(context.Background(), MessageRequest{Message: "oi"}); err == nil {
		t.Errorf("missing lead id must error")
	}
	if _, err := engine.ProcessMessage(context.Background(), MessageRequest{LeadID: "lead-1"}); err == nil {
		t.Errorf("missing message must error")
	}
}

func TestProcessMessageSaveFailureStillReplies(t *testing.T) {
	states := newFakeStateStore()
	states.saveErr = errors.New("redis write refused")
	engine := newTestEngine(t, states, NewMemoryTurnStore())

	resp, err := engine.ProcessMessage(context.Background(), MessageRequest{
		LeadID:  "lead-1",
		Message: "Procuro psicologia",
	})

	if !errors.Is(err, ErrStatePersistence) {
		t.Fatalf("expected ErrStatePersistence, got %v", err)
	}
	if resp == nil || resp.Reply == "" {
		t.Fatalf("reply must still be produced alongside the error")
	}
	if resp.Stage != StageAskComplaint {
		t.Errorf("stage = %q, want ask_complaint", resp.Stage)
	}
}

func TestProcessMessageLoadFailureStartsFresh(t *testing.T) {
	states := newFakeStateStore()
	states.loadErr = errors.New("redis read refused")
	engine := newTestEngine(t, states, NewMemoryTurnStore())

	resp, err := engine.ProcessMessage(context.Background(), MessageRequest{
		LeadID:  "lead-1",
		Message: "oi",
	})
	if err != nil {
		t.Fatalf("load failure must not fail the message: %v", err)
	}
	if !strings.Contains(resp.Reply, stageScripts[StageAskTherapy]) {
		t.Errorf("fresh state asks the therapy question, got %q", resp.Reply)
	}
}

type panickyStateStore struct{ fakeStateStore }

func (s *panickyStateStore) LoadState(context.Context, string) (*LeadState, error) {
	panic("corrupted record")
}

func TestProcessMessagePanicRecovery(t *testing.T) {
	states := &panickyStateStore{fakeStateStore{states: make(map[string]*LeadState)}}
	turns := NewMemoryTurnStore()
	logger := logging.Default()
	history := NewHistoryLoader(turns, newFakeSummaryStore(), nil, "", logger)
	engine := NewEngine(states, history, turns, NewExtractor(nil, "", logger), NewResponder(nil, nil, logger), nil, logger)

	resp, err := engine.ProcessMessage(context.Background(), MessageRequest{
		LeadID:  "lead-1",
		Message: "oi",
	})
	if err != nil {
		t.Fatalf("panic must be swallowed, got %v", err)
	}
	if resp == nil || resp.Reply != lastResortScript {
		t.Fatalf("expected the last-resort reply, got %+v", resp)
	}
}

func TestProcessMessageNeverReasksFilledAge(t *testing.T) {
	states := newFakeStateStore()
	turns := NewMemoryTurnStore()
	engine := newTestEngine(t, states, turns)
	ctx := context.Background()

	setup := []string{
		"Procuro fonoaudiologia para meu filho",
		"Ele gagueja bastante quando fica nervoso",
		"7",
	}
	for i, msg := range setup {
		if _, err := engine.ProcessMessage(ctx, MessageRequest{LeadID: "lead-1", Message: msg}); err != nil {
			t.Fatalf("setup step %d: %v", i, err)
		}
	}
	if states.states["lead-1"].Age == nil {
		t.Fatal("age should be filled after setup")
	}

	// Once the age is known, no later turn may repeat the age question,
	// whether the lead answers on-topic, goes sideways, or rambles.
	followUps := []string{
		"Quanto custa a consulta?",
		"hmm deixa eu ver",
		"de manhã",
		"pode ser qualquer um",
	}
	for _, msg := range followUps {
		resp, err := engine.ProcessMessage(ctx, MessageRequest{LeadID: "lead-1", Message: msg})
		if err != nil {
			t.Fatalf("ProcessMessage(%q): %v", msg, err)
		}
		if strings.Contains(resp.Reply, stageScripts[StageAskAge]) {
			t.Fatalf("age question repeated after %q: %q", msg, resp.Reply)
		}
		if resp.Reply == "" {
			t.Fatalf("empty reply for %q", msg)
		}
	}
}

func TestProcessMessageSerializesPerLead(t *testing.T) {
	states := newFakeStateStore()
	turns := NewMemoryTurnStore()
	engine := newTestEngine(t, states, turns)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.ProcessMessage(ctx, MessageRequest{LeadID: "lead-1", Message: "quero uma fono"})
		}()
	}
	wg.Wait()

	recorded, _ := turns.LoadTurns(ctx, "lead-1")
	if len(recorded) != 16 {
		t.Fatalf("expected 16 recorded turns, got %d", len(recorded))
	}
	if states.states["lead-1"].TherapyArea != TherapyAreaSpeech {
		t.Fatalf("merged state lost the area: %+v", states.states["lead-1"])
	}
}

func TestLockLeadReleasesIdleEntries(t *testing.T) {
	states := newFakeStateStore()
	turns := NewMemoryTurnStore()
	engine := newTestEngine(t, states, turns)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, leadID := range []string{"lead-1", "lead-2", "lead-3"} {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, _ = engine.ProcessMessage(ctx, MessageRequest{LeadID: id, Message: "oi"})
			}(leadID)
		}
	}
	wg.Wait()

	engine.mu.Lock()
	remaining := len(engine.locks)
	engine.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("lock map must be empty once no message is in flight, found %d entries", remaining)
	}
}
