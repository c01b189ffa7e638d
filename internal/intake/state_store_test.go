package intake

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStateStore(client, nil), mr
}

func TestRedisStateStoreRoundtrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	state := &LeadState{
		TherapyArea:         TherapyAreaSpeech,
		Complaint:           "gagueira",
		Age:                 intPtr(7),
		Period:              PeriodMorning,
		HasEmotionalContext: true,
		SavedEmotionalContexts: map[TherapyArea]EmotionalSnapshot{
			TherapyAreaPsychology: {Complaint: "ansiedade", TherapyArea: TherapyAreaPsychology, SavedAt: time.Now().UTC()},
		},
		UpdatedAt: time.Now().UTC(),
	}

	if err := store.SaveState(ctx, "lead-1", state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := store.LoadState(ctx, "lead-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.TherapyArea != TherapyAreaSpeech || loaded.Complaint != "gagueira" {
		t.Errorf("fields lost in roundtrip: %+v", loaded)
	}
	if loaded.Age == nil || *loaded.Age != 7 || loaded.Period != PeriodMorning {
		t.Errorf("age/period lost in roundtrip: %+v", loaded)
	}
	if snap, ok := loaded.SavedEmotionalContexts[TherapyAreaPsychology]; !ok || snap.Complaint != "ansiedade" {
		t.Errorf("snapshot lost in roundtrip: %+v", loaded.SavedEmotionalContexts)
	}
	if loaded.Stage != StageReady {
		t.Errorf("stage not derived on load, got %q", loaded.Stage)
	}
}

func TestRedisStateStoreMissingLead(t *testing.T) {
	store, _ := newTestRedisStore(t)

	loaded, err := store.LoadState(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("missing lead must not error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("missing lead returns nil state, got %+v", loaded)
	}
}

func TestRedisStateStoreHealsCorruptedStage(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	// A record whose stored stage disagrees with its fields.
	raw, _ := json.Marshal(&LeadState{
		Stage:       StageReady,
		TherapyArea: TherapyAreaPhysiotherapy,
	})
	mr.Set(stateKey("lead-1"), string(raw))

	loaded, err := store.LoadState(ctx, "lead-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.Stage != StageAskComplaint {
		t.Fatalf("stored stage must be recomputed, got %q", loaded.Stage)
	}
}

func TestRedisStateStoreRejectsGarbage(t *testing.T) {
	store, mr := newTestRedisStore(t)

	mr.Set(stateKey("lead-1"), "not json")

	if _, err := store.LoadState(context.Background(), "lead-1"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRedisStateStoreSaveDerivesStage(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	state := &LeadState{Stage: StageReady, TherapyArea: TherapyAreaSpeech}
	if err := store.SaveState(ctx, "lead-1", state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if state.Stage != StageAskComplaint {
		t.Fatalf("save must re-derive the stage, got %q", state.Stage)
	}
}

func TestRedisSummaryRoundtrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if sum, err := store.LoadSummary(ctx, "lead-1"); err != nil || sum != nil {
		t.Fatalf("missing summary must be nil, nil; got %+v, %v", sum, err)
	}

	saved := &Summary{
		Text:             "Paciente procura fonoaudiologia para gagueira.",
		GeneratedAt:      time.Now().UTC(),
		CoversUntilIndex: 12,
	}
	if err := store.SaveSummary(ctx, "lead-1", saved); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	loaded, err := store.LoadSummary(ctx, "lead-1")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if loaded.Text != saved.Text || loaded.CoversUntilIndex != 12 {
		t.Fatalf("summary lost in roundtrip: %+v", loaded)
	}
}

func TestRedisStateStoreConnectionError(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	if _, err := store.LoadState(context.Background(), "lead-1"); err == nil {
		t.Fatalf("expected load error when redis is down")
	}
	if err := store.SaveState(context.Background(), "lead-1", NewLeadState()); err == nil {
		t.Fatalf("expected save error when redis is down")
	}
}
