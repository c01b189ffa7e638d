package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// StateStore persists the per-lead conversation state.
type StateStore interface {
	LoadState(ctx context.Context, leadID string) (*LeadState, error)
	SaveState(ctx context.Context, leadID string, state *LeadState) error
}

// RedisStateStore keeps lead state and cached summaries in Redis. State lives
// for the lead's relationship lifetime, so no TTL is set.
type RedisStateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisStateStore(client *redis.Client, tracer trace.Tracer) *RedisStateStore {
	if client == nil {
		panic("intake: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("vidaplena.internal.intake.state")
	}
	return &RedisStateStore{
		redis:  client,
		tracer: tracer,
	}
}

var (
	_ StateStore   = (*RedisStateStore)(nil)
	_ SummaryStore = (*RedisStateStore)(nil)
)

// LoadState fetches the lead state. A missing record returns nil, meaning the
// caller should start from the default initial state. The stored stage is
// never trusted: it is recomputed from the fields on every load.
func (s *RedisStateStore) LoadState(ctx context.Context, leadID string) (*LeadState, error) {
	ctx, span := s.tracer.Start(ctx, "intake.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(leadID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("intake: failed to load state: %w", err)
	}

	var state LeadState
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("intake: failed to decode state: %w", err)
	}
	state.Stage = DeriveStage(&state)
	return &state, nil
}

// SaveState writes the full state back. The stage is re-derived first so the
// persisted record can never carry a projection that disagrees with its
// fields.
func (s *RedisStateStore) SaveState(ctx context.Context, leadID string, state *LeadState) error {
	ctx, span := s.tracer.Start(ctx, "intake.save_state")
	defer span.End()

	if state == nil {
		return fmt.Errorf("intake: cannot save nil state")
	}
	state.Stage = DeriveStage(state)

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(leadID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: failed to persist state: %w", err)
	}
	return nil
}

// LoadSummary fetches the cached history summary, nil when absent.
func (s *RedisStateStore) LoadSummary(ctx context.Context, leadID string) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "intake.load_summary")
	defer span.End()

	data, err := s.redis.Get(ctx, summaryKey(leadID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("intake: failed to load summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("intake: failed to decode summary: %w", err)
	}
	return &summary, nil
}

// SaveSummary replaces the cached summary wholesale.
func (s *RedisStateStore) SaveSummary(ctx context.Context, leadID string, summary *Summary) error {
	ctx, span := s.tracer.Start(ctx, "intake.save_summary")
	defer span.End()

	data, err := json.Marshal(summary)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: failed to marshal summary: %w", err)
	}
	if err := s.redis.Set(ctx, summaryKey(leadID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: failed to persist summary: %w", err)
	}
	return nil
}

func stateKey(leadID string) string {
	return fmt.Sprintf("intake:state:%s", leadID)
}

func summaryKey(leadID string) string {
	return fmt.Sprintf("intake:summary:%s", leadID)
}
