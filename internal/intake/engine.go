package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vidaplena/intake-ai-platform/internal/observability/metrics"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// ErrStatePersistence marks a reply that was produced but whose state update
// failed to land. Callers should deliver the reply and may retry the save;
// the next message will simply observe the previous state.
var ErrStatePersistence = errors.New("intake: state persistence failed")

// MessageRequest is one inbound chat message from a lead.
type MessageRequest struct {
	LeadID  string `json:"lead_id"`
	Message string `json:"message"`
}

// Response is the engine's reply for one inbound message.
type Response struct {
	LeadID    string    `json:"lead_id"`
	Reply     string    `json:"reply"`
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// Service describes how the intake engine behaves for one inbound message.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
}

// Engine runs the per-message pipeline: load history, extract signals, merge
// state, resolve stage, select a reply, persist. Messages for the same lead
// are serialized with a per-lead lock because the merge is order-dependent;
// multi-instance deployments must additionally route a lead's messages to a
// single consumer (the SQS worker does this by lead-keyed message grouping).
type Engine struct {
	states    StateStore
	history   *HistoryLoader
	turns     TurnStore
	extractor *Extractor
	responder *Responder
	metrics   *metrics.IntakeMetrics
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*leadLock
}

// leadLock is a per-lead mutex with a waiter count so the engine can drop
// the map entry once nobody holds or waits on it.
type leadLock struct {
	mu   sync.Mutex
	refs int
}

var _ Service = (*Engine)(nil)

func NewEngine(states StateStore, history *HistoryLoader, turns TurnStore, extractor *Extractor, responder *Responder, m *metrics.IntakeMetrics, logger *logging.Logger) *Engine {
	if states == nil {
		panic("intake: state store cannot be nil")
	}
	if history == nil {
		panic("intake: history loader cannot be nil")
	}
	if turns == nil {
		panic("intake: turn store cannot be nil")
	}
	if extractor == nil {
		panic("intake: extractor cannot be nil")
	}
	if responder == nil {
		panic("intake: responder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		states:    states,
		history:   history,
		turns:     turns,
		extractor: extractor,
		responder: responder,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*leadLock),
	}
}

// ProcessMessage runs the full pipeline once. It never returns an empty
// reply: every failure class degrades to a scripted fallback, and only a
// persistence failure surfaces as an error alongside a usable reply.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (resp *Response, err error) {
	if req.LeadID == "" {
		return nil, errors.New("intake: lead id is required")
	}
	if req.Message == "" {
		return nil, errors.New("intake: message is required")
	}

	unlock := e.lockLead(req.LeadID)
	defer unlock()

	log := e.logger.WithLead(req.LeadID)

	// Whatever goes wrong below, the lead still gets a question back.
	defer func() {
		if r := recover(); r != nil {
			log.Error("intake pipeline panic", "panic", r)
			resp = &Response{
				LeadID:    req.LeadID,
				Reply:     lastResortScript,
				Stage:     StageAskTherapy,
				Timestamp: e.now(),
			}
			err = nil
		}
	}()

	now := e.now()

	state, loadErr := e.states.LoadState(ctx, req.LeadID)
	if loadErr != nil {
		log.Error("state load failed, starting from initial state", "error", loadErr)
	}
	if state == nil {
		state = NewLeadState()
	}

	view, histErr := e.history.Load(ctx, req.LeadID)
	if histErr != nil {
		log.Error("history load failed, continuing without history", "error", histErr)
		view = &HistoryView{ShouldGreet: true}
	}

	sig := e.extractor.Extract(ctx, req.Message, view.Turns)
	e.metrics.ObserveExtraction(string(sig.Source))

	merged := MergeSignal(state, sig, req.Message, now)

	if appendErr := e.turns.AppendTurn(ctx, req.LeadID, Turn{Role: ChatRoleUser, Text: req.Message, Timestamp: now}); appendErr != nil {
		log.Error("failed to record user turn", "error", appendErr)
	}

	reply := e.responder.Select(ctx, merged, sig, req.Message, view.ShouldGreet)

	if appendErr := e.turns.AppendTurn(ctx, req.LeadID, Turn{Role: ChatRoleAssistant, Text: reply, Timestamp: e.now()}); appendErr != nil {
		log.Error("failed to record assistant turn", "error", appendErr)
	}

	resp = &Response{
		LeadID:    req.LeadID,
		Reply:     reply,
		Stage:     DeriveStage(merged),
		Timestamp: e.now(),
	}
	e.metrics.ObserveMessage(string(resp.Stage))

	if saveErr := e.states.SaveState(ctx, req.LeadID, merged); saveErr != nil {
		e.metrics.ObserveSaveFailure()
		log.Error("state save failed, reply still returned", "error", saveErr)
		return resp, fmt.Errorf("%w: %v", ErrStatePersistence, saveErr)
	}

	return resp, nil
}

// lockLead serializes processing per lead. Two near-simultaneous messages
// for the same lead would otherwise race on the read-modify-write and the
// later write would silently drop the earlier one's contribution. Entries
// are removed when the last holder or waiter releases, so the map is
// bounded by the number of in-flight leads rather than every lead ever seen.
func (e *Engine) lockLead(leadID string) func() {
	e.mu.Lock()
	lock, ok := e.locks[leadID]
	if !ok {
		lock = &leadLock{}
		e.locks[leadID] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(e.locks, leadID)
		}
		e.mu.Unlock()
	}
}
