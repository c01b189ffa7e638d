package intake

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vidaplena/intake-ai-platform/internal/observability/metrics"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// Turn is one recorded conversation message. Turns are append-only and
// chronological; they are never edited after the fact.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the cached digest of older turns. CoversUntilIndex counts how
// many turns have been folded in; anything after that index stays verbatim.
// Summaries are regenerated wholesale, never edited in place.
type Summary struct {
	Text             string    `json:"text"`
	GeneratedAt      time.Time `json:"generated_at"`
	CoversUntilIndex int       `json:"covers_until_index"`
}

// HistoryView is what the downstream pipeline sees: either all turns (short
// conversations) or a summary plus the literal tail.
type HistoryView struct {
	Turns       []Turn
	Summary     *Summary
	ShouldGreet bool
}

const (
	// verbatimTailSize is the only history window the engine ever uses:
	// conversations at or under it pass through whole, longer ones keep
	// exactly this many trailing turns verbatim.
	verbatimTailSize = 20

	// summaryMaxAge and summaryRefreshTurns bound how stale a cached
	// summary may grow before it is recomputed.
	summaryMaxAge       = 24 * time.Hour
	summaryRefreshTurns = 20

	// greetSilence is how long a lead must be quiet before the next reply
	// opens with the greeting again.
	greetSilence = 24 * time.Hour
)

const summarizationSystemPrompt = `Você resume conversas de triagem de uma clínica de terapias.
Resuma o histórico abaixo em até 5 frases, preservando: especialidade procurada, queixa, idade do paciente, período preferido e qualquer agendamento confirmado.
Responda somente com o resumo, em português.`

// appointmentMentionRE flags summaries that assert a confirmed appointment.
// If no appointment actually exists the summary is stale and gets rebuilt.
var appointmentMentionRE = regexp.MustCompile(`(?i)(consulta|avalia[çc][ãa]o|hor[áa]rio)[^.]{0,40}(marcad|agendad|confirmad)`)

// SummaryStore caches one summary per lead.
type SummaryStore interface {
	LoadSummary(ctx context.Context, leadID string) (*Summary, error)
	SaveSummary(ctx context.Context, leadID string, s *Summary) error
}

// AppointmentChecker answers whether the lead currently has a confirmed
// appointment. Used only for stale-summary detection; a nil checker means
// "assume none", which errs on the side of refreshing.
type AppointmentChecker interface {
	HasConfirmedAppointment(ctx context.Context, leadID string) (bool, error)
}

// HistoryLoader assembles the per-message history view, folding long
// conversations into a cached summary plus a literal tail.
type HistoryLoader struct {
	turns        TurnStore
	summaries    SummaryStore
	llm          LLMClient
	modelID      string
	appointments AppointmentChecker
	metrics      *metrics.IntakeMetrics
	logger       *logging.Logger
	now          func() time.Time
}

func NewHistoryLoader(turns TurnStore, summaries SummaryStore, llm LLMClient, modelID string, logger *logging.Logger) *HistoryLoader {
	if turns == nil {
		panic("intake: turn store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HistoryLoader{
		turns:     turns,
		summaries: summaries,
		llm:       llm,
		modelID:   modelID,
		logger:    logger,
		now:       time.Now,
	}
}

// WithAppointmentChecker wires stale-summary detection against real
// appointment data.
func (l *HistoryLoader) WithAppointmentChecker(checker AppointmentChecker) *HistoryLoader {
	l.appointments = checker
	return l
}

// WithMetrics reports summary refreshes to the metrics registry.
func (l *HistoryLoader) WithMetrics(m *metrics.IntakeMetrics) *HistoryLoader {
	l.metrics = m
	return l
}

// Load returns the history view for a lead. Summarization failures are
// logged and swallowed: the caller always gets the raw tail and a reply can
// always be produced.
func (l *HistoryLoader) Load(ctx context.Context, leadID string) (*HistoryView, error) {
	turns, err := l.turns.LoadTurns(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("intake: load turns: %w", err)
	}

	now := l.now()
	if len(turns) == 0 {
		return &HistoryView{ShouldGreet: true}, nil
	}

	if len(turns) <= verbatimTailSize {
		return &HistoryView{
			Turns:       turns,
			ShouldGreet: now.Sub(turns[len(turns)-1].Timestamp) > greetSilence,
		}, nil
	}

	tail := turns[len(turns)-verbatimTailSize:]
	summary := l.ensureSummary(ctx, leadID, turns, now)
	return &HistoryView{
		Turns:       tail,
		Summary:     summary,
		ShouldGreet: now.Sub(tail[len(tail)-1].Timestamp) > greetSilence,
	}, nil
}

// ensureSummary reuses the cached summary when it is still fresh, otherwise
// recomputes it over everything except the verbatim tail.
func (l *HistoryLoader) ensureSummary(ctx context.Context, leadID string, turns []Turn, now time.Time) *Summary {
	var cached *Summary
	if l.summaries != nil {
		var err error
		cached, err = l.summaries.LoadSummary(ctx, leadID)
		if err != nil {
			l.logger.Warn("summary load failed, continuing without cache", "lead_id", leadID, "error", err)
			cached = nil
		}
	}

	if cached != nil && !l.summaryStale(ctx, leadID, cached, len(turns), now) {
		return cached
	}

	coversUntil := len(turns) - verbatimTailSize
	text, err := l.summarize(ctx, turns[:coversUntil])
	if err != nil {
		// Skip the update and keep going with the raw tail; never block
		// the reply on summarization.
		l.logger.Warn("summarization failed, skipping update", "lead_id", leadID, "error", err)
		return nil
	}

	fresh := &Summary{
		Text:             text,
		GeneratedAt:      now,
		CoversUntilIndex: coversUntil,
	}
	// coversUntilIndex is monotonic: never step backwards past a cached
	// summary that already covered more turns.
	if cached != nil && cached.CoversUntilIndex > fresh.CoversUntilIndex {
		fresh.CoversUntilIndex = cached.CoversUntilIndex
	}

	if l.summaries != nil {
		if err := l.summaries.SaveSummary(ctx, leadID, fresh); err != nil {
			l.logger.Warn("summary save failed", "lead_id", leadID, "error", err)
		}
	}
	l.metrics.ObserveSummaryRefresh()
	return fresh
}

func (l *HistoryLoader) summaryStale(ctx context.Context, leadID string, s *Summary, totalTurns int, now time.Time) bool {
	if now.Sub(s.GeneratedAt) > summaryMaxAge {
		return true
	}
	if totalTurns-s.CoversUntilIndex >= summaryRefreshTurns+verbatimTailSize {
		return true
	}
	if appointmentMentionRE.MatchString(s.Text) {
		confirmed := false
		if l.appointments != nil {
			var err error
			confirmed, err = l.appointments.HasConfirmedAppointment(ctx, leadID)
			if err != nil {
				l.logger.Warn("appointment check failed during staleness probe", "lead_id", leadID, "error", err)
				confirmed = false
			}
		}
		if !confirmed {
			return true
		}
	}
	return false
}

func (l *HistoryLoader) summarize(ctx context.Context, turns []Turn) (string, error) {
	if l.llm == nil {
		return "", fmt.Errorf("intake: no summarization client configured")
	}

	var transcript strings.Builder
	for _, turn := range turns {
		role := "Paciente"
		if turn.Role == ChatRoleAssistant {
			role = "Assistente"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", role, turn.Text)
	}

	resp, err := l.llm.Complete(ctx, LLMRequest{
		Model:       l.modelID,
		System:      []string{summarizationSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: transcript.String()}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("intake: summarizer returned empty text")
	}
	return text, nil
}
