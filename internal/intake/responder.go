package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vidaplena/intake-ai-platform/internal/observability/metrics"
	"github.com/vidaplena/intake-ai-platform/internal/scheduling"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// Scripted replies, one canonical question per stage. The engine never
// re-asks a field that is already filled because the stage projection only
// lands on a question whose field is still null.
var stageScripts = map[Stage]string{
	StageAskTherapy:   "Para qual especialidade você procura atendimento: fonoaudiologia, psicologia ou fisioterapia?",
	StageAskComplaint: "Pode me contar um pouco sobre o que está acontecendo? Assim consigo te direcionar melhor.",
	StageAskAge:       "Qual é a idade do paciente?",
	StageAskPeriod:    "Você prefere atendimento de manhã, à tarde ou à noite?",
}

const (
	greetingScript       = "Olá! Sou a assistente virtual da Clínica Vida Plena. "
	noAvailabilityScript = "No momento não encontrei horários disponíveis para %s. Nossa equipe vai verificar outras opções e te retorna em breve, tudo bem?"
	searchPendingScript  = "Estou verificando os horários disponíveis e já te retorno, tudo bem?"
	lastResortScript     = "Desculpe, não entendi muito bem. Pode me contar um pouco mais sobre o que você precisa?"
	restoredBridgeScript = "Da última vez você mencionou %s, e imagino que não esteja sendo fácil. Quer me contar como estão as coisas agora?"
)

var therapyAreaLabels = map[TherapyArea]string{
	TherapyAreaSpeech:        "fonoaudiologia",
	TherapyAreaPsychology:    "psicologia",
	TherapyAreaPhysiotherapy: "fisioterapia",
}

var periodLabels = map[Period]string{
	PeriodMorning:   "pela manhã",
	PeriodAfternoon: "à tarde",
	PeriodEvening:   "à noite",
}

// ReplyGenerator produces a free-form reply when no scripted path applies.
// The quality of generated text is out of the engine's hands; it only routes.
type ReplyGenerator interface {
	Generate(ctx context.Context, text string, stageContext string) (string, error)
}

// Responder picks the outgoing reply: a scripted question, a booking
// hand-off, or a delegation to the free-form generator.
type Responder struct {
	slots     scheduling.Searcher
	generator ReplyGenerator
	metrics   *metrics.IntakeMetrics
	logger    *logging.Logger
}

func NewResponder(slots scheduling.Searcher, generator ReplyGenerator, logger *logging.Logger) *Responder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{slots: slots, generator: generator, logger: logger}
}

// WithMetrics reports slot search latency to the metrics registry.
func (r *Responder) WithMetrics(m *metrics.IntakeMetrics) *Responder {
	r.metrics = m
	return r
}

// Select builds the reply for the merged state. It never returns an empty
// reply: every failure path degrades to a script.
func (r *Responder) Select(ctx context.Context, state *LeadState, sig Signal, messageText string, shouldGreet bool) string {
	reply := r.selectBody(ctx, state, sig, messageText)
	if shouldGreet {
		return greetingScript + reply
	}
	return reply
}

func (r *Responder) selectBody(ctx context.Context, state *LeadState, sig Signal, messageText string) string {
	stage := DeriveStage(state)

	// A freshly restored emotional context takes precedence over the stage
	// question: acknowledge the parked complaint and invite elaboration.
	if state.ContextRestored && state.Complaint != "" {
		return fmt.Sprintf(restoredBridgeScript, state.Complaint)
	}

	if sig.Intent == IntentChangeSubject && stage != StageAskTherapy {
		return r.answerSideQuestion(ctx, state, messageText, stage)
	}

	if stage == StageReady {
		return r.offerSlots(ctx, state)
	}

	if script, ok := stageScripts[stage]; ok {
		return script
	}
	return lastResortScript
}

// answerSideQuestion answers the lateral question via the generator and then
// re-appends the follow-up that keeps intake moving: the current stage's
// scripted question, or the slot offer once the lead is ready. The follow-up
// is also the whole reply when no generator is configured or generation
// fails, so a side question never produces an empty response.
func (r *Responder) answerSideQuestion(ctx context.Context, state *LeadState, messageText string, stage Stage) string {
	followUp, ok := stageScripts[stage]
	if !ok {
		followUp = r.offerSlots(ctx, state)
	}
	if r.generator == nil {
		return followUp
	}
	answer, err := r.generator.Generate(ctx, messageText, string(stage))
	if err != nil || strings.TrimSpace(answer) == "" {
		r.logger.Warn("side-question generation failed, using follow-up only", "error", err)
		return followUp
	}
	return strings.TrimSpace(answer) + "\n\n" + followUp
}

// offerSlots hands off to slot search with exactly the three qualified
// fields. A search failure never advances the conversation: the stage stays
// ready, so the next message retries.
func (r *Responder) offerSlots(ctx context.Context, state *LeadState) string {
	if r.slots == nil {
		return searchPendingScript
	}

	age := 0
	if state.Age != nil {
		age = *state.Age
	}
	started := time.Now()
	set, err := r.slots.FindSlots(ctx, scheduling.SlotQuery{
		TherapyArea: string(state.TherapyArea),
		Period:      string(state.Period),
		Age:         age,
	})
	elapsed := time.Since(started).Seconds()
	if err != nil {
		r.metrics.ObserveSlotSearch("error", elapsed)
		r.logger.Error("slot search failed", "therapy_area", state.TherapyArea, "error", err)
		return searchPendingScript
	}
	if set == nil || len(set.Primary) == 0 {
		r.metrics.ObserveSlotSearch("empty", elapsed)
		return fmt.Sprintf(noAvailabilityScript, therapyAreaLabels[state.TherapyArea])
	}
	r.metrics.ObserveSlotSearch("ok", elapsed)

	return formatSlotOffer(state, set.Primary)
}

func formatSlotOffer(state *LeadState, slots []scheduling.Slot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontrei estes horários de %s %s:\n",
		therapyAreaLabels[state.TherapyArea], periodLabels[state.Period])
	limit := len(slots)
	if limit > 3 {
		limit = 3
	}
	for _, slot := range slots[:limit] {
		fmt.Fprintf(&b, "- %s com %s\n", formatSlotTime(slot.Start), slot.Professional)
	}
	b.WriteString("Algum deles funciona para você?")
	return b.String()
}

var weekdayLabels = [...]string{"domingo", "segunda", "terça", "quarta", "quinta", "sexta", "sábado"}

func formatSlotTime(t time.Time) string {
	return fmt.Sprintf("%s %02d/%02d às %02dh%02d",
		weekdayLabels[int(t.Weekday())], t.Day(), int(t.Month()), t.Hour(), t.Minute())
}
