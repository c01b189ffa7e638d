package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vidaplena/intake-ai-platform/internal/scheduling"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

type fakeSearcher struct {
	set       *scheduling.SlotSet
	err       error
	lastQuery scheduling.SlotQuery
	calls     int
}

func (s *fakeSearcher) FindSlots(_ context.Context, q scheduling.SlotQuery) (*scheduling.SlotSet, error) {
	s.calls++
	s.lastQuery = q
	return s.set, s.err
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	g.calls++
	return g.answer, g.err
}

func TestSelectStageScripts(t *testing.T) {
	r := NewResponder(nil, nil, logging.Default())

	tests := []struct {
		name  string
		state *LeadState
		want  string
	}{
		{"new lead asks therapy", NewLeadState(), stageScripts[StageAskTherapy]},
		{"area set asks complaint", &LeadState{TherapyArea: TherapyAreaSpeech}, stageScripts[StageAskComplaint]},
		{"complaint set asks age", &LeadState{TherapyArea: TherapyAreaSpeech, Complaint: "gagueira"}, stageScripts[StageAskAge]},
		{"age set asks period", &LeadState{TherapyArea: TherapyAreaSpeech, Complaint: "gagueira", Age: intPtr(7)}, stageScripts[StageAskPeriod]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Select(context.Background(), tt.state, Signal{Intent: IntentGeneral}, "oi", false)
			if got != tt.want {
				t.Fatalf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectGreetingPrefix(t *testing.T) {
	r := NewResponder(nil, nil, logging.Default())

	got := r.Select(context.Background(), NewLeadState(), Signal{Intent: IntentGeneral}, "Quero agendar avaliação", true)

	if !strings.HasPrefix(got, greetingScript) {
		t.Fatalf("first contact must open with the greeting, got %q", got)
	}
	if !strings.Contains(got, stageScripts[StageAskTherapy]) {
		t.Fatalf("greeting must be followed by the therapy question, got %q", got)
	}
}

func TestSelectReadySearchesSlots(t *testing.T) {
	slots := &fakeSearcher{set: &scheduling.SlotSet{Primary: []scheduling.Slot{
		{Start: time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC), Professional: "Dra. Ana"},
		{Start: time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC), Professional: "Dra. Ana"},
		{Start: time.Date(2026, 9, 4, 9, 30, 0, 0, time.UTC), Professional: "Dr. Paulo"},
		{Start: time.Date(2026, 9, 5, 9, 0, 0, 0, time.UTC), Professional: "Dra. Ana"},
	}}}
	r := NewResponder(slots, nil, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaSpeech,
		Complaint:   "gagueira",
		Age:         intPtr(7),
		Period:      PeriodMorning,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentGeneral}, "manhã", false)

	want := scheduling.SlotQuery{TherapyArea: "fonoaudiologia", Period: "manha", Age: 7}
	if slots.lastQuery != want {
		t.Fatalf("query = %+v, want %+v", slots.lastQuery, want)
	}
	if !strings.Contains(got, "Dra. Ana") {
		t.Errorf("offer must name the professional, got %q", got)
	}
	if n := strings.Count(got, "- "); n != 3 {
		t.Errorf("offer must cap at three slots, got %d in %q", n, got)
	}
	if !strings.Contains(got, "03/09") {
		t.Errorf("offer must carry a formatted date, got %q", got)
	}
}

func TestSelectReadySlotSearchError(t *testing.T) {
	slots := &fakeSearcher{err: errors.New("scheduling service down")}
	r := NewResponder(slots, nil, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaPsychology,
		Complaint:   "ansiedade",
		Age:         intPtr(30),
		Period:      PeriodEvening,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentGeneral}, "noite", false)

	if got != searchPendingScript {
		t.Fatalf("search failure must degrade to the pending script, got %q", got)
	}
}

func TestSelectReadyNoAvailability(t *testing.T) {
	slots := &fakeSearcher{set: &scheduling.SlotSet{}}
	r := NewResponder(slots, nil, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaPhysiotherapy,
		Complaint:   "dor no joelho",
		Age:         intPtr(50),
		Period:      PeriodAfternoon,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentGeneral}, "tarde", false)

	if !strings.Contains(got, "fisioterapia") {
		t.Fatalf("no-availability reply must name the area, got %q", got)
	}
	if !strings.Contains(got, "não encontrei horários") {
		t.Fatalf("expected the no-availability script, got %q", got)
	}
}

func TestSelectReadyWithoutSearcher(t *testing.T) {
	r := NewResponder(nil, nil, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaSpeech,
		Complaint:   "gagueira",
		Age:         intPtr(7),
		Period:      PeriodMorning,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentGeneral}, "manhã", false)
	if got != searchPendingScript {
		t.Fatalf("no searcher configured must defer, got %q", got)
	}
}

func TestSelectRestoredContextBridges(t *testing.T) {
	slots := &fakeSearcher{set: &scheduling.SlotSet{Primary: []scheduling.Slot{{Start: time.Now(), Professional: "Dra. Ana"}}}}
	r := NewResponder(slots, nil, logging.Default())
	state := &LeadState{
		TherapyArea:     TherapyAreaSpeech,
		Complaint:       "gagueira",
		ContextRestored: true,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentGeneral}, "voltando à fono", false)

	if !strings.Contains(got, "gagueira") {
		t.Fatalf("bridge must acknowledge the restored complaint, got %q", got)
	}
	if slots.calls != 0 {
		t.Errorf("bridge turn must not search slots")
	}
}

func TestSelectSideQuestionAnswersAndReasks(t *testing.T) {
	gen := &fakeGenerator{answer: "A consulta de avaliação custa R$ 200."}
	r := NewResponder(nil, gen, logging.Default())
	state := &LeadState{TherapyArea: TherapyAreaSpeech}

	got := r.Select(context.Background(), state, Signal{Intent: IntentChangeSubject}, "Quanto custa?", false)

	if !strings.Contains(got, "R$ 200") {
		t.Fatalf("side answer missing, got %q", got)
	}
	if !strings.Contains(got, stageScripts[StageAskComplaint]) {
		t.Fatalf("stage question must follow the side answer, got %q", got)
	}
	if gen.calls != 1 {
		t.Errorf("expected one generation call, got %d", gen.calls)
	}
}

func TestSelectSideQuestionGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model down")}
	r := NewResponder(nil, gen, logging.Default())
	state := &LeadState{TherapyArea: TherapyAreaSpeech}

	got := r.Select(context.Background(), state, Signal{Intent: IntentChangeSubject}, "Quanto custa?", false)

	if got != stageScripts[StageAskComplaint] {
		t.Fatalf("generation failure must fall back to the stage script, got %q", got)
	}
}

func TestSelectSideQuestionAtReadyOffersSlots(t *testing.T) {
	slots := &fakeSearcher{set: &scheduling.SlotSet{Primary: []scheduling.Slot{
		{Start: time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC), Professional: "Dra. Carla"},
	}}}
	gen := &fakeGenerator{answer: "Atendemos por convênio e particular."}
	r := NewResponder(slots, gen, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaPsychology,
		Complaint:   "ansiedade",
		Age:         intPtr(30),
		Period:      PeriodMorning,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentChangeSubject}, "Vocês aceitam convênio?", false)

	if !strings.Contains(got, "convênio e particular") {
		t.Fatalf("side answer missing, got %q", got)
	}
	if !strings.Contains(got, "Dra. Carla") {
		t.Fatalf("slot offer must follow the side answer at ready, got %q", got)
	}
	if slots.calls != 1 {
		t.Errorf("expected one slot search, got %d", slots.calls)
	}
}

func TestSelectSideQuestionAtReadyWithoutGenerator(t *testing.T) {
	slots := &fakeSearcher{set: &scheduling.SlotSet{Primary: []scheduling.Slot{
		{Start: time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC), Professional: "Dra. Carla"},
	}}}
	r := NewResponder(slots, nil, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaPsychology,
		Complaint:   "ansiedade",
		Age:         intPtr(30),
		Period:      PeriodMorning,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentChangeSubject}, "Vocês aceitam convênio?", false)

	if got == "" {
		t.Fatal("reply must never be empty")
	}
	if !strings.Contains(got, "Dra. Carla") {
		t.Fatalf("without a generator the ready turn still offers slots, got %q", got)
	}
}

func TestSelectSideQuestionAtReadyFullyDegraded(t *testing.T) {
	// No generator and no searcher: the ready turn still answers something.
	r := NewResponder(nil, nil, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaPsychology,
		Complaint:   "ansiedade",
		Age:         intPtr(30),
		Period:      PeriodMorning,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentChangeSubject}, "Vocês aceitam convênio?", false)

	if got != searchPendingScript {
		t.Fatalf("fully degraded ready turn must use the pending script, got %q", got)
	}
}

func TestSelectSideQuestionAtReadyGeneratorFailure(t *testing.T) {
	slots := &fakeSearcher{set: &scheduling.SlotSet{Primary: []scheduling.Slot{
		{Start: time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC), Professional: "Dra. Carla"},
	}}}
	gen := &fakeGenerator{err: errors.New("model down")}
	r := NewResponder(slots, gen, logging.Default())
	state := &LeadState{
		TherapyArea: TherapyAreaPsychology,
		Complaint:   "ansiedade",
		Age:         intPtr(30),
		Period:      PeriodMorning,
	}

	got := r.Select(context.Background(), state, Signal{Intent: IntentChangeSubject}, "Vocês aceitam convênio?", false)

	if got == "" {
		t.Fatal("reply must never be empty")
	}
	if !strings.Contains(got, "Dra. Carla") {
		t.Fatalf("generation failure at ready must degrade to the slot offer, got %q", got)
	}
}

func TestSelectSideQuestionIgnoredAtFirstStage(t *testing.T) {
	// Before any field is known the intake question always comes first.
	gen := &fakeGenerator{answer: "Ficamos na Rua das Flores."}
	r := NewResponder(nil, gen, logging.Default())

	got := r.Select(context.Background(), NewLeadState(), Signal{Intent: IntentChangeSubject}, "Onde fica a clínica?", false)

	if got != stageScripts[StageAskTherapy] {
		t.Fatalf("expected the therapy question, got %q", got)
	}
	if gen.calls != 0 {
		t.Errorf("generator must not run at ask_therapy, got %d calls", gen.calls)
	}
}

func TestFormatSlotOfferCapsAtThree(t *testing.T) {
	state := &LeadState{TherapyArea: TherapyAreaSpeech, Period: PeriodMorning}
	slots := make([]scheduling.Slot, 5)
	for i := range slots {
		slots[i] = scheduling.Slot{
			Start:        time.Date(2026, 9, 1+i, 9, 0, 0, 0, time.UTC),
			Professional: "Dra. Ana",
		}
	}

	got := formatSlotOffer(state, slots)

	if n := strings.Count(got, "- "); n != 3 {
		t.Fatalf("expected 3 offered slots, got %d in %q", n, got)
	}
}

func TestFormatSlotTime(t *testing.T) {
	// 2026-09-03 is a Thursday.
	got := formatSlotTime(time.Date(2026, 9, 3, 14, 30, 0, 0, time.UTC))
	want := "quinta 03/09 às 14h30"
	if got != want {
		t.Fatalf("formatSlotTime = %q, want %q", got, want)
	}
}
