package intake

import (
	"strings"
	"time"
)

// TherapyArea is one of the clinic's canonical specialties. The empty value
// means "not yet known"; anything outside the closed set is rejected at the
// extraction boundary, never stored.
type TherapyArea string

const (
	TherapyAreaNone          TherapyArea = ""
	TherapyAreaSpeech        TherapyArea = "fonoaudiologia"
	TherapyAreaPsychology    TherapyArea = "psicologia"
	TherapyAreaPhysiotherapy TherapyArea = "fisioterapia"
)

// CanonicalTherapyAreas lists every area the clinic recognizes.
var CanonicalTherapyAreas = []TherapyArea{
	TherapyAreaSpeech,
	TherapyAreaPsychology,
	TherapyAreaPhysiotherapy,
}

// NormalizeTherapyArea maps a free-form value onto the closed set.
// Unrecognized values collapse to TherapyAreaNone.
func NormalizeTherapyArea(raw string) TherapyArea {
	switch TherapyArea(strings.ToLower(strings.TrimSpace(raw))) {
	case TherapyAreaSpeech:
		return TherapyAreaSpeech
	case TherapyAreaPsychology:
		return TherapyAreaPsychology
	case TherapyAreaPhysiotherapy:
		return TherapyAreaPhysiotherapy
	default:
		return TherapyAreaNone
	}
}

// Period is the patient's preferred time of day.
type Period string

const (
	PeriodNone      Period = ""
	PeriodMorning   Period = "manha"
	PeriodAfternoon Period = "tarde"
	PeriodEvening   Period = "noite"
)

// NormalizePeriod maps a free-form value onto the known periods.
func NormalizePeriod(raw string) Period {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, "ã", "a")
	switch Period(cleaned) {
	case PeriodMorning, PeriodAfternoon, PeriodEvening:
		return Period(cleaned)
	default:
		return PeriodNone
	}
}

// Stage labels what information is still missing from the conversation.
type Stage string

const (
	StageAskTherapy   Stage = "ask_therapy"
	StageAskComplaint Stage = "ask_complaint"
	StageAskAge       Stage = "ask_age"
	StageAskPeriod    Stage = "ask_period"
	StageReady        Stage = "ready"
)

// EmotionalSnapshot is a complaint set aside when the lead switched topics
// mid-distress, kept so a later return to the same area can pick the thread
// back up instead of re-asking.
type EmotionalSnapshot struct {
	Complaint   string      `json:"complaint"`
	TherapyArea TherapyArea `json:"therapy_area"`
	SavedAt     time.Time   `json:"saved_at"`
}

// snapshotRestoreWindow bounds how long a saved emotional context stays
// eligible for restoration after a topic switch.
const snapshotRestoreWindow = 2 * time.Hour

// LeadState is the per-lead aggregate the engine reads, merges into, and
// writes back once per inbound message.
//
// Stage is persisted for dashboards only. It is always recomputed from the
// other fields on load; a stored value that disagrees with the projection is
// ignored, so a corrupted record self-heals on the next message.
type LeadState struct {
	Stage                  Stage                             `json:"stage"`
	TherapyArea            TherapyArea                       `json:"therapy_area,omitempty"`
	Complaint              string                            `json:"complaint,omitempty"`
	Age                    *int                              `json:"age,omitempty"`
	Period                 Period                            `json:"period,omitempty"`
	HasEmotionalContext    bool                              `json:"has_emotional_context,omitempty"`
	SavedEmotionalContexts map[TherapyArea]EmotionalSnapshot `json:"saved_emotional_contexts,omitempty"`
	ContextRestored        bool                              `json:"context_restored,omitempty"`
	UpdatedAt              time.Time                         `json:"updated_at"`
}

// NewLeadState returns the default initial state for an unknown lead.
func NewLeadState() *LeadState {
	return &LeadState{Stage: StageAskTherapy}
}

// DeriveStage projects the conversational stage from field nullness. First
// unmet condition wins. "ready" is not terminal: a later topic switch can
// clear fields and move the state back to an earlier stage.
func DeriveStage(s *LeadState) Stage {
	switch {
	case s == nil || s.TherapyArea == TherapyAreaNone:
		return StageAskTherapy
	case s.Complaint == "":
		return StageAskComplaint
	case s.Age == nil:
		return StageAskAge
	case s.Period == PeriodNone:
		return StageAskPeriod
	default:
		return StageReady
	}
}

// Clone returns a deep copy so the merge step can stay a pure function over
// value snapshots.
func (s *LeadState) Clone() *LeadState {
	if s == nil {
		return NewLeadState()
	}
	out := *s
	if s.Age != nil {
		age := *s.Age
		out.Age = &age
	}
	if s.SavedEmotionalContexts != nil {
		out.SavedEmotionalContexts = make(map[TherapyArea]EmotionalSnapshot, len(s.SavedEmotionalContexts))
		for area, snap := range s.SavedEmotionalContexts {
			out.SavedEmotionalContexts[area] = snap
		}
	}
	return &out
}
