package intake

// Intent is the coarse conversational intent of a single message.
type Intent string

const (
	IntentGeneral       Intent = "general"
	IntentChangeSubject Intent = "change_subject"
)

// SignalSource tags which extraction path produced a signal, so callers and
// tests can assert whether the LLM or the lexicon fallback fired.
type SignalSource string

const (
	SourcePrimary  SignalSource = "primary"
	SourceFallback SignalSource = "fallback"
)

// Signal is a structured guess at intake fields extracted from one message.
// It is transient: it is never persisted directly, only its effect on the
// lead state survives the merge.
type Signal struct {
	TherapyArea TherapyArea  `json:"therapy_area,omitempty"`
	Complaint   string       `json:"complaint,omitempty"`
	Age         *int         `json:"age,omitempty"`
	Period      Period       `json:"period,omitempty"`
	Intent      Intent       `json:"intent"`
	Source      SignalSource `json:"source"`
	Confidence  float64      `json:"confidence"`
}

// Empty reports whether the signal carries no field values at all.
func (s Signal) Empty() bool {
	return s.TherapyArea == TherapyAreaNone &&
		s.Complaint == "" &&
		s.Age == nil &&
		s.Period == PeriodNone
}

const (
	minAge = 0
	maxAge = 120
)

// clampAge discards implausible ages instead of storing them.
func clampAge(age *int) *int {
	if age == nil || *age < minAge || *age > maxAge {
		return nil
	}
	return age
}
