package intake

import (
	"strings"
	"time"
)

// emotionalMarkers is the fixed list of distress cues. Matching is substring
// based over the lowercased message, so inflections like "desesperada" or
// "ansiosa" hit the shorter stems.
var emotionalMarkers = []string{
	"desesper",
	"medo",
	"chorando",
	"choro",
	"chorar",
	"ansiedade",
	"ansios",
	"não aguento",
	"nao aguento",
	"não suporto",
	"nao suporto",
	"pânico",
	"panico",
	"sofrendo",
	"sofrimento",
	"angústia",
	"angustia",
	"crise",
	"depress",
}

// IsEmotional reports whether the message carries emotionally loaded language.
func IsEmotional(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range emotionalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// MergeSignal folds a new signal into the lead state. Pure: the input state
// is never mutated, callers persist the returned copy.
//
// Ordering is load-bearing: topic-switch and topic-return decisions must read
// the state's old therapy area before the shallow merge overwrites it.
func MergeSignal(state *LeadState, sig Signal, messageText string, now time.Time) *LeadState {
	next := state.Clone()
	next.ContextRestored = false

	emotional := IsEmotional(messageText)

	switch {
	case isTopicSwitch(next, sig, emotional):
		// Park the in-flight complaint so a return to this area within the
		// window does not have to re-ask it.
		if next.SavedEmotionalContexts == nil {
			next.SavedEmotionalContexts = make(map[TherapyArea]EmotionalSnapshot, 1)
		}
		next.SavedEmotionalContexts[next.TherapyArea] = EmotionalSnapshot{
			Complaint:   next.Complaint,
			TherapyArea: next.TherapyArea,
			SavedAt:     now,
		}
		next.Complaint = ""
		next.Age = nil
		next.Period = PeriodNone
		next.HasEmotionalContext = false

	case isTopicReturn(next, sig, now):
		snap := next.SavedEmotionalContexts[sig.TherapyArea]
		next.Complaint = snap.Complaint
		next.HasEmotionalContext = true
		next.ContextRestored = true
	}

	if emotional && (sig.Complaint != "" || next.Complaint != "") {
		next.HasEmotionalContext = true
	}

	// Shallow merge: new non-null values win, nulls never overwrite.
	if sig.TherapyArea != TherapyAreaNone {
		next.TherapyArea = sig.TherapyArea
	}
	if sig.Complaint != "" {
		next.Complaint = sig.Complaint
	}
	if sig.Age != nil {
		age := *sig.Age
		next.Age = &age
	}
	if sig.Period != PeriodNone {
		next.Period = sig.Period
	}

	next.Stage = DeriveStage(next)
	next.UpdatedAt = now
	return next
}

// isTopicSwitch: the signal names a different area while the state holds a
// complaint, and either side of the exchange is emotionally flagged.
func isTopicSwitch(state *LeadState, sig Signal, messageEmotional bool) bool {
	return sig.TherapyArea != TherapyAreaNone &&
		state.TherapyArea != TherapyAreaNone &&
		sig.TherapyArea != state.TherapyArea &&
		state.Complaint != "" &&
		(messageEmotional || state.HasEmotionalContext)
}

// isTopicReturn: the signal revisits an area with a fresh snapshot and no
// complaint is supplied by either the state or the signal.
func isTopicReturn(state *LeadState, sig Signal, now time.Time) bool {
	if sig.TherapyArea == TherapyAreaNone || state.Complaint != "" || sig.Complaint != "" {
		return false
	}
	snap, ok := state.SavedEmotionalContexts[sig.TherapyArea]
	if !ok {
		return false
	}
	return now.Sub(snap.SavedAt) < snapshotRestoreWindow
}
