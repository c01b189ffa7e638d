package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// recentTurnsForExtraction is how many trailing turns accompany the message
// on the primary extraction call.
const recentTurnsForExtraction = 5

// extractionSystemPrompt instructs the model to return strict JSON. Replies
// arrive in Portuguese; field values are normalized after parsing either way.
const extractionSystemPrompt = `Você é um extrator de dados de triagem para uma clínica de terapias.
Analise a última mensagem do paciente considerando o histórico recente e responda SOMENTE com um objeto JSON, sem texto adicional:
{"therapy_area": "fonoaudiologia|psicologia|fisioterapia ou null",
 "complaint": "queixa principal em poucas palavras ou null",
 "age": idade do paciente em anos ou null,
 "period": "manha|tarde|noite ou null",
 "intent": "general|change_subject",
 "confidence": número entre 0 e 1}
Use "change_subject" quando a mensagem for sobre preço, endereço, convênio ou outro assunto lateral.
Nunca invente valores que não estejam na conversa.`

// ---------- fallback lexicon ----------

// therapyAreaAliases maps patient-facing terms to canonical areas. Ordered by
// specificity so longer phrases win over short prefixes.
var therapyAreaAliases = []struct {
	pattern string
	area    TherapyArea
}{
	{"fonoaudiologia", TherapyAreaSpeech},
	{"fonoaudiologo", TherapyAreaSpeech},
	{"fonoaudióloga", TherapyAreaSpeech},
	{"fonoaudiólogo", TherapyAreaSpeech},
	{"terapia da fala", TherapyAreaSpeech},
	{"terapia de fala", TherapyAreaSpeech},
	{"fonoterapia", TherapyAreaSpeech},
	{"fono", TherapyAreaSpeech},
	{"psicologia", TherapyAreaPsychology},
	{"psicologa", TherapyAreaPsychology},
	{"psicóloga", TherapyAreaPsychology},
	{"psicologo", TherapyAreaPsychology},
	{"psicólogo", TherapyAreaPsychology},
	{"psicoterapia", TherapyAreaPsychology},
	{"saude mental", TherapyAreaPsychology},
	{"saúde mental", TherapyAreaPsychology},
	{"psico", TherapyAreaPsychology},
	{"fisioterapia", TherapyAreaPhysiotherapy},
	{"fisioterapeuta", TherapyAreaPhysiotherapy},
	{"fisio", TherapyAreaPhysiotherapy},
}

var sideSubjectKeywords = []string{
	"preço", "preco", "valor", "quanto custa", "quanto fica", "quanto é",
	"endereço", "endereco", "onde fica", "localização", "localizacao",
	"convênio", "convenio", "plano de saúde", "plano de saude", "unimed",
	"estacionamento", "forma de pagamento", "parcel",
}

var (
	agePatternRE   = regexp.MustCompile(`(?i)(\d{1,3})\s*anos`)
	ageShortRE     = regexp.MustCompile(`(?i)\b(?:tem|tenho|idade[:\s]+)\s*(\d{1,3})\b`)
	bareNumberRE   = regexp.MustCompile(`^\s*(\d{1,3})\s*$`)
	periodPatterns = []struct {
		keyword string
		period  Period
	}{
		{"manhã", PeriodMorning},
		{"manha", PeriodMorning},
		{"de manha", PeriodMorning},
		{"cedo", PeriodMorning},
		{"tarde", PeriodAfternoon},
		{"noite", PeriodEvening},
		{"noturno", PeriodEvening},
		{"fim do dia", PeriodEvening},
	}
)

// Extractor turns free-text messages into confidence-scored signals via a
// primary LLM pass with a deterministic lexicon fallback. The fallback is a
// full recovery path, not best-effort: extraction never returns an error to
// the pipeline.
type Extractor struct {
	llm     LLMClient
	modelID string
	logger  *logging.Logger
}

func NewExtractor(llm LLMClient, modelID string, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{llm: llm, modelID: modelID, logger: logger}
}

// Extract runs the primary pass and falls back to the lexicon on error or an
// empty primary result. The returned signal's Source reports which path fired.
func (e *Extractor) Extract(ctx context.Context, text string, recent []Turn) Signal {
	if e.llm != nil {
		sig, err := e.extractPrimary(ctx, text, recent)
		if err == nil && !sig.Empty() {
			return sig
		}
		if err != nil {
			e.logger.Warn("primary extraction failed, using lexicon fallback", "error", err)
		}
	}
	return e.extractFallback(text, recent)
}

func (e *Extractor) extractPrimary(ctx context.Context, text string, recent []Turn) (Signal, error) {
	messages := make([]ChatMessage, 0, len(recent)+1)
	start := 0
	if len(recent) > recentTurnsForExtraction {
		start = len(recent) - recentTurnsForExtraction
	}
	for _, turn := range recent[start:] {
		messages = append(messages, ChatMessage{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: text})

	resp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.modelID,
		System:      []string{extractionSystemPrompt},
		Messages:    messages,
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		return Signal{}, err
	}

	return parsePrimarySignal(resp.Text)
}

// parsePrimarySignal decodes the model's JSON reply into a normalized signal.
func parsePrimarySignal(raw string) (Signal, error) {
	raw = stripCodeFences(raw)
	if strings.TrimSpace(raw) == "" {
		return Signal{}, errors.New("intake: empty extraction response")
	}

	var decoded struct {
		TherapyArea *string  `json:"therapy_area"`
		Complaint   *string  `json:"complaint"`
		Age         *int     `json:"age"`
		Period      *string  `json:"period"`
		Intent      string   `json:"intent"`
		Confidence  *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Signal{}, fmt.Errorf("intake: extraction response parse: %w", err)
	}

	sig := Signal{Intent: IntentGeneral, Source: SourcePrimary, Confidence: 0.9}
	if decoded.TherapyArea != nil {
		sig.TherapyArea = NormalizeTherapyArea(*decoded.TherapyArea)
	}
	if decoded.Complaint != nil {
		complaint := strings.TrimSpace(*decoded.Complaint)
		if !strings.EqualFold(complaint, "null") {
			sig.Complaint = complaint
		}
	}
	sig.Age = clampAge(decoded.Age)
	if decoded.Period != nil {
		sig.Period = NormalizePeriod(*decoded.Period)
	}
	if Intent(decoded.Intent) == IntentChangeSubject {
		sig.Intent = IntentChangeSubject
	}
	if decoded.Confidence != nil && *decoded.Confidence >= 0 && *decoded.Confidence <= 1 {
		sig.Confidence = *decoded.Confidence
	}
	return sig, nil
}

// extractFallback is the deterministic path: keyword matching against the
// therapy-area lexicon, an age pattern, and period keywords.
func (e *Extractor) extractFallback(text string, recent []Turn) Signal {
	lower := strings.ToLower(text)
	sig := Signal{Intent: IntentGeneral, Source: SourceFallback, Confidence: 0.4}

	for _, alias := range therapyAreaAliases {
		if strings.Contains(lower, alias.pattern) {
			sig.TherapyArea = alias.area
			break
		}
	}

	if m := agePatternRE.FindStringSubmatch(lower); len(m) == 2 {
		sig.Age = clampAge(atoiPtr(m[1]))
	} else if m := ageShortRE.FindStringSubmatch(lower); len(m) == 2 {
		sig.Age = clampAge(atoiPtr(m[1]))
	} else if lastAssistantAsked(recent, StageAskAge) {
		if m := bareNumberRE.FindStringSubmatch(lower); len(m) == 2 {
			sig.Age = clampAge(atoiPtr(m[1]))
		}
	}

	for _, p := range periodPatterns {
		if strings.Contains(lower, p.keyword) {
			sig.Period = p.period
			break
		}
	}

	for _, kw := range sideSubjectKeywords {
		if strings.Contains(lower, kw) {
			sig.Intent = IntentChangeSubject
			break
		}
	}

	// A short free-text reply right after the complaint question is the
	// complaint itself.
	if sig.Complaint == "" && sig.Intent == IntentGeneral && lastAssistantAsked(recent, StageAskComplaint) {
		reply := strings.TrimSpace(text)
		if reply != "" && len(reply) < 200 && !bareNumberRE.MatchString(reply) {
			sig.Complaint = reply
		}
	}

	return sig
}

// lastAssistantAsked reports whether the most recent assistant turn was the
// scripted question for the given stage.
func lastAssistantAsked(recent []Turn, stage Stage) bool {
	script, ok := stageScripts[stage]
	if !ok {
		return false
	}
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role != ChatRoleAssistant {
			continue
		}
		return strings.Contains(recent[i].Text, script)
	}
	return false
}

func stripCodeFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
	}
	return strings.TrimSpace(raw)
}

func atoiPtr(s string) *int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
		n = n*10 + int(r-'0')
	}
	return &n
}
