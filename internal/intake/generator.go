package intake

import (
	"context"
	"errors"
	"strings"

	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

const sideQuestionSystemPrompt = `Você é a assistente virtual da Clínica Vida Plena, uma clínica de fonoaudiologia, psicologia e fisioterapia.
Responda a pergunta do paciente de forma breve, acolhedora e em português.
Informações da clínica:
- Endereço: Rua das Acácias, 120, Centro
- Horário: segunda a sexta, das 8h às 20h; sábado, das 8h às 12h
- Convênios: atendemos os principais convênios; confirme o seu na recepção
- Valores: informados na avaliação inicial, sem compromisso
Responda em no máximo duas frases. Não invente informações que não estão acima.`

// LLMReplyGenerator answers side questions with the configured model.
type LLMReplyGenerator struct {
	llm     LLMClient
	modelID string
	logger  *logging.Logger
}

var _ ReplyGenerator = (*LLMReplyGenerator)(nil)

func NewLLMReplyGenerator(llm LLMClient, modelID string, logger *logging.Logger) *LLMReplyGenerator {
	if llm == nil {
		panic("intake: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMReplyGenerator{
		llm:     llm,
		modelID: modelID,
		logger:  logger,
	}
}

// Generate answers the lead's question in the clinic persona. stageContext
// tells the model where the intake flow stands so the answer does not
// contradict the question that follows it.
func (g *LLMReplyGenerator) Generate(ctx context.Context, text string, stageContext string) (string, error) {
	system := []string{sideQuestionSystemPrompt}
	if stageContext != "" {
		system = append(system, "Contexto da conversa: "+stageContext)
	}

	resp, err := g.llm.Complete(ctx, LLMRequest{
		Model:       g.modelID,
		System:      system,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   256,
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", errors.New("intake: empty side question answer")
	}
	return answer, nil
}
