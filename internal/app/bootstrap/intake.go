package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/vidaplena/intake-ai-platform/internal/config"
	"github.com/vidaplena/intake-ai-platform/internal/intake"
	"github.com/vidaplena/intake-ai-platform/internal/observability/metrics"
	"github.com/vidaplena/intake-ai-platform/internal/scheduling"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// BuildLLMClient assembles the configured model clients: Bedrock primary,
// Gemini fallback. Returns nil when neither is configured, which downgrades
// extraction to the deterministic path and summaries to raw tails.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (intake.LLMClient, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}

	var primary intake.LLMClient
	if cfg.BedrockModelID != "" {
		primary = intake.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		logger.Info("bedrock LLM client configured", "model", cfg.BedrockModelID)
	}

	var gemini *intake.GeminiLLMClient
	if cfg.GeminiAPIKey != "" {
		var err error
		gemini, err = intake.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		logger.Info("gemini LLM client configured", "model", cfg.GeminiModel)
	}

	cleanup := func() {
		if gemini != nil {
			gemini.Close()
		}
	}

	switch {
	case primary != nil && gemini != nil:
		return intake.NewFallbackLLMClient(primary, gemini, logger.Logger), cleanup, nil
	case primary != nil:
		return primary, cleanup, nil
	case gemini != nil:
		return gemini, cleanup, nil
	default:
		logger.Warn("no LLM configured; extraction will use the deterministic path only")
		return nil, cleanup, nil
	}
}

// ModelID picks the model identifier passed on each LLM request.
func ModelID(cfg *appconfig.Config) string {
	if cfg.BedrockModelID != "" {
		return cfg.BedrockModelID
	}
	return cfg.GeminiModel
}

// BuildIntakeEngine wires the full message pipeline from config. The returned
// cleanup closes owned clients; the caller owns db and must close it.
func BuildIntakeEngine(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, db *sql.DB, m *metrics.IntakeMetrics, logger *logging.Logger) (*intake.Engine, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		return nil, nil, fmt.Errorf("bootstrap: redis is required for lead state")
	}
	states := intake.NewRedisStateStore(redisClient, nil)

	var turns intake.TurnStore
	if db != nil {
		turns = intake.NewPostgresTurnStore(db)
	} else {
		logger.Warn("no database configured; conversation turns are in-memory only")
		turns = intake.NewMemoryTurnStore()
	}

	llm, llmCleanup, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	modelID := ModelID(cfg)

	history := intake.NewHistoryLoader(turns, states, llm, modelID, logger).WithMetrics(m)
	if db != nil {
		history = history.WithAppointmentChecker(intake.NewPostgresAppointmentChecker(db))
	}

	extractor := intake.NewExtractor(llm, modelID, logger)

	var slots scheduling.Searcher
	if cfg.SchedulingBaseURL != "" {
		slots = scheduling.NewClient(cfg.SchedulingBaseURL,
			scheduling.WithHTTPClient(&http.Client{Timeout: cfg.SchedulingTimeout}),
			scheduling.WithLogger(logger),
		)
	} else {
		logger.Warn("no scheduling service configured; ready leads get the pending script")
	}

	var generator intake.ReplyGenerator
	if llm != nil {
		generator = intake.NewLLMReplyGenerator(llm, modelID, logger)
	}

	responder := intake.NewResponder(slots, generator, logger).WithMetrics(m)
	engine := intake.NewEngine(states, history, turns, extractor, responder, m, logger)

	cleanup := func() {
		if llmCleanup != nil {
			llmCleanup()
		}
		_ = redisClient.Close()
	}
	return engine, cleanup, nil
}
