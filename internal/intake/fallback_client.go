package intake

import (
	"context"
	"log/slog"
)

// FallbackLLMClient chains two model providers behind the single LLMClient
// interface the pipeline consumes. Every completion goes to the primary
// first; the backup only sees traffic when the primary errors, so extraction
// and summarization keep working through a provider outage. Which provider
// answered is visible only in the logs.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *slog.Logger
}

// NewFallbackLLMClient wires the provider pair. A nil fallback leaves the
// primary's errors to surface directly, which the callers already tolerate
// (the extractor degrades to the lexicon, the summarizer skips).
func NewFallbackLLMClient(primary, fallback LLMClient, logger *slog.Logger) *FallbackLLMClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackLLMClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Complete runs the request against the primary provider and retries once
// against the backup when the primary errors.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary model failed for intake completion",
		"error", err.Error(),
		"backup_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return LLMResponse{}, err
	}

	backupResp, backupErr := c.fallback.Complete(ctx, req)
	if backupErr != nil {
		c.logger.Error("backup model failed as well, completion lost",
			"primary_error", err.Error(),
			"backup_error", backupErr.Error(),
		)
		return LLMResponse{}, backupErr
	}

	c.logger.Info("backup model answered after primary failure")
	return backupResp, nil
}
