package intake

import (
	"context"
	"fmt"

	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// Publisher enqueues intake jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("intake: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes a ProcessMessage job. The lead id doubles as the
// message group so a lead's messages stay ordered on FIFO queues.
func (p *Publisher) EnqueueMessage(ctx context.Context, jobID string, req MessageRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(jobID, req)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, req.LeadID, body); err != nil {
		return fmt.Errorf("intake: failed to enqueue job: %w", err)
	}

	p.logger.Debug("intake job enqueued", "job_id", payload.ID, "lead_id", req.LeadID)
	return nil
}
