package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, groupID string, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// queuePayload is one intake job on the wire.
type queuePayload struct {
	ID          string         `json:"id"`
	Message     MessageRequest `json:"message"`
	TrackStatus bool           `json:"track_status"`
}

func encodePayload(jobID string, req MessageRequest) (queuePayload, string, error) {
	payload := queuePayload{
		ID:          jobID,
		Message:     req,
		TrackStatus: true,
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("intake: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
