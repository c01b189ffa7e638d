package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackClientPrefersPrimary(t *testing.T) {
	primary := &fakeLLM{resp: LLMResponse{Text: "from primary"}}
	backup := &fakeLLM{resp: LLMResponse{Text: "from backup"}}
	c := NewFallbackLLMClient(primary, backup, discardSlog())

	resp, err := c.Complete(context.Background(), LLMRequest{Model: "model-x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from primary" {
		t.Fatalf("resp = %q, want the primary's answer", resp.Text)
	}
	if backup.calls != 0 {
		t.Errorf("backup must not be called when the primary succeeds, got %d calls", backup.calls)
	}
}

func TestFallbackClientRetriesOnPrimaryFailure(t *testing.T) {
	primary := &fakeLLM{err: errors.New("throttled")}
	backup := &fakeLLM{resp: LLMResponse{Text: "from backup"}}
	c := NewFallbackLLMClient(primary, backup, discardSlog())

	resp, err := c.Complete(context.Background(), LLMRequest{Model: "model-x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from backup" {
		t.Fatalf("resp = %q, want the backup's answer", resp.Text)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls: primary %d backup %d, want 1 and 1", primary.calls, backup.calls)
	}
}

func TestFallbackClientWithoutBackupSurfacesError(t *testing.T) {
	primaryErr := errors.New("throttled")
	c := NewFallbackLLMClient(&fakeLLM{err: primaryErr}, nil, discardSlog())

	_, err := c.Complete(context.Background(), LLMRequest{})
	if !errors.Is(err, primaryErr) {
		t.Fatalf("expected the primary's error, got %v", err)
	}
}

func TestFallbackClientBothProvidersFail(t *testing.T) {
	backupErr := errors.New("backup down too")
	c := NewFallbackLLMClient(&fakeLLM{err: errors.New("throttled")}, &fakeLLM{err: backupErr}, discardSlog())

	_, err := c.Complete(context.Background(), LLMRequest{})
	if !errors.Is(err, backupErr) {
		t.Fatalf("expected the backup's error, got %v", err)
	}
}
