package scheduler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"

	"orderdesk_backend/platform/apperr"
)

func TestAsTaskError(t *testing.T) {
	if asTaskError(nil) != nil {
		t.Fatal("nil must stay nil")
	}

	// Permanent domain failures are dropped instead of retried.
	for _, err := range []error{
		apperr.Validation("order has no phone number"),
		apperr.NotFound("store not found"),
		apperr.Precondition("store is suspended, not active"),
	} {
		mapped := asTaskError(err)
		if !errors.Is(mapped, asynq.SkipRetry) {
			t.Fatalf("expected SkipRetry for %v", err)
		}
	}

	// Transient failures keep their retry budget.
	for _, err := range []error{
		apperr.Unavailable("source returned 503"),
		fmt.Errorf("plain error"),
	} {
		mapped := asTaskError(err)
		if errors.Is(mapped, asynq.SkipRetry) {
			t.Fatalf("transient error mapped to SkipRetry: %v", err)
		}
	}
}
