package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

var (
	// ErrQuotaExceeded matches every *ExceededError.
	ErrQuotaExceeded = errors.New("monthly quota exceeded")
	// ErrStorage wraps ledger failures when the enforcer fails closed.
	ErrStorage = errors.New("usage ledger unavailable")
)

// ExceededError is returned when a principal has used its whole monthly
// allowance. No usage is recorded for the denied request.
type ExceededError struct {
	Used       int
	Limit      int
	Plan       models.Plan
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d of %d used on %s plan, resets %s",
		e.Used, e.Limit, e.Plan, e.ResetAt.Format(time.RFC3339))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
