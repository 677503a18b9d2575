package service

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/sale-promotion/internal/payment"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrForbidden             = errors.New("draft not owned by caller")
	ErrDraftNotFound         = errors.New("draft not found")
	ErrDraftNotActive        = errors.New("draft is not active")
	ErrProcessor             = payment.ErrProcessor
	ErrEventNotFound         = errors.New("event not found")
	ErrEventAlreadyProcessed = errors.New("event already processed")
	ErrReplayConflict        = errors.New("event replay already in progress")
	ErrFinalization          = errors.New("finalization failed")
)

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// FinalizationError 标记账本条目出错，等待人工 replay
type FinalizationError struct {
	EventID string
	Step    string
	Err     error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalize %s at %s: %v", e.EventID, e.Step, e.Err)
}

func (e *FinalizationError) Unwrap() error { return e.Err }

func (e *FinalizationError) Is(target error) bool { return target == ErrFinalization }
