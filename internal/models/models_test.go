package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepositRemaining(t *testing.T) {
	dep := &Deposit{Amount: 30000, CapturedAmount: 10000}
	assert.Equal(t, int64(20000), dep.Remaining())
}

func TestDepositTransitions(t *testing.T) {
	assert.True(t, CanTransitionDeposit(DepositStatusNone, DepositStatusPending))
	assert.True(t, CanTransitionDeposit(DepositStatusPending, DepositStatusHeld))
	assert.True(t, CanTransitionDeposit(DepositStatusPending, DepositStatusPreauthFailed))
	assert.True(t, CanTransitionDeposit(DepositStatusHeld, DepositStatusPartialCaptured))
	assert.True(t, CanTransitionDeposit(DepositStatusHeld, DepositStatusVoid))
	assert.True(t, CanTransitionDeposit(DepositStatusVoidFailed, DepositStatusVoid))
	assert.True(t, CanTransitionDeposit(DepositStatusCaptureFailed, DepositStatusCaptured))

	// A declined capture leaves the hold releasable.
	assert.True(t, CanTransitionDeposit(DepositStatusCaptureFailed, DepositStatusVoid))
	assert.True(t, CanTransitionDeposit(DepositStatusCaptureFailed, DepositStatusVoidFailed))

	// A failed pre-auth admits a fresh attempt, nothing else.
	assert.True(t, CanTransitionDeposit(DepositStatusPreauthFailed, DepositStatusPending))
	assert.False(t, CanTransitionDeposit(DepositStatusPreauthFailed, DepositStatusHeld))

	// Redelivered callbacks re-enter HELD.
	assert.True(t, CanTransitionDeposit(DepositStatusHeld, DepositStatusHeld))

	// Terminal statuses admit nothing.
	for _, terminal := range []string{DepositStatusCaptured, DepositStatusVoid} {
		for _, next := range []string{DepositStatusHeld, DepositStatusCaptured, DepositStatusVoid, DepositStatusPending} {
			assert.False(t, CanTransitionDeposit(terminal, next),
				"%s -> %s must be rejected", terminal, next)
		}
	}

	// A hold with captures can never be voided.
	assert.False(t, CanTransitionDeposit(DepositStatusPartialCaptured, DepositStatusVoid))
}

func TestCanCaptureAndVoid(t *testing.T) {
	assert.True(t, CanCapture(DepositStatusHeld))
	assert.True(t, CanCapture(DepositStatusPartialCaptured))
	assert.True(t, CanCapture(DepositStatusCaptureFailed))
	assert.False(t, CanCapture(DepositStatusPending))
	assert.False(t, CanCapture(DepositStatusCaptured))
	assert.False(t, CanCapture(DepositStatusVoid))

	assert.True(t, CanVoid(DepositStatusHeld))
	assert.True(t, CanVoid(DepositStatusVoidFailed))
	assert.True(t, CanVoid(DepositStatusCaptureFailed))
	assert.False(t, CanVoid(DepositStatusPending))
	assert.False(t, CanVoid(DepositStatusPartialCaptured))
	assert.False(t, CanVoid(DepositStatusVoid))
}

func TestDepositPhases(t *testing.T) {
	assert.Equal(t, PhaseActive, DepositPhase(DepositStatusPending))
	assert.Equal(t, PhaseActive, DepositPhase(DepositStatusHeld))
	assert.Equal(t, PhaseActive, DepositPhase(DepositStatusPartialCaptured))
	assert.Equal(t, PhaseTerminal, DepositPhase(DepositStatusCaptured))
	assert.Equal(t, PhaseTerminal, DepositPhase(DepositStatusVoid))
	assert.Equal(t, PhaseFailed, DepositPhase(DepositStatusPreauthFailed))
	assert.Equal(t, PhaseFailed, DepositPhase(DepositStatusCaptureFailed))
	assert.Equal(t, PhaseFailed, DepositPhase(DepositStatusVoidFailed))
}

func TestDepositRetryable(t *testing.T) {
	assert.True(t, DepositRetryable(DepositStatusCaptureFailed))
	assert.True(t, DepositRetryable(DepositStatusVoidFailed))
	assert.False(t, DepositRetryable(DepositStatusPreauthFailed))
	assert.False(t, DepositRetryable(DepositStatusHeld))
}
