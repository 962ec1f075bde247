package herr_test

import (
	"errors"
	"testing"

	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	// GOAL: Verify errors.Is compares *Error values by Kind alone
	//
	// TEST SCENARIO: Wrap a cause under KindBusy → compare against the bare
	// ErrBusy sentinel → match regardless of Op/Msg/cause

	err := herr.Wrap("pairsetup.HandleM1", herr.KindBusy, errors.New("a pair setup is already running"))

	assert.True(t, errors.Is(err, herr.ErrBusy))
	assert.False(t, errors.Is(err, herr.ErrInvalidData))
}

func TestKindOfUnwrapsPlainErrors(t *testing.T) {
	assert.Equal(t, herr.KindUnknown, herr.KindOf(errors.New("boom")))
	assert.Equal(t, herr.KindInvalidData, herr.KindOf(herr.New("tlv8.Next", herr.KindInvalidData, "short item")))
}
