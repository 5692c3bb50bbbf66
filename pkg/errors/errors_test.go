package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndCode(t *testing.T) {
	err := New(InvalidTransition, "proposal is not pending")
	require.Error(t, err)
	assert.Equal(t, "proposal is not pending", err.Error())
	assert.Equal(t, InvalidTransition, Code(err))
}

func TestWrapPreservesChain(t *testing.T) {
	base := fmt.Errorf("disk full")
	err := Wrap(base, TransientFailure, "commit failed")
	require.Error(t, err)
	assert.Equal(t, "commit failed: disk full", err.Error())
	assert.Equal(t, TransientFailure, Code(err))
	assert.True(t, stderrors.Is(err, base) || stderrors.Unwrap(err) == base)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, Unknown, "ignored"))
	assert.NoError(t, WithFields(nil, Fields{"k": "v"}))
}

func TestWithFields(t *testing.T) {
	err := WithFields(New(ResourceNotFound, "capability not found"), Fields{
		"capability_id": "abc",
	})
	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, ResourceNotFound, e.Code())
	assert.Equal(t, "abc", e.Fields()["capability_id"])
	assert.Contains(t, err.Error(), "capability_id=abc")
}

func TestWithFieldsMergesExisting(t *testing.T) {
	err := WithFields(New(ConflictDetected, "version mismatch"), Fields{"a": 1})
	err = WithFields(err, Fields{"b": 2})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, 1, e.Fields()["a"])
	assert.Equal(t, 2, e.Fields()["b"])
	assert.Equal(t, ConflictDetected, e.Code())
}

func TestWithFieldsForeignError(t *testing.T) {
	err := WithFields(fmt.Errorf("plain"), Fields{"k": "v"})
	assert.Equal(t, Unknown, Code(err))
}

func TestIsMatchesOnCode(t *testing.T) {
	a := New(InvalidTransition, "one")
	b := New(InvalidTransition, "two")
	c := New(ResourceNotFound, "three")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestHasCode(t *testing.T) {
	err := Wrap(New(ConflictDetected, "cas failed"), TransientFailure, "retries exhausted")
	assert.True(t, HasCode(err, TransientFailure))
	assert.False(t, HasCode(err, ResourceNotFound))
	assert.False(t, HasCode(nil, TransientFailure))
	assert.Equal(t, Unknown, Code(fmt.Errorf("foreign")))
}

func TestCheckContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, CheckContext(ctx, "submit"))

	cancel()
	err := CheckContext(ctx, "submit")
	require.Error(t, err)
	assert.Equal(t, Canceled, Code(err))
}
