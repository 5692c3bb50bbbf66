package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
)

func testEngine() *Engine {
	return NewEngine(config.DefaultPolicy())
}

func TestDecisionDeltas(t *testing.T) {
	e := testEngine()
	assert.Equal(t, 0.05, e.ApproveDelta())
	assert.Equal(t, -0.10, e.RejectDelta())
	assert.Equal(t, 0.01, e.AutoApproveDelta())
	assert.Equal(t, -0.20, e.RevertDelta())
}

func TestOutcomeDeltaScaling(t *testing.T) {
	e := testEngine()

	cases := []struct {
		score float64
		want  float64
	}{
		{1.0, 0.15},   // perfect outcome, full positive delta
		{0.0, -0.15},  // total failure, full negative delta
		{0.5, 0.0},    // neutral outcome, no change
		{0.75, 0.075}, // halfway positive
		{0.25, -0.075},
	}
	for _, tc := range cases {
		got, err := e.OutcomeDelta(tc.score)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 1e-12, "success score %v", tc.score)
	}
}

func TestOutcomeDeltaRejectsOutOfRange(t *testing.T) {
	e := testEngine()
	for _, s := range []float64{-0.1, 1.1, 2} {
		_, err := e.OutcomeDelta(s)
		require.Error(t, err)
		assert.Equal(t, errors.ValidationFailed, errors.Code(err))
	}
}

func TestApplyClamps(t *testing.T) {
	e := testEngine()
	assert.Equal(t, 1.0, e.Apply(0.98, 0.05))
	assert.Equal(t, 0.0, e.Apply(0.05, -0.2))
	assert.InDelta(t, 0.55, e.Apply(0.5, 0.05), 1e-12)
}

func TestReplayReconstructs(t *testing.T) {
	entries := []core.TrustHistoryEntry{
		{PreviousScore: 0.10, NewScore: 0.15},
		{PreviousScore: 0.15, NewScore: 0.05},
		{PreviousScore: 0.05, NewScore: 0.20},
	}
	score, err := Replay(0.10, entries)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, score, ReplayEpsilon)
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	entries := []core.TrustHistoryEntry{
		{PreviousScore: 0.10, NewScore: 0.15},
		{PreviousScore: 0.30, NewScore: 0.35}, // gap
	}
	_, err := Replay(0.10, entries)
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}

func TestReplayEmptyHistory(t *testing.T) {
	score, err := Replay(0.10, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.10, score)
}
