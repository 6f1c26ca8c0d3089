package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twinsim/internal/clinical"
	"twinsim/internal/metrics"
	"twinsim/internal/scoring"
	"twinsim/internal/session"
)

func newIdleSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(clinical.Baseline{
		Gender: "Female", Age: 52, SmokingHistory: "never",
		BMI: 29, HbA1c: 6.9, Glucose: 155,
	}, session.Options{Scoring: scoring.ClientFunc(func(context.Context, scoring.Request) (scoring.Score, error) {
		return scoring.Score{OriginalRisk: 0.5, NewRisk: 0.4}, nil
	})})
	require.NoError(t, err)
	return s
}

func TestSessionSlot_Swap(t *testing.T) {
	first := newIdleSession(t)
	slot := &sessionSlot{current: first}

	second := newIdleSession(t)
	old, ok := slot.swap(second)
	require.True(t, ok)
	assert.Same(t, first, old)
	old.Close()

	before := testutil.ToFloat64(metrics.ActiveSessions)
	slot.close()
	assert.Equal(t, before-1, testutil.ToFloat64(metrics.ActiveSessions))
	slot.close()
	assert.Equal(t, before-1, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestSessionSlot_SwapAfterCloseClosesNewSession(t *testing.T) {
	slot := &sessionSlot{current: newIdleSession(t)}
	slot.close()

	before := testutil.ToFloat64(metrics.ActiveSessions)
	late := newIdleSession(t)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ActiveSessions))

	old, ok := slot.swap(late)
	assert.False(t, ok)
	assert.Nil(t, old)
	assert.Equal(t, before, testutil.ToFloat64(metrics.ActiveSessions))
}
