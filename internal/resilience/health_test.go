package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTracker(threshold int, reset time.Duration) (*HealthTracker, *time.Time) {
	now := time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)
	h := NewHealthTracker(HealthConfig{FailureThreshold: threshold, ResetTimeout: reset})
	h.nowFunc = func() time.Time { return now }
	return h, &now
}

func TestHealthTracker_OpensAfterThreshold(t *testing.T) {
	h, _ := newTestTracker(3, time.Minute)
	boom := errors.New("boom")

	assert.Equal(t, CircuitClosed, h.Record(boom))
	assert.Equal(t, CircuitClosed, h.Record(boom))
	assert.Equal(t, CircuitOpen, h.Record(boom))
	assert.Equal(t, 3, h.ConsecutiveFailures())
}

func TestHealthTracker_SuccessCloses(t *testing.T) {
	h, _ := newTestTracker(1, time.Minute)

	h.Record(errors.New("boom"))
	assert.Equal(t, CircuitOpen, h.State())

	assert.Equal(t, CircuitClosed, h.Record(nil))
	assert.Equal(t, 0, h.ConsecutiveFailures())
}

func TestHealthTracker_HalfOpenAfterReset(t *testing.T) {
	h, now := newTestTracker(1, time.Minute)

	h.Record(errors.New("boom"))
	assert.Equal(t, CircuitOpen, h.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, h.State())

	// A failure while half-open reopens immediately.
	assert.Equal(t, CircuitOpen, h.Record(errors.New("again")))
}

func TestHealthTracker_OnStateChange(t *testing.T) {
	var transitions []string
	h := NewHealthTracker(HealthConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	h.Record(errors.New("boom"))
	h.Record(nil)
	h.Reset()

	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestServiceHealth_GetIsStable(t *testing.T) {
	sh := NewServiceHealth(DefaultHealthConfig())

	a := sh.Get("openai")
	assert.Same(t, a, sh.Get("openai"))
	assert.NotSame(t, a, sh.Get("glm"))

	states := sh.States()
	assert.Len(t, states, 2)
	assert.Equal(t, CircuitClosed, states["openai"])
}

func TestHealthConfigFrom(t *testing.T) {
	cfg := HealthConfigFrom(0, 0)
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)

	cfg = HealthConfigFrom(5, 10)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.ResetTimeout)
}
