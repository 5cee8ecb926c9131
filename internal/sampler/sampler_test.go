package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rateOf(f float64) *float64 { return &f }

func TestSampleModeOffAlwaysSamples(t *testing.T) {
	d := Sample(nil, ModeOff, func() float64 { return 0.999 })
	assert.True(t, d.Sampled)
	assert.Empty(t, d.ShadowLogged)
}

func TestSampleModeOnDropsAboveRate(t *testing.T) {
	d := Sample(rateOf(0.5), ModeOn, func() float64 { return 0.9 })
	assert.False(t, d.Sampled)
	assert.Equal(t, 0.5, d.SamplingRate)
	assert.Equal(t, ModeOn, d.SamplingMode)

	d2 := Sample(rateOf(0.5), ModeOn, func() float64 { return 0.1 })
	assert.True(t, d2.Sampled)
}

func TestSampleModeShadowAlwaysLogsButAnnotates(t *testing.T) {
	dropped := Sample(rateOf(0.5), ModeShadow, func() float64 { return 0.9 })
	assert.True(t, dropped.Sampled)
	assert.Equal(t, "dropped", dropped.ShadowLogged)

	logged := Sample(rateOf(0.5), ModeShadow, func() float64 { return 0.1 })
	assert.True(t, logged.Sampled)
	assert.Equal(t, "logged", logged.ShadowLogged)
}

func TestDedupAddReturnsFalseOnRepeat(t *testing.T) {
	d := NewDedup()
	fp := Fingerprint("my_gate", "rule1", "true")
	assert.True(t, d.Add(fp))
	assert.False(t, d.Add(fp))
	assert.Equal(t, 1, d.Len())
}

func TestDedupResetClearsSet(t *testing.T) {
	d := NewDedup()
	fp := Fingerprint("my_gate", "rule1", "true")
	d.Add(fp)
	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.True(t, d.Add(fp))
}

func TestFingerprintDiffersByRuleID(t *testing.T) {
	fp1 := Fingerprint("gate", "rule1", "true")
	fp2 := Fingerprint("gate", "rule2", "true")
	assert.NotEqual(t, fp1, fp2)
}

func TestResetLoopStopsOnSignal(t *testing.T) {
	d := NewDedup()
	d.Add(Fingerprint("g", "r", "true"))
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		d.ResetLoop(5*time.Millisecond, stop)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, d.Len(), "ticker should have reset the set at least once")
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ResetLoop did not stop after signal")
	}
}
