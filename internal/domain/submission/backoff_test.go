package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	t.Run("doubles per attempt without jitter", func(t *testing.T) {
		p := BackoffPolicy{BaseDelay: time.Second, MaxDelay: time.Hour, Jitter: 0}
		assert.Equal(t, 2*time.Second, p.Delay(1))
		assert.Equal(t, 4*time.Second, p.Delay(2))
		assert.Equal(t, 8*time.Second, p.Delay(3))
		assert.Equal(t, 16*time.Second, p.Delay(4))
	})

	t.Run("caps at the maximum interval", func(t *testing.T) {
		p := BackoffPolicy{BaseDelay: time.Minute, MaxDelay: 5 * time.Minute, Jitter: 0}
		assert.Equal(t, 5*time.Minute, p.Delay(10))
		assert.Equal(t, 5*time.Minute, p.Delay(60))
	})

	t.Run("jitter stays within the configured spread", func(t *testing.T) {
		p := BackoffPolicy{BaseDelay: time.Second, MaxDelay: time.Hour, Jitter: 0.2}
		for i := 0; i < 100; i++ {
			d := p.Delay(3)
			assert.GreaterOrEqual(t, d, time.Duration(float64(8*time.Second)*0.8))
			assert.LessOrEqual(t, d, time.Duration(float64(8*time.Second)*1.2))
		}
	})

	t.Run("falls back to defaults for zero values", func(t *testing.T) {
		p := BackoffPolicy{}
		d := p.Delay(1)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, DefaultMaxDelay+time.Duration(float64(DefaultMaxDelay)*DefaultJitter))
	})
}
