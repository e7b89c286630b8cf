package score_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/livequiz/internal/score"
)

func TestAward(t *testing.T) {
	const limit = 30 * time.Second

	tests := map[string]struct {
		elapsed time.Duration
		correct bool
		want    int
	}{
		"instant correct answer earns the maximum": {
			elapsed: 0,
			correct: true,
			want:    1000,
		},
		"correct answer at the limit earns the minimum": {
			elapsed: 30 * time.Second,
			correct: true,
			want:    500,
		},
		"correct answer half way earns the mid point": {
			elapsed: 15 * time.Second,
			correct: true,
			want:    750,
		},
		"points are floored": {
			elapsed: 10 * time.Second,
			correct: true,
			want:    833,
		},
		"late answers are clamped to the minimum": {
			elapsed: 45 * time.Second,
			correct: true,
			want:    500,
		},
		"wrong answers earn nothing however fast": {
			elapsed: 0,
			correct: false,
			want:    0,
		},
		"wrong answers earn nothing at the limit": {
			elapsed: 30 * time.Second,
			correct: false,
			want:    0,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, score.Award(tt.elapsed, limit, tt.correct))
		})
	}
}

func TestRaw_Monotonic(t *testing.T) {
	const limit = 20 * time.Second

	prev := score.Raw(0, limit)
	for e := time.Second; e <= limit; e += time.Second {
		cur := score.Raw(e, limit)
		assert.True(t, cur.LessThanOrEqual(prev), "points should never grow with elapsed time (at %s)", e)
		prev = cur
	}
}
