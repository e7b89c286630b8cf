// Package score implements the time-decayed scoring of a vote.
package score

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxPoints = 1000
	MinPoints = 500
)

var (
	maxPoints = decimal.NewFromInt(MaxPoints)
	pointSpan = decimal.NewFromInt(MaxPoints - MinPoints)
)

// Raw returns the points a correct answer given after elapsed is worth, decaying linearly from
// MaxPoints at the start of the question to MinPoints at the limit. Answers at or past the limit
// are worth MinPoints.
func Raw(elapsed, limit time.Duration) decimal.Decimal {
	if limit <= 0 || elapsed >= limit {
		return decimal.NewFromInt(MinPoints)
	}
	if elapsed < 0 {
		elapsed = 0
	}

	ratio := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(limit)))
	return maxPoints.Sub(ratio.Mul(pointSpan))
}

// Award returns the whole points granted for a vote, 0 when the answer is wrong.
func Award(elapsed, limit time.Duration, correct bool) int {
	if !correct {
		return 0
	}

	return int(Raw(elapsed, limit).Floor().IntPart())
}
