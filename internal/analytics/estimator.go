// Package analytics provides holder-distribution estimates for a token.
//
// The only implementation today is a pseudo-random stand-in for real on-chain
// analytics; values fall in fixed bands and change on every call.
package analytics

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/songzhibin97/tokenlens/internal/models"
)

const (
	WhaleHigh   = "High"
	WhaleMedium = "Medium"
	WhaleLow    = "Low"

	minHoldersPct = 20
	maxHoldersPct = 50
)

// Estimate is a holder concentration and whale activity reading.
type Estimate struct {
	TopHoldersPct int
	WhaleActivity string
}

// Estimator produces holder analytics for a resolved token.
type Estimator interface {
	Estimate(ctx context.Context, res models.Resolution) Estimate
}

// RandomEstimator draws values from fixed bands.
type RandomEstimator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomEstimator(seed uint64) *RandomEstimator {
	return &RandomEstimator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (e *RandomEstimator) Estimate(_ context.Context, _ models.Resolution) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	holders := minHoldersPct + e.rng.IntN(maxHoldersPct-minHoldersPct+1)

	whale := WhaleLow
	switch {
	case e.rng.Float64() > 0.6:
		whale = WhaleHigh
	case e.rng.Float64() > 0.3:
		whale = WhaleMedium
	}

	return Estimate{TopHoldersPct: holders, WhaleActivity: whale}
}

var _ Estimator = (*RandomEstimator)(nil)
