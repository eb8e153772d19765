package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/songzhibin97/tokenlens/internal/models"
)

func TestRandomEstimator_Bands(t *testing.T) {
	est := NewRandomEstimator(42)
	ctx := context.Background()
	seen := map[string]bool{}

	for i := 0; i < 500; i++ {
		got := est.Estimate(ctx, models.Resolution{ID: "bitcoin"})
		assert.GreaterOrEqual(t, got.TopHoldersPct, 20)
		assert.LessOrEqual(t, got.TopHoldersPct, 50)
		assert.Contains(t, []string{WhaleHigh, WhaleMedium, WhaleLow}, got.WhaleActivity)
		seen[got.WhaleActivity] = true
	}

	assert.Len(t, seen, 3)
}

func TestRandomEstimator_SameSeedSameSequence(t *testing.T) {
	a := NewRandomEstimator(7)
	b := NewRandomEstimator(7)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Estimate(ctx, models.Resolution{}), b.Estimate(ctx, models.Resolution{}))
	}
}
