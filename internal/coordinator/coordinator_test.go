package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateFeeUsesPercentageWhenAboveFloor(t *testing.T) {
	cfg := Config{FeeSatsPerVbyte: 10, FeePercentage: 0.01}

	assert.Equal(t, int64(100), cfg.EstimateFee(10000))
}

func TestEstimateFeeFallsBackToFloor(t *testing.T) {
	cfg := Config{FeeSatsPerVbyte: 10, FeePercentage: 0.01}

	// 0.01 * 500 = 5, below the 10 sat floor.
	assert.Equal(t, int64(10), cfg.EstimateFee(500))
}

func TestEstimateFeeZeroAmount(t *testing.T) {
	cfg := Config{FeeSatsPerVbyte: 10, FeePercentage: 0.01}

	assert.Equal(t, int64(10), cfg.EstimateFee(0))
}
