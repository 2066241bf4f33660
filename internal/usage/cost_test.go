// SPDX-License-Identifier: MIT

package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

func TestCostCents(t *testing.T) {
	rates := DefaultRates()

	t.Run("base rate per provider", func(t *testing.T) {
		assert.Equal(t, 30, CostCents(rates, model.ProviderGoogle, 10, 2, 0.9))
		assert.Equal(t, 20, CostCents(rates, model.ProviderAssemblyAI, 10, 2, 0.9))
	})

	t.Run("speaker surcharge beyond two", func(t *testing.T) {
		// 10 min * 3c = 30, +10% for the third speaker.
		assert.Equal(t, 33, CostCents(rates, model.ProviderGoogle, 10, 3, 0.9))
		// +20% for four speakers.
		assert.Equal(t, 36, CostCents(rates, model.ProviderGoogle, 10, 4, 0.9))
		// One speaker is not a discount.
		assert.Equal(t, 30, CostCents(rates, model.ProviderGoogle, 10, 1, 0.9))
	})

	t.Run("low confidence surcharge", func(t *testing.T) {
		assert.Equal(t, 36, CostCents(rates, model.ProviderGoogle, 10, 2, 0.79))
		// Exactly 0.8 pays no surcharge.
		assert.Equal(t, 30, CostCents(rates, model.ProviderGoogle, 10, 2, 0.8))
		// Unknown confidence (zero) pays no surcharge.
		assert.Equal(t, 30, CostCents(rates, model.ProviderGoogle, 10, 2, 0))
	})

	t.Run("surcharges stack", func(t *testing.T) {
		// 30 * 1.1 * 1.2 = 39.6 -> 40
		assert.Equal(t, 40, CostCents(rates, model.ProviderGoogle, 10, 3, 0.5))
	})

	t.Run("zero minutes is free", func(t *testing.T) {
		assert.Equal(t, 0, CostCents(rates, model.ProviderGoogle, 0, 2, 0.9))
		assert.Equal(t, 0, CostCents(rates, model.ProviderGoogle, -5, 2, 0.9))
	})
}
