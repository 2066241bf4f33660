// SPDX-License-Identifier: MIT

// Package usage owns the billing ledger: immutable UsageLog rows and
// the per-user counters they advance, written as one unit.
package usage

import (
	"math"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// Rates carries the per-provider price in cents per transcribed minute.
type Rates struct {
	GoogleCentsPerMin     int
	AssemblyAICentsPerMin int
	Currency              string
}

// DefaultRates mirrors the shipped price card.
func DefaultRates() Rates {
	return Rates{GoogleCentsPerMin: 3, AssemblyAICentsPerMin: 2, Currency: "TWD"}
}

func (r Rates) perMinute(p model.Provider) int {
	switch p {
	case model.ProviderGoogle:
		return r.GoogleCentsPerMin
	case model.ProviderAssemblyAI:
		return r.AssemblyAICentsPerMin
	default:
		return r.GoogleCentsPerMin
	}
}

// CostCents prices a transcription run. Diarization beyond two
// speakers adds 10% per extra speaker; low mean confidence (< 0.8)
// carries a 1.2x review surcharge.
func CostCents(r Rates, provider model.Provider, durationMinutes, speakerCount int, meanConfidence float64) int {
	if durationMinutes <= 0 {
		return 0
	}
	cost := float64(durationMinutes * r.perMinute(provider))
	if extra := speakerCount - 2; extra > 0 {
		cost *= 1 + 0.1*float64(extra)
	}
	if meanConfidence > 0 && meanConfidence < 0.8 {
		cost *= 1.2
	}
	return int(math.Round(cost))
}
