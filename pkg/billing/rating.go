package billing

import (
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// BillableSeconds rounds billsec up to the rate's increments. The first block is
// initial_increment long and every further block is increment long.
func BillableSeconds(rate models.Rate, billsec int) int {
	if billsec <= 0 {
		return 0
	}
	rate.Normalize()
	if billsec <= rate.InitialIncrement {
		return rate.InitialIncrement
	}
	rest := billsec - rate.InitialIncrement
	blocks := (rest + rate.Increment - 1) / rate.Increment
	return rate.InitialIncrement + blocks*rate.Increment
}

// RateCall prices a call of billsec seconds. Unanswered calls cost nothing.
func RateCall(rate models.Rate, billsec int) models.Money {
	secs := BillableSeconds(rate, billsec)
	if secs == 0 {
		return 0
	}
	return rate.ConnectionFee + rate.RatePerMin.PerSecond(secs)
}

// LongestMatch returns the match with the longest prefix, or nil
func LongestMatch(matches []store.RateMatch) *store.RateMatch {
	var best *store.RateMatch
	for i := range matches {
		if best == nil || len(matches[i].Rate.Prefix) > len(best.Rate.Prefix) {
			best = &matches[i]
		}
	}
	return best
}
