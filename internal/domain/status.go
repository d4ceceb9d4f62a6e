package domain

// CategoryOutcome is the per-category value folded into the aggregate
// status: how the query failed (if it did) and how many features it found.
type CategoryOutcome struct {
	Failure      FailureClass
	FeatureCount int
}

// DeriveStatus computes the aggregate enrichment status from per-category
// outcomes. Pure function; the policy order is load-bearing:
//
//  1. every category failed: failed (this covers the environment-wide
//     outage where every endpoint is unreachable),
//  2. some categories failed: partial. A single unreachable endpoint is a
//     category-level failure like any other; the categories that answered
//     still carry usable data,
//  3. everything succeeded but nothing was found anywhere: partial (a rural
//     site and a broken system must stay distinguishable via flags),
//  4. otherwise complete.
//
// An empty outcome list is failed: nothing was checked.
func DeriveStatus(outcomes []CategoryOutcome) OverallStatus {
	if len(outcomes) == 0 {
		return StatusFailed
	}

	failed := 0
	totalFeatures := 0
	for _, o := range outcomes {
		if o.Failure != FailureNone {
			failed++
			continue
		}
		totalFeatures += o.FeatureCount
	}

	switch {
	case failed == len(outcomes):
		return StatusFailed
	case failed > 0:
		return StatusPartial
	case totalFeatures == 0:
		return StatusPartial
	default:
		return StatusComplete
	}
}

// AllEmptySuccesses reports whether every category succeeded with zero
// features, the precondition for the secondary-source fallback.
func AllEmptySuccesses(outcomes []CategoryOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if o.Failure != FailureNone || o.FeatureCount > 0 {
			return false
		}
	}
	return true
}
