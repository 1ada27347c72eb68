package matcher

import (
	"sort"

	"statement-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// ExactMatcher pairs one statement record with one report record of the
// same calendar day and the same amount.
type ExactMatcher struct {
	cmp Comparator
}

// NewExactMatcher creates an exact matcher
func NewExactMatcher(config *Config) *ExactMatcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &ExactMatcher{cmp: config.Comparator()}
}

// Match scans the pool in order and consumes the first eligible report record.
// It returns nil when nothing matches; there is no backtracking.
func (m *ExactMatcher) Match(stmt *models.Record, pool *ReportPool) *models.Record {
	if !stmt.HasDate() {
		return nil
	}

	for i := 0; i < pool.Size(); i++ {
		if !pool.IsAvailable(i) {
			continue
		}
		r := pool.Record(i)
		if !r.SameDay(stmt) || !SameSign(r.Amount, stmt.Amount) {
			continue
		}
		if m.cmp.Equal(r.Amount, stmt.Amount) {
			return pool.Take(i)
		}
	}

	return nil
}

// CombinationMatcher pairs one statement record with 2..K report records of
// the same day and sign whose amounts add up to the statement amount.
type CombinationMatcher struct {
	config *Config
	cmp    Comparator
}

// NewCombinationMatcher creates a combination matcher
func NewCombinationMatcher(config *Config) *CombinationMatcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &CombinationMatcher{
		config: config,
		cmp:    config.Comparator(),
	}
}

// Match searches for a report subset summing to the statement amount.
// On success the members are consumed from the pool and returned in
// enumeration order. The second result reports whether the subset budget was
// exhausted; that is a policy outcome, not an error, and the match is nil.
func (m *CombinationMatcher) Match(stmt *models.Record, pool *ReportPool) ([]*models.Record, bool) {
	if !stmt.HasDate() {
		return nil, false
	}

	target := stmt.Amount
	candidates := m.candidates(stmt, pool)

	maxSize := m.config.MaxCombinationSize
	if len(candidates) < maxSize {
		maxSize = len(candidates)
	}

	examined := 0
	exhausted := false
	var found []int

	for n := 2; n <= maxSize && found == nil && !exhausted; n++ {
		if binomial(len(candidates), n, m.config.MaxCombinationEstimate) > m.config.MaxCombinationEstimate {
			continue
		}

		forEachCombination(len(candidates), n, func(idx []int) bool {
			if examined >= m.config.MaxSubsetsExamined {
				exhausted = true
				return false
			}

			sum, ok := m.subsetSum(pool, candidates, idx, target)
			if !ok {
				return true
			}
			if m.cmp.Equal(sum, target) {
				found = make([]int, len(idx))
				for i, k := range idx {
					found[i] = candidates[k]
				}
				return false
			}

			examined++
			return true
		})
	}

	if found == nil {
		return nil, exhausted
	}

	members := make([]*models.Record, len(found))
	for i, pos := range found {
		members[i] = pool.Take(pos)
	}
	return members, false
}

// candidates returns the pool positions eligible for the statement, trimmed
// to the closest MaxCandidates by distance to the target amount.
func (m *CombinationMatcher) candidates(stmt *models.Record, pool *ReportPool) []int {
	var candidates []int
	for i := 0; i < pool.Size(); i++ {
		if !pool.IsAvailable(i) {
			continue
		}
		r := pool.Record(i)
		if r.SameDay(stmt) && SameSign(r.Amount, stmt.Amount) {
			candidates = append(candidates, i)
		}
	}

	if len(candidates) <= m.config.MaxCandidates {
		return candidates
	}

	distance := func(pos int) decimal.Decimal {
		return pool.Record(pos).Amount.Sub(stmt.Amount).Abs()
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return distance(candidates[a]).LessThan(distance(candidates[b]))
	})

	return candidates[:m.config.MaxCandidates]
}

// subsetSum adds up the selected candidates; ok is false for a mixed-sign subset
func (m *CombinationMatcher) subsetSum(pool *ReportPool, candidates, idx []int, target decimal.Decimal) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for _, k := range idx {
		amount := pool.Record(candidates[k]).Amount
		if !SameSign(amount, target) {
			return decimal.Zero, false
		}
		sum = sum.Add(amount)
	}
	return sum, true
}
