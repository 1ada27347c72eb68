package matcher

import (
	"statement-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// ReverseMatch is the outcome of a successful reverse combination search
type ReverseMatch struct {
	// Report is the single report record covered by the statement subset
	Report *models.Record

	// Members are the statement positions of the subset in enumeration order.
	// The anchor always comes first.
	Members []int
}

// Others returns the member positions other than the anchor
func (rm *ReverseMatch) Others() []int {
	if len(rm.Members) == 0 {
		return nil
	}
	return rm.Members[1:]
}

// ReverseCombinationMatcher pairs several statement records of the same day
// with one report record equal to their sum, e.g. many small bank fees booked
// as a single ERP entry.
type ReverseCombinationMatcher struct {
	config *Config
	cmp    Comparator
}

// NewReverseCombinationMatcher creates a reverse combination matcher
func NewReverseCombinationMatcher(config *Config) *ReverseCombinationMatcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &ReverseCombinationMatcher{
		config: config,
		cmp:    config.Comparator(),
	}
}

// Match searches subsets of the anchor's same-day, same-sign, unmatched
// statement peers that always include the anchor. On success every member
// except the anchor is marked matched in stmts and the report is consumed from
// the pool; the caller finalizes the anchor. The second result reports whether
// the optional subset budget was exhausted.
func (m *ReverseCombinationMatcher) Match(anchor int, stmts *StatementSet, pool *ReportPool) (*ReverseMatch, bool) {
	s := stmts.Record(anchor)
	if !s.HasDate() {
		return nil, false
	}

	others := m.peers(anchor, stmts)

	maxSize := m.config.MaxReverseSize
	if len(others)+1 < maxSize {
		maxSize = len(others) + 1
	}

	examined := 0
	exhausted := false
	var result *ReverseMatch

	for n := 2; n <= maxSize && result == nil && !exhausted; n++ {
		// subsets that include the anchor are the (n-1)-subsets of the peers
		if m.config.ReverseGuard &&
			binomial(len(others), n-1, m.config.MaxCombinationEstimate) > m.config.MaxCombinationEstimate {
			continue
		}

		forEachCombination(len(others), n-1, func(idx []int) bool {
			if m.config.ReverseGuard && examined >= m.config.MaxSubsetsExamined {
				exhausted = true
				return false
			}

			sum, ok := m.subsetSum(s, stmts, others, idx)
			if !ok {
				return true
			}

			if pos := m.findReport(s, sum, pool); pos >= 0 {
				members := make([]int, 0, len(idx)+1)
				members = append(members, anchor)
				for _, k := range idx {
					members = append(members, others[k])
				}
				result = &ReverseMatch{
					Report:  pool.Take(pos),
					Members: members,
				}
				return false
			}

			examined++
			return true
		})
	}

	if result == nil {
		return nil, exhausted
	}

	for _, pos := range result.Others() {
		stmts.MarkMatched(pos)
	}
	return result, false
}

// peers returns the unmatched same-day, same-sign statement positions other
// than the anchor, in input order
func (m *ReverseCombinationMatcher) peers(anchor int, stmts *StatementSet) []int {
	s := stmts.Record(anchor)

	var others []int
	for i := 0; i < stmts.Len(); i++ {
		if i == anchor || stmts.IsMatched(i) {
			continue
		}
		r := stmts.Record(i)
		if r.SameDay(s) && SameSign(r.Amount, s.Amount) {
			others = append(others, i)
		}
	}
	return others
}

// subsetSum adds the anchor and the selected peers; ok is false for a mixed-sign subset
func (m *ReverseCombinationMatcher) subsetSum(s *models.Record, stmts *StatementSet, others, idx []int) (decimal.Decimal, bool) {
	sum := s.Amount
	for _, k := range idx {
		amount := stmts.Record(others[k]).Amount
		if !SameSign(amount, s.Amount) {
			return decimal.Zero, false
		}
		sum = sum.Add(amount)
	}
	return sum, true
}

// findReport returns the first available pool position dated like s whose
// amount equals sum with the same sign, or -1
func (m *ReverseCombinationMatcher) findReport(s *models.Record, sum decimal.Decimal, pool *ReportPool) int {
	for i := 0; i < pool.Size(); i++ {
		if !pool.IsAvailable(i) {
			continue
		}
		r := pool.Record(i)
		if !r.SameDay(s) || !SameSign(r.Amount, sum) {
			continue
		}
		if m.cmp.Equal(r.Amount, sum) {
			return i
		}
	}
	return -1
}
