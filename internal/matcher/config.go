// Package matcher provides the matchers that pair statement records with
// report records, and the limits that keep their search bounded.
//
// Three matchers are applied in a fixed priority order by the reconciler:
//  1. ExactMatcher: one statement record to one report record
//  2. CombinationMatcher: one statement record to 2..4 report records
//  3. ReverseCombinationMatcher: 2..5 statement records to one report record
//
// All matchers are greedy. The first eligible candidate in pool order wins and
// subsets are enumerated in lexicographic order over the candidate list, so the
// same input always produces the same pairing.
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	pool := matcher.NewReportPool(reports)
//	exact := matcher.NewExactMatcher(config)
//
//	if report := exact.Match(statement, pool); report != nil {
//		// paired 1:1
//	}
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds the tolerance and the combinatorial limits of the matchers.
// The defaults reproduce the reference reconciliation behaviour and should
// only be changed knowingly: raising the limits trades run time for recall.
type Config struct {
	// Epsilon is the exclusive tolerance for amount equality
	Epsilon decimal.Decimal `json:"epsilon"`

	// MaxCandidates caps the report candidates considered by the combination matcher
	MaxCandidates int `json:"max_candidates"`

	// MaxCombinationSize is the largest report subset tried by the combination matcher
	MaxCombinationSize int `json:"max_combination_size"`

	// MaxCombinationEstimate skips a subset size whose C(n, k) exceeds it
	MaxCombinationEstimate int64 `json:"max_combination_estimate"`

	// MaxSubsetsExamined is the per-invocation subset budget of the combination matcher
	MaxSubsetsExamined int `json:"max_subsets_examined"`

	// MaxReverseSize is the largest statement subset tried by the reverse matcher
	MaxReverseSize int `json:"max_reverse_size"`

	// ReverseGuard applies the estimate-and-skip guard and the subset budget
	// to the reverse matcher as well. Off by default.
	ReverseGuard bool `json:"reverse_guard"`
}

// DefaultEpsilon is the default amount tolerance (1e-4 currency units)
var DefaultEpsilon = decimal.New(1, -4)

// DefaultConfig returns the reference configuration
func DefaultConfig() *Config {
	return &Config{
		Epsilon:                DefaultEpsilon,
		MaxCandidates:          15,
		MaxCombinationSize:     4,
		MaxCombinationEstimate: 10000,
		MaxSubsetsExamined:     1000,
		MaxReverseSize:         5,
		ReverseGuard:           false,
	}
}

// HardenedConfig returns the reference configuration with the reverse guard enabled
func HardenedConfig() *Config {
	config := DefaultConfig()
	config.ReverseGuard = true
	return config
}

// Validate checks if the matcher configuration is valid
func (c *Config) Validate() error {
	if !c.Epsilon.IsPositive() {
		return fmt.Errorf("epsilon must be positive: %s", c.Epsilon.String())
	}

	if c.MaxCandidates < 2 {
		return fmt.Errorf("max candidates must be at least 2: %d", c.MaxCandidates)
	}

	if c.MaxCombinationSize < 2 {
		return fmt.Errorf("max combination size must be at least 2: %d", c.MaxCombinationSize)
	}

	if c.MaxCombinationEstimate <= 0 {
		return fmt.Errorf("max combination estimate must be positive: %d", c.MaxCombinationEstimate)
	}

	if c.MaxSubsetsExamined <= 0 {
		return fmt.Errorf("max subsets examined must be positive: %d", c.MaxSubsetsExamined)
	}

	if c.MaxReverseSize < 2 {
		return fmt.Errorf("max reverse size must be at least 2: %d", c.MaxReverseSize)
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	return &clone
}

// Comparator returns the tolerance comparator for this configuration
func (c *Config) Comparator() Comparator {
	return NewComparator(c.Epsilon)
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Epsilon: %s, MaxCandidates: %d, MaxCombinationSize: %d, MaxEstimate: %d, MaxSubsets: %d, MaxReverseSize: %d, ReverseGuard: %t}",
		c.Epsilon.String(), c.MaxCandidates, c.MaxCombinationSize, c.MaxCombinationEstimate,
		c.MaxSubsetsExamined, c.MaxReverseSize, c.ReverseGuard)
}
