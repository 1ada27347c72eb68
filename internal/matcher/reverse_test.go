package matcher

import (
	"testing"
	"time"

	"statement-reconciler/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseCombinationMatcher_Match(t *testing.T) {
	t.Run("two statement records against one report", func(t *testing.T) {
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "30.00", "20.00"))
		reports := testRecords(t, "2024-03-01", "50.00")
		pool := NewReportPool(reports)

		m := NewReverseCombinationMatcher(nil)
		result, exhausted := m.Match(0, stmts, pool)
		require.NotNil(t, result)
		assert.False(t, exhausted)

		assert.Same(t, reports[0], result.Report)
		assert.Equal(t, []int{0, 1}, result.Members)
		assert.Equal(t, []int{1}, result.Others())
		assert.True(t, stmts.IsMatched(1))
		assert.False(t, stmts.IsMatched(0), "the anchor is finalized by the caller")
		assert.Equal(t, 0, pool.Len())
	})

	t.Run("anchor is always part of the subset", func(t *testing.T) {
		// 20+30 would match, but neither subset containing the anchor does
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "5.00", "20.00", "30.00"))
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00"))

		m := NewReverseCombinationMatcher(nil)
		result, _ := m.Match(0, stmts, pool)
		assert.Nil(t, result)
		assert.Equal(t, 1, pool.Len())
		assert.Len(t, stmts.Unmatched(), 3)
	})

	t.Run("matched peers are excluded", func(t *testing.T) {
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "30.00", "20.00"))
		stmts.MarkMatched(1)
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00"))

		result, _ := NewReverseCombinationMatcher(nil).Match(0, stmts, pool)
		assert.Nil(t, result)
	})

	t.Run("opposite sign peers are excluded", func(t *testing.T) {
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "70.00", "-20.00"))
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00"))

		result, _ := NewReverseCombinationMatcher(nil).Match(0, stmts, pool)
		assert.Nil(t, result)
	})

	t.Run("report must share the sum's sign", func(t *testing.T) {
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "-30.00", "-20.00"))
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00", "-50.00"))

		result, _ := NewReverseCombinationMatcher(nil).Match(0, stmts, pool)
		require.NotNil(t, result)
		assert.Equal(t, "-50.00", result.Report.Amount.StringFixed(2))
		assert.True(t, pool.IsAvailable(0))
	})

	t.Run("peers on other days are excluded", func(t *testing.T) {
		records := append(testRecords(t, "2024-03-01", "30.00"), testRecords(t, "2024-03-02", "20.00")...)
		stmts := NewStatementSet(records)
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00"))

		result, _ := NewReverseCombinationMatcher(nil).Match(0, stmts, pool)
		assert.Nil(t, result)
	})

	t.Run("members follow enumeration order", func(t *testing.T) {
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "10.00", "1.00", "15.00", "25.00"))
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00"))

		// pairs with the anchor fail, then {10,1,15}=26 and {10,1,25}=36 fail,
		// {10,15,25}=50 wins
		result, _ := NewReverseCombinationMatcher(nil).Match(0, stmts, pool)
		require.NotNil(t, result)
		assert.Equal(t, []int{0, 2, 3}, result.Members)
		assert.False(t, stmts.IsMatched(1))
	})

	t.Run("size cap limits the subset", func(t *testing.T) {
		stmts := NewStatementSet(testRecords(t, "2024-03-01", "10.00", "10.00", "10.00", "10.00", "10.00", "10.00"))
		pool := NewReportPool(testRecords(t, "2024-03-01", "60.00"))

		result, _ := NewReverseCombinationMatcher(nil).Match(0, stmts, pool)
		assert.Nil(t, result, "six members exceed the default size cap of five")

		config := DefaultConfig()
		config.MaxReverseSize = 6
		result, _ = NewReverseCombinationMatcher(config).Match(0, stmts, pool)
		require.NotNil(t, result)
		assert.Len(t, result.Members, 6)
	})

	t.Run("guard applies the subset budget when enabled", func(t *testing.T) {
		records := testRecords(t, "2024-03-01", "1.00", "2.00", "4.00", "8.00", "16.00")
		pool := func() *ReportPool { return NewReportPool(testRecords(t, "2024-03-01", "17.00")) }

		unguarded, exhausted := NewReverseCombinationMatcher(nil).Match(0, NewStatementSet(records), pool())
		require.NotNil(t, unguarded)
		assert.False(t, exhausted)
		assert.Equal(t, []int{0, 4}, unguarded.Members)

		config := HardenedConfig()
		config.MaxSubsetsExamined = 2
		guarded, exhausted := NewReverseCombinationMatcher(config).Match(0, NewStatementSet(records), pool())
		assert.Nil(t, guarded)
		assert.True(t, exhausted)
	})

	t.Run("undated anchor never matches", func(t *testing.T) {
		records := []*models.Record{
			models.NewRecord(time.Time{}, decimal.NewFromInt(30), ""),
			testRecord(t, "2024-03-01", "20.00"),
		}
		pool := NewReportPool(testRecords(t, "2024-03-01", "50.00"))

		result, _ := NewReverseCombinationMatcher(nil).Match(0, NewStatementSet(records), pool)
		assert.Nil(t, result)
	})
}
