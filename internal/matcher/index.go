package matcher

import (
	"sort"

	"statement-reconciler/internal/models"
)

// ReportPool is the live set of unconsumed report records.
// Consumption is tracked by index, so iteration order is always the
// insertion order minus prior removals.
type ReportPool struct {
	records  []*models.Record
	consumed []bool
	live     int
}

// NewReportPool creates a pool over the given records in their current order
func NewReportPool(records []*models.Record) *ReportPool {
	return &ReportPool{
		records:  records,
		consumed: make([]bool, len(records)),
		live:     len(records),
	}
}

// Len returns the number of records still available
func (p *ReportPool) Len() int {
	return p.live
}

// Size returns the number of records the pool was created with
func (p *ReportPool) Size() int {
	return len(p.records)
}

// Record returns the record at position i regardless of its state
func (p *ReportPool) Record(i int) *models.Record {
	return p.records[i]
}

// IsAvailable reports whether the record at position i has not been consumed
func (p *ReportPool) IsAvailable(i int) bool {
	return i >= 0 && i < len(p.records) && !p.consumed[i]
}

// Available returns the positions of the unconsumed records in pool order
func (p *ReportPool) Available() []int {
	result := make([]int, 0, p.live)
	for i := range p.records {
		if !p.consumed[i] {
			result = append(result, i)
		}
	}
	return result
}

// Take consumes the record at position i and returns it.
// Taking an already consumed record returns nil.
func (p *ReportPool) Take(i int) *models.Record {
	if !p.IsAvailable(i) {
		return nil
	}
	p.consumed[i] = true
	p.live--
	return p.records[i]
}

// Remaining returns the unconsumed records in pool order
func (p *ReportPool) Remaining() []*models.Record {
	result := make([]*models.Record, 0, p.live)
	for i, r := range p.records {
		if !p.consumed[i] {
			result = append(result, r)
		}
	}
	return result
}

// StatementSet tracks which statement records have been placed in a match group
type StatementSet struct {
	records []*models.Record
	matched []bool
}

// NewStatementSet creates a set over the given statement records in input order
func NewStatementSet(records []*models.Record) *StatementSet {
	return &StatementSet{
		records: records,
		matched: make([]bool, len(records)),
	}
}

// Len returns the number of statement records in the set
func (s *StatementSet) Len() int {
	return len(s.records)
}

// Record returns the statement record at position i
func (s *StatementSet) Record(i int) *models.Record {
	return s.records[i]
}

// IsMatched reports whether the record at position i is already in a match group
func (s *StatementSet) IsMatched(i int) bool {
	return s.matched[i]
}

// MarkMatched records that the record at position i is in a match group
func (s *StatementSet) MarkMatched(i int) {
	s.matched[i] = true
}

// Unmatched returns the positions of the records not yet in any match group
func (s *StatementSet) Unmatched() []int {
	var result []int
	for i := range s.records {
		if !s.matched[i] {
			result = append(result, i)
		}
	}
	return result
}

// DayIndex partitions the positions of a record slice by calendar day.
// Positions keep their input order inside each day. Undated records are
// collected separately since they can never be matched.
type DayIndex struct {
	Days    map[string][]int
	Undated []int
}

// NewDayIndex builds a day index over records
func NewDayIndex(records []*models.Record) *DayIndex {
	index := &DayIndex{
		Days: make(map[string][]int),
	}

	for i, r := range records {
		day := r.Day()
		if day == "" {
			index.Undated = append(index.Undated, i)
			continue
		}
		index.Days[day] = append(index.Days[day], i)
	}

	return index
}

// Keys returns the day keys in ascending order
func (di *DayIndex) Keys() []string {
	keys := make([]string, 0, len(di.Days))
	for day := range di.Days {
		keys = append(keys, day)
	}
	sort.Strings(keys)
	return keys
}

// GetByDay returns the positions of the records dated on day (YYYY-MM-DD)
func (di *DayIndex) GetByDay(day string) []int {
	return di.Days[day]
}

// GetIndexStats returns statistics about the index
func (di *DayIndex) GetIndexStats() IndexStats {
	stats := IndexStats{
		UniqueDates:    len(di.Days),
		UndatedRecords: len(di.Undated),
	}
	for _, positions := range di.Days {
		stats.TotalRecords += len(positions)
		if len(positions) > stats.LargestDay {
			stats.LargestDay = len(positions)
		}
	}
	stats.TotalRecords += len(di.Undated)
	return stats
}

// IndexStats provides statistics about a day index
type IndexStats struct {
	TotalRecords   int
	UniqueDates    int
	UndatedRecords int
	LargestDay     int
}

// Pick returns the records at the given positions, in that order
func Pick(records []*models.Record, positions []int) []*models.Record {
	result := make([]*models.Record, len(positions))
	for i, pos := range positions {
		result[i] = records[pos]
	}
	return result
}
