package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the key format used to compare calendar days
const DayLayout = "2006-01-02"

// DisplayDateLayout is the date format used in reports (DD/MM/YYYY)
const DisplayDateLayout = "02/01/2006"

// Side identifies which source a record came from
type Side string

const (
	// SideStatement represents the bank statement feed
	SideStatement Side = "statement"
	// SideReport represents the accounting/ERP report
	SideReport Side = "report"
)

// String returns the string representation of Side
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is known
func (s Side) IsValid() bool {
	return s == SideStatement || s == SideReport
}

// Record is a single normalized entry from either the statement or the report.
// Records are created once by a loader and are read-only afterwards.
// Two records with identical fields are still distinct: identity is the pointer.
type Record struct {
	Date        time.Time       `json:"date" csv:"date"`
	Amount      decimal.Decimal `json:"amount" csv:"amount"`
	Description string          `json:"description" csv:"description"`
	Account     string          `json:"account,omitempty" csv:"account"`
	Line        int             `json:"line,omitempty" csv:"-"`
}

// NewRecord creates a new Record instance
func NewRecord(date time.Time, amount decimal.Decimal, description string) *Record {
	return &Record{
		Date:        date,
		Amount:      amount,
		Description: description,
	}
}

// HasDate reports whether the record carries a calendar date.
// Records without a date can never be matched.
func (r *Record) HasDate() bool {
	return r != nil && !r.Date.IsZero()
}

// Day returns the YYYY-MM-DD key of the record date, or "" when absent
func (r *Record) Day() string {
	if !r.HasDate() {
		return ""
	}
	return r.Date.Format(DayLayout)
}

// SameDay reports whether both records are dated on the same calendar day.
// A record without a date is never on the same day as anything.
func (r *Record) SameDay(other *Record) bool {
	if !r.HasDate() || !other.HasDate() {
		return false
	}
	return r.Day() == other.Day()
}

// IsDebit returns true if the amount is negative
func (r *Record) IsDebit() bool {
	return r.Amount.IsNegative()
}

// IsCredit returns true if the amount is zero or positive
func (r *Record) IsCredit() bool {
	return !r.Amount.IsNegative()
}

// Validate performs basic validation on the Record.
// A failing record is still reconcilable; it just can never match.
func (r *Record) Validate() error {
	if !r.HasDate() {
		return fmt.Errorf("record date is missing")
	}
	return nil
}

// String returns a string representation of the Record
func (r *Record) String() string {
	day := r.Day()
	if day == "" {
		day = "N/A"
	}
	return fmt.Sprintf("Record{Date: %s, Amount: %s, Description: %q}", day, r.Amount.String(), r.Description)
}

// MarshalJSON implements custom JSON marshaling for Record
func (r *Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	date := ""
	if r.HasDate() {
		date = r.Date.Format(DayLayout)
	}
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: r.Amount.String(),
		Date:   date,
		Alias:  (*Alias)(r),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Record
func (r *Record) UnmarshalJSON(data []byte) error {
	type Alias Record
	aux := &struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	r.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	r.Date = time.Time{}
	if strings.TrimSpace(aux.Date) != "" {
		r.Date, err = ParseDate(aux.Date)
		if err != nil {
			return fmt.Errorf("invalid date format: %w", err)
		}
	}

	return nil
}

// MatchKind is the reconciliation status of a result row
type MatchKind int

const (
	// MatchExact is a 1:1 pairing on date and amount
	MatchExact MatchKind = iota

	// MatchSum is a group where one record on one side equals the sum
	// of several records on the other side
	MatchSum

	// MatchUnreconciled marks a residue with no counterpart
	MatchUnreconciled
)

// String returns the string representation of MatchKind
func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "Exact"
	case MatchSum:
		return "SumMatch"
	case MatchUnreconciled:
		return "Unreconciled"
	default:
		return "Unknown"
	}
}

// IsMatched reports whether the kind belongs to a match group
func (k MatchKind) IsMatched() bool {
	return k == MatchExact || k == MatchSum
}

// MarshalJSON renders the kind by name
func (k MatchKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ParseMatchKind parses a status label back into a MatchKind
func ParseMatchKind(s string) (MatchKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return MatchExact, nil
	case "summatch", "sum":
		return MatchSum, nil
	case "unreconciled":
		return MatchUnreconciled, nil
	default:
		return MatchUnreconciled, fmt.Errorf("invalid match kind '%s'", s)
	}
}

// MatchGroup is the outcome of one successful matching step
type MatchGroup struct {
	Kind       MatchKind `json:"kind"`
	Statements []*Record `json:"statements"`
	Reports    []*Record `json:"reports"`
}

// StatementTotal returns the sum of the statement side
func (g *MatchGroup) StatementTotal() decimal.Decimal {
	return SumAmounts(g.Statements)
}

// ReportTotal returns the sum of the report side
func (g *MatchGroup) ReportTotal() decimal.Decimal {
	return SumAmounts(g.Reports)
}

// Residue is a record that could not be paired with anything
type Residue struct {
	Side   Side    `json:"side"`
	Record *Record `json:"record"`
}

// ResultRow is one line of the flat reconciliation output.
// Statement is nil for a report-only residue and Report is nil for a
// statement-only residue.
type ResultRow struct {
	Statement *Record   `json:"statement,omitempty"`
	Report    *Record   `json:"report,omitempty"`
	Status    MatchKind `json:"status"`
}

// DayStatus tells whether a day's totals agree
type DayStatus string

const (
	DayBalanced   DayStatus = "Balanced"
	DayUnbalanced DayStatus = "Unbalanced"
)

// DayBucket aggregates one calendar day of the reconciliation
type DayBucket struct {
	Date           time.Time       `json:"date"`
	StatementTotal decimal.Decimal `json:"statement_total"`
	ReportTotal    decimal.Decimal `json:"report_total"`
	Status         DayStatus       `json:"status"`
}

// Difference returns StatementTotal - ReportTotal
func (b *DayBucket) Difference() decimal.Decimal {
	return b.StatementTotal.Sub(b.ReportTotal)
}

// MarshalJSON implements custom JSON marshaling for DayBucket
func (b *DayBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Date           string    `json:"date"`
		StatementTotal string    `json:"statement_total"`
		ReportTotal    string    `json:"report_total"`
		Difference     string    `json:"difference"`
		Status         DayStatus `json:"status"`
	}{
		Date:           b.Date.Format(DayLayout),
		StatementTotal: b.StatementTotal.StringFixed(2),
		ReportTotal:    b.ReportTotal.StringFixed(2),
		Difference:     b.Difference().StringFixed(2),
		Status:         b.Status,
	})
}

// Utility functions for type conversion and validation

// SumAmounts returns the sum of the record amounts
func SumAmounts(records []*Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// TruncateToDay drops the time-of-day portion, keeping the location
func TruncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// ParseDecimalFromString parses an amount written either in plain notation
// ("-1234.56") or in Brazilian notation ("R$ 1.234,56").
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}

	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c == '.', c == ',':
			b.WriteRune(c)
		case c == '-':
			negative = !negative
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': no digits", s)
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastComma > lastDot:
		// comma is the decimal separator, dots group thousands
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case strings.Count(cleaned, ".") > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}

	return d, nil
}

// dateFormats lists the day-first layouts tried before the month-first ones
var dateFormats = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"01/02/2006",
	"02.01.2006",
	"2006.01.02",
	"02-Jan-2006",
	"02/Jan/2006",
	"02/01/06",
	"06-01-02",
	"01/02/06",
	"02.01.06",
	time.RFC3339,
}

// ParseDate parses a calendar date using the common statement and ERP formats.
// Any time-of-day portion separated by a space is discarded.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TruncateToDay(t), nil
	}

	if idx := strings.Index(s, " "); idx > 0 {
		s = s[:idx]
	}
	if len(s) > 10 && s[4] == '-' && s[10] == 'T' {
		s = s[:10]
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// FormatDisplayDate renders a date as DD/MM/YYYY, or "" when absent
func FormatDisplayDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayDateLayout)
}

// FormatCurrency renders an amount as "R$ 1234,56"
func FormatCurrency(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}
