package parsers

import (
	"fmt"
	"strings"
)

// ReportLayout names how a report file encodes the sign of an amount
type ReportLayout string

const (
	// LayoutNature is a single amount column plus a credit/debit nature column
	LayoutNature ReportLayout = "nature"
	// LayoutSplit is separate credit and debit columns netted as credit - debit
	LayoutSplit ReportLayout = "split"
)

// ParseReportLayout converts a flag or profile value to a ReportLayout
func ParseReportLayout(s string) (ReportLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nature", "natureza":
		return LayoutNature, nil
	case "split", "credit-debit", "columns":
		return LayoutSplit, nil
	default:
		return "", fmt.Errorf("unknown report layout '%s' (expected nature or split)", s)
	}
}

// Delimiters is the detection order for CSV separators
var Delimiters = []rune{',', ';', '\t', '|'}

// ParseDelimiter converts a flag or profile value to a rune. An empty value
// means auto-detection and yields 0.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}

	s = strings.TrimSpace(s)
	for _, d := range Delimiters {
		if s == string(d) {
			return d, nil
		}
	}

	return 0, fmt.Errorf("unsupported delimiter '%s' (expected one of , ; tab |)", s)
}

// StatementMapping names the statement file columns
type StatementMapping struct {
	Date        string `json:"date" yaml:"date" mapstructure:"date" validate:"required"`
	Amount      string `json:"amount" yaml:"amount" mapstructure:"amount" validate:"required"`
	Description string `json:"description" yaml:"description" mapstructure:"description"`
	Delimiter   string `json:"delimiter,omitempty" yaml:"delimiter,omitempty" mapstructure:"delimiter"`
}

// DefaultStatementMapping returns the column names used when nothing is configured
func DefaultStatementMapping() *StatementMapping {
	return &StatementMapping{
		Date:        "date",
		Amount:      "amount",
		Description: "description",
	}
}

// Validate checks that every required column is named
func (m *StatementMapping) Validate() error {
	if strings.TrimSpace(m.Date) == "" {
		return fmt.Errorf("statement date column cannot be empty")
	}
	if strings.TrimSpace(m.Amount) == "" {
		return fmt.Errorf("statement amount column cannot be empty")
	}
	if _, err := ParseDelimiter(m.Delimiter); err != nil {
		return err
	}
	return nil
}

// RequiredColumns lists the columns that must appear in the header
func (m *StatementMapping) RequiredColumns() []string {
	return nonEmpty(m.Date, m.Amount, m.Description)
}

// ReportMapping names the report file columns for either layout
type ReportMapping struct {
	Layout      ReportLayout `json:"layout" yaml:"layout" mapstructure:"layout" validate:"omitempty,oneof=nature split"`
	Date        string       `json:"date" yaml:"date" mapstructure:"date" validate:"required"`
	Description string       `json:"description" yaml:"description" mapstructure:"description"`
	Amount      string       `json:"amount,omitempty" yaml:"amount,omitempty" mapstructure:"amount"`
	Nature      string       `json:"nature,omitempty" yaml:"nature,omitempty" mapstructure:"nature"`
	Credit      string       `json:"credit,omitempty" yaml:"credit,omitempty" mapstructure:"credit"`
	Debit       string       `json:"debit,omitempty" yaml:"debit,omitempty" mapstructure:"debit"`
	Account     string       `json:"account,omitempty" yaml:"account,omitempty" mapstructure:"account"`
	Delimiter   string       `json:"delimiter,omitempty" yaml:"delimiter,omitempty" mapstructure:"delimiter"`
}

// DefaultReportMapping returns the column names used when nothing is configured
func DefaultReportMapping() *ReportMapping {
	return &ReportMapping{
		Layout:      LayoutNature,
		Date:        "date",
		Description: "description",
		Amount:      "amount",
		Nature:      "nature",
		Credit:      "credit",
		Debit:       "debit",
	}
}

// Validate checks that the columns required by the layout are named
func (m *ReportMapping) Validate() error {
	if strings.TrimSpace(m.Date) == "" {
		return fmt.Errorf("report date column cannot be empty")
	}

	switch m.Layout {
	case LayoutNature, "":
		if strings.TrimSpace(m.Amount) == "" {
			return fmt.Errorf("report amount column cannot be empty for the nature layout")
		}
		if strings.TrimSpace(m.Nature) == "" {
			return fmt.Errorf("report nature column cannot be empty for the nature layout")
		}
	case LayoutSplit:
		if strings.TrimSpace(m.Credit) == "" || strings.TrimSpace(m.Debit) == "" {
			return fmt.Errorf("report credit and debit columns cannot be empty for the split layout")
		}
	default:
		return fmt.Errorf("unknown report layout '%s'", m.Layout)
	}

	if _, err := ParseDelimiter(m.Delimiter); err != nil {
		return err
	}
	return nil
}

// RequiredColumns lists the columns that must appear in the header
func (m *ReportMapping) RequiredColumns() []string {
	if m.Layout == LayoutSplit {
		return nonEmpty(m.Date, m.Credit, m.Debit, m.Description, m.Account)
	}
	return nonEmpty(m.Date, m.Amount, m.Nature, m.Description, m.Account)
}

func nonEmpty(columns ...string) []string {
	result := make([]string, 0, len(columns))
	for _, c := range columns {
		if strings.TrimSpace(c) != "" {
			result = append(result, c)
		}
	}
	return result
}

// Nature is the credit/debit marker of a report row
type Nature int

const (
	NatureUnknown Nature = iota
	NatureCredit
	NatureDebit
)

var natureValues = map[string]Nature{
	"C":        NatureCredit,
	"CREDITO":  NatureCredit,
	"CRÉDITO":  NatureCredit,
	"CREDIT":   NatureCredit,
	"ENTRADA":  NatureCredit,
	"+":        NatureCredit,
	"D":        NatureDebit,
	"DEBITO":   NatureDebit,
	"DÉBITO":   NatureDebit,
	"DEBIT":    NatureDebit,
	"SAIDA":    NatureDebit,
	"SAÍDA":    NatureDebit,
	"-":        NatureDebit,
}

// ParseNature maps a nature cell to credit or debit
func ParseNature(s string) Nature {
	return natureValues[strings.ToUpper(strings.TrimSpace(s))]
}
