// Package ledger holds the pure transaction rules: line numbering, credit sign
// normalisation, the balance invariant, sign inversion for reversals and the
// draft → posted → voided | reversed state machine.
//
// Nothing here touches storage. The store applies these rules inside its DB transactions.
package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/smartcode"
)

// Rules configures which transactions are balanced ledgers and how lines are signed.
type Rules struct {
	// BalancedPatterns are smart-code globs designating balanced ledger types.
	BalancedPatterns []string

	// CreditLineTypes are line types stored with a negative amount (payments).
	CreditLineTypes []string

	// Tolerance is the largest absolute net still considered balanced.
	Tolerance decimal.Decimal
}

// DefaultRules returns the point-of-sale and general-ledger defaults.
func DefaultRules() Rules {
	return Rules{
		BalancedPatterns: []string{"**.POS.**", "**.GL.**", "**.JOURNAL.**"},
		CreditLineTypes:  []string{"PAYMENT"},
		Tolerance:        decimal.RequireFromString("0.005"),
	}
}

// IsBalancedLedger reports whether transactions with this smart code must net to zero.
func (r Rules) IsBalancedLedger(code string) bool {
	return smartcode.MatchAny(r.BalancedPatterns, code)
}

// IsCredit reports whether a line type is sign-inverted relative to sale lines.
func (r Rules) IsCredit(lineType string) bool {
	for _, t := range r.CreditLineTypes {
		if strings.EqualFold(t, lineType) {
			return true
		}
	}
	return false
}

// Number validates supplied line numbers and assigns dense numbers from start.
//
// Supplied numbers must be positive and unique. Lines are ordered by supplied number;
// unnumbered lines (zero) follow in their given order. The input slice is not modified.
func Number(lines []record.Line, start int) ([]record.Line, error) {
	seen := make(map[int]bool, len(lines))
	for _, l := range lines {
		if l.LineNumber < 0 {
			return nil, apperr.Invalid("line_number", "line_number must be positive")
		}
		if l.LineNumber == 0 {
			continue
		}
		if seen[l.LineNumber] {
			return nil, apperr.DuplicateLineNumber(l.LineNumber)
		}
		seen[l.LineNumber] = true
	}

	out := make([]record.Line, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LineNumber, out[j].LineNumber
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a < b
	})
	for i := range out {
		out[i].LineNumber = start + i
	}
	return out, nil
}

// Prepare numbers the lines and normalises their amounts: a zero line amount is computed
// as quantity × unit price, and credit lines are stored negative.
func (r Rules) Prepare(lines []record.Line, start int) ([]record.Line, error) {
	out, err := Number(lines, start)
	if err != nil {
		return nil, err
	}
	for i := range out {
		l := &out[i]
		if l.LineAmount.IsZero() && !l.Quantity.IsZero() && !l.UnitPrice.IsZero() {
			l.LineAmount = l.Quantity.Mul(l.UnitPrice)
		}
		if r.IsCredit(l.LineType) {
			l.LineAmount = l.LineAmount.Abs().Neg()
		}
	}
	return out, nil
}

// Totals holds the sums the balance invariant is evaluated on.
type Totals struct {
	Net       decimal.Decimal
	NonCredit decimal.Decimal
}

// Sum computes the net and non-credit totals of lines.
func (r Rules) Sum(lines []record.Line) Totals {
	var t Totals
	for _, l := range lines {
		t.Net = t.Net.Add(l.LineAmount)
		if !r.IsCredit(l.LineType) {
			t.NonCredit = t.NonCredit.Add(l.LineAmount)
		}
	}
	return t
}

// CheckBalance enforces the balanced ledger invariant: lines net to zero within tolerance,
// and when total is non-zero the non-credit lines add up to it.
func (r Rules) CheckBalance(total decimal.Decimal, lines []record.Line) error {
	t := r.Sum(lines)
	netOK := t.Net.Abs().LessThanOrEqual(r.Tolerance)
	totalOK := total.IsZero() || t.NonCredit.Sub(total).Abs().LessThanOrEqual(r.Tolerance)
	if netOK && totalOK {
		return nil
	}

	msg := "lines do not net to zero"
	if netOK {
		msg = "non-credit lines do not add up to total_amount"
	}
	return apperr.Unbalanced(msg).
		WithDetail("net", t.Net.String()).
		WithDetail("expected_total", total.String()).
		WithDetail("non_credit_total", t.NonCredit.String())
}

// Invert returns sign-inverted copies of lines for a compensating transaction.
// Ids, transaction ids and timestamps are cleared.
func Invert(lines []record.Line) []record.Line {
	out := make([]record.Line, len(lines))
	for i, l := range lines {
		l.ID = ""
		l.TransactionID = ""
		l.CreatedAt = time.Time{}
		l.LineAmount = l.LineAmount.Neg()
		out[i] = l
	}
	return out
}
