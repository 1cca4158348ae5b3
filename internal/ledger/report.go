package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
)

// Discrepancy is one failed check found by Evaluate.
type Discrepancy struct {
	Kind   apperr.Kind `json:"kind"`
	Detail string      `json:"detail"`
}

// Report is the outcome of re-checking a stored transaction.
type Report struct {
	TransactionID  string          `json:"transaction_id"`
	Valid          bool            `json:"valid"`
	BalancedLedger bool            `json:"balanced_ledger"`
	Net            decimal.Decimal `json:"net"`
	NonCreditTotal decimal.Decimal `json:"non_credit_total"`
	LineCount      int             `json:"line_count"`
	Discrepancies  []Discrepancy   `json:"discrepancies"`
}

// Evaluate recomputes line-number density and uniqueness and, for balanced ledgers,
// the balance invariant. It never mutates its inputs.
func (r Rules) Evaluate(txn record.Transaction, lines []record.Line) Report {
	totals := r.Sum(lines)
	rep := Report{
		TransactionID:  txn.ID,
		BalancedLedger: r.IsBalancedLedger(txn.SmartCode),
		Net:            totals.Net,
		NonCreditTotal: totals.NonCredit,
		LineCount:      len(lines),
		Discrepancies:  []Discrepancy{},
	}

	numbers := make([]int, 0, len(lines))
	seen := make(map[int]bool, len(lines))
	for _, l := range lines {
		if seen[l.LineNumber] {
			rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
				Kind:   apperr.KindDuplicateLineNumber,
				Detail: fmt.Sprintf("line number %d is used more than once", l.LineNumber),
			})
			continue
		}
		seen[l.LineNumber] = true
		numbers = append(numbers, l.LineNumber)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
				Kind:   apperr.KindInvalidInput,
				Detail: fmt.Sprintf("line numbers are not dense: expected %d, found %d", i+1, n),
			})
			break
		}
	}

	if rep.BalancedLedger {
		if err := r.CheckBalance(txn.TotalAmount, lines); err != nil {
			e := apperr.As(err)
			rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
				Kind: e.Kind,
				Detail: fmt.Sprintf("%s (net=%s, expected_total=%s, non_credit_total=%s)",
					e.Message, e.Details["net"], e.Details["expected_total"], e.Details["non_credit_total"]),
			})
		}
	}

	rep.Valid = len(rep.Discrepancies) == 0
	return rep
}
