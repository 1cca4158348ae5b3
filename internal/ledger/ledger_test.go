package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(n int, lineType, amount string) record.Line {
	return record.Line{LineNumber: n, LineType: lineType, LineAmount: dec(amount)}
}

// posTicket is one service line (100), one tax line (5) and two payments (60, 45).
func posTicket() []record.Line {
	return []record.Line{
		line(0, "SERVICE", "100"),
		line(0, "TAX", "5"),
		line(0, "PAYMENT", "60"),
		line(0, "PAYMENT", "45"),
	}
}

func TestRules_IsBalancedLedger(t *testing.T) {
	r := DefaultRules()
	assert.True(t, r.IsBalancedLedger("HERA.SALON.POS.SALE.v1"))
	assert.True(t, r.IsBalancedLedger("HERA.FIN.GL.JOURNAL.v1"))
	assert.True(t, r.IsBalancedLedger("ACME.FIN.JOURNAL.ENTRY.v2"))
	assert.False(t, r.IsBalancedLedger("HERA.SALON.APPT.BOOKING.v1"))
}

func TestRules_IsCredit(t *testing.T) {
	r := DefaultRules()
	assert.True(t, r.IsCredit("PAYMENT"))
	assert.True(t, r.IsCredit("payment"))
	assert.False(t, r.IsCredit("SERVICE"))
}

func TestNumber_AssignsDenseNumbers(t *testing.T) {
	in := []record.Line{
		line(0, "A", "1"),
		line(5, "B", "1"),
		line(2, "C", "1"),
		line(0, "D", "1"),
	}

	out, err := Number(in, 1)
	require.NoError(t, err)

	var types []string
	for i, l := range out {
		assert.Equal(t, i+1, l.LineNumber)
		types = append(types, l.LineType)
	}
	assert.Equal(t, []string{"C", "B", "A", "D"}, types)
	assert.Equal(t, 0, in[0].LineNumber, "input unchanged")
}

func TestNumber_StartOffset(t *testing.T) {
	out, err := Number([]record.Line{line(0, "A", "1"), line(0, "B", "1")}, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, out[0].LineNumber)
	assert.Equal(t, 5, out[1].LineNumber)
}

func TestNumber_RejectsDuplicates(t *testing.T) {
	_, err := Number([]record.Line{line(1, "A", "1"), line(1, "B", "1")}, 1)
	assert.Equal(t, apperr.KindDuplicateLineNumber, apperr.KindOf(err))
	assert.Equal(t, "1", apperr.As(err).Details["line_number"])
}

func TestNumber_RejectsNegative(t *testing.T) {
	_, err := Number([]record.Line{line(-1, "A", "1")}, 1)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestPrepare_NormalisesCreditsAndComputesAmounts(t *testing.T) {
	r := DefaultRules()
	in := []record.Line{
		{LineType: "PRODUCT", Quantity: dec("2"), UnitPrice: dec("12.50")},
		line(0, "PAYMENT", "25"),
		line(0, "PAYMENT", "-3"),
	}

	out, err := r.Prepare(in, 1)
	require.NoError(t, err)
	assert.True(t, out[0].LineAmount.Equal(dec("25")))
	assert.True(t, out[1].LineAmount.Equal(dec("-25")))
	assert.True(t, out[2].LineAmount.Equal(dec("-3")))
}

func TestCheckBalance_POSTicket(t *testing.T) {
	r := DefaultRules()
	lines, err := r.Prepare(posTicket(), 1)
	require.NoError(t, err)

	assert.NoError(t, r.CheckBalance(decimal.Zero, lines))
	assert.NoError(t, r.CheckBalance(dec("105"), lines))
	assert.True(t, r.Sum(lines).Net.IsZero())
}

func TestCheckBalance_Unbalanced(t *testing.T) {
	r := DefaultRules()
	lines, err := r.Prepare([]record.Line{line(0, "SERVICE", "100"), line(0, "PAYMENT", "90")}, 1)
	require.NoError(t, err)

	err = r.CheckBalance(decimal.Zero, lines)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnbalanced, apperr.KindOf(err))
	assert.Equal(t, "10", apperr.As(err).Details["net"])
}

func TestCheckBalance_TotalMismatch(t *testing.T) {
	r := DefaultRules()
	lines, err := r.Prepare(posTicket(), 1)
	require.NoError(t, err)

	err = r.CheckBalance(dec("110"), lines)
	assert.Equal(t, apperr.KindUnbalanced, apperr.KindOf(err))
	e := apperr.As(err)
	assert.Equal(t, "110", e.Details["expected_total"])
	assert.Equal(t, "105", e.Details["non_credit_total"])
}

func TestCheckBalance_WithinTolerance(t *testing.T) {
	r := DefaultRules()
	lines := []record.Line{line(1, "SERVICE", "10.004"), line(2, "PAYMENT", "-10")}
	assert.NoError(t, r.CheckBalance(decimal.Zero, lines))

	lines[0].LineAmount = dec("10.006")
	assert.Error(t, r.CheckBalance(decimal.Zero, lines))
}

func TestInvert(t *testing.T) {
	r := DefaultRules()
	lines, err := r.Prepare(posTicket(), 1)
	require.NoError(t, err)
	lines[0].ID = "l-1"
	lines[0].TransactionID = "t-1"

	inv := Invert(lines)
	require.Len(t, inv, 4)
	assert.Empty(t, inv[0].ID)
	assert.Empty(t, inv[0].TransactionID)
	assert.True(t, inv[0].LineAmount.Equal(dec("-100")))
	assert.True(t, inv[2].LineAmount.Equal(dec("60")))
	assert.Equal(t, 1, inv[0].LineNumber)
	assert.True(t, r.Sum(inv).Net.IsZero())
	assert.Equal(t, "l-1", lines[0].ID, "original unchanged")
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to record.TxnStatus
		ok       bool
	}{
		{record.TxnDraft, record.TxnPosted, true},
		{record.TxnPosted, record.TxnVoided, true},
		{record.TxnPosted, record.TxnReversed, true},
		{record.TxnPosted, record.TxnDraft, false},
		{record.TxnDraft, record.TxnVoided, false},
		{record.TxnDraft, record.TxnReversed, false},
		{record.TxnVoided, record.TxnPosted, false},
		{record.TxnReversed, record.TxnVoided, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			err := Transition("t-1", tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, apperr.KindInvalidStateTransition, apperr.KindOf(err))
			}
		})
	}
}

func TestAcceptsLines(t *testing.T) {
	assert.True(t, AcceptsLines(record.TxnDraft))
	assert.True(t, AcceptsLines(record.TxnPosted))
	assert.False(t, AcceptsLines(record.TxnVoided))
	assert.False(t, AcceptsLines(record.TxnReversed))
}

func TestEvaluate(t *testing.T) {
	r := DefaultRules()
	lines, err := r.Prepare(posTicket(), 1)
	require.NoError(t, err)
	txn := record.Transaction{ID: "t-1", SmartCode: "HERA.SALON.POS.SALE.v1", TotalAmount: dec("105")}

	rep := r.Evaluate(txn, lines)
	assert.True(t, rep.Valid)
	assert.True(t, rep.BalancedLedger)
	assert.True(t, rep.Net.IsZero())
	assert.Equal(t, 4, rep.LineCount)
	assert.Empty(t, rep.Discrepancies)
}

func TestEvaluate_ReportsDiscrepancies(t *testing.T) {
	r := DefaultRules()
	txn := record.Transaction{ID: "t-1", SmartCode: "HERA.SALON.POS.SALE.v1"}
	lines := []record.Line{
		line(1, "SERVICE", "100"),
		line(1, "PAYMENT", "-50"),
		line(3, "PAYMENT", "-40"),
	}

	rep := r.Evaluate(txn, lines)
	assert.False(t, rep.Valid)

	kinds := make([]apperr.Kind, 0, len(rep.Discrepancies))
	for _, d := range rep.Discrepancies {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, apperr.KindDuplicateLineNumber)
	assert.Contains(t, kinds, apperr.KindInvalidInput)
	assert.Contains(t, kinds, apperr.KindUnbalanced)
}

func TestEvaluate_UnbalancedIgnoredForNonLedgerTypes(t *testing.T) {
	r := DefaultRules()
	txn := record.Transaction{ID: "t-1", SmartCode: "HERA.SALON.APPT.BOOKING.v1"}
	rep := r.Evaluate(txn, []record.Line{line(1, "SERVICE", "100")})
	assert.True(t, rep.Valid)
	assert.False(t, rep.BalancedLedger)
}
