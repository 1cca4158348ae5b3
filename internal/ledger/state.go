package ledger

import (
	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
)

var transitions = map[record.TxnStatus][]record.TxnStatus{
	record.TxnDraft:  {record.TxnPosted},
	record.TxnPosted: {record.TxnVoided, record.TxnReversed},
}

// CanTransition reports whether a transaction may move from one status to another.
// voided and reversed are terminal.
func CanTransition(from, to record.TxnStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns InvalidStateTransition unless from → to is allowed.
func Transition(id string, from, to record.TxnStatus) error {
	if !CanTransition(from, to) {
		return apperr.InvalidStateTransition(id, string(from), string(to))
	}
	return nil
}

// AcceptsLines reports whether lines may still be appended in status s.
func AcceptsLines(s record.TxnStatus) bool {
	return s == record.TxnDraft || s == record.TxnPosted
}
