package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/ledger"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
	"github.com/roach88/recordstore/internal/value"
)

// reversalPrefix prefixes the external reference of a compensating transaction.
const reversalPrefix = "REVERSAL:"

const transactionColumns = `id, organization_id, transaction_type, transaction_code, transaction_date,
	smart_code, total_amount, currency, exchange_rate, status, external_reference, description,
	metadata, fingerprint, reversal_of_id, reversed_by_id, void_reason, voided_by, voided_at,
	version, created_at, updated_at, created_by, updated_by`

const lineColumns = `id, transaction_id, organization_id, line_number, line_type, entity_id, description,
	quantity, unit_price, line_amount, smart_code, metadata, created_at`

// storedTransaction is a header plus the payload fingerprint recorded at emit time.
type storedTransaction struct {
	record.Transaction
	fingerprint string
}

func scanTransaction(row rowScanner) (storedTransaction, error) {
	var (
		t                                storedTransaction
		date, total, rate, status        string
		extRef, metadata                 sql.NullString
		reversalOf, reversedBy, voidedAt sql.NullString
		createdAt, updatedAt             string
	)
	err := row.Scan(&t.ID, &t.OrganizationID, &t.TransactionType, &t.TransactionCode, &date,
		&t.SmartCode, &total, &t.Currency, &rate, &status, &extRef, &t.Description,
		&metadata, &t.fingerprint, &reversalOf, &reversedBy, &t.VoidReason, &t.VoidedBy, &voidedAt,
		&t.Version, &createdAt, &updatedAt, &t.CreatedBy, &t.UpdatedBy)
	if err != nil {
		return storedTransaction{}, err
	}
	t.Status = record.TxnStatus(status)
	t.ExternalReference = extRef.String
	t.Metadata = rawJSON(metadata)
	t.ReversalOfID = reversalOf.String
	t.ReversedByID = reversedBy.String
	if t.TransactionDate, err = parseTime(date); err != nil {
		return storedTransaction{}, err
	}
	if t.TotalAmount, err = parseDecimal("total_amount", total); err != nil {
		return storedTransaction{}, err
	}
	if t.ExchangeRate, err = parseDecimal("exchange_rate", rate); err != nil {
		return storedTransaction{}, err
	}
	if t.VoidedAt, err = parseNullTime(voidedAt); err != nil {
		return storedTransaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return storedTransaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return storedTransaction{}, err
	}
	return t, nil
}

func scanLine(row rowScanner) (record.Line, error) {
	var (
		l                       record.Line
		entityID, metadata      sql.NullString
		quantity, price, amount string
		createdAt               string
	)
	err := row.Scan(&l.ID, &l.TransactionID, &l.OrganizationID, &l.LineNumber, &l.LineType,
		&entityID, &l.Description, &quantity, &price, &amount, &l.SmartCode, &metadata, &createdAt)
	if err != nil {
		return record.Line{}, err
	}
	l.EntityID = entityID.String
	l.Metadata = rawJSON(metadata)
	if l.Quantity, err = parseDecimal("quantity", quantity); err != nil {
		return record.Line{}, err
	}
	if l.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
		return record.Line{}, err
	}
	if l.LineAmount, err = parseDecimal("line_amount", amount); err != nil {
		return record.Line{}, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return record.Line{}, err
	}
	return l, nil
}

func loadTransaction(ctx context.Context, q dbtx, scope tenant.Scope, id string) (storedTransaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storedTransaction{}, apperr.NotFound("transaction", id)
	}
	if err != nil {
		return storedTransaction{}, fmt.Errorf("load transaction %s: %w", id, err)
	}
	if err := tenant.Owns(scope, "transaction", id, t.OrganizationID); err != nil {
		return storedTransaction{}, err
	}
	return t, nil
}

func findByReference(ctx context.Context, q dbtx, org, ref string) (storedTransaction, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE organization_id = ? AND external_reference = ?
	`, org, ref)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storedTransaction{}, false, nil
	}
	if err != nil {
		return storedTransaction{}, false, fmt.Errorf("find transaction by reference: %w", err)
	}
	return t, true, nil
}

// loadLines returns a transaction's lines ordered by line number.
func loadLines(ctx context.Context, q dbtx, transactionID string) ([]record.Line, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+lineColumns+` FROM transaction_lines
		WHERE transaction_id = ?
		ORDER BY line_number ASC, id ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	lines := []record.Line{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lines: %w", err)
	}
	return lines, nil
}

// emissionFingerprint hashes the caller's payload as received, before defaults are applied.
func emissionFingerprint(em record.Emission) (string, error) {
	data, err := json.Marshal(em)
	if err != nil {
		return "", fmt.Errorf("encode emission: %w", err)
	}
	doc, err := value.Decode(data)
	if err != nil {
		return "", fmt.Errorf("decode emission: %w", err)
	}
	return value.Fingerprint(value.DomainEmit, doc)
}

// Emit records a transaction header and its lines as one atomic unit.
//
// A repeated emit with the same external reference returns the stored transaction with
// Replayed set and writes nothing. If the repeated payload differs from the recorded one,
// Emit fails with Conflict. Balanced ledger types must net to zero.
func (s *Store) Emit(ctx context.Context, scope tenant.Scope, em record.Emission) (record.EmitResult, error) {
	if err := tenant.Check(scope, "transaction", em.Transaction.OrganizationID); err != nil {
		return record.EmitResult{}, err
	}
	for i, l := range em.Lines {
		if err := tenant.Check(scope, "transaction line", l.OrganizationID); err != nil {
			return record.EmitResult{}, withIndex(err, "lines", i)
		}
	}
	em.Transaction.OrganizationID = tenant.Stamp(scope, em.Transaction.OrganizationID)
	em.Lines = append([]record.Line(nil), em.Lines...)
	for i := range em.Lines {
		em.Lines[i].OrganizationID = tenant.Stamp(scope, em.Lines[i].OrganizationID)
	}
	if err := record.Validate(em); err != nil {
		return record.EmitResult{}, err
	}
	if em.Transaction.ExchangeRate.IsNegative() {
		return record.EmitResult{}, apperr.Invalid("transaction.exchange_rate", "exchange_rate must not be negative")
	}
	if strings.HasPrefix(em.Transaction.ExternalReference, reversalPrefix) {
		return record.EmitResult{}, apperr.Invalid("transaction.external_reference",
			"external_reference prefix "+reversalPrefix+" is reserved for reversals")
	}

	fingerprint, err := emissionFingerprint(em)
	if err != nil {
		return record.EmitResult{}, err
	}

	txn := em.Transaction
	if txn.Status == "" {
		txn.Status = record.TxnPosted
	}
	lines, err := s.rules.Prepare(em.Lines, 1)
	if err != nil {
		return record.EmitResult{}, err
	}
	for i := range lines {
		if lines[i].SmartCode == "" {
			lines[i].SmartCode = txn.SmartCode
		}
	}
	if s.rules.IsBalancedLedger(txn.SmartCode) {
		if err := s.rules.CheckBalance(txn.TotalAmount, lines); err != nil {
			return record.EmitResult{}, err
		}
	}
	if txn.TotalAmount.IsZero() {
		txn.TotalAmount = s.rules.Sum(lines).NonCredit
	}
	if txn.Currency == "" {
		txn.Currency = s.defaultCurrency
	}
	if txn.ExchangeRate.IsZero() {
		txn.ExchangeRate = decimal.NewFromInt(1)
	}

	var out record.EmitResult
	err = s.withTx(ctx, "emit transaction", func(tx *sql.Tx) error {
		if txn.ExternalReference != "" {
			existing, found, err := findByReference(ctx, tx, scope.OrganizationID, txn.ExternalReference)
			if err != nil {
				return err
			}
			if found {
				out, err = replay(ctx, tx, existing, fingerprint)
				return err
			}
		}

		for i, l := range lines {
			if l.EntityID == "" {
				continue
			}
			if err := checkEndpoint(ctx, tx, scope, fmt.Sprintf("lines[%d].entity_id", i), l.EntityID); err != nil {
				return err
			}
		}

		stored, storedLines, err := s.insertTransaction(ctx, tx, scope, txn, lines, fingerprint)
		if err != nil && s.dialect.isUniqueViolation(err) && txn.ExternalReference != "" {
			// Lost a race on the external reference: the other emit is authoritative.
			out, err = resolveEmitRace(ctx, tx, scope.OrganizationID, txn.ExternalReference, fingerprint)
			return err
		}
		if err != nil {
			return err
		}
		out = record.EmitResult{Transaction: stored, Lines: storedLines}
		return nil
	})
	if err != nil {
		logTxnError(s, "Emit", scope, txn.ExternalReference, err)
		return record.EmitResult{}, err
	}
	return out, nil
}

// resolveEmitRace answers an emit that lost the unique index on its external reference.
// Under REPEATABLE READ the winning row may be invisible to this transaction, which is
// reported as Conflict.
func resolveEmitRace(ctx context.Context, q dbtx, orgID, reference, fingerprint string) (record.EmitResult, error) {
	existing, found, err := findByReference(ctx, q, orgID, reference)
	if err != nil {
		return record.EmitResult{}, err
	}
	if !found {
		return record.EmitResult{}, apperr.Conflict("transaction emitted concurrently").
			WithField("transaction.external_reference").
			WithDetail("external_reference", reference)
	}
	return replay(ctx, q, existing, fingerprint)
}

func replay(ctx context.Context, q dbtx, existing storedTransaction, fingerprint string) (record.EmitResult, error) {
	if existing.fingerprint != fingerprint {
		return record.EmitResult{}, apperr.Conflict("external_reference was already used with a different payload").
			WithField("transaction.external_reference").
			WithDetail("external_reference", existing.ExternalReference).
			WithDetail("id", existing.ID)
	}
	lines, err := loadLines(ctx, q, existing.ID)
	if err != nil {
		return record.EmitResult{}, err
	}
	return record.EmitResult{Transaction: existing.Transaction, Lines: lines, Replayed: true}, nil
}

// insertTransaction writes a header and its already-prepared lines.
func (s *Store) insertTransaction(ctx context.Context, q dbtx, scope tenant.Scope, txn record.Transaction, lines []record.Line, fingerprint string) (record.Transaction, []record.Line, error) {
	metadata, err := jsonText("transaction.metadata", txn.Metadata)
	if err != nil {
		return record.Transaction{}, nil, err
	}
	now := s.now()
	actor := scope.ActorOr(systemActor)

	txn.ID = s.ids.Generate()
	txn.OrganizationID = scope.OrganizationID
	if txn.TransactionDate.IsZero() {
		txn.TransactionDate = now
	}
	txn.TransactionDate = txn.TransactionDate.UTC()
	txn.Metadata = rawJSON(metadata)
	txn.Version = 1
	txn.CreatedAt, txn.UpdatedAt = now, now
	txn.CreatedBy, txn.UpdatedBy = actor, actor

	_, err = q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, organization_id, transaction_type, transaction_code, transaction_date, smart_code,
		 total_amount, currency, exchange_rate, status, external_reference, description, metadata,
		 fingerprint, reversal_of_id, reversed_by_id, void_reason, voided_by, voided_at,
		 version, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID, txn.OrganizationID, txn.TransactionType, txn.TransactionCode,
		formatTime(txn.TransactionDate), txn.SmartCode, decimalText(txn.TotalAmount), txn.Currency,
		decimalText(txn.ExchangeRate), string(txn.Status), nullString(txn.ExternalReference),
		txn.Description, metadata, fingerprint, nullString(txn.ReversalOfID), nullString(txn.ReversedByID),
		txn.VoidReason, txn.VoidedBy, nullTime(txn.VoidedAt),
		txn.Version, formatTime(now), formatTime(now), actor, actor,
	)
	if err != nil {
		return record.Transaction{}, nil, fmt.Errorf("insert transaction: %w", err)
	}

	stored, err := s.insertLines(ctx, q, txn.ID, scope.OrganizationID, lines, now)
	if err != nil {
		return record.Transaction{}, nil, err
	}
	return txn, stored, nil
}

func (s *Store) insertLines(ctx context.Context, q dbtx, transactionID, org string, lines []record.Line, now time.Time) ([]record.Line, error) {
	out := make([]record.Line, 0, len(lines))
	for i, l := range lines {
		metadata, err := jsonText(fmt.Sprintf("lines[%d].metadata", i), l.Metadata)
		if err != nil {
			return nil, err
		}
		l.ID = s.ids.Generate()
		l.TransactionID = transactionID
		l.OrganizationID = org
		l.Metadata = rawJSON(metadata)
		l.CreatedAt = now

		_, err = q.ExecContext(ctx, `
			INSERT INTO transaction_lines
			(id, transaction_id, organization_id, line_number, line_type, entity_id, description,
			 quantity, unit_price, line_amount, smart_code, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			l.ID, l.TransactionID, l.OrganizationID, l.LineNumber, l.LineType, nullString(l.EntityID),
			l.Description, decimalText(l.Quantity), decimalText(l.UnitPrice), decimalText(l.LineAmount),
			l.SmartCode, metadata, formatTime(now),
		)
		if err != nil {
			if s.dialect.isUniqueViolation(err) {
				return nil, apperr.DuplicateLineNumber(l.LineNumber)
			}
			return nil, fmt.Errorf("insert line %d: %w", l.LineNumber, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Post moves a draft transaction to posted.
func (s *Store) Post(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Transaction{}, err
	}

	var out record.Transaction
	err := s.withTx(ctx, "post transaction", func(tx *sql.Tx) error {
		t, err := loadTransaction(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if err := ledger.Transition(id, t.Status, record.TxnPosted); err != nil {
			return err
		}
		out, err = s.setStatus(ctx, tx, scope, t.Transaction, record.TxnPosted)
		return err
	})
	if err != nil {
		return record.Transaction{}, err
	}
	return out, nil
}

// setStatus writes a status change guarded by the status read in the same transaction.
func (s *Store) setStatus(ctx context.Context, q dbtx, scope tenant.Scope, t record.Transaction, to record.TxnStatus) (record.Transaction, error) {
	now := s.now()
	actor := scope.ActorOr(systemActor)
	t.Version++
	t.UpdatedAt = now
	t.UpdatedBy = actor

	from := t.Status
	t.Status = to
	res, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, reversed_by_id = ?, void_reason = ?, voided_by = ?, voided_at = ?,
		    version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND organization_id = ? AND status = ?
	`,
		string(to), nullString(t.ReversedByID), t.VoidReason, t.VoidedBy, nullTime(t.VoidedAt),
		t.Version, formatTime(now), actor, t.ID, t.OrganizationID, string(from),
	)
	if err != nil {
		return record.Transaction{}, fmt.Errorf("update transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return record.Transaction{}, fmt.Errorf("update transaction status: %w", err)
	}
	if n == 0 {
		return record.Transaction{}, apperr.InvalidStateTransition(t.ID, string(from), string(to))
	}
	return t, nil
}

// AppendLines adds lines to a draft or posted transaction and recomputes total_amount.
//
// New lines are numbered after the existing ones; supplied numbers only order the batch.
// For balanced ledger types the appended set must itself net to zero.
func (s *Store) AppendLines(ctx context.Context, scope tenant.Scope, id string, lines []record.Line) (record.EmitResult, error) {
	if err := tenant.Require(scope); err != nil {
		return record.EmitResult{}, err
	}
	if len(lines) == 0 {
		return record.EmitResult{}, apperr.Invalid("lines", "at least one line is required")
	}
	for i, l := range lines {
		if err := tenant.Check(scope, "transaction line", l.OrganizationID); err != nil {
			return record.EmitResult{}, withIndex(err, "lines", i)
		}
		if err := record.Validate(l); err != nil {
			return record.EmitResult{}, withIndex(err, "lines", i)
		}
	}

	var out record.EmitResult
	err := s.withTx(ctx, "append lines", func(tx *sql.Tx) error {
		t, err := loadTransaction(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if !ledger.AcceptsLines(t.Status) {
			return apperr.Newf(apperr.KindInvalidStateTransition, "lines cannot be appended to a %s transaction", t.Status).
				WithField("status").
				WithDetail("id", id).
				WithDetail("from", string(t.Status))
		}

		existing, err := loadLines(ctx, tx, id)
		if err != nil {
			return err
		}
		next := 1
		for _, l := range existing {
			if l.LineNumber >= next {
				next = l.LineNumber + 1
			}
		}

		prepared, err := s.rules.Prepare(lines, next)
		if err != nil {
			return err
		}
		for i := range prepared {
			if prepared[i].SmartCode == "" {
				prepared[i].SmartCode = t.SmartCode
			}
			if prepared[i].EntityID != "" {
				field := fmt.Sprintf("lines[%d].entity_id", i)
				if err := checkEndpoint(ctx, tx, scope, field, prepared[i].EntityID); err != nil {
					return err
				}
			}
		}
		if s.rules.IsBalancedLedger(t.SmartCode) {
			if err := s.rules.CheckBalance(decimal.Zero, prepared); err != nil {
				return err
			}
		}

		now := s.now()
		added, err := s.insertLines(ctx, tx, id, scope.OrganizationID, prepared, now)
		if err != nil {
			return err
		}
		all := append(existing, added...)

		txn := t.Transaction
		txn.TotalAmount = s.rules.Sum(all).NonCredit
		txn.Version++
		txn.UpdatedAt = now
		txn.UpdatedBy = scope.ActorOr(systemActor)
		_, err = tx.ExecContext(ctx, `
			UPDATE transactions SET total_amount = ?, version = ?, updated_at = ?, updated_by = ?
			WHERE id = ? AND organization_id = ?
		`, decimalText(txn.TotalAmount), txn.Version, formatTime(now), txn.UpdatedBy, id, scope.OrganizationID)
		if err != nil {
			return fmt.Errorf("update transaction total: %w", err)
		}
		out = record.EmitResult{Transaction: txn, Lines: all}
		return nil
	})
	if err != nil {
		return record.EmitResult{}, err
	}
	return out, nil
}

// Void marks a posted transaction voided. Lines are left untouched. A reason is required.
func (s *Store) Void(ctx context.Context, scope tenant.Scope, id, reason string) (record.Transaction, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Transaction{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return record.Transaction{}, apperr.Invalid("reason", "a void reason is required")
	}

	var out record.Transaction
	err := s.withTx(ctx, "void transaction", func(tx *sql.Tx) error {
		t, err := loadTransaction(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if err := ledger.Transition(id, t.Status, record.TxnVoided); err != nil {
			return err
		}
		now := s.now()
		txn := t.Transaction
		txn.VoidReason = reason
		txn.VoidedBy = scope.ActorOr(systemActor)
		txn.VoidedAt = &now
		out, err = s.setStatus(ctx, tx, scope, txn, record.TxnVoided)
		return err
	})
	if err != nil {
		logTxnError(s, "Void", scope, id, err)
		return record.Transaction{}, err
	}
	return out, nil
}

// Reverse creates a posted compensating transaction with sign-inverted copies of every line
// and flags the original reversed. Both happen in one database transaction.
//
// The reversal references the original through reversal_of_id and carries the external
// reference REVERSAL:<original id>. date defaults to now.
func (s *Store) Reverse(ctx context.Context, scope tenant.Scope, id, reason string, date *time.Time) (record.ReverseResult, error) {
	if err := tenant.Require(scope); err != nil {
		return record.ReverseResult{}, err
	}

	var out record.ReverseResult
	err := s.withTx(ctx, "reverse transaction", func(tx *sql.Tx) error {
		t, err := loadTransaction(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if err := ledger.Transition(id, t.Status, record.TxnReversed); err != nil {
			return err
		}
		lines, err := loadLines(ctx, tx, id)
		if err != nil {
			return err
		}

		rev := record.Transaction{
			OrganizationID:    scope.OrganizationID,
			TransactionType:   t.TransactionType,
			TransactionCode:   t.TransactionCode,
			SmartCode:         t.SmartCode,
			TotalAmount:       t.TotalAmount.Neg(),
			Currency:          t.Currency,
			ExchangeRate:      t.ExchangeRate,
			Status:            record.TxnPosted,
			ExternalReference: reversalPrefix + id,
			Description:       strings.TrimSpace(reason),
			ReversalOfID:      id,
		}
		if date != nil {
			rev.TransactionDate = *date
		}
		inverted := ledger.Invert(lines)
		fingerprint, err := emissionFingerprint(record.Emission{Transaction: rev, Lines: inverted})
		if err != nil {
			return err
		}

		reversal, revLines, err := s.insertTransaction(ctx, tx, scope, rev, inverted, fingerprint)
		if err != nil {
			if s.dialect.isUniqueViolation(err) {
				return apperr.Conflict("transaction was already reversed").WithDetail("id", id)
			}
			return err
		}

		orig := t.Transaction
		orig.ReversedByID = reversal.ID
		original, err := s.setStatus(ctx, tx, scope, orig, record.TxnReversed)
		if err != nil {
			return err
		}
		out = record.ReverseResult{Original: original, Reversal: reversal, Lines: revLines}
		return nil
	})
	if err != nil {
		logTxnError(s, "Reverse", scope, id, err)
		return record.ReverseResult{}, err
	}
	return out, nil
}

// ValidateTransaction re-checks a stored transaction without changing it.
func (s *Store) ValidateTransaction(ctx context.Context, scope tenant.Scope, id string) (ledger.Report, error) {
	t, lines, err := s.transactionWithLines(ctx, scope, id)
	if err != nil {
		return ledger.Report{}, err
	}
	return s.rules.Evaluate(t, lines), nil
}

// GetTransaction returns one transaction header.
func (s *Store) GetTransaction(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Transaction{}, err
	}
	t, err := loadTransaction(ctx, s.db, scope, id)
	if err != nil {
		return record.Transaction{}, err
	}
	return t.Transaction, nil
}

// GetLines returns a transaction's lines ordered by line_number.
func (s *Store) GetLines(ctx context.Context, scope tenant.Scope, id string) ([]record.Line, error) {
	_, lines, err := s.transactionWithLines(ctx, scope, id)
	return lines, err
}

func (s *Store) transactionWithLines(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, []record.Line, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Transaction{}, nil, err
	}
	t, err := loadTransaction(ctx, s.db, scope, id)
	if err != nil {
		return record.Transaction{}, nil, err
	}
	lines, err := loadLines(ctx, s.db, id)
	if err != nil {
		return record.Transaction{}, nil, err
	}
	return t.Transaction, lines, nil
}

// SearchTransactions returns the tenant's transactions matching f, ordered by
// transaction_date, id. Date bounds are inclusive.
func (s *Store) SearchTransactions(ctx context.Context, scope tenant.Scope, f record.TxnFilter) ([]record.Transaction, error) {
	if err := tenant.Require(scope); err != nil {
		return nil, err
	}
	if err := record.Validate(f); err != nil {
		return nil, err
	}
	if err := checkPattern(f.SmartCode); err != nil {
		return nil, err
	}

	w := &where{}
	w.add("organization_id = ?", scope.OrganizationID)
	if f.TransactionType != "" {
		w.add("transaction_type = ?", f.TransactionType)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.ExternalReference != "" {
		w.add("external_reference = ?", f.ExternalReference)
	}
	if f.From != nil {
		w.add("transaction_date >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		w.add("transaction_date <= ?", formatTime(*f.To))
	}

	limit, offset := s.page(f.Limit, f.Offset)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + w.String() + ` ORDER BY transaction_date ASC, id ASC`
	args := w.args
	if f.SmartCode == "" {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []record.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t.Transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	if f.SmartCode != "" {
		txns = matchCode(txns, f.SmartCode, func(t record.Transaction) string { return t.SmartCode })
		txns = window(txns, limit, offset)
	}
	return txns, nil
}
