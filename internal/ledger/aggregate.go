package ledger

import (
	"fmt"
	"strings"
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
)

// Create validates cmd and returns a new ledger together with its
// LedgerCreated event.
func Create(cmd CreateLedger, now time.Time) (*Ledger, []Event, error) {
	evt, err := decideCreate(cmd, now.UTC())
	if err != nil {
		return nil, nil, err
	}
	l := &Ledger{}
	if err := l.Apply(evt); err != nil {
		return nil, nil, err
	}
	return l, []Event{evt}, nil
}

// Execute validates cmd against the current state. On success the returned
// events have been applied and must be persisted in order; on failure the
// ledger is unchanged.
func (l *Ledger) Execute(cmd Command, now time.Time) ([]Event, error) {
	events, err := l.decide(cmd, now.UTC())
	if err != nil {
		return nil, err
	}
	next := l.Clone()
	for _, evt := range events {
		if err := next.Apply(evt); err != nil {
			return nil, fmt.Errorf("apply %s: %w", evt.EventType(), err)
		}
	}
	*l = *next
	return events, nil
}

func (l *Ledger) decide(cmd Command, now time.Time) ([]Event, error) {
	switch c := cmd.(type) {
	case CreateLedger:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "ledger %s already exists", l.ID)
	case AppendExpectedTransaction:
		return one(l.decideAppendExpected(c, now))
	case AppendPaidTransaction:
		return one(l.decideAppendPaid(c, now))
	case ConfirmTransaction:
		return one(l.decideConfirm(c, now))
	case RejectTransaction:
		return one(l.decideReject(c, now))
	case EditTransaction:
		return one(l.decideEdit(c, now))
	case CreateCategory:
		return one(l.decideCreateCategory(c, now))
	case ArchiveCategory:
		return one(l.decideArchive(c, now))
	case UnarchiveCategory:
		return one(l.decideUnarchive(c, now))
	case SetBudgeting:
		return one(l.decideSetBudgeting(c, now))
	case RemoveBudgeting:
		return one(l.decideRemoveBudgeting(c, now))
	case ImportHistoricalTransaction:
		return one(l.decideImport(c, now))
	case AttestHistoricalImport:
		return l.decideAttest(c, now)
	case RolloverMonth:
		return one(l.decideRollover(now))
	case MakeMonthlyAttestation:
		return one(l.decideMonthlyAttestation(c, now))
	case CloseLedger:
		return one(l.decideClose(c, now))
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "unsupported command %T", cmd)
	}
}

func one(evt Event, err error) ([]Event, error) {
	if err != nil {
		return nil, err
	}
	return []Event{evt}, nil
}

func decideCreate(c CreateLedger, now time.Time) (Event, error) {
	if strings.TrimSpace(c.OwnerID) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "owner id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "ledger name is required")
	}
	currency := c.BankAccount.Balance.Currency
	if len(currency) != 3 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "invalid currency %q", currency)
	}

	id := c.LedgerID
	if id == "" {
		id = core.NewLedgerID()
	} else if _, err := core.ParseLedgerID(string(id)); err != nil {
		return nil, err
	}

	active := core.YearMonthOf(now)
	if c.ActivePeriod != nil {
		active = *c.ActivePeriod
	}

	account := c.BankAccount
	initial := account.Balance
	var start *core.YearMonth
	if c.StartPeriod != nil {
		if !c.StartPeriod.Before(active) {
			return nil, apperrors.WithMessage(apperrors.ErrStartPeriodNotBeforeActive,
				"start period %s must be before active period %s", c.StartPeriod, active)
		}
		sp := *c.StartPeriod
		start = &sp
		initial = core.Zero(currency)
		if c.InitialBalance != nil {
			initial = *c.InitialBalance
		}
		if initial.Currency != currency {
			return nil, apperrors.WithMessage(apperrors.ErrCurrencyMismatch,
				"initial balance currency %s differs from account currency %s", initial.Currency, currency)
		}
		account.Balance = initial
	}

	return LedgerCreated{
		LedgerID:       id,
		OwnerID:        c.OwnerID,
		Name:           strings.TrimSpace(c.Name),
		Description:    c.Description,
		BankAccount:    account,
		ActivePeriod:   active,
		StartPeriod:    start,
		InitialBalance: initial,
		OccurredAt:     now,
	}, nil
}

func (l *Ledger) requireOpen() error {
	switch l.Status {
	case StatusOpen:
		return nil
	case StatusClosed:
		return apperrors.WithMessage(apperrors.ErrLedgerClosed, "ledger %s is closed", l.ID)
	default:
		return apperrors.WithMessage(apperrors.ErrLedgerNotOpen, "ledger %s is in %s", l.ID, l.Status)
	}
}

func (l *Ledger) requireSetup() error {
	if l.Status != StatusSetup {
		return apperrors.WithMessage(apperrors.ErrLedgerNotInSetup, "ledger %s is in %s", l.ID, l.Status)
	}
	return nil
}

func (l *Ledger) requireNotClosed() error {
	if l.Status == StatusClosed {
		return apperrors.WithMessage(apperrors.ErrLedgerClosed, "ledger %s is closed", l.ID)
	}
	return nil
}

func (l *Ledger) checkAmount(m core.Money) error {
	if m.Currency != l.Currency() {
		return apperrors.WithMessage(apperrors.ErrCurrencyMismatch,
			"currency %s differs from ledger currency %s", m.Currency, l.Currency())
	}
	return m.ValidatePositive()
}

func (l *Ledger) checkDueDate(due time.Time) error {
	if due.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidArgument, "due date is required")
	}
	first, last := l.dueWindow()
	m := core.YearMonthOf(due)
	if m.Before(first) || m.After(last) {
		return apperrors.WithMessage(apperrors.ErrDueDateOutsideAllowedRange,
			"due date %s must fall between %s and %s", due.Format(time.DateOnly), first, last)
	}
	return nil
}

func (l *Ledger) checkNewTransaction(id core.TransactionID, name string, money core.Money, d core.Direction, cat category.Name) error {
	if _, err := core.ParseTransactionID(string(id)); err != nil {
		return err
	}
	if _, exists := l.Transactions[id]; exists {
		return apperrors.WithMessage(apperrors.ErrTransactionAlreadyExists, "transaction %s already exists", id)
	}
	if strings.TrimSpace(name) == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidArgument, "transaction name is required")
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if err := l.checkAmount(money); err != nil {
		return err
	}
	_, err := l.Tree(d).ResolveForPosting(cat)
	return err
}

func transactionID(id core.TransactionID) core.TransactionID {
	if id == "" {
		return core.NewTransactionID()
	}
	return id
}

func (l *Ledger) pendingTransaction(id core.TransactionID) (*Transaction, error) {
	tx, ok := l.Transactions[id]
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrTransactionNotFound, "transaction %s not found", id)
	}
	if tx.Status != core.Pending {
		return nil, apperrors.WithMessage(apperrors.ErrCashChangeIsNotOpened, "transaction %s is %s", id, tx.Status)
	}
	return tx, nil
}

func (l *Ledger) decideAppendExpected(c AppendExpectedTransaction, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	id := transactionID(c.TransactionID)
	if err := l.checkNewTransaction(id, c.Name, c.Money, c.Direction, c.Category); err != nil {
		return nil, err
	}
	if err := l.checkDueDate(c.DueDate); err != nil {
		return nil, err
	}
	return TransactionAppended{
		LedgerID:      l.ID,
		TransactionID: id,
		Name:          c.Name,
		Description:   c.Description,
		Money:         c.Money,
		Direction:     c.Direction,
		Category:      c.Category,
		CreatedAt:     orNow(c.CreatedAt, now),
		DueDate:       c.DueDate,
		SourceRuleID:  c.SourceRuleID,
		OccurredAt:    now,
	}, nil
}

func (l *Ledger) decideAppendPaid(c AppendPaidTransaction, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	id := transactionID(c.TransactionID)
	if err := l.checkNewTransaction(id, c.Name, c.Money, c.Direction, c.Category); err != nil {
		return nil, err
	}
	if err := l.checkDueDate(c.DueDate); err != nil {
		return nil, err
	}
	if c.PaidDate.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "paid date is required")
	}
	if c.PaidDate.After(now) {
		return nil, apperrors.WithMessage(apperrors.ErrPaidDateInFuture, "paid date %s is in the future", c.PaidDate.Format(time.RFC3339))
	}
	if !l.ActivePeriod.Contains(c.PaidDate) {
		return nil, apperrors.WithMessage(apperrors.ErrPaidDateOutsideActivePeriod,
			"paid date %s is outside active period %s", c.PaidDate.Format(time.DateOnly), l.ActivePeriod)
	}
	paid := c.PaidDate
	return TransactionAppended{
		LedgerID:      l.ID,
		TransactionID: id,
		Name:          c.Name,
		Description:   c.Description,
		Money:         c.Money,
		Direction:     c.Direction,
		Category:      c.Category,
		CreatedAt:     orNow(c.CreatedAt, now),
		DueDate:       c.DueDate,
		PaidDate:      &paid,
		SourceRuleID:  c.SourceRuleID,
		OccurredAt:    now,
	}, nil
}

func (l *Ledger) decideConfirm(c ConfirmTransaction, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	if _, err := l.pendingTransaction(c.TransactionID); err != nil {
		return nil, err
	}
	return TransactionConfirmed{LedgerID: l.ID, TransactionID: c.TransactionID, PaidDate: now, OccurredAt: now}, nil
}

func (l *Ledger) decideReject(c RejectTransaction, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	if _, err := l.pendingTransaction(c.TransactionID); err != nil {
		return nil, err
	}
	return TransactionRejected{LedgerID: l.ID, TransactionID: c.TransactionID, Reason: c.Reason, OccurredAt: now}, nil
}

func (l *Ledger) decideEdit(c EditTransaction, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	tx, err := l.pendingTransaction(c.TransactionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "transaction name is required")
	}
	if err := l.checkAmount(c.Money); err != nil {
		return nil, err
	}
	if err := l.checkDueDate(c.DueDate); err != nil {
		return nil, err
	}
	cat := tx.Category
	if c.Category != nil && *c.Category != tx.Category {
		if _, err := l.Tree(tx.Direction).ResolveForPosting(*c.Category); err != nil {
			return nil, err
		}
		cat = *c.Category
	}
	return TransactionEdited{
		LedgerID:      l.ID,
		TransactionID: c.TransactionID,
		Name:          c.Name,
		Description:   c.Description,
		Money:         c.Money,
		Category:      cat,
		DueDate:       c.DueDate,
		OccurredAt:    now,
	}, nil
}

func (l *Ledger) decideCreateCategory(c CreateCategory, now time.Time) (Event, error) {
	if err := l.requireNotClosed(); err != nil {
		return nil, err
	}
	if l.Status == StatusSetup && !c.ForImport {
		return nil, apperrors.WithMessage(apperrors.ErrImportFlagMissing,
			"ledger %s is in SETUP; create the category for import", l.ID)
	}
	if err := c.Direction.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(c.Name)) == "" || c.Name == category.NotDefined {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "invalid category name %q", c.Name)
	}
	parent := c.Parent
	if parent == "" {
		parent = category.NotDefined
	}
	origin := category.OriginUserCreated
	if c.ForImport {
		origin = category.OriginImported
	}
	trial := l.Tree(c.Direction).Clone()
	if err := trial.Insert(parent, &category.Category{Name: c.Name, Origin: origin, CreatedAt: now}); err != nil {
		return nil, err
	}
	return CategoryCreated{
		LedgerID:   l.ID,
		Parent:     parent,
		Name:       c.Name,
		Direction:  c.Direction,
		Origin:     origin,
		OccurredAt: now,
	}, nil
}

func (l *Ledger) decideArchive(c ArchiveCategory, now time.Time) (Event, error) {
	if err := l.requireNotClosed(); err != nil {
		return nil, err
	}
	if err := c.Direction.Validate(); err != nil {
		return nil, err
	}
	tree := l.Tree(c.Direction)
	node, err := tree.ResolveForPosting(c.Name)
	if err != nil {
		return nil, err
	}
	if node.Origin == category.OriginSystem {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "system category %q cannot be archived", c.Name)
	}
	return CategoryArchived{
		LedgerID:             l.ID,
		Name:                 c.Name,
		Direction:            c.Direction,
		ForceArchiveChildren: c.ForceArchiveChildren,
		OccurredAt:           now,
	}, nil
}

func (l *Ledger) decideUnarchive(c UnarchiveCategory, now time.Time) (Event, error) {
	if err := l.requireNotClosed(); err != nil {
		return nil, err
	}
	if err := c.Direction.Validate(); err != nil {
		return nil, err
	}
	trial := l.Tree(c.Direction).Clone()
	if err := trial.Unarchive(c.Name); err != nil {
		return nil, err
	}
	return CategoryUnarchived{LedgerID: l.ID, Name: c.Name, Direction: c.Direction, OccurredAt: now}, nil
}

func (l *Ledger) decideSetBudgeting(c SetBudgeting, now time.Time) (Event, error) {
	if err := l.requireNotClosed(); err != nil {
		return nil, err
	}
	if err := c.Direction.Validate(); err != nil {
		return nil, err
	}
	if err := l.checkAmount(c.Amount); err != nil {
		return nil, err
	}
	if _, err := l.Tree(c.Direction).ResolveForPosting(c.Name); err != nil {
		return nil, err
	}
	amount := c.Amount
	return BudgetingSet{LedgerID: l.ID, Name: c.Name, Direction: c.Direction, Amount: &amount, OccurredAt: now}, nil
}

func (l *Ledger) decideRemoveBudgeting(c RemoveBudgeting, now time.Time) (Event, error) {
	if err := l.requireNotClosed(); err != nil {
		return nil, err
	}
	if err := c.Direction.Validate(); err != nil {
		return nil, err
	}
	if _, err := l.Tree(c.Direction).ResolveForPosting(c.Name); err != nil {
		return nil, err
	}
	return BudgetingSet{LedgerID: l.ID, Name: c.Name, Direction: c.Direction, OccurredAt: now}, nil
}

func (l *Ledger) decideImport(c ImportHistoricalTransaction, now time.Time) (Event, error) {
	if err := l.requireSetup(); err != nil {
		return nil, err
	}
	id := transactionID(c.TransactionID)
	if err := l.checkNewTransaction(id, c.Name, c.Money, c.Direction, c.Category); err != nil {
		return nil, err
	}
	if c.PaidDate.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "paid date is required")
	}
	if c.PaidDate.After(now) {
		return nil, apperrors.WithMessage(apperrors.ErrPaidDateInFuture, "paid date %s is in the future", c.PaidDate.Format(time.RFC3339))
	}
	paidMonth := core.YearMonthOf(c.PaidDate)
	if l.StartPeriod != nil && paidMonth.Before(*l.StartPeriod) {
		return nil, apperrors.WithMessage(apperrors.ErrImportDateBeforeStartPeriod,
			"paid date %s is before start period %s", c.PaidDate.Format(time.DateOnly), *l.StartPeriod)
	}
	if !paidMonth.Before(l.ActivePeriod) {
		return nil, apperrors.WithMessage(apperrors.ErrImportDateNotBeforeActive,
			"paid date %s is not before active period %s", c.PaidDate.Format(time.DateOnly), l.ActivePeriod)
	}
	due := c.DueDate
	if due.IsZero() {
		due = c.PaidDate
	}
	return HistoricalTransactionImported{
		LedgerID:      l.ID,
		TransactionID: id,
		Name:          c.Name,
		Description:   c.Description,
		Money:         c.Money,
		Direction:     c.Direction,
		Category:      c.Category,
		DueDate:       due,
		PaidDate:      c.PaidDate,
		OccurredAt:    now,
	}, nil
}

// decideAttest reconciles the confirmed balance with the calculated one. A
// mismatch fails unless the caller forces it or asks for an adjustment; the
// adjustment is an imported transaction on the last day before the active
// period that closes the gap.
func (l *Ledger) decideAttest(c AttestHistoricalImport, now time.Time) ([]Event, error) {
	if err := l.requireSetup(); err != nil {
		return nil, err
	}
	if c.ConfirmedBalance.Currency != l.Currency() {
		return nil, apperrors.WithMessage(apperrors.ErrCurrencyMismatch,
			"currency %s differs from ledger currency %s", c.ConfirmedBalance.Currency, l.Currency())
	}
	calculated := l.BankAccount.Balance
	delta, err := c.ConfirmedBalance.Minus(calculated)
	if err != nil {
		return nil, err
	}

	attested := HistoricalImportAttested{
		LedgerID:          l.ID,
		ConfirmedBalance:  c.ConfirmedBalance,
		CalculatedBalance: calculated,
		ActivePeriod:      l.ActivePeriod,
		OccurredAt:        now,
	}
	if delta.IsZero() {
		return []Event{attested}, nil
	}

	switch {
	case c.CreateAdjustment:
		direction := core.Inflow
		if delta.IsNegative() {
			direction = core.Outflow
		}
		paid := l.ActivePeriod.Plus(-1).LastDay()
		adjustment := HistoricalTransactionImported{
			LedgerID:      l.ID,
			TransactionID: core.NewTransactionID(),
			Name:          "Balance adjustment",
			Description:   fmt.Sprintf("Reconciles calculated balance %s with confirmed balance %s", calculated, c.ConfirmedBalance),
			Money:         delta.Abs(),
			Direction:     direction,
			Category:      category.Uncategorized,
			DueDate:       paid,
			PaidDate:      paid,
			Adjustment:    true,
			OccurredAt:    now,
		}
		return []Event{adjustment, attested}, nil
	case c.ForceAttestation:
		attested.Forced = true
		return []Event{attested}, nil
	default:
		return nil, &apperrors.BalanceMismatchError{
			Confirmed:  c.ConfirmedBalance.Amount.StringFixed(2),
			Calculated: calculated.Amount.StringFixed(2),
			Delta:      delta.Amount.StringFixed(2),
			Currency:   l.Currency(),
		}
	}
}

func (l *Ledger) decideRollover(now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	return MonthRolledOver{
		LedgerID:   l.ID,
		From:       l.ActivePeriod,
		To:         l.ActivePeriod.Plus(1),
		Balance:    l.BankAccount.Balance,
		OccurredAt: now,
	}, nil
}

func (l *Ledger) decideMonthlyAttestation(c MakeMonthlyAttestation, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	if next := l.ActivePeriod.Plus(1); c.Period != next {
		return nil, apperrors.WithMessage(apperrors.ErrAttestationPeriodNotAdjacent,
			"attestation period %s must be %s", c.Period, next)
	}
	if c.CurrentBalance.Currency != l.Currency() {
		return nil, apperrors.WithMessage(apperrors.ErrCurrencyMismatch,
			"currency %s differs from ledger currency %s", c.CurrentBalance.Currency, l.Currency())
	}
	return MonthAttested{
		LedgerID:   l.ID,
		Previous:   l.ActivePeriod,
		Period:     c.Period,
		Balance:    c.CurrentBalance,
		OccurredAt: orNow(c.Timestamp, now),
	}, nil
}

func (l *Ledger) decideClose(c CloseLedger, now time.Time) (Event, error) {
	if err := l.requireOpen(); err != nil {
		return nil, err
	}
	return LedgerClosed{LedgerID: l.ID, Reason: c.Reason, OccurredAt: now}, nil
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
