package ledger

import (
	"fmt"

	"cashflow/internal/category"
	"cashflow/internal/core"
)

// Apply folds one event into the state. It performs no business validation:
// anything it rejects means the event stream itself is inconsistent.
func (l *Ledger) Apply(evt Event) error {
	if _, created := evt.(LedgerCreated); created != (l.Version == 0) {
		return fmt.Errorf("%s cannot be applied at version %d", evt.EventType(), l.Version)
	}

	var err error
	switch e := evt.(type) {
	case LedgerCreated:
		l.applyCreated(e)
	case TransactionAppended:
		err = l.applyAppended(e)
	case TransactionConfirmed:
		err = l.applyConfirmed(e)
	case TransactionRejected:
		err = l.applyRejected(e)
	case TransactionEdited:
		err = l.applyEdited(e)
	case CategoryCreated:
		err = l.Tree(e.Direction).Insert(e.Parent, &category.Category{Name: e.Name, Origin: e.Origin, CreatedAt: e.OccurredAt})
	case CategoryArchived:
		err = l.Tree(e.Direction).Archive(e.Name, e.ForceArchiveChildren, e.OccurredAt)
	case CategoryUnarchived:
		err = l.Tree(e.Direction).Unarchive(e.Name)
	case BudgetingSet:
		err = l.applyBudgeting(e)
	case HistoricalTransactionImported:
		err = l.applyImported(e)
	case HistoricalImportAttested:
		l.Status = StatusOpen
		l.BankAccount.Balance = e.ConfirmedBalance
	case MonthRolledOver:
		l.ActivePeriod = e.To
	case MonthAttested:
		l.ActivePeriod = e.Period
		l.BankAccount.Balance = e.Balance
	case LedgerClosed:
		l.Status = StatusClosed
	default:
		err = fmt.Errorf("unsupported event %T", evt)
	}
	if err != nil {
		return err
	}

	sum, err := Checksum(evt)
	if err != nil {
		return err
	}
	l.Version++
	l.LastModified = evt.OccurredOn()
	l.LastEventChecksum = sum
	return nil
}

func (l *Ledger) applyCreated(e LedgerCreated) {
	l.ID = e.LedgerID
	l.OwnerID = e.OwnerID
	l.Name = e.Name
	l.Description = e.Description
	l.BankAccount = e.BankAccount
	l.ActivePeriod = e.ActivePeriod
	l.InitialBalance = e.InitialBalance
	l.Transactions = make(map[core.TransactionID]*Transaction)
	l.Inflows = category.NewTree(e.OccurredAt)
	l.Outflows = category.NewTree(e.OccurredAt)
	l.CreatedAt = e.OccurredAt
	l.Status = StatusOpen
	if e.StartPeriod != nil {
		sp := *e.StartPeriod
		l.StartPeriod = &sp
		l.Status = StatusSetup
	}
}

func (l *Ledger) applyAppended(e TransactionAppended) error {
	if _, exists := l.Transactions[e.TransactionID]; exists {
		return fmt.Errorf("transaction %s appended twice", e.TransactionID)
	}
	tx := &Transaction{
		ID:           e.TransactionID,
		Name:         e.Name,
		Description:  e.Description,
		Money:        e.Money,
		Direction:    e.Direction,
		Category:     e.Category,
		Status:       core.Pending,
		CreatedAt:    e.CreatedAt,
		DueDate:      e.DueDate,
		SourceRuleID: e.SourceRuleID,
	}
	l.Transactions[tx.ID] = tx
	if e.PaidDate == nil {
		return nil
	}
	paid := *e.PaidDate
	tx.PaidDate = &paid
	tx.Status = core.Confirmed
	return l.settle(tx)
}

func (l *Ledger) applyConfirmed(e TransactionConfirmed) error {
	tx, ok := l.Transactions[e.TransactionID]
	if !ok || tx.Status != core.Pending {
		return fmt.Errorf("transaction %s is not pending", e.TransactionID)
	}
	paid := e.PaidDate
	tx.PaidDate = &paid
	tx.Status = core.Confirmed
	return l.settle(tx)
}

func (l *Ledger) applyRejected(e TransactionRejected) error {
	tx, ok := l.Transactions[e.TransactionID]
	if !ok || tx.Status != core.Pending {
		return fmt.Errorf("transaction %s is not pending", e.TransactionID)
	}
	tx.Status = core.Rejected
	tx.RejectReason = e.Reason
	return nil
}

func (l *Ledger) applyEdited(e TransactionEdited) error {
	tx, ok := l.Transactions[e.TransactionID]
	if !ok || tx.Status != core.Pending {
		return fmt.Errorf("transaction %s is not pending", e.TransactionID)
	}
	tx.Name = e.Name
	tx.Description = e.Description
	tx.Money = e.Money
	tx.Category = e.Category
	tx.DueDate = e.DueDate
	return nil
}

func (l *Ledger) applyBudgeting(e BudgetingSet) error {
	tree := l.Tree(e.Direction)
	if e.Amount == nil {
		return tree.RemoveBudget(e.Name)
	}
	return tree.SetBudget(e.Name, *e.Amount, e.OccurredAt)
}

func (l *Ledger) applyImported(e HistoricalTransactionImported) error {
	if _, exists := l.Transactions[e.TransactionID]; exists {
		return fmt.Errorf("transaction %s imported twice", e.TransactionID)
	}
	paid := e.PaidDate
	tx := &Transaction{
		ID:          e.TransactionID,
		Name:        e.Name,
		Description: e.Description,
		Money:       e.Money,
		Direction:   e.Direction,
		Category:    e.Category,
		Status:      core.Confirmed,
		CreatedAt:   e.OccurredAt,
		DueDate:     e.DueDate,
		PaidDate:    &paid,
		Imported:    true,
	}
	l.Transactions[tx.ID] = tx
	return l.settle(tx)
}

// settle moves a confirmed transaction into the bank balance.
func (l *Ledger) settle(tx *Transaction) error {
	var (
		balance core.Money
		err     error
	)
	if tx.Direction == core.Inflow {
		balance, err = l.BankAccount.Balance.Plus(tx.Money)
	} else {
		balance, err = l.BankAccount.Balance.Minus(tx.Money)
	}
	if err != nil {
		return err
	}
	l.BankAccount.Balance = balance
	return nil
}
