package ledger

import (
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
)

// Type names an event on the wire and in the event log.
type Type string

const (
	TypeLedgerCreated                 Type = "ledger.created"
	TypeTransactionAppended           Type = "transaction.appended"
	TypeTransactionConfirmed          Type = "transaction.confirmed"
	TypeTransactionRejected           Type = "transaction.rejected"
	TypeTransactionEdited             Type = "transaction.edited"
	TypeCategoryCreated               Type = "category.created"
	TypeCategoryArchived              Type = "category.archived"
	TypeCategoryUnarchived            Type = "category.unarchived"
	TypeBudgetingSet                  Type = "category.budgeting_set"
	TypeHistoricalTransactionImported Type = "history.transaction_imported"
	TypeHistoricalImportAttested      Type = "history.import_attested"
	TypeMonthRolledOver               Type = "month.rolled_over"
	TypeMonthAttested                 Type = "month.attested"
	TypeLedgerClosed                  Type = "ledger.closed"
)

// Event is a fact recorded against a ledger. Like Command, the set is closed.
type Event interface {
	EventType() Type
	AggregateID() core.LedgerID
	OccurredOn() time.Time
	isEvent()
}

type LedgerCreated struct {
	LedgerID       core.LedgerID   `json:"ledger_id"`
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	BankAccount    BankAccount     `json:"bank_account"`
	ActivePeriod   core.YearMonth  `json:"active_period"`
	StartPeriod    *core.YearMonth `json:"start_period,omitempty"`
	InitialBalance core.Money      `json:"initial_balance"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// TransactionAppended carries a non-nil PaidDate when the transaction was
// appended already settled.
type TransactionAppended struct {
	LedgerID      core.LedgerID      `json:"ledger_id"`
	TransactionID core.TransactionID `json:"transaction_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Direction     core.Direction     `json:"direction"`
	Category      category.Name      `json:"category"`
	CreatedAt     time.Time          `json:"created_at"`
	DueDate       time.Time          `json:"due_date"`
	PaidDate      *time.Time         `json:"paid_date,omitempty"`
	SourceRuleID  string             `json:"source_rule_id,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

type TransactionConfirmed struct {
	LedgerID      core.LedgerID      `json:"ledger_id"`
	TransactionID core.TransactionID `json:"transaction_id"`
	PaidDate      time.Time          `json:"paid_date"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

type TransactionRejected struct {
	LedgerID      core.LedgerID      `json:"ledger_id"`
	TransactionID core.TransactionID `json:"transaction_id"`
	Reason        string             `json:"reason"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

// TransactionEdited carries the full set of editable fields after the edit.
type TransactionEdited struct {
	LedgerID      core.LedgerID      `json:"ledger_id"`
	TransactionID core.TransactionID `json:"transaction_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Category      category.Name      `json:"category"`
	DueDate       time.Time          `json:"due_date"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

type CategoryCreated struct {
	LedgerID   core.LedgerID   `json:"ledger_id"`
	Parent     category.Name   `json:"parent"`
	Name       category.Name   `json:"name"`
	Direction  core.Direction  `json:"direction"`
	Origin     category.Origin `json:"origin"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type CategoryArchived struct {
	LedgerID             core.LedgerID  `json:"ledger_id"`
	Name                 category.Name  `json:"name"`
	Direction            core.Direction `json:"direction"`
	ForceArchiveChildren bool           `json:"force_archive_children"`
	OccurredAt           time.Time      `json:"occurred_at"`
}

type CategoryUnarchived struct {
	LedgerID   core.LedgerID  `json:"ledger_id"`
	Name       category.Name  `json:"name"`
	Direction  core.Direction `json:"direction"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// BudgetingSet attaches a budget to a category. A nil Amount removes it.
type BudgetingSet struct {
	LedgerID   core.LedgerID  `json:"ledger_id"`
	Name       category.Name  `json:"name"`
	Direction  core.Direction `json:"direction"`
	Amount     *core.Money    `json:"amount,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// HistoricalTransactionImported is a settled transaction from before the
// active period. Adjustment marks the balancing entry created on attestation.
type HistoricalTransactionImported struct {
	LedgerID      core.LedgerID      `json:"ledger_id"`
	TransactionID core.TransactionID `json:"transaction_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Direction     core.Direction     `json:"direction"`
	Category      category.Name      `json:"category"`
	DueDate       time.Time          `json:"due_date"`
	PaidDate      time.Time          `json:"paid_date"`
	Adjustment    bool               `json:"adjustment,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

type HistoricalImportAttested struct {
	LedgerID          core.LedgerID  `json:"ledger_id"`
	ConfirmedBalance  core.Money     `json:"confirmed_balance"`
	CalculatedBalance core.Money     `json:"calculated_balance"`
	Forced            bool           `json:"forced"`
	ActivePeriod      core.YearMonth `json:"active_period"`
	OccurredAt        time.Time      `json:"occurred_at"`
}

type MonthRolledOver struct {
	LedgerID   core.LedgerID  `json:"ledger_id"`
	From       core.YearMonth `json:"from"`
	To         core.YearMonth `json:"to"`
	Balance    core.Money     `json:"balance"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// MonthAttested closes Previous and makes Period the active month with the
// attested balance.
type MonthAttested struct {
	LedgerID   core.LedgerID  `json:"ledger_id"`
	Previous   core.YearMonth `json:"previous"`
	Period     core.YearMonth `json:"period"`
	Balance    core.Money     `json:"balance"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type LedgerClosed struct {
	LedgerID   core.LedgerID `json:"ledger_id"`
	Reason     string        `json:"reason"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func (LedgerCreated) EventType() Type                 { return TypeLedgerCreated }
func (TransactionAppended) EventType() Type           { return TypeTransactionAppended }
func (TransactionConfirmed) EventType() Type          { return TypeTransactionConfirmed }
func (TransactionRejected) EventType() Type           { return TypeTransactionRejected }
func (TransactionEdited) EventType() Type             { return TypeTransactionEdited }
func (CategoryCreated) EventType() Type               { return TypeCategoryCreated }
func (CategoryArchived) EventType() Type              { return TypeCategoryArchived }
func (CategoryUnarchived) EventType() Type            { return TypeCategoryUnarchived }
func (BudgetingSet) EventType() Type                  { return TypeBudgetingSet }
func (HistoricalTransactionImported) EventType() Type { return TypeHistoricalTransactionImported }
func (HistoricalImportAttested) EventType() Type      { return TypeHistoricalImportAttested }
func (MonthRolledOver) EventType() Type               { return TypeMonthRolledOver }
func (MonthAttested) EventType() Type                 { return TypeMonthAttested }
func (LedgerClosed) EventType() Type                  { return TypeLedgerClosed }

func (e LedgerCreated) AggregateID() core.LedgerID                 { return e.LedgerID }
func (e TransactionAppended) AggregateID() core.LedgerID           { return e.LedgerID }
func (e TransactionConfirmed) AggregateID() core.LedgerID          { return e.LedgerID }
func (e TransactionRejected) AggregateID() core.LedgerID           { return e.LedgerID }
func (e TransactionEdited) AggregateID() core.LedgerID             { return e.LedgerID }
func (e CategoryCreated) AggregateID() core.LedgerID               { return e.LedgerID }
func (e CategoryArchived) AggregateID() core.LedgerID              { return e.LedgerID }
func (e CategoryUnarchived) AggregateID() core.LedgerID            { return e.LedgerID }
func (e BudgetingSet) AggregateID() core.LedgerID                  { return e.LedgerID }
func (e HistoricalTransactionImported) AggregateID() core.LedgerID { return e.LedgerID }
func (e HistoricalImportAttested) AggregateID() core.LedgerID      { return e.LedgerID }
func (e MonthRolledOver) AggregateID() core.LedgerID               { return e.LedgerID }
func (e MonthAttested) AggregateID() core.LedgerID                 { return e.LedgerID }
func (e LedgerClosed) AggregateID() core.LedgerID                  { return e.LedgerID }

func (e LedgerCreated) OccurredOn() time.Time                 { return e.OccurredAt }
func (e TransactionAppended) OccurredOn() time.Time           { return e.OccurredAt }
func (e TransactionConfirmed) OccurredOn() time.Time          { return e.OccurredAt }
func (e TransactionRejected) OccurredOn() time.Time           { return e.OccurredAt }
func (e TransactionEdited) OccurredOn() time.Time             { return e.OccurredAt }
func (e CategoryCreated) OccurredOn() time.Time               { return e.OccurredAt }
func (e CategoryArchived) OccurredOn() time.Time              { return e.OccurredAt }
func (e CategoryUnarchived) OccurredOn() time.Time            { return e.OccurredAt }
func (e BudgetingSet) OccurredOn() time.Time                  { return e.OccurredAt }
func (e HistoricalTransactionImported) OccurredOn() time.Time { return e.OccurredAt }
func (e HistoricalImportAttested) OccurredOn() time.Time      { return e.OccurredAt }
func (e MonthRolledOver) OccurredOn() time.Time               { return e.OccurredAt }
func (e MonthAttested) OccurredOn() time.Time                 { return e.OccurredAt }
func (e LedgerClosed) OccurredOn() time.Time                  { return e.OccurredAt }

func (LedgerCreated) isEvent()                 {}
func (TransactionAppended) isEvent()           {}
func (TransactionConfirmed) isEvent()          {}
func (TransactionRejected) isEvent()           {}
func (TransactionEdited) isEvent()             {}
func (CategoryCreated) isEvent()               {}
func (CategoryArchived) isEvent()              {}
func (CategoryUnarchived) isEvent()            {}
func (BudgetingSet) isEvent()                  {}
func (HistoricalTransactionImported) isEvent() {}
func (HistoricalImportAttested) isEvent()      {}
func (MonthRolledOver) isEvent()               {}
func (MonthAttested) isEvent()                 {}
func (LedgerClosed) isEvent()                  {}
