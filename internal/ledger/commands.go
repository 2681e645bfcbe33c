package ledger

import (
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
)

// Command is a request to change a ledger. The set of commands is closed:
// every implementation lives in this file.
type Command interface {
	CommandName() string
	isCommand()
}

// CreateLedger opens a new ledger. Setting StartPeriod puts the ledger in
// SETUP so history from StartPeriod up to the active period can be imported;
// InitialBalance is then the balance at the start of StartPeriod.
type CreateLedger struct {
	LedgerID       core.LedgerID   `json:"ledger_id,omitempty"`
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	BankAccount    BankAccount     `json:"bank_account"`
	ActivePeriod   *core.YearMonth `json:"active_period,omitempty"`
	StartPeriod    *core.YearMonth `json:"start_period,omitempty"`
	InitialBalance *core.Money     `json:"initial_balance,omitempty"`
}

// AppendExpectedTransaction posts a pending transaction.
type AppendExpectedTransaction struct {
	TransactionID core.TransactionID `json:"transaction_id,omitempty"`
	Category      category.Name      `json:"category"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Direction     core.Direction     `json:"direction"`
	CreatedAt     time.Time          `json:"created_at"`
	DueDate       time.Time          `json:"due_date"`
	SourceRuleID  string             `json:"source_rule_id,omitempty"`
}

// AppendTransaction is the same command as AppendExpectedTransaction.
type AppendTransaction = AppendExpectedTransaction

// AppendPaidTransaction posts a transaction that is already settled.
type AppendPaidTransaction struct {
	TransactionID core.TransactionID `json:"transaction_id,omitempty"`
	Category      category.Name      `json:"category"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Direction     core.Direction     `json:"direction"`
	CreatedAt     time.Time          `json:"created_at"`
	DueDate       time.Time          `json:"due_date"`
	PaidDate      time.Time          `json:"paid_date"`
	SourceRuleID  string             `json:"source_rule_id,omitempty"`
}

type ConfirmTransaction struct {
	TransactionID core.TransactionID `json:"transaction_id"`
}

type RejectTransaction struct {
	TransactionID core.TransactionID `json:"transaction_id"`
	Reason        string             `json:"reason"`
}

// EditTransaction replaces the editable fields of a pending transaction. A nil
// Category keeps the current one.
type EditTransaction struct {
	TransactionID core.TransactionID `json:"transaction_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Category      *category.Name     `json:"category,omitempty"`
	DueDate       time.Time          `json:"due_date"`
}

// CreateCategory adds a category under Parent (category.NotDefined for a root).
// ForImport is required while the ledger is in SETUP.
type CreateCategory struct {
	Parent    category.Name  `json:"parent"`
	Name      category.Name  `json:"name"`
	Direction core.Direction `json:"direction"`
	ForImport bool           `json:"for_import"`
}

type ArchiveCategory struct {
	Name                 category.Name  `json:"name"`
	Direction            core.Direction `json:"direction"`
	ForceArchiveChildren bool           `json:"force_archive_children"`
}

type UnarchiveCategory struct {
	Name      category.Name  `json:"name"`
	Direction core.Direction `json:"direction"`
}

type SetBudgeting struct {
	Name      category.Name  `json:"name"`
	Direction core.Direction `json:"direction"`
	Amount    core.Money     `json:"amount"`
}

type RemoveBudgeting struct {
	Name      category.Name  `json:"name"`
	Direction core.Direction `json:"direction"`
}

// ImportHistoricalTransaction posts a settled transaction from before the
// active period. A zero DueDate defaults to PaidDate.
type ImportHistoricalTransaction struct {
	TransactionID core.TransactionID `json:"transaction_id,omitempty"`
	Category      category.Name      `json:"category"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Money         core.Money         `json:"money"`
	Direction     core.Direction     `json:"direction"`
	DueDate       time.Time          `json:"due_date"`
	PaidDate      time.Time          `json:"paid_date"`
}

// AttestHistoricalImport activates a SETUP ledger.
type AttestHistoricalImport struct {
	ConfirmedBalance core.Money `json:"confirmed_balance"`
	ForceAttestation bool       `json:"force_attestation"`
	CreateAdjustment bool       `json:"create_adjustment"`
}

// ActivateLedger is the same command as AttestHistoricalImport.
type ActivateLedger = AttestHistoricalImport

type RolloverMonth struct{}

type MakeMonthlyAttestation struct {
	Period         core.YearMonth `json:"period"`
	CurrentBalance core.Money     `json:"current_balance"`
	Timestamp      time.Time      `json:"timestamp"`
}

type CloseLedger struct {
	Reason string `json:"reason"`
}

func (CreateLedger) CommandName() string                { return "create_ledger" }
func (AppendExpectedTransaction) CommandName() string   { return "append_expected_transaction" }
func (AppendPaidTransaction) CommandName() string       { return "append_paid_transaction" }
func (ConfirmTransaction) CommandName() string          { return "confirm_transaction" }
func (RejectTransaction) CommandName() string           { return "reject_transaction" }
func (EditTransaction) CommandName() string             { return "edit_transaction" }
func (CreateCategory) CommandName() string              { return "create_category" }
func (ArchiveCategory) CommandName() string             { return "archive_category" }
func (UnarchiveCategory) CommandName() string           { return "unarchive_category" }
func (SetBudgeting) CommandName() string                { return "set_budgeting" }
func (RemoveBudgeting) CommandName() string             { return "remove_budgeting" }
func (ImportHistoricalTransaction) CommandName() string { return "import_historical_transaction" }
func (AttestHistoricalImport) CommandName() string      { return "attest_historical_import" }
func (RolloverMonth) CommandName() string               { return "rollover_month" }
func (MakeMonthlyAttestation) CommandName() string      { return "make_monthly_attestation" }
func (CloseLedger) CommandName() string                 { return "close_ledger" }

func (CreateLedger) isCommand()                {}
func (AppendExpectedTransaction) isCommand()   {}
func (AppendPaidTransaction) isCommand()       {}
func (ConfirmTransaction) isCommand()          {}
func (RejectTransaction) isCommand()           {}
func (EditTransaction) isCommand()             {}
func (CreateCategory) isCommand()              {}
func (ArchiveCategory) isCommand()             {}
func (UnarchiveCategory) isCommand()           {}
func (SetBudgeting) isCommand()                {}
func (RemoveBudgeting) isCommand()             {}
func (ImportHistoricalTransaction) isCommand() {}
func (AttestHistoricalImport) isCommand()      {}
func (RolloverMonth) isCommand()               {}
func (MakeMonthlyAttestation) isCommand()      {}
func (CloseLedger) isCommand()                 {}
