// Package ledger implements the cash-flow ledger aggregate.
//
// The aggregate is event sourced: Execute validates a command against the
// current state and returns the events it produced, already applied. Apply is
// the only way state changes, which is what lets Replay rebuild a ledger from
// its event log and get the same state the live aggregate had.
package ledger

import (
	"encoding/json"
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
)

// Status is the operating mode of a ledger.
type Status string

const (
	// StatusSetup accepts historical imports until the import is attested.
	StatusSetup Status = "SETUP"
	// StatusOpen is the normal operating mode.
	StatusOpen Status = "OPEN"
	// StatusClosed rejects every command.
	StatusClosed Status = "CLOSED"
)

// forecastHorizon is how many months past the active one a due date may fall.
const forecastHorizon = 11

// BankAccount backs a ledger.
type BankAccount struct {
	Name          string     `json:"name"`
	AccountNumber string     `json:"account_number"`
	Balance       core.Money `json:"balance"`
}

// Transaction is a single cash change.
type Transaction struct {
	ID           core.TransactionID     `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Money        core.Money             `json:"money"`
	Direction    core.Direction         `json:"direction"`
	Category     category.Name          `json:"category"`
	Status       core.TransactionStatus `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	DueDate      time.Time              `json:"due_date"`
	PaidDate     *time.Time             `json:"paid_date,omitempty"`
	SourceRuleID string                 `json:"source_rule_id,omitempty"`
	RejectReason string                 `json:"reject_reason,omitempty"`
	Imported     bool                   `json:"imported,omitempty"`
}

// Ledger is the aggregate state.
type Ledger struct {
	ID                core.LedgerID                       `json:"id"`
	OwnerID           string                              `json:"owner_id"`
	Name              string                              `json:"name"`
	Description       string                              `json:"description"`
	BankAccount       BankAccount                         `json:"bank_account"`
	Status            Status                              `json:"status"`
	ActivePeriod      core.YearMonth                      `json:"active_period"`
	StartPeriod       *core.YearMonth                     `json:"start_period,omitempty"`
	InitialBalance    core.Money                          `json:"initial_balance"`
	Transactions      map[core.TransactionID]*Transaction `json:"transactions"`
	Inflows           category.Tree                       `json:"inflows"`
	Outflows          category.Tree                       `json:"outflows"`
	CreatedAt         time.Time                           `json:"created_at"`
	LastModified      time.Time                           `json:"last_modified"`
	Version           uint64                              `json:"version"`
	LastEventChecksum string                              `json:"last_event_checksum"`
}

// Currency is the currency of the bank account.
func (l *Ledger) Currency() string {
	return l.BankAccount.Balance.Currency
}

// Tree returns the category tree for a direction.
func (l *Ledger) Tree(d core.Direction) *category.Tree {
	if d == core.Inflow {
		return &l.Inflows
	}
	return &l.Outflows
}

// Transaction looks up a transaction by id.
func (l *Ledger) Transaction(id core.TransactionID) (*Transaction, bool) {
	tx, ok := l.Transactions[id]
	return tx, ok
}

// Snapshot serialises the full state. Two ledgers with equal snapshots are
// considered identical.
func (l *Ledger) Snapshot() ([]byte, error) {
	return json.Marshal(l)
}

// Clone deep-copies the ledger.
func (l *Ledger) Clone() *Ledger {
	c := *l
	if l.StartPeriod != nil {
		sp := *l.StartPeriod
		c.StartPeriod = &sp
	}
	c.Transactions = make(map[core.TransactionID]*Transaction, len(l.Transactions))
	for id, tx := range l.Transactions {
		dup := *tx
		if tx.PaidDate != nil {
			pd := *tx.PaidDate
			dup.PaidDate = &pd
		}
		c.Transactions[id] = &dup
	}
	c.Inflows = l.Inflows.Clone()
	c.Outflows = l.Outflows.Clone()
	return &c
}

// dueWindow returns the inclusive range of months a due date may fall in.
func (l *Ledger) dueWindow() (core.YearMonth, core.YearMonth) {
	return l.ActivePeriod, l.ActivePeriod.Plus(forecastHorizon)
}
