// Package forecast projects a ledger's event stream into a forecast
// statement: one monthly forecast per calendar month, each holding inflow and
// outflow category trees whose nodes group the month's transactions by
// payment status.
//
// A statement is derived data. It is only ever changed by applying ledger
// events in sequence order and can be rebuilt from the event log at any time.
package forecast

import (
	"slices"
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
	"cashflow/internal/ledger"
)

// horizon is the number of months kept after the active one.
const horizon = 11

// MonthStatus is the lifecycle state of a monthly forecast.
type MonthStatus string

const (
	StatusSetupPending  MonthStatus = "SETUP_PENDING"
	StatusImportPending MonthStatus = "IMPORT_PENDING"
	StatusImported      MonthStatus = "IMPORTED"
	StatusActive        MonthStatus = "ACTIVE"
	StatusRolledOver    MonthStatus = "ROLLED_OVER"
	StatusForecasted    MonthStatus = "FORECASTED"
	StatusAttested      MonthStatus = "ATTESTED"
)

// TransactionSummary is the projection of a transaction inside a month.
type TransactionSummary struct {
	ID          core.TransactionID     `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Money       core.Money             `json:"money"`
	Status      core.TransactionStatus `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	DueDate     time.Time              `json:"due_date"`
	PaidDate    *time.Time             `json:"paid_date,omitempty"`
}

// MonthlyForecast is the projection of one calendar month.
type MonthlyForecast struct {
	Period          core.YearMonth  `json:"period"`
	Status          MonthStatus     `json:"status"`
	Inflows         CategorizedTree `json:"inflows"`
	Outflows        CategorizedTree `json:"outflows"`
	AttestedBalance *core.Money     `json:"attested_balance,omitempty"`
}

// Tree returns the categorized tree for a direction.
func (m *MonthlyForecast) Tree(d core.Direction) *CategorizedTree {
	if d == core.Inflow {
		return &m.Inflows
	}
	return &m.Outflows
}

// Structure is the category shape shared by every month.
type Structure struct {
	Inflows  category.Tree `json:"inflows"`
	Outflows category.Tree `json:"outflows"`
}

func (s *Structure) Tree(d core.Direction) *category.Tree {
	if d == core.Inflow {
		return &s.Inflows
	}
	return &s.Outflows
}

// Location records where a transaction currently sits.
type Location struct {
	Month     core.YearMonth `json:"month"`
	Direction core.Direction `json:"direction"`
	Path      []int          `json:"path"`
	Group     GroupKey       `json:"group"`
}

// Statement is the forecast of one ledger.
type Statement struct {
	LedgerID            core.LedgerID                       `json:"ledger_id"`
	Currency            string                              `json:"currency"`
	ActivePeriod        core.YearMonth                      `json:"active_period"`
	StartPeriod         *core.YearMonth                     `json:"start_period,omitempty"`
	Months              map[core.YearMonth]*MonthlyForecast `json:"months"`
	Structure           Structure                           `json:"structure"`
	Locations           map[core.TransactionID]Location     `json:"locations"`
	Closed              bool                                `json:"closed,omitempty"`
	LastModification    time.Time                           `json:"last_modification"`
	LastMessageChecksum string                              `json:"last_message_checksum"`
	Version             uint64                              `json:"version"`
}

// New starts a statement from the first event of a ledger. Months from the
// start period up to the active one are seeded SETUP_PENDING, the active
// month ACTIVE and the following months FORECASTED.
func New(evt ledger.LedgerCreated) (*Statement, error) {
	s := &Statement{
		LedgerID:     evt.LedgerID,
		Currency:     evt.BankAccount.Balance.Currency,
		ActivePeriod: evt.ActivePeriod,
		Months:       make(map[core.YearMonth]*MonthlyForecast),
		Structure: Structure{
			Inflows:  category.NewTree(evt.OccurredAt),
			Outflows: category.NewTree(evt.OccurredAt),
		},
		Locations: make(map[core.TransactionID]Location),
	}
	if evt.StartPeriod != nil {
		sp := *evt.StartPeriod
		s.StartPeriod = &sp
		for m := sp; m.Before(evt.ActivePeriod); m = m.Plus(1) {
			s.addMonth(m, StatusSetupPending)
		}
	}
	s.addMonth(evt.ActivePeriod, StatusActive)
	for i := 1; i <= horizon; i++ {
		s.addMonth(evt.ActivePeriod.Plus(i), StatusForecasted)
	}
	if err := s.finish(1, evt); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Statement) addMonth(period core.YearMonth, status MonthStatus) {
	if _, ok := s.Months[period]; ok {
		return
	}
	m := &MonthlyForecast{Period: period, Status: status}
	m.Inflows.syncShape(&s.Structure.Inflows)
	m.Outflows.syncShape(&s.Structure.Outflows)
	s.Months[period] = m
}

// Month returns the forecast for period.
func (s *Statement) Month(period core.YearMonth) (*MonthlyForecast, bool) {
	m, ok := s.Months[period]
	return m, ok
}

// Periods lists the months of the statement in calendar order.
func (s *Statement) Periods() []core.YearMonth {
	periods := make([]core.YearMonth, 0, len(s.Months))
	for p := range s.Months {
		periods = append(periods, p)
	}
	slices.SortFunc(periods, func(a, b core.YearMonth) int { return a.Compare(b) })
	return periods
}

func (s *Statement) finish(seq uint64, evt ledger.Event) error {
	sum, err := ledger.Checksum(evt)
	if err != nil {
		return err
	}
	s.Version = seq
	s.LastMessageChecksum = sum
	s.LastModification = evt.OccurredOn()
	return nil
}
