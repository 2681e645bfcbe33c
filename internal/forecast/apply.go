package forecast

import (
	"fmt"

	"cashflow/internal/category"
	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/ledger"
)

// transitions lists the forward moves allowed for each month status.
var transitions = map[MonthStatus][]MonthStatus{
	StatusSetupPending:  {StatusImportPending, StatusImported},
	StatusImportPending: {StatusImported},
	StatusForecasted:    {StatusActive},
	StatusActive:        {StatusRolledOver, StatusAttested},
}

// CanTransition reports whether a month may move from one status to another.
func CanTransition(from, to MonthStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Apply projects the event at position seq of the ledger's log. Already
// applied sequence numbers are ignored and reported with applied=false; a
// sequence number past the next expected one is a gap. Any other error means
// the event cannot be projected and the statement must be rebuilt.
func (s *Statement) Apply(seq uint64, evt ledger.Event) (applied bool, err error) {
	if seq <= s.Version {
		return false, nil
	}
	if seq != s.Version+1 {
		return false, apperrors.WithMessage(apperrors.ErrEventSequenceGap,
			"statement %s at version %d received seq %d", s.LedgerID, s.Version, seq)
	}
	if evt.AggregateID() != s.LedgerID {
		return false, fmt.Errorf("event for ledger %s applied to statement %s", evt.AggregateID(), s.LedgerID)
	}

	switch e := evt.(type) {
	case ledger.LedgerCreated:
		err = fmt.Errorf("ledger %s created twice", e.LedgerID)
	case ledger.TransactionAppended:
		err = s.onAppended(e)
	case ledger.TransactionConfirmed:
		err = s.onConfirmed(e)
	case ledger.TransactionRejected:
		err = s.onRejected(e)
	case ledger.TransactionEdited:
		err = s.onEdited(e)
	case ledger.CategoryCreated:
		err = s.reshape(e.Direction, func(t *category.Tree) error {
			return t.Insert(e.Parent, &category.Category{Name: e.Name, Origin: e.Origin, CreatedAt: e.OccurredAt})
		})
	case ledger.CategoryArchived:
		err = s.reshape(e.Direction, func(t *category.Tree) error {
			return t.Archive(e.Name, e.ForceArchiveChildren, e.OccurredAt)
		})
	case ledger.CategoryUnarchived:
		err = s.reshape(e.Direction, func(t *category.Tree) error {
			return t.Unarchive(e.Name)
		})
	case ledger.BudgetingSet:
		err = s.reshape(e.Direction, func(t *category.Tree) error {
			if e.Amount == nil {
				return t.RemoveBudget(e.Name)
			}
			return t.SetBudget(e.Name, *e.Amount, e.OccurredAt)
		})
	case ledger.HistoricalTransactionImported:
		err = s.onImported(e)
	case ledger.HistoricalImportAttested:
		err = s.onImportAttested()
	case ledger.MonthRolledOver:
		err = s.onRolledOver(e)
	case ledger.MonthAttested:
		err = s.onMonthAttested(e)
	case ledger.LedgerClosed:
		s.Closed = true
	default:
		err = fmt.Errorf("unsupported event %T", evt)
	}
	if err != nil {
		return false, fmt.Errorf("project %s seq %d: %w", evt.EventType(), seq, err)
	}
	if err := s.finish(seq, evt); err != nil {
		return false, err
	}
	return true, nil
}

// reshape changes the shared category structure and mirrors the change into
// every month.
func (s *Statement) reshape(d core.Direction, change func(*category.Tree) error) error {
	structure := s.Structure.Tree(d)
	if err := change(structure); err != nil {
		return err
	}
	for _, m := range s.Months {
		m.Tree(d).syncShape(structure)
	}
	return nil
}

func (s *Statement) transition(period core.YearMonth, to MonthStatus) error {
	m, ok := s.Months[period]
	if !ok {
		return fmt.Errorf("month %s is not part of the statement", period)
	}
	if !CanTransition(m.Status, to) {
		return apperrors.WithMessage(apperrors.ErrMonthTransition, "month %s cannot move from %s to %s", period, m.Status, to)
	}
	m.Status = to
	return nil
}

// place inserts a transaction into the active node of its category in the
// given month.
func (s *Statement) place(period core.YearMonth, d core.Direction, cat category.Name, g GroupKey, summary TransactionSummary) error {
	if _, exists := s.Locations[summary.ID]; exists {
		return fmt.Errorf("transaction %s is already projected", summary.ID)
	}
	node, err := s.Structure.Tree(d).ResolveForPosting(cat)
	if err != nil {
		return err
	}
	path, _ := s.Structure.Tree(d).PathOf(node)
	return s.putAt(Location{Month: period, Direction: d, Path: path, Group: g}, summary)
}

func (s *Statement) putAt(loc Location, summary TransactionSummary) error {
	m, ok := s.Months[loc.Month]
	if !ok {
		return fmt.Errorf("month %s is not part of the statement", loc.Month)
	}
	node, err := m.Tree(loc.Direction).at(loc.Path)
	if err != nil {
		return err
	}
	node.put(loc.Group, summary)
	s.Locations[summary.ID] = loc
	return nil
}

// takeAt removes a transaction from where it currently sits.
func (s *Statement) takeAt(id core.TransactionID) (Location, TransactionSummary, error) {
	loc, ok := s.Locations[id]
	if !ok {
		return Location{}, TransactionSummary{}, apperrors.WithMessage(apperrors.ErrTransactionNotFound, "transaction %s is not projected", id)
	}
	m, ok := s.Months[loc.Month]
	if !ok {
		return Location{}, TransactionSummary{}, fmt.Errorf("month %s is not part of the statement", loc.Month)
	}
	node, err := m.Tree(loc.Direction).at(loc.Path)
	if err != nil {
		return Location{}, TransactionSummary{}, err
	}
	summary, ok := node.take(loc.Group, id)
	if !ok {
		return Location{}, TransactionSummary{}, fmt.Errorf("transaction %s missing from %s", id, loc.Month)
	}
	delete(s.Locations, id)
	return loc, summary, nil
}

func (s *Statement) onAppended(e ledger.TransactionAppended) error {
	summary := TransactionSummary{
		ID:          e.TransactionID,
		Name:        e.Name,
		Description: e.Description,
		Money:       e.Money,
		Status:      core.Pending,
		CreatedAt:   e.CreatedAt,
		DueDate:     e.DueDate,
	}
	period := core.YearMonthOf(e.DueDate)
	if e.PaidDate != nil {
		paid := *e.PaidDate
		summary.PaidDate = &paid
		summary.Status = core.Confirmed
		period = core.YearMonthOf(paid)
	}
	return s.place(period, e.Direction, e.Category, groupFor(summary.Status), summary)
}

func (s *Statement) onConfirmed(e ledger.TransactionConfirmed) error {
	loc, summary, err := s.takeAt(e.TransactionID)
	if err != nil {
		return err
	}
	paid := e.PaidDate
	summary.PaidDate = &paid
	summary.Status = core.Confirmed
	loc.Group = GroupPaid
	return s.putAt(loc, summary)
}

func (s *Statement) onRejected(e ledger.TransactionRejected) error {
	loc, summary, err := s.takeAt(e.TransactionID)
	if err != nil {
		return err
	}
	summary.Status = core.Rejected
	loc.Group = GroupRejected
	return s.putAt(loc, summary)
}

// onEdited updates a transaction in place, or moves it when its category or
// due month changed.
func (s *Statement) onEdited(e ledger.TransactionEdited) error {
	loc, summary, err := s.takeAt(e.TransactionID)
	if err != nil {
		return err
	}
	oldCategory := s.categoryAt(loc)
	summary.Name = e.Name
	summary.Description = e.Description
	summary.Money = e.Money
	summary.DueDate = e.DueDate

	period := core.YearMonthOf(e.DueDate)
	if e.Category == oldCategory && period == loc.Month {
		return s.putAt(loc, summary)
	}
	if e.Category == oldCategory {
		loc.Month = period
		return s.putAt(loc, summary)
	}
	return s.place(period, loc.Direction, e.Category, loc.Group, summary)
}

func (s *Statement) categoryAt(loc Location) category.Name {
	tree := s.Structure.Tree(loc.Direction)
	nodes := tree.Roots
	var name category.Name
	for _, i := range loc.Path {
		if i >= len(nodes) {
			return ""
		}
		name = nodes[i].Name
		nodes = nodes[i].Children
	}
	return name
}

func (s *Statement) onImported(e ledger.HistoricalTransactionImported) error {
	period := core.YearMonthOf(e.PaidDate)
	m, ok := s.Months[period]
	if !ok {
		return fmt.Errorf("month %s is not part of the statement", period)
	}
	if m.Status == StatusSetupPending {
		if err := s.transition(period, StatusImportPending); err != nil {
			return err
		}
	}
	paid := e.PaidDate
	summary := TransactionSummary{
		ID:          e.TransactionID,
		Name:        e.Name,
		Description: e.Description,
		Money:       e.Money,
		Status:      core.Confirmed,
		CreatedAt:   e.OccurredAt,
		DueDate:     e.DueDate,
		PaidDate:    &paid,
	}
	return s.place(period, e.Direction, e.Category, GroupPaid, summary)
}

func (s *Statement) onImportAttested() error {
	for _, period := range s.Periods() {
		switch s.Months[period].Status {
		case StatusSetupPending, StatusImportPending:
			if err := s.transition(period, StatusImported); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Statement) onRolledOver(e ledger.MonthRolledOver) error {
	if err := s.transition(e.From, StatusRolledOver); err != nil {
		return err
	}
	return s.activate(e.To)
}

func (s *Statement) onMonthAttested(e ledger.MonthAttested) error {
	if err := s.transition(e.Previous, StatusAttested); err != nil {
		return err
	}
	balance := e.Balance
	s.Months[e.Previous].AttestedBalance = &balance
	return s.activate(e.Period)
}

// activate makes period the active month and extends the forecast window so
// it still reaches horizon months ahead.
func (s *Statement) activate(period core.YearMonth) error {
	if err := s.transition(period, StatusActive); err != nil {
		return err
	}
	s.ActivePeriod = period
	for i := 1; i <= horizon; i++ {
		s.addMonth(period.Plus(i), StatusForecasted)
	}
	return nil
}
