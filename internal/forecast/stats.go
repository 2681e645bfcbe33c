package forecast

import (
	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
)

// FlowStats totals one direction of a month.
type FlowStats struct {
	Expected core.Money `json:"expected"`
	Paid     core.Money `json:"paid"`
	Budgeted core.Money `json:"budgeted"`
	Count    int        `json:"count"`
}

// MonthStats summarises a monthly forecast. Rejected transactions are not
// counted.
type MonthStats struct {
	Period   core.YearMonth `json:"period"`
	Status   MonthStatus    `json:"status"`
	Inflows  FlowStats      `json:"inflows"`
	Outflows FlowStats      `json:"outflows"`
	// Net is paid inflows minus paid outflows.
	Net core.Money `json:"net"`
}

// Stats computes the totals of one month.
func (s *Statement) Stats(period core.YearMonth) (MonthStats, error) {
	m, ok := s.Months[period]
	if !ok {
		return MonthStats{}, apperrors.WithMessage(apperrors.ErrInvalidArgument, "month %s is not part of the statement", period)
	}
	in, err := flowStats(&m.Inflows, s.Currency)
	if err != nil {
		return MonthStats{}, err
	}
	out, err := flowStats(&m.Outflows, s.Currency)
	if err != nil {
		return MonthStats{}, err
	}
	net, err := in.Paid.Minus(out.Paid)
	if err != nil {
		return MonthStats{}, err
	}
	return MonthStats{Period: period, Status: m.Status, Inflows: in, Outflows: out, Net: net}, nil
}

// AllStats computes Stats for every month in calendar order.
func (s *Statement) AllStats() ([]MonthStats, error) {
	periods := s.Periods()
	out := make([]MonthStats, 0, len(periods))
	for _, p := range periods {
		st, err := s.Stats(p)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func flowStats(t *CategorizedTree, currency string) (FlowStats, error) {
	st := FlowStats{Expected: core.Zero(currency), Paid: core.Zero(currency), Budgeted: core.Zero(currency)}
	var err error
	t.Walk(func(n *CategorizedNode, _ int) bool {
		if n.Budget != nil && !n.Archived {
			if st.Budgeted, err = st.Budgeted.Plus(*n.Budget); err != nil {
				return false
			}
		}
		for _, tx := range n.Transactions[GroupExpected] {
			if st.Expected, err = st.Expected.Plus(tx.Money); err != nil {
				return false
			}
			st.Count++
		}
		for _, tx := range n.Transactions[GroupPaid] {
			if st.Paid, err = st.Paid.Plus(tx.Money); err != nil {
				return false
			}
			st.Count++
		}
		return true
	})
	return st, err
}
