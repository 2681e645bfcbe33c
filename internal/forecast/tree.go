package forecast

import (
	"fmt"

	"cashflow/internal/category"
	"cashflow/internal/core"
)

// GroupKey buckets transactions inside a category node by payment status.
type GroupKey string

const (
	GroupExpected GroupKey = "EXPECTED"
	GroupPaid     GroupKey = "PAID"
	GroupRejected GroupKey = "REJECTED"
)

func groupFor(s core.TransactionStatus) GroupKey {
	switch s {
	case core.Confirmed:
		return GroupPaid
	case core.Rejected:
		return GroupRejected
	default:
		return GroupExpected
	}
}

// CategorizedNode mirrors one category node for one month and holds the
// transactions placed in it.
type CategorizedNode struct {
	Name         category.Name                                          `json:"name"`
	Archived     bool                                                   `json:"archived"`
	Budget       *core.Money                                            `json:"budget,omitempty"`
	Transactions map[GroupKey]map[core.TransactionID]TransactionSummary `json:"transactions"`
	Children     []*CategorizedNode                                     `json:"children"`
}

// CategorizedTree is one direction of a month.
type CategorizedTree struct {
	Roots []*CategorizedNode `json:"roots"`
}

func newNode(c *category.Category) *CategorizedNode {
	n := &CategorizedNode{
		Transactions: make(map[GroupKey]map[core.TransactionID]TransactionSummary),
		Children:     []*CategorizedNode{},
	}
	copyShape(n, c)
	return n
}

func copyShape(n *CategorizedNode, c *category.Category) {
	n.Name = c.Name
	n.Archived = c.Archived
	n.Budget = nil
	if c.Budget != nil {
		amount := c.Budget.Amount
		n.Budget = &amount
	}
}

// syncShape brings the tree in line with the shape of structure: names,
// archive flags and budgets are copied, missing nodes are appended. Grouped
// transactions are never touched.
func (t *CategorizedTree) syncShape(structure *category.Tree) {
	type pair struct {
		src []*category.Category
		dst *[]*CategorizedNode
	}
	stack := []pair{{src: structure.Roots, dst: &t.Roots}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i, c := range p.src {
			if i < len(*p.dst) {
				copyShape((*p.dst)[i], c)
			} else {
				*p.dst = append(*p.dst, newNode(c))
			}
			node := (*p.dst)[i]
			stack = append(stack, pair{src: c.Children, dst: &node.Children})
		}
	}
}

// at follows a path produced by category.Tree.PathOf.
func (t *CategorizedTree) at(path []int) (*CategorizedNode, error) {
	nodes := t.Roots
	var n *CategorizedNode
	for _, i := range path {
		if i < 0 || i >= len(nodes) {
			return nil, fmt.Errorf("category path %v does not exist", path)
		}
		n = nodes[i]
		nodes = n.Children
	}
	if n == nil {
		return nil, fmt.Errorf("empty category path")
	}
	return n, nil
}

// Walk visits every node in pre-order.
func (t *CategorizedTree) Walk(visit func(n *CategorizedNode, depth int) bool) {
	type frame struct {
		node  *CategorizedNode
		depth int
	}
	stack := make([]frame, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: t.Roots[i]})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(top.node, top.depth) {
			return
		}
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: top.node.Children[i], depth: top.depth + 1})
		}
	}
}

func (n *CategorizedNode) put(g GroupKey, s TransactionSummary) {
	if n.Transactions[g] == nil {
		n.Transactions[g] = make(map[core.TransactionID]TransactionSummary)
	}
	n.Transactions[g][s.ID] = s
}

func (n *CategorizedNode) take(g GroupKey, id core.TransactionID) (TransactionSummary, bool) {
	s, ok := n.Transactions[g][id]
	if !ok {
		return TransactionSummary{}, false
	}
	delete(n.Transactions[g], id)
	if len(n.Transactions[g]) == 0 {
		delete(n.Transactions, g)
	}
	return s, true
}
