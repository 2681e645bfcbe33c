// Package category implements the hierarchical category trees owned by a
// ledger (one per flow direction) and mirrored by the forecast statement.
//
// A tree may hold several nodes with the same name as long as at most one of
// them is active: archiving a category and creating it again produces a new
// version next to the archived one, which keeps its historical data.
package category

import (
	"time"

	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
)

// Name identifies a category within one tree.
type Name string

const (
	// NotDefined is the parent name of root categories.
	NotDefined Name = "NOT_DEFINED"
	// Uncategorized is the system root seeded into every tree.
	Uncategorized Name = "Uncategorized"
)

// Origin records how a category came to exist.
type Origin string

const (
	OriginSystem      Origin = "SYSTEM"
	OriginImported    Origin = "IMPORTED"
	OriginUserCreated Origin = "USER_CREATED"
)

// Budget is a planned monthly amount attached to a category.
type Budget struct {
	Amount    core.Money `json:"amount"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Category is one node of a tree.
type Category struct {
	Name       Name        `json:"name"`
	Budget     *Budget     `json:"budget,omitempty"`
	Children   []*Category `json:"children"`
	Archived   bool        `json:"archived"`
	ArchivedAt *time.Time  `json:"archived_at,omitempty"`
	Origin     Origin      `json:"origin"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Tree is the forest of root categories for one flow direction.
type Tree struct {
	Roots []*Category `json:"roots"`
}

// NewTree returns a tree seeded with the Uncategorized system root.
func NewTree(now time.Time) Tree {
	return Tree{Roots: []*Category{{
		Name:      Uncategorized,
		Children:  []*Category{},
		Origin:    OriginSystem,
		CreatedAt: now,
	}}}
}

// Visit is called for every node during a walk. Returning false stops the walk.
type Visit func(c *Category, parent *Category, depth int) bool

type frame struct {
	node   *Category
	parent *Category
	depth  int
}

// Walk traverses the tree in pre-order using an explicit stack, so deep trees
// never grow the goroutine stack. Siblings are visited in slice order.
func (t *Tree) Walk(visit Visit) {
	stack := make([]frame, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: t.Roots[i]})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(top.node, top.parent, top.depth) {
			return
		}
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: top.node.Children[i], parent: top.node, depth: top.depth + 1})
		}
	}
}

// Find returns the first node named name in pre-order, archived or not.
func (t *Tree) Find(name Name) (*Category, bool) {
	return t.findFirst(func(c *Category) bool { return c.Name == name })
}

// FindActive returns the active node named name. The uniqueness invariant
// guarantees there is at most one.
func (t *Tree) FindActive(name Name) (*Category, bool) {
	return t.findFirst(func(c *Category) bool { return c.Name == name && !c.Archived })
}

// FindArchived returns the most recently archived node named name; ties go to
// the first one in pre-order.
func (t *Tree) FindArchived(name Name) (*Category, bool) {
	var found *Category
	t.Walk(func(c *Category, _ *Category, _ int) bool {
		if c.Name != name || !c.Archived {
			return true
		}
		if found == nil || archivedAfter(c, found) {
			found = c
		}
		return true
	})
	return found, found != nil
}

func archivedAfter(a, b *Category) bool {
	if a.ArchivedAt == nil {
		return false
	}
	if b.ArchivedAt == nil {
		return true
	}
	return a.ArchivedAt.After(*b.ArchivedAt)
}

func (t *Tree) findFirst(match func(*Category) bool) (*Category, bool) {
	var found *Category
	t.Walk(func(c *Category, _ *Category, _ int) bool {
		if match(c) {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

// ResolveForPosting returns the category new transactions may be posted to.
func (t *Tree) ResolveForPosting(name Name) (*Category, error) {
	if c, ok := t.FindActive(name); ok {
		return c, nil
	}
	return nil, t.missingOrArchived(name)
}

func (t *Tree) missingOrArchived(name Name) error {
	if _, ok := t.Find(name); ok {
		return apperrors.WithMessage(apperrors.ErrCategoryIsArchived, "category %q is archived", name)
	}
	return apperrors.WithMessage(apperrors.ErrCategoryDoesNotExist, "category %q does not exist", name)
}

// PathOf returns the child indexes leading from the roots to target. Nodes are
// only ever appended, so a path stays valid for the life of the tree.
func (t *Tree) PathOf(target *Category) ([]int, bool) {
	type step struct {
		node *Category
		path []int
	}
	stack := make([]step, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, step{node: t.Roots[i], path: []int{i}})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.node == target {
			return top.path, true
		}
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			p := make([]int, len(top.path)+1)
			copy(p, top.path)
			p[len(top.path)] = i
			stack = append(stack, step{node: top.node.Children[i], path: p})
		}
	}
	return nil, false
}

// Insert adds c under parent. NotDefined appends a new root.
func (t *Tree) Insert(parent Name, c *Category) error {
	if _, ok := t.FindActive(c.Name); ok {
		return apperrors.WithMessage(apperrors.ErrCategoryAlreadyExists, "category %q already exists", c.Name)
	}
	if c.Children == nil {
		c.Children = []*Category{}
	}
	if parent == NotDefined || parent == "" {
		t.Roots = append(t.Roots, c)
		return nil
	}
	p, err := t.ResolveForPosting(parent)
	if err != nil {
		return err
	}
	p.Children = append(p.Children, c)
	return nil
}

// Archive archives the active node named name. With force the whole subtree
// is archived; otherwise children stay active where they are.
func (t *Tree) Archive(name Name, force bool, at time.Time) error {
	c, err := t.ResolveForPosting(name)
	if err != nil {
		return err
	}
	if !force {
		markArchived(c, at)
		return nil
	}
	sub := Tree{Roots: []*Category{c}}
	sub.Walk(func(n *Category, _ *Category, _ int) bool {
		if !n.Archived {
			markArchived(n, at)
		}
		return true
	})
	return nil
}

func markArchived(c *Category, at time.Time) {
	archivedAt := at
	c.Archived = true
	c.ArchivedAt = &archivedAt
}

// Unarchive restores the most recently archived node named name. It fails
// when another version of the name is active.
func (t *Tree) Unarchive(name Name) error {
	if _, ok := t.FindActive(name); ok {
		return apperrors.WithMessage(apperrors.ErrCannotUnarchiveCategory, "category %q has an active version", name)
	}
	c, ok := t.FindArchived(name)
	if !ok {
		return apperrors.WithMessage(apperrors.ErrCategoryDoesNotExist, "category %q does not exist", name)
	}
	c.Archived = false
	c.ArchivedAt = nil
	return nil
}

// SetBudget creates or replaces the budget of the active node named name.
func (t *Tree) SetBudget(name Name, amount core.Money, at time.Time) error {
	c, err := t.ResolveForPosting(name)
	if err != nil {
		return err
	}
	if c.Budget == nil {
		c.Budget = &Budget{Amount: amount, CreatedAt: at, UpdatedAt: at}
		return nil
	}
	c.Budget.Amount = amount
	c.Budget.UpdatedAt = at
	return nil
}

// RemoveBudget detaches the budget of the active node named name.
func (t *Tree) RemoveBudget(name Name) error {
	c, err := t.ResolveForPosting(name)
	if err != nil {
		return err
	}
	c.Budget = nil
	return nil
}

// ActiveNames lists the names of active nodes in pre-order. A name appearing
// twice means the uniqueness invariant is broken.
func (t *Tree) ActiveNames() []Name {
	var names []Name
	t.Walk(func(c *Category, _ *Category, _ int) bool {
		if !c.Archived {
			names = append(names, c.Name)
		}
		return true
	})
	return names
}

// Entry is one row of a flattened tree.
type Entry struct {
	Name     Name   `json:"name"`
	Parent   Name   `json:"parent"`
	Depth    int    `json:"depth"`
	Archived bool   `json:"archived"`
	Origin   Origin `json:"origin"`
}

// Flatten lists every node in pre-order with its parent name.
func (t *Tree) Flatten() []Entry {
	var out []Entry
	t.Walk(func(c *Category, parent *Category, depth int) bool {
		p := NotDefined
		if parent != nil {
			p = parent.Name
		}
		out = append(out, Entry{Name: c.Name, Parent: p, Depth: depth, Archived: c.Archived, Origin: c.Origin})
		return true
	})
	return out
}

// Clone deep-copies the tree.
func (t Tree) Clone() Tree {
	out := Tree{Roots: make([]*Category, len(t.Roots))}
	for i, r := range t.Roots {
		out.Roots[i] = cloneNode(r)
	}
	return out
}

// cloneNode copies a subtree iteratively.
func cloneNode(root *Category) *Category {
	type pair struct{ src, dst *Category }
	dup := func(c *Category) *Category {
		n := *c
		if c.Budget != nil {
			b := *c.Budget
			n.Budget = &b
		}
		if c.ArchivedAt != nil {
			at := *c.ArchivedAt
			n.ArchivedAt = &at
		}
		n.Children = make([]*Category, len(c.Children))
		return &n
	}
	out := dup(root)
	stack := []pair{{root, out}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i, child := range p.src.Children {
			d := dup(child)
			p.dst.Children[i] = d
			stack = append(stack, pair{child, d})
		}
	}
	return out
}
