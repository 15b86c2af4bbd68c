package ledger

import (
	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
)

// Ledger is an ordered list of rows plus an index over PU identity,
// modeling the source's mutable in-memory table (§9 "Mutable, process-wide
// in-memory table") as an explicit, ordered data structure instead: atomic
// persistence is the only contract other modules see.
type Ledger struct {
	path  string
	rows  []Row
	index map[string]int // PU.Key() -> index into rows
}

// New builds an empty ledger that will persist to path.
func New(path string) *Ledger {
	return &Ledger{path: path, index: make(map[string]int)}
}

// Len returns the number of rows.
func (l *Ledger) Len() int { return len(l.rows) }

// Get returns the row for pu and whether it exists.
func (l *Ledger) Get(pu core.ProcessingUnit) (Row, bool) {
	i, ok := l.index[pu.Key()]
	if !ok {
		return Row{}, false
	}
	return l.rows[i], true
}

// Iter calls fn for every row in ledger order (Inclusion-List order),
// stopping early if fn returns false.
func (l *Ledger) Iter(fn func(Row) bool) {
	for _, r := range l.rows {
		if !fn(r) {
			return
		}
	}
}

// Rows returns a defensive copy of every row, in order.
func (l *Ledger) Rows() []Row {
	out := make([]Row, len(l.rows))
	for i, r := range l.rows {
		out[i] = r.Clone()
	}
	return out
}

// UpsertRow inserts or replaces the row for row.PU, preserving the
// existing position if the PU is already present, else appending.
func (l *Ledger) UpsertRow(row Row) {
	key := row.PU.Key()
	if i, ok := l.index[key]; ok {
		l.rows[i] = row
		return
	}
	l.index[key] = len(l.rows)
	l.rows = append(l.rows, row)
}

// Remove drops the row for pu, if present; removing re-numbers the index.
// update-input-data does not call it: it builds a fresh ledger in the new
// order instead.
func (l *Ledger) Remove(pu core.ProcessingUnit) {
	i, ok := l.index[pu.Key()]
	if !ok {
		return
	}
	l.rows = append(l.rows[:i], l.rows[i+1:]...)
	delete(l.index, pu.Key())
	for k, idx := range l.index {
		if idx > i {
			l.index[k] = idx - 1
		}
	}
}

// Reorder rebuilds the row order to exactly match order, which must be a
// permutation of the current PU set (invariant 5: the ledger row set equals
// the Inclusion List exactly, in order, after any update).
func (l *Ledger) Reorder(order []core.ProcessingUnit) error {
	if len(order) != len(l.rows) {
		return errors.Errorf("reorder: got %d PUs, ledger has %d rows", len(order), len(l.rows))
	}

	newRows := make([]Row, 0, len(order))
	newIndex := make(map[string]int, len(order))

	for _, pu := range order {
		i, ok := l.index[pu.Key()]
		if !ok {
			return errors.Errorf("reorder: PU %s not present in ledger", pu)
		}
		newIndex[pu.Key()] = len(newRows)
		newRows = append(newRows, l.rows[i])
	}

	l.rows = newRows
	l.index = newIndex
	return nil
}

// PUs returns the ledger's PU set in ledger order.
func (l *Ledger) PUs() []core.ProcessingUnit {
	out := make([]core.ProcessingUnit, len(l.rows))
	for i, r := range l.rows {
		out[i] = r.PU
	}
	return out
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }
