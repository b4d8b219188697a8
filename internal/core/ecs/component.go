package ecs

// Removable is implemented by every per-handle store so a World can drop a
// destroyed handle from all of them at once.
type Removable interface {
	Remove(id EntityID)
}

type tableRow[T any] struct {
	id  EntityID
	val *T
}

// Table maps handles to *T. Rows are kept dense so Each walks a slice;
// Remove swaps the last row into the hole.
type Table[T any] struct {
	rows  []tableRow[T]
	index map[EntityID]int
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{
		rows:  make([]tableRow[T], 0, 256),
		index: make(map[EntityID]int, 256),
	}
}

// Set inserts or replaces the value stored for id.
func (t *Table[T]) Set(id EntityID, v *T) {
	if i, ok := t.index[id]; ok {
		t.rows[i].val = v
		return
	}
	t.index[id] = len(t.rows)
	t.rows = append(t.rows, tableRow[T]{id: id, val: v})
}

func (t *Table[T]) Get(id EntityID) (*T, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.rows[i].val, true
}

func (t *Table[T]) Remove(id EntityID) {
	i, ok := t.index[id]
	if !ok {
		return
	}
	last := len(t.rows) - 1
	if i != last {
		t.rows[i] = t.rows[last]
		t.index[t.rows[i].id] = i
	}
	t.rows[last] = tableRow[T]{}
	t.rows = t.rows[:last]
	delete(t.index, id)
}

func (t *Table[T]) Has(id EntityID) bool {
	_, ok := t.index[id]
	return ok
}

func (t *Table[T]) Len() int { return len(t.rows) }

// Each visits every row. fn must not add or remove rows.
func (t *Table[T]) Each(fn func(EntityID, *T)) {
	for _, r := range t.rows {
		fn(r.id, r.val)
	}
}
