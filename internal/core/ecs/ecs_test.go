package ecs

import "testing"

func TestTableSwapRemove(t *testing.T) {
	tbl := NewTable[int]()
	vals := []int{10, 20, 30}
	for i := range vals {
		tbl.Set(NewEntityID(uint32(i+1), 1), &vals[i])
	}
	tbl.Remove(NewEntityID(1, 1))
	if tbl.Len() != 2 || tbl.Has(NewEntityID(1, 1)) {
		t.Fatalf("len = %d after remove", tbl.Len())
	}
	if v, ok := tbl.Get(NewEntityID(3, 1)); !ok || *v != 30 {
		t.Errorf("moved row lost: %v %v", v, ok)
	}
	sum := 0
	tbl.Each(func(_ EntityID, v *int) { sum += *v })
	if sum != 50 {
		t.Errorf("Each sum = %d, want 50", sum)
	}
	tbl.Remove(NewEntityID(9, 1))
	if tbl.Len() != 2 {
		t.Error("removing a missing handle changed the table")
	}
}

func TestWorldFlushClearsTrackedStores(t *testing.T) {
	w := NewWorld()
	tbl := NewTable[string]()
	w.Track(tbl)

	a, b := w.CreateEntity(), w.CreateEntity()
	name := "x"
	tbl.Set(a, &name)
	tbl.Set(b, &name)

	if !w.MarkForDestruction(a) || w.MarkForDestruction(a) {
		t.Fatal("double mark not rejected")
	}
	var seen []EntityID
	w.FlushDestroyQueue(func(id EntityID) {
		seen = append(seen, id)
		if id == a {
			w.MarkForDestruction(b)
		}
	})
	if len(seen) != 2 || tbl.Len() != 0 {
		t.Errorf("flushed %v, %d rows left", seen, tbl.Len())
	}
	if w.Alive(a) || w.Alive(b) {
		t.Error("handles alive after flush")
	}
}
