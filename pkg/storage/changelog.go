package storage

import "github.com/brainydb/brainy/pkg/types"

// sliceIterator is a ChangeIterator over a pre-materialized, already
// ordered slice. All three adapters build their change log fully in memory
// before returning an iterator, which keeps ReadChangesSince simple and
// restartable at the cost of not streaming lazily off disk; datasets are
// expected to fit comfortably given maxSoftDeleteAge-bounded retention.
type sliceIterator struct {
	events []types.ChangeEvent
	pos    int
}

func newSliceIterator(events []types.ChangeEvent) *sliceIterator {
	return &sliceIterator{events: events}
}

func (it *sliceIterator) Next() (types.ChangeEvent, bool) {
	if it.pos >= len(it.events) {
		return types.ChangeEvent{}, false
	}
	e := it.events[it.pos]
	it.pos++
	return e, true
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
