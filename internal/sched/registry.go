package sched

import (
	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// Registry stores every task in an arena and keeps the two class queues as
// lists of TaskIDs into that arena. It is not safe for concurrent use.
type Registry struct {
	tasks []Task

	rt       *doublylinkedlist.List // TaskIDs of FIFO and RR tasks, queue order
	fair     *redblacktree.Tree     // fairKey -> TaskID
	fairKeys map[TaskID]fairKey     // current tree key of every fair task
	seq      uint64                 // enqueue counter for fair tie-breaking

	minVruntime uint64 // floor for fair tasks registered mid-run; never decreases
}

func NewRegistry() *Registry {
	return &Registry{
		rt:       doublylinkedlist.New(),
		fair:     redblacktree.NewWith(cmpFair),
		fairKeys: make(map[TaskID]fairKey),
	}
}

// Register validates t, forces it Ready and appends it to its class queue.
// A fair task starts no lower than the queue's current minimum vruntime.
func (r *Registry) Register(t Task) (TaskID, error) {
	if err := t.validate(); err != nil {
		return 0, err
	}
	t.State = State{Kind: Ready}
	if t.Policy == Fair && t.Vruntime < r.minVruntime {
		t.Vruntime = r.minVruntime
	}

	id := TaskID(len(r.tasks))
	r.tasks = append(r.tasks, t)
	if t.Policy.RealTime() {
		r.rt.Add(id)
	} else {
		r.enqueueFair(id)
	}
	return id, nil
}

// Snapshot copies every task in registration order.
func (r *Registry) Snapshot() []TaskSnapshot {
	out := make([]TaskSnapshot, len(r.tasks))
	for i := range r.tasks {
		out[i] = TaskSnapshot{ID: TaskID(i), Task: r.tasks[i]}
	}
	return out
}

// Get returns a copy of the task at id.
func (r *Registry) Get(id TaskID) (TaskSnapshot, bool) {
	if int(id) >= len(r.tasks) {
		return TaskSnapshot{}, false
	}
	return TaskSnapshot{ID: id, Task: r.tasks[id]}, true
}

// Lookup finds a task by name. Names are not forced to be unique, so the
// first unfinished match wins, then the first match of any state.
func (r *Registry) Lookup(name string) (TaskID, error) {
	found := -1
	for i := range r.tasks {
		if r.tasks[i].Name != name {
			continue
		}
		if r.tasks[i].State.Kind != Finished {
			return TaskID(i), nil
		}
		if found < 0 {
			found = i
		}
	}
	if found < 0 {
		return 0, ErrNotFound
	}
	return TaskID(found), nil
}

func (r *Registry) Len() int { return len(r.tasks) }

// MinVruntime is the vruntime a newly registered fair task starts at.
func (r *Registry) MinVruntime() uint64 { return r.minVruntime }

// RealTimeQueue lists the real-time queue front to back.
func (r *Registry) RealTimeQueue() []TaskID {
	out := make([]TaskID, 0, r.rt.Size())
	r.rt.Each(func(_ int, v interface{}) { out = append(out, v.(TaskID)) })
	return out
}

// FairQueue lists the fair queue in selection order.
func (r *Registry) FairQueue() []TaskID {
	out := make([]TaskID, 0, r.fair.Size())
	it := r.fair.Iterator()
	for it.Next() {
		out = append(out, it.Value().(TaskID))
	}
	return out
}

func (r *Registry) task(id TaskID) *Task { return &r.tasks[id] }

// firstReadyRT returns the queue position of the first Ready real-time task
// with the given policy.
func (r *Registry) firstReadyRT(p Policy) (int, TaskID, bool) {
	it := r.rt.Iterator()
	for it.Next() {
		id := it.Value().(TaskID)
		t := &r.tasks[id]
		if t.Policy == p && t.Eligible() {
			return it.Index(), id, true
		}
	}
	return 0, 0, false
}

func (r *Registry) removeRT(index int) { r.rt.Remove(index) }

func (r *Registry) pushRT(id TaskID) { r.rt.Add(id) }

// minReadyFair returns the Ready fair task with the smallest (vruntime, seq).
func (r *Registry) minReadyFair() (TaskID, bool) {
	it := r.fair.Iterator()
	for it.Next() {
		id := it.Value().(TaskID)
		if r.tasks[id].Eligible() {
			return id, true
		}
	}
	return 0, false
}

// requeueFair moves id to the tail of its vruntime bucket using its current vruntime.
func (r *Registry) requeueFair(id TaskID) {
	if old, ok := r.fairKeys[id]; ok {
		r.fair.Remove(old)
	}
	r.enqueueFair(id)
	if low, ok := r.minReadyFair(); ok && r.tasks[low].Vruntime > r.minVruntime {
		r.minVruntime = r.tasks[low].Vruntime
	}
}

// setNice reweights a fair task in place. The tree entry is removed and put
// back under the same key, so its queue position does not change.
func (r *Registry) setNice(id TaskID, nice int) {
	key := r.fairKeys[id]
	r.fair.Remove(key)
	r.tasks[id].Nice = nice
	r.fair.Put(key, id)
}

func (r *Registry) enqueueFair(id TaskID) {
	r.seq++
	key := fairKey{vruntime: r.tasks[id].Vruntime, seq: r.seq}
	r.fair.Put(key, id)
	r.fairKeys[id] = key
}

// fairKey orders the fair queue. Equal vruntimes keep enqueue order, which
// matches a stable re-sort of a list where dispatched tasks go to the tail.
type fairKey struct {
	vruntime uint64
	seq      uint64
}

func cmpFair(a, b interface{}) int {
	ka, kb := a.(fairKey), b.(fairKey)
	switch {
	case ka.vruntime < kb.vruntime:
		return -1
	case ka.vruntime > kb.vruntime:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
