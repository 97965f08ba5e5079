// Package mlogfake is an in-memory mlogpool.Pool for c1log's unit tests: the
// same method set as filepool.Pool with the filesystem dropped, so tests can
// drive create/commit/open/append/reset without touching disk and can poke
// at internal failure injection (ForceNextLenErr, ForceNextAppendErr) that a real
// pool would need a fault-injection harness to reach.
package mlogfake

import (
	"sync"

	"github.com/kvdb/c1kv/mlogpool"
)

type object struct {
	class     mlogpool.Class
	committed bool
	data      []byte

	// lastAppendSynced records the sync flag passed to the most recent
	// Append, so tests can assert the caller's sync flag was threaded
	// through instead of silently dropped.
	lastAppendSynced bool
}

// Pool is a fully in-memory mlogpool.Pool.
type Pool struct {
	mu      sync.Mutex
	classes map[mlogpool.Class]bool
	nextID  uint64
	objects map[mlogpool.ObjectID]*object

	// forceLenErr, when set, makes the next Len() call on any handle fail
	// and then clears itself; used to exercise refresh_space's
	// documented "diverges silently on length-query failure" behavior.
	forceLenErr bool
	// forceAppendErr makes the next Append on any handle fail once.
	forceAppendErr error
}

func New(classes ...mlogpool.Class) *Pool {
	if len(classes) == 0 {
		classes = []mlogpool.Class{mlogpool.ClassStaging, mlogpool.ClassCapacity}
	}
	p := &Pool{
		classes: make(map[mlogpool.Class]bool, len(classes)),
		objects: make(map[mlogpool.ObjectID]*object),
	}
	for _, c := range classes {
		p.classes[c] = true
	}
	return p
}

// ForceNextLenErr arranges for the next Len() call across any handle in this
// pool to fail.
func (p *Pool) ForceNextLenErr() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceLenErr = true
}

// ForceNextAppendErr arranges for the next Append() call across any handle
// in this pool to fail with err.
func (p *Pool) ForceNextAppendErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceAppendErr = err
}

func (p *Pool) ProbeClass(class mlogpool.Class) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classes[class]
}

func (p *Pool) Alloc(class mlogpool.Class, _ mlogpool.AllocParams) (mlogpool.ObjectID, mlogpool.AllocProps, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.classes[class] {
		return 0, mlogpool.AllocProps{}, mlogpool.ErrNoStagingClass
	}
	p.nextID++
	id := mlogpool.ObjectID(p.nextID)
	p.objects[id] = &object{class: class}
	return id, mlogpool.AllocProps{Class: class}, nil
}

func (p *Pool) Abort(id mlogpool.ObjectID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.objects[id]
	if !ok {
		return mlogpool.ErrObjectNotFound
	}
	if o.committed {
		return mlogpool.ErrAlreadyCommitted
	}
	delete(p.objects, id)
	return nil
}

func (p *Pool) Commit(id mlogpool.ObjectID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.objects[id]
	if !ok {
		return mlogpool.ErrObjectNotFound
	}
	o.committed = true
	return nil
}

func (p *Pool) Delete(id mlogpool.ObjectID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.objects[id]; !ok {
		return mlogpool.ErrObjectNotFound
	}
	delete(p.objects, id)
	return nil
}

func (p *Pool) Open(id mlogpool.ObjectID, _ mlogpool.OpenFlags) (uint64, mlogpool.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.objects[id]
	if !ok || !o.committed {
		return 0, nil, mlogpool.ErrObjectNotFound
	}
	return 1, &handle{pool: p, obj: o}, nil
}

type handle struct {
	mu     sync.Mutex
	pool   *Pool
	obj    *object
	closed bool
}

func (h *handle) Append(iovs []mlogpool.IOVec, totalBytes int, sync bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pool.mu.Lock()
	if h.pool.forceAppendErr != nil {
		err := h.pool.forceAppendErr
		h.pool.forceAppendErr = nil
		h.pool.mu.Unlock()
		return err
	}
	h.pool.mu.Unlock()

	n := 0
	for _, v := range iovs {
		h.obj.data = append(h.obj.data, v.Base...)
		n += len(v.Base)
	}
	if n != totalBytes {
		panic("mlogfake: iovec total length mismatch")
	}
	h.obj.lastAppendSynced = sync
	return nil
}

func (h *handle) Sync() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return nil
}

func (h *handle) Len() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pool.mu.Lock()
	if h.pool.forceLenErr {
		h.pool.forceLenErr = false
		h.pool.mu.Unlock()
		return 0, errLenFailed
	}
	h.pool.mu.Unlock()

	return uint64(len(h.obj.data)), nil
}

func (h *handle) Erase(offset int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.obj.data = h.obj.data[:offset]
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// LastAppendSynced reports the sync flag passed to the most recent Append
// against id, for tests asserting a caller's sync flag reached the
// provider instead of being hardcoded away.
func (p *Pool) LastAppendSynced(id mlogpool.ObjectID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := p.objects[id]
	if o == nil {
		return false
	}
	return o.lastAppendSynced
}

// Bytes returns a copy of the raw bytes committed to id, for test assertions
// that decode the on-media record stream.
func (p *Pool) Bytes(id mlogpool.ObjectID) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := p.objects[id]
	if o == nil {
		return nil
	}
	out := make([]byte, len(o.data))
	copy(out, o.data)
	return out
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errLenFailed = fakeErr("mlogfake: injected length-query failure")
