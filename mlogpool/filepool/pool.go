// Package filepool is a real, file-backed implementation of mlogpool.Pool,
// adapted from the teacher's page-file lifecycle
// (storage/store/ibd/ibd_file.go, storage/store/blocks/block_file.go):
// open-or-create, read/write/sync/close/delete, generalized here from fixed
// 16 KiB pages to an arbitrary append-only byte stream, and from one file
// per tablespace to one file per mlog object.
//
// Two media classes are modeled as two subdirectories under the pool's base
// directory. A real mpool-backed provider would pick classes by physical
// device; this reference implementation's only job is to let ProbeClass
// legitimately report "no staging class" so the lifecycle manager's
// fallback path (spec §4.1) has something to exercise.
package filepool

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/kvdb/c1kv/mlogpool"
)

// Pool is a filesystem-backed mlogpool.Pool. Allocated-but-uncommitted
// objects live under "<class>/pending/<id>"; committed objects live under
// "<class>/committed/<id>". Commit is a rename; Abort/Delete are unlink.
type Pool struct {
	mu      sync.Mutex
	baseDir string
	nextID  uint64
	classes map[mlogpool.Class]bool
	objects map[mlogpool.ObjectID]*objectMeta
}

type objectMeta struct {
	class      mlogpool.Class
	pendingPth string
	committedP string
	committed  bool
	generation uint64
}

// New creates a pool rooted at baseDir, offering the given classes. Passing
// only mlogpool.ClassCapacity simulates a pool with no staging media.
func New(baseDir string, classes ...mlogpool.Class) (*Pool, error) {
	if len(classes) == 0 {
		classes = []mlogpool.Class{mlogpool.ClassStaging, mlogpool.ClassCapacity}
	}
	p := &Pool{
		baseDir: baseDir,
		classes: make(map[mlogpool.Class]bool, len(classes)),
		objects: make(map[mlogpool.ObjectID]*objectMeta),
	}
	for _, c := range classes {
		p.classes[c] = true
		for _, sub := range []string{"pending", "committed"} {
			if err := os.MkdirAll(filepath.Join(baseDir, string(c), sub), 0o755); err != nil {
				return nil, errors.Wrapf(err, "filepool: create %s/%s", c, sub)
			}
		}
	}
	return p, nil
}

func (p *Pool) ProbeClass(class mlogpool.Class) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classes[class]
}

func (p *Pool) Alloc(class mlogpool.Class, params mlogpool.AllocParams) (mlogpool.ObjectID, mlogpool.AllocProps, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.classes[class] {
		return 0, mlogpool.AllocProps{}, errors.Wrapf(mlogpool.ErrNoStagingClass, "filepool: class %q", class)
	}

	p.nextID++
	id := mlogpool.ObjectID(p.nextID)
	name := strconv.FormatUint(uint64(id), 10)
	pending := filepath.Join(p.baseDir, string(class), "pending", name)

	f, err := os.OpenFile(pending, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, mlogpool.AllocProps{}, errors.Wrapf(err, "filepool: alloc object %d", id)
	}
	_ = f.Close()

	p.objects[id] = &objectMeta{
		class:      class,
		pendingPth: pending,
		committedP: filepath.Join(p.baseDir, string(class), "committed", name),
	}

	_ = params // capacity is advisory for a file-backed pool; the file simply grows
	return id, mlogpool.AllocProps{Class: class}, nil
}

func (p *Pool) Abort(id mlogpool.ObjectID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.objects[id]
	if !ok {
		return mlogpool.ErrObjectNotFound
	}
	if m.committed {
		return mlogpool.ErrAlreadyCommitted
	}
	delete(p.objects, id)
	if err := os.Remove(m.pendingPth); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "filepool: abort object %d", id)
	}
	return nil
}

func (p *Pool) Commit(id mlogpool.ObjectID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.objects[id]
	if !ok {
		return mlogpool.ErrObjectNotFound
	}
	if m.committed {
		return nil
	}
	if err := os.Rename(m.pendingPth, m.committedP); err != nil {
		return errors.Wrapf(err, "filepool: commit object %d", id)
	}
	m.committed = true
	m.generation = 1
	return nil
}

func (p *Pool) Delete(id mlogpool.ObjectID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.objects[id]
	if !ok {
		return mlogpool.ErrObjectNotFound
	}
	delete(p.objects, id)
	if err := os.Remove(m.committedP); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "filepool: delete object %d", id)
	}
	return nil
}

func (p *Pool) Open(id mlogpool.ObjectID, _ mlogpool.OpenFlags) (uint64, mlogpool.Handle, error) {
	p.mu.Lock()
	m, ok := p.objects[id]
	p.mu.Unlock()
	if !ok || !m.committed {
		return 0, nil, mlogpool.ErrObjectNotFound
	}

	f, err := os.OpenFile(m.committedP, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "filepool: open object %d", id)
	}
	return m.generation, &handle{file: f, path: m.committedP}, nil
}

// handle is the *os.File-backed mlogpool.Handle, following the same
// lock-per-operation shape as ibd_file.go.
type handle struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func (h *handle) Append(iovs []mlogpool.IOVec, totalBytes int, sync bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return errors.New("filepool: handle closed")
	}

	written := 0
	for _, v := range iovs {
		n, err := h.file.Write(v.Base)
		written += n
		if err != nil {
			return errors.Wrapf(err, "filepool: append at offset %d", written)
		}
	}
	if written != totalBytes {
		return errors.Errorf("filepool: short append: wrote %d of %d bytes", written, totalBytes)
	}
	if sync {
		return h.file.Sync()
	}
	return nil
}

func (h *handle) Sync() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return errors.New("filepool: handle closed")
	}
	return h.file.Sync()
}

func (h *handle) Len() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return 0, errors.New("filepool: handle closed")
	}
	info, err := h.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "filepool: stat")
	}
	return uint64(info.Size()), nil
}

func (h *handle) Erase(offset int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return errors.New("filepool: handle closed")
	}
	if err := h.file.Truncate(offset); err != nil {
		return errors.Wrapf(err, "filepool: erase from %d", offset)
	}
	if _, err := h.file.Seek(offset, 0); err != nil {
		return errors.Wrap(err, "filepool: seek")
	}
	return h.file.Sync()
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	if err != nil {
		return errors.Wrap(err, "filepool: close")
	}
	return nil
}
