package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Op records one call made against a Memory store.
type Op struct {
	Name string // "get", "set", "update" or "last_child"
	Path string
	Doc  map[string]any
}

// Memory is an in-process Store. It records every call, which makes it
// the store of choice in tests and in dry runs.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	ops  []Op

	// FailOn, when set, is consulted before every call; a non-nil return
	// aborts the call with that error wrapped in ErrUnavailable.
	FailOn func(op, path string) error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]any)}
}

func (m *Memory) begin(name, path string, doc map[string]any) error {
	m.ops = append(m.ops, Op{Name: name, Path: path, Doc: copyDoc(doc)})
	if m.FailOn != nil {
		if err := m.FailOn(name, path); err != nil {
			return Unavailable(name, path, err)
		}
	}
	return nil
}

// Get returns a copy of the document at path.
func (m *Memory) Get(_ context.Context, path string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = Join(path)
	if err := m.begin("get", path, nil); err != nil {
		return nil, err
	}
	doc, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	return copyDoc(doc), nil
}

// Set replaces the document at path.
func (m *Memory) Set(_ context.Context, path string, doc map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = Join(path)
	if err := m.begin("set", path, doc); err != nil {
		return err
	}
	m.docs[path] = copyDoc(doc)
	return nil
}

// Update merges fields into the document at path.
func (m *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = Join(path)
	if err := m.begin("update", path, fields); err != nil {
		return err
	}
	doc, ok := m.docs[path]
	if !ok {
		doc = make(map[string]any, len(fields))
		m.docs[path] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// LastChild returns the greatest direct child key under prefix.
func (m *Memory) LastChild(_ context.Context, prefix string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix = Join(prefix)
	if err := m.begin("last_child", prefix, nil); err != nil {
		return "", false, err
	}
	var last string
	found := false
	for p := range m.docs {
		if !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		child := strings.SplitN(p[len(prefix)+1:], "/", 2)[0]
		if !found || child > last {
			last = child
			found = true
		}
	}
	return last, found, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Ops returns the recorded calls in order.
func (m *Memory) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

// OpsNamed returns the recorded calls with the given name.
func (m *Memory) OpsNamed(name string) []Op {
	var out []Op
	for _, op := range m.Ops() {
		if op.Name == name {
			out = append(out, op)
		}
	}
	return out
}

// ResetOps clears the call log.
func (m *Memory) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

// Paths returns every stored path, sorted.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.docs))
	for p := range m.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func copyDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
