package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arkilian/streamcatalog/pkg/types"
)

var errInjected = errors.New("injected failure")

// memSchemas is an in-memory versioned schema store.
type memSchemas struct {
	mu       sync.Mutex
	versions map[types.StreamKey][]types.Schema
	order    []types.StreamKey
	calls    []string

	failGet, failVersions, failSet, failDelete, failList bool
}

func newMemSchemas() *memSchemas {
	return &memSchemas{versions: make(map[types.StreamKey][]types.Schema)}
}

func (m *memSchemas) put(org, name string, st types.StreamType, schema types.Schema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := types.NewStreamKey(org, name, st)
	if _, ok := m.versions[k]; !ok {
		m.order = append(m.order, k)
	}
	m.versions[k] = append(m.versions[k], schema)
}

func (m *memSchemas) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memSchemas) Get(ctx context.Context, org, name string, st types.StreamType) (types.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("get")
	if m.failGet {
		return types.Schema{}, errInjected
	}
	v := m.versions[types.NewStreamKey(org, name, st)]
	if len(v) == 0 {
		return types.Schema{}, nil
	}
	return v[len(v)-1], nil
}

func (m *memSchemas) GetVersions(ctx context.Context, org, name string, st types.StreamType) ([]types.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("get_versions")
	if m.failVersions {
		return nil, errInjected
	}
	return append([]types.Schema(nil), m.versions[types.NewStreamKey(org, name, st)]...), nil
}

func (m *memSchemas) Set(ctx context.Context, org, name string, st types.StreamType, schema types.Schema) error {
	m.mu.Lock()
	m.record("set")
	fail := m.failSet
	m.mu.Unlock()
	if fail {
		return errInjected
	}
	m.put(org, name, st, schema)
	return nil
}

func (m *memSchemas) Delete(ctx context.Context, org, name string, st types.StreamType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete")
	if m.failDelete {
		return errInjected
	}
	k := types.NewStreamKey(org, name, st)
	delete(m.versions, k)
	for i, o := range m.order {
		if o == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memSchemas) List(ctx context.Context, org string, st *types.StreamType, withSchema bool) ([]types.StreamLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("list")
	if m.failList {
		return nil, errInjected
	}
	var out []types.StreamLocation
	for _, k := range m.order {
		if k.Org != org || (st != nil && k.Type != *st) {
			continue
		}
		loc := types.StreamLocation{Org: k.Org, Name: k.Name, Type: k.Type}
		if withSchema {
			v := m.versions[k]
			loc.Schema = v[len(v)-1]
		}
		out = append(out, loc)
	}
	return out, nil
}

func (m *memSchemas) exists(org, name string, st types.StreamType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.versions[types.NewStreamKey(org, name, st)]) > 0
}

// memKV backs both fake caches.
type memKV struct {
	mu        sync.Mutex
	stats     map[types.StreamKey]types.StreamStats
	schemas   map[types.StreamKey]bool
	failStats bool
	failCache bool
}

func newMemKV() *memKV {
	return &memKV{stats: make(map[types.StreamKey]types.StreamStats), schemas: make(map[types.StreamKey]bool)}
}

type fakeStats struct{ kv *memKV }

func (f fakeStats) Get(key types.StreamKey) types.StreamStats {
	f.kv.mu.Lock()
	defer f.kv.mu.Unlock()
	return f.kv.stats[key]
}

func (f fakeStats) Remove(key types.StreamKey) error {
	f.kv.mu.Lock()
	defer f.kv.mu.Unlock()
	if f.kv.failStats {
		return errInjected
	}
	delete(f.kv.stats, key)
	return nil
}

type fakeSchemaCache struct{ kv *memKV }

func (f fakeSchemaCache) Remove(key types.StreamKey) error {
	f.kv.mu.Lock()
	defer f.kv.mu.Unlock()
	if f.kv.failCache {
		return errInjected
	}
	delete(f.kv.schemas, key)
	return nil
}

// memCompactor records pending deletions and checkpoints.
type memCompactor struct {
	mu       sync.Mutex
	pending  map[types.StreamKey]bool
	offsets  map[types.StreamKey]int64
	failMark bool
	failOff  bool
	failIs   bool
}

func newMemCompactor() *memCompactor {
	return &memCompactor{pending: make(map[types.StreamKey]bool), offsets: make(map[types.StreamKey]int64)}
}

func (c *memCompactor) MarkPendingDelete(ctx context.Context, org, name string, st types.StreamType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failMark {
		return errInjected
	}
	c.pending[types.NewStreamKey(org, name, st)] = true
	return nil
}

func (c *memCompactor) IsDeleting(ctx context.Context, org, name string, st types.StreamType) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIs {
		return false, errInjected
	}
	return c.pending[types.NewStreamKey(org, name, st)], nil
}

func (c *memCompactor) DeleteOffset(ctx context.Context, org, name string, st types.StreamType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOff {
		return errInjected
	}
	delete(c.offsets, types.NewStreamKey(org, name, st))
	return nil
}

type harness struct {
	schemas   *memSchemas
	kv        *memKV
	compactor *memCompactor
	local     bool
	svc       *Service
}

func newHarness() *harness {
	h := &harness{
		schemas:   newMemSchemas(),
		kv:        newMemKV(),
		compactor: newMemCompactor(),
		local:     true,
	}
	h.svc = NewService(Deps{
		Schemas:     h.schemas,
		SchemaCache: fakeSchemaCache{h.kv},
		Stats:       fakeStats{h.kv},
		Compactor:   h.compactor,
		Backend:     BackendFunc(func() bool { return h.local }),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return time.UnixMicro(1700000000000000) },
	})
	return h
}

// seed creates a stream with records in every subsystem.
func (h *harness) seed(org, name string, st types.StreamType) types.StreamKey {
	h.schemas.put(org, name, st, testSchema())
	k := types.NewStreamKey(org, name, st)
	h.kv.stats[k] = types.StreamStats{DocNum: 10, StorageSize: 2097152, CompressedSize: 1048576}
	h.kv.schemas[k] = true
	h.compactor.offsets[k] = 99
	return k
}

func testSchema() types.Schema {
	return types.Schema{
		Fields: []types.Field{
			{Name: "_timestamp", Type: "Int64"},
			{Name: "log", Type: "Utf8"},
			{Name: "level", Type: "Utf8"},
		},
		Metadata: map[string]string{
			"created_at": "1690000000000000",
			"settings":   `{"partition_keys":{"L0":"level"},"full_text_search_keys":["log"],"data_retention":7}`,
		},
	}
}
