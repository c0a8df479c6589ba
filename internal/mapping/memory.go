package mapping

import (
	"context"
	"iter"
	"slices"
	"sync"

	"unfuscator/internal/version"
)

// MemoryStore is a Store that keeps records in a list, indexed by key.
// It is mainly used for one-shot CLI runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	sources []string // parallel to records
	byKey   map[string][]int
	nextID  int64
}

// Verify interface compliance at compile time.
var (
	_ Store          = (*MemoryStore)(nil)
	_ SourceInserter = (*MemoryStore)(nil)
	_ StatsProvider  = (*MemoryStore)(nil)
	_ Exporter       = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string][]int), nextID: 1}
}

// Get returns the records stored under obfuscated, in insertion order.
func (m *MemoryStore) Get(ctx context.Context, obfuscated string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.byKey[obfuscated]
	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = m.records[j]
	}
	return out, nil
}

// Insert appends all records without a source.
func (m *MemoryStore) Insert(ctx context.Context, records iter.Seq2[Record, error]) (int, error) {
	return m.InsertSource(ctx, "", records)
}

// InsertSource appends records loaded from source, replacing earlier records
// of the same source. The sequence is drained before the store is touched,
// so a failing sequence leaves the store unchanged.
func (m *MemoryStore) InsertSource(ctx context.Context, source string, records iter.Seq2[Record, error]) (int, error) {
	batch, err := Collect(records)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if source != "" && slices.Contains(m.sources, source) {
		m.dropSource(source)
	}
	for _, r := range batch {
		r.ID = m.nextID
		m.nextID++
		m.byKey[r.Obfuscated] = append(m.byKey[r.Obfuscated], len(m.records))
		m.records = append(m.records, r)
		m.sources = append(m.sources, source)
	}
	return len(batch), nil
}

// dropSource removes the records of source and rebuilds the key index.
func (m *MemoryStore) dropSource(source string) {
	var (
		records []Record
		sources []string
	)
	for i, r := range m.records {
		if m.sources[i] != source {
			records = append(records, r)
			sources = append(sources, m.sources[i])
		}
	}
	m.records, m.sources = records, sources
	clear(m.byKey)
	for i, r := range m.records {
		m.byKey[r.Obfuscated] = append(m.byKey[r.Obfuscated], i)
	}
}

// Versions returns the distinct versions of all stored records.
func (m *MemoryStore) Versions(ctx context.Context) ([]*version.Version, error) {
	m.mu.RLock()
	texts := distinct(m.records, func(r Record) string { return r.Version })
	m.mu.RUnlock()
	return ParseVersions(texts)
}

// Stats reports record and version counts. Maps counts distinct non-empty
// sources.
func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	maps := 0
	for _, s := range distinct(m.sources, func(s string) string { return s }) {
		if s != "" {
			maps++
		}
	}
	return Stats{
		Records:  int64(len(m.records)),
		Versions: len(distinct(m.records, func(r Record) string { return r.Version })),
		Maps:     maps,
	}, nil
}

// Records returns a copy of every stored record in insertion order.
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records)
}

// Export yields a snapshot of every record grouped by source, sources in
// order of first insertion.
func (m *MemoryStore) Export(ctx context.Context) iter.Seq2[SourcedRecord, error] {
	return func(yield func(SourcedRecord, error) bool) {
		m.mu.RLock()
		order := distinct(m.sources, func(s string) string { return s })
		bySource := make(map[string][]Record, len(order))
		for i, r := range m.records {
			bySource[m.sources[i]] = append(bySource[m.sources[i]], r)
		}
		m.mu.RUnlock()

		for _, src := range order {
			for _, r := range bySource[src] {
				if err := ctx.Err(); err != nil {
					yield(SourcedRecord{}, err)
					return
				}
				if !yield(SourcedRecord{Source: src, Record: r}, nil) {
					return
				}
			}
		}
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func distinct[T any](items []T, key func(T) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		k := key(it)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
