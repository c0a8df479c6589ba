package mapping

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"unfuscator/internal/version"
)

func sampleRecords() []Record {
	return []Record{
		{Version: "1.0.0.0", Obfuscated: "a.b(Int32)", Unobfuscated: "Foo.Bar(Int32)"},
		{Version: "1.1.0.0", Obfuscated: "a.b(Int32)", Unobfuscated: "Foo.Baz(Int32)"},
		{Obfuscated: "a.c()", Unobfuscated: "Foo.Qux()"},
	}
}

func failingSeq(good []Record, err error) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, r := range good {
			if !yield(r, nil) {
				return
			}
		}
		yield(Record{}, err)
	}
}

func TestMemoryStoreGetPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	n, err := s.Insert(ctx, Seq(sampleRecords()...))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Insert() = %d, want 3", n)
	}

	got, err := s.Get(ctx, "a.b(Int32)")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Get() returned %d records, want 2", len(got))
	}
	if got[0].Unobfuscated != "Foo.Bar(Int32)" || got[1].Unobfuscated != "Foo.Baz(Int32)" {
		t.Errorf("Get() order = %q, %q", got[0].Unobfuscated, got[1].Unobfuscated)
	}
	if got[0].ID == 0 || got[0].ID >= got[1].ID {
		t.Errorf("IDs not assigned in order: %d, %d", got[0].ID, got[1].ID)
	}

	missing, err := s.Get(ctx, "z()")
	if err != nil || len(missing) != 0 {
		t.Errorf("Get(missing) = %v, %v", missing, err)
	}
}

func TestMemoryStoreInsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")
	if _, err := s.Insert(ctx, failingSeq(sampleRecords(), boom)); !errors.Is(err, boom) {
		t.Fatalf("Insert() error = %v, want boom", err)
	}
	if got := s.Records(); len(got) != 0 {
		t.Errorf("store has %d records after failed insert", len(got))
	}
}

func TestMemoryStoreRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Insert(ctx, Seq(Record{Obfuscated: "a()", Version: "x.y"})); !errors.Is(err, version.ErrInvalid) {
		t.Errorf("Insert(bad version) error = %v", err)
	}
	if _, err := s.Insert(ctx, Seq(Record{Unobfuscated: "a()"})); err == nil {
		t.Error("Insert(no key) succeeded")
	}
}

func TestMemoryStoreVersions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Insert(ctx, Seq(sampleRecords()...)); err != nil {
		t.Fatal(err)
	}
	vs, err := s.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("Versions() = %v, want 3 entries", vs)
	}
	if vs[0] != nil {
		t.Errorf("Versions()[0] = %v, want nil for untagged records", vs[0])
	}
	if vs[1].String() != "1.0.0.0" || vs[2].String() != "1.1.0.0" {
		t.Errorf("Versions() = %v, %v", vs[1], vs[2])
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Records != 3 || st.Versions != 3 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestMemoryStoreConcurrentGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Insert(ctx, Seq(sampleRecords()...)); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if recs, err := s.Get(ctx, "a.b(Int32)"); err != nil || len(recs) != 2 {
					t.Errorf("Get() = %d records, %v", len(recs), err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

type countingStore struct {
	*MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) ([]Record, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, key)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	c, err := NewCachedStore(inner, 8)
	if err != nil {
		t.Fatalf("NewCachedStore() error = %v", err)
	}
	if _, err := c.Insert(ctx, Seq(sampleRecords()...)); err != nil {
		t.Fatal(err)
	}

	for range 3 {
		recs, err := c.Get(ctx, "a.b(Int32)")
		if err != nil || len(recs) != 2 {
			t.Fatalf("Get() = %v, %v", recs, err)
		}
	}
	if inner.gets != 1 {
		t.Errorf("inner Get called %d times, want 1", inner.gets)
	}

	// Mutating a returned slice must not corrupt the cache.
	recs, _ := c.Get(ctx, "a.b(Int32)")
	recs[0].Unobfuscated = "mutated"
	again, _ := c.Get(ctx, "a.b(Int32)")
	if again[0].Unobfuscated != "Foo.Bar(Int32)" {
		t.Errorf("cached record mutated: %q", again[0].Unobfuscated)
	}

	if _, err := c.Insert(ctx, Seq(Record{Obfuscated: "a.b(Int32)", Unobfuscated: "Foo.New(Int32)"})); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("cache holds %d keys after insert, want 0", c.Len())
	}
	recs, _ = c.Get(ctx, "a.b(Int32)")
	if len(recs) != 3 {
		t.Errorf("Get() after insert = %d records, want 3", len(recs))
	}
	if inner.gets != 2 {
		t.Errorf("inner Get called %d times, want 2", inner.gets)
	}

	if _, err := c.Stats(ctx); err != nil {
		t.Errorf("Stats() error = %v", err)
	}
}

// blockingStore reads the wrapped store, then waits for release before
// returning, so a lookup can straddle an insert.
type blockingStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Get(ctx context.Context, key string) ([]Record, error) {
	recs, err := b.MemoryStore.Get(ctx, key)
	b.entered <- struct{}{}
	<-b.release
	return recs, err
}

func TestCachedStoreDropsLookupOverlappingInsert(t *testing.T) {
	ctx := context.Background()
	inner := &blockingStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	c, err := NewCachedStore(inner, 8)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan []Record)
	go func() {
		recs, _ := c.Get(ctx, "k()")
		done <- recs
	}()
	<-inner.entered

	if _, err := c.Insert(ctx, Seq(Record{Obfuscated: "k()", Unobfuscated: "K()"})); err != nil {
		t.Fatal(err)
	}
	close(inner.release)
	if recs := <-done; len(recs) != 0 {
		t.Fatalf("lookup started before insert = %d records, want 0", len(recs))
	}
	if c.Len() != 0 {
		t.Errorf("cache holds %d keys, want the overlapping lookup dropped", c.Len())
	}

	go func() { <-inner.entered }()
	recs, err := c.Get(ctx, "k()")
	if err != nil || len(recs) != 1 {
		t.Errorf("Get() after insert = %v, %v, want 1 record", recs, err)
	}
}

func TestRecordVersionNumber(t *testing.T) {
	r := NewRecord(version.MustParse("1.2.3"), "a()", "b()")
	if r.Version != "1.2.3" {
		t.Errorf("Version = %q", r.Version)
	}
	if v := r.VersionNumber(); v == nil || v.String() != "1.2.3" {
		t.Errorf("VersionNumber() = %v", v)
	}
	if v := NewRecord(nil, "a()", "b()").VersionNumber(); v != nil {
		t.Errorf("untagged VersionNumber() = %v, want nil", v)
	}
}

func TestMemoryStoreInsertSourceReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.InsertSource(ctx, "app-1.0.xml", Seq(sampleRecords()...)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertSource(ctx, "lib-2.0.xml", Seq(Record{Version: "2.0", Obfuscated: "x()", Unobfuscated: "Lib.X()"})); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertSource(ctx, "app-1.0.xml", Seq(Record{Version: "1.0.0.0", Obfuscated: "a.c()", Unobfuscated: "Foo.Reloaded()"})); err != nil {
		t.Fatal(err)
	}

	if recs, _ := s.Get(ctx, "a.b(Int32)"); len(recs) != 0 {
		t.Errorf("stale records survived reload: %v", recs)
	}
	recs, _ := s.Get(ctx, "a.c()")
	if len(recs) != 1 || recs[0].Unobfuscated != "Foo.Reloaded()" {
		t.Errorf("Get(a.c()) = %v", recs)
	}
	if recs, _ := s.Get(ctx, "x()"); len(recs) != 1 {
		t.Errorf("other source affected: %v", recs)
	}

	st, _ := s.Stats(ctx)
	if st.Records != 2 || st.Maps != 2 {
		t.Errorf("Stats() = %+v, want 2 records in 2 maps", st)
	}
}

func TestCopyKeepsSources(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	recs := sampleRecords()
	src.InsertSource(ctx, "a.xml", Seq(recs[0], recs[1]))
	src.Insert(ctx, Seq(recs[2]))
	src.InsertSource(ctx, "b.xml", Seq(Record{Version: "2.0", Obfuscated: "z()", Unobfuscated: "Other.Z()"}))

	var got []SourcedRecord
	for sr, err := range src.Export(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, sr)
	}
	wantSources := []string{"a.xml", "a.xml", "", "b.xml"}
	if len(got) != len(wantSources) {
		t.Fatalf("Export() = %+v", got)
	}
	for i, want := range wantSources {
		if got[i].Source != want {
			t.Errorf("Export()[%d].Source = %q, want %q", i, got[i].Source, want)
		}
	}

	dst := NewMemoryStore()
	var progress []int
	st, err := Copy(ctx, dst, src, func(n int) { progress = append(progress, n) })
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if st != (CopyStats{Records: 4, Sources: 3}) {
		t.Errorf("Copy() = %+v", st)
	}
	if len(progress) != 3 || progress[2] != 4 {
		t.Errorf("progress = %v", progress)
	}
	if dstStats, _ := dst.Stats(ctx); dstStats.Records != 4 || dstStats.Maps != 2 {
		t.Errorf("dst Stats() = %+v", dstStats)
	}
	if got, _ := dst.Get(ctx, "a.b(Int32)"); len(got) != 2 || got[0].Unobfuscated != "Foo.Bar(Int32)" {
		t.Errorf("dst Get() = %+v", got)
	}

	// named sources are replaced, anonymous records appended again
	if _, err := Copy(ctx, dst, src, nil); err != nil {
		t.Fatal(err)
	}
	if n := len(dst.Records()); n != 5 {
		t.Errorf("after second copy: %d records, want 5", n)
	}
}

func TestCopyStopsOnInsertError(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	src.InsertSource(ctx, "a.xml", Seq(sampleRecords()...))

	boom := errors.New("boom")
	_, err := Copy(ctx, failingInsertStore{NewMemoryStore(), boom}, src, nil)
	if !errors.Is(err, boom) {
		t.Errorf("Copy() error = %v, want boom", err)
	}
}

type failingInsertStore struct {
	*MemoryStore
	err error
}

func (f failingInsertStore) InsertSource(ctx context.Context, source string, records iter.Seq2[Record, error]) (int, error) {
	return 0, f.err
}
