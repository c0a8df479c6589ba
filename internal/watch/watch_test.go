package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"unfuscator/internal/dotfuscator"
	"unfuscator/internal/logging"
	"unfuscator/internal/mapping"
)

const smallMap = `<?xml version="1.0" encoding="utf-8"?>
<dotfuscatorMap version="1.1">
  <mapping>
    <module>
      <name>Acme.dll</name>
      <type>
        <name>Acme.Service</name>
        <methodlist>
          <method>
            <signature>void(int32)</signature>
            <name>Start</name>
            <newname>a</newname>
          </method>
        </methodlist>
      </type>
    </module>
  </mapping>
</dotfuscatorMap>
`

const key = "Acme.Service.a(Int32)"

func startWatcher(t *testing.T, cfg Config, store mapping.Store) *Watcher {
	t.Helper()
	w, err := New(cfg, dotfuscator.NewLoader(store, logging.Nop()), logging.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
	return w
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recordsFor(store mapping.Store) int {
	got, _ := store.Get(context.Background(), key)
	return len(got)
}

func TestWatcherLoadsNewFiles(t *testing.T) {
	dir := t.TempDir()
	store := mapping.NewMemoryStore()
	w := startWatcher(t, Config{Dir: dir, Debounce: 20 * time.Millisecond}, store)

	// give Run a moment to register the watch
	waitFor(t, "watcher start", func() bool { return !w.Status().StartedAt.IsZero() })

	if err := os.WriteFile(filepath.Join(dir, "Acme-1.2.xml"), []byte(smallMap), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "map load", func() bool { return recordsFor(store) == 1 })

	got, _ := store.Get(context.Background(), key)
	if got[0].Version != "1.2" || got[0].Unobfuscated != "Acme.Service.Start(Int32)" {
		t.Errorf("loaded record = %+v", got[0])
	}

	// rewriting the same file replaces its records
	if err := os.WriteFile(filepath.Join(dir, "Acme-1.2.xml"), []byte(smallMap), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second load", func() bool { return w.Status().Loaded >= 2 })
	if n := recordsFor(store); n != 1 {
		t.Errorf("records after reload = %d, want 1", n)
	}
}

func TestWatcherInitialLoadAndIgnore(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Acme-1.0.xml", "Acme-1.1.xml", "Legacy-0.1.xml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(smallMap), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, dotfuscator.IgnoreFile), []byte("Legacy-*\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := mapping.NewMemoryStore()
	w := startWatcher(t, Config{Dir: dir, Debounce: 20 * time.Millisecond, InitialLoad: true}, store)
	waitFor(t, "initial load", func() bool { return w.Status().Loaded == 2 })

	if n := recordsFor(store); n != 2 {
		t.Errorf("records = %d, want 2", n)
	}

	// ignored names are not picked up later either
	if err := os.WriteFile(filepath.Join(dir, "Legacy-0.2.xml"), []byte(smallMap), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Acme-1.3.xml"), []byte(smallMap), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "new map", func() bool { return recordsFor(store) == 3 })
	time.Sleep(100 * time.Millisecond)
	if n := recordsFor(store); n != 3 {
		t.Errorf("records = %d, want 3 (ignored file loaded?)", n)
	}
}

func TestWatcherRecordsFailures(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, Config{Dir: dir, Debounce: 20 * time.Millisecond}, mapping.NewMemoryStore())
	waitFor(t, "watcher start", func() bool { return !w.Status().StartedAt.IsZero() })

	if err := os.WriteFile(filepath.Join(dir, "Broken-1.0.xml"), []byte("<dotfuscatorMap><type>"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failed load", func() bool { return w.Status().Failed > 0 })
	st := w.Status()
	if st.LastError == "" || filepath.Base(st.LastPath) != "Broken-1.0.xml" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestNewRejectsMissingDir(t *testing.T) {
	loader := dotfuscator.NewLoader(mapping.NewMemoryStore(), logging.Nop())
	if _, err := New(Config{Dir: filepath.Join(t.TempDir(), "missing")}, loader, logging.Nop()); err == nil {
		t.Error("expected error for missing directory")
	}
	file := filepath.Join(t.TempDir(), "Acme-1.0.xml")
	if err := os.WriteFile(file, []byte(smallMap), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{Dir: file}, loader, logging.Nop()); err == nil {
		t.Error("expected error for a file")
	}
}

func TestNewDefaults(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir()}, dotfuscator.NewLoader(mapping.NewMemoryStore(), nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()
	if w.cfg.Debounce != DefaultDebounce {
		t.Errorf("Debounce = %v, want %v", w.cfg.Debounce, DefaultDebounce)
	}
}

func TestSupersededTimerKeepsPendingLoad(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir()}, dotfuscator.NewLoader(mapping.NewMemoryStore(), nil), logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()

	path := filepath.Join(w.cfg.Dir, "Acme-1.0.xml")
	stale := time.NewTimer(time.Hour)
	current := time.NewTimer(time.Hour)
	defer stale.Stop()
	defer current.Stop()
	w.debounceMap[path] = current

	w.fire(path, &stale)
	if got := w.Status().Pending; got != 1 {
		t.Errorf("Pending after stale fire = %d, want 1", got)
	}
	if len(w.loadQueue) != 0 {
		t.Errorf("stale fire queued %d loads, want 0", len(w.loadQueue))
	}

	w.fire(path, &current)
	if got := w.Status().Pending; got != 0 {
		t.Errorf("Pending after fire = %d, want 0", got)
	}
	if got := <-w.loadQueue; got != path {
		t.Errorf("queued %q, want %q", got, path)
	}
}
