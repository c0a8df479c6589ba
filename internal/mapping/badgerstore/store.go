// Package badgerstore implements mapping.Store on an embedded BadgerDB.
//
// Key layout:
//
//	m/<obfuscated>\x00<seq>  JSON record
//	v/<version>\x00<seq>     empty; one per record, for Versions
//	s/<source>\x00<seq>      obfuscated key of the record, for source replacement
//	src/<source>             JSON sourceInfo
//
// seq is a big-endian hex counter, so prefix iteration yields records in
// insertion order.
package badgerstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"unfuscator/internal/mapping"
	"unfuscator/internal/version"
)

const (
	keyPrefixRecord  = "m/"
	keyPrefixVersion = "v/"
	keyPrefixSource  = "s/"
	keyPrefixInfo    = "src/"
	seqKey           = "seq/records"
	seqBandwidth     = 1000
	sep              = "\x00"
)

// Store is a BadgerDB-backed mapping store.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

var (
	_ mapping.Store          = (*Store)(nil)
	_ mapping.SourceInserter = (*Store)(nil)
	_ mapping.StatsProvider  = (*Store)(nil)
	_ mapping.Exporter       = (*Store)(nil)
)

type storedRecord struct {
	ID           int64  `json:"id"`
	Version      string `json:"version,omitempty"`
	Unobfuscated string `json:"unobfuscated"`
	Source       string `json:"source,omitempty"`
}

type sourceInfo struct {
	ID       string `json:"id"`
	Records  int    `json:"records"`
	LoadedAt int64  `json:"loaded_at"`
}

// Open opens or creates a store in dir. An empty dir opens an in-memory store.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(newBadgerLogger(logger))
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return New(bdb, logger)
}

// New wraps an open BadgerDB.
func New(bdb *badger.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seq, err := bdb.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("allocating record sequence: %w", err)
	}
	return &Store{db: bdb, seq: seq, logger: logger}, nil
}

// Close releases the sequence and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func recordPrefix(obfuscated string) []byte {
	return []byte(keyPrefixRecord + obfuscated + sep)
}

// Get returns the records stored under obfuscated, in insertion order.
func (s *Store) Get(ctx context.Context, obfuscated string) ([]mapping.Record, error) {
	var out []mapping.Record
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := recordPrefix(obfuscated)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var sr storedRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sr)
			}); err != nil {
				return fmt.Errorf("decoding %q: %w", it.Item().Key(), err)
			}
			out = append(out, mapping.Record{
				ID:           sr.ID,
				Version:      sr.Version,
				Obfuscated:   obfuscated,
				Unobfuscated: sr.Unobfuscated,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading mappings: %w", err)
	}
	return out, nil
}

// Insert stores records without a source.
func (s *Store) Insert(ctx context.Context, records iter.Seq2[mapping.Record, error]) (int, error) {
	return s.InsertSource(ctx, "", records)
}

// InsertSource stores records loaded from source, replacing earlier records
// of the same source. The sequence is drained and validated before anything
// is written. Batches larger than one Badger transaction are split across
// several commits.
func (s *Store) InsertSource(ctx context.Context, source string, records iter.Seq2[mapping.Record, error]) (int, error) {
	batch, err := mapping.Collect(records)
	if err != nil {
		return 0, err
	}

	if source != "" {
		if err := s.dropSource(ctx, source); err != nil {
			return 0, err
		}
	}

	w := &txnWriter{db: s.db}
	defer w.discard()
	for _, r := range batch {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("allocating record id: %w", err)
		}
		id := int64(n) + 1
		suffix := sep + fmt.Sprintf("%016x", id)

		val, err := json.Marshal(storedRecord{ID: id, Version: r.Version, Unobfuscated: r.Unobfuscated, Source: source})
		if err != nil {
			return 0, fmt.Errorf("encoding %q: %w", r.Obfuscated, err)
		}
		if err := w.set([]byte(keyPrefixRecord+r.Obfuscated+suffix), val); err != nil {
			return 0, err
		}
		if err := w.set([]byte(keyPrefixVersion+r.Version+suffix), nil); err != nil {
			return 0, err
		}
		if source != "" {
			if err := w.set([]byte(keyPrefixSource+source+suffix), []byte(r.Obfuscated)); err != nil {
				return 0, err
			}
		}
	}

	if source != "" {
		info, err := json.Marshal(sourceInfo{ID: uuid.NewString(), Records: len(batch), LoadedAt: time.Now().Unix()})
		if err != nil {
			return 0, err
		}
		if err := w.set([]byte(keyPrefixInfo+source), info); err != nil {
			return 0, err
		}
	}
	if err := w.commit(); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// dropSource deletes every record previously stored for source.
func (s *Store) dropSource(ctx context.Context, source string) error {
	w := &txnWriter{db: s.db}
	defer w.discard()

	prefix := []byte(keyPrefixSource + source + sep)
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			suffix := sep + strings.TrimPrefix(string(item.Key()), string(prefix))
			obfuscated, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			recKey := []byte(keyPrefixRecord + string(obfuscated) + suffix)

			var sr storedRecord
			recItem, err := txn.Get(recKey)
			if err == nil {
				if err := recItem.Value(func(val []byte) error { return json.Unmarshal(val, &sr) }); err != nil {
					return err
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			stale = append(stale, item.KeyCopy(nil), recKey, []byte(keyPrefixVersion+sr.Version+suffix))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finding records of %s: %w", source, err)
	}

	for _, k := range stale {
		if err := w.delete(k); err != nil {
			return err
		}
	}
	if err := w.delete([]byte(keyPrefixInfo + source)); err != nil {
		return err
	}
	if err := w.commit(); err != nil {
		return fmt.Errorf("clearing records of %s: %w", source, err)
	}
	if len(stale) > 0 {
		s.logger.Debug("replaced map source", slog.String("source", source), slog.Int("records", len(stale)/3))
	}
	return nil
}

// Export yields every record grouped by source. Records are read in one
// view transaction and buffered per source, since keys are ordered by
// obfuscated signature rather than by source.
func (s *Store) Export(ctx context.Context) iter.Seq2[mapping.SourcedRecord, error] {
	return func(yield func(mapping.SourcedRecord, error) bool) {
		var (
			order    []string
			bySource = make(map[string][]mapping.Record)
		)
		err := s.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(keyPrefixRecord)})
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				key := strings.TrimPrefix(string(it.Item().Key()), keyPrefixRecord)
				obfuscated, _, _ := strings.Cut(key, sep)
				var sr storedRecord
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &sr)
				}); err != nil {
					return fmt.Errorf("decoding %q: %w", it.Item().Key(), err)
				}
				if _, ok := bySource[sr.Source]; !ok {
					order = append(order, sr.Source)
				}
				bySource[sr.Source] = append(bySource[sr.Source], mapping.Record{
					ID:           sr.ID,
					Version:      sr.Version,
					Obfuscated:   obfuscated,
					Unobfuscated: sr.Unobfuscated,
				})
			}
			return nil
		})
		if err != nil {
			yield(mapping.SourcedRecord{}, fmt.Errorf("reading mappings: %w", err))
			return
		}

		for _, src := range order {
			recs := bySource[src]
			slices.SortFunc(recs, func(a, b mapping.Record) int { return cmp.Compare(a.ID, b.ID) })
			for _, r := range recs {
				if !yield(mapping.SourcedRecord{Source: src, Record: r}, nil) {
					return
				}
			}
		}
	}
}

// Versions returns the distinct versions present, ascending, nil first.
func (s *Store) Versions(ctx context.Context) ([]*version.Version, error) {
	texts, err := s.distinctVersions(ctx)
	if err != nil {
		return nil, err
	}
	return mapping.ParseVersions(texts)
}

func (s *Store) distinctVersions(ctx context.Context) ([]string, error) {
	var texts []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefixVersion)})
		defer it.Close()
		last := ""
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := bytes.TrimPrefix(it.Item().Key(), []byte(keyPrefixVersion))
			v, _, _ := strings.Cut(string(key), sep)
			if len(texts) == 0 || v != last {
				texts = append(texts, v)
				last = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading versions: %w", err)
	}
	return texts, nil
}

// Stats counts records, distinct versions and named sources.
func (s *Store) Stats(ctx context.Context) (mapping.Stats, error) {
	var st mapping.Stats
	versions, err := s.distinctVersions(ctx)
	if err != nil {
		return st, err
	}
	st.Versions = len(versions)
	err = s.db.View(func(txn *badger.Txn) error {
		st.Records = countPrefix(txn, keyPrefixRecord)
		st.Maps = int(countPrefix(txn, keyPrefixInfo))
		return nil
	})
	return st, err
}

func countPrefix(txn *badger.Txn, prefix string) int64 {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
	defer it.Close()
	var n int64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// txnWriter applies writes in as few transactions as Badger allows,
// committing and starting over when a transaction fills up.
type txnWriter struct {
	db  *badger.DB
	txn *badger.Txn
}

func (w *txnWriter) set(key, val []byte) error {
	return w.apply(func(txn *badger.Txn) error { return txn.Set(key, val) })
}

func (w *txnWriter) delete(key []byte) error {
	return w.apply(func(txn *badger.Txn) error { return txn.Delete(key) })
}

func (w *txnWriter) apply(op func(*badger.Txn) error) error {
	if w.txn == nil {
		w.txn = w.db.NewTransaction(true)
	}
	err := op(w.txn)
	if errors.Is(err, badger.ErrTxnTooBig) {
		if err := w.commit(); err != nil {
			return err
		}
		w.txn = w.db.NewTransaction(true)
		err = op(w.txn)
	}
	if err != nil {
		return fmt.Errorf("writing to badger: %w", err)
	}
	return nil
}

func (w *txnWriter) commit() error {
	if w.txn == nil {
		return nil
	}
	err := w.txn.Commit()
	w.txn = nil
	if err != nil {
		return fmt.Errorf("committing badger transaction: %w", err)
	}
	return nil
}

func (w *txnWriter) discard() {
	if w.txn != nil {
		w.txn.Discard()
		w.txn = nil
	}
}
