// Package mapping defines the records produced from obfuscation map files and
// the Store contract used to look them up by obfuscated signature.
package mapping

import (
	"context"
	"iter"
	"slices"

	"unfuscator/internal/version"
)

// Store indexes records by their obfuscated signature key.
//
// Get must be safe to call concurrently with other reads. Insert consumes
// the whole sequence in one transaction: if the sequence yields an error,
// nothing is stored. Records with equal keys are returned in insertion order.
type Store interface {
	Get(ctx context.Context, obfuscated string) ([]Record, error)
	Insert(ctx context.Context, records iter.Seq2[Record, error]) (int, error)
	// Versions returns the distinct versions present, ascending, with nil
	// standing for records that carry no version.
	Versions(ctx context.Context) ([]*version.Version, error)
	Close() error
}

// Stats summarises the contents of a store.
type Stats struct {
	Records  int64 `json:"records" yaml:"records"`
	Versions int   `json:"versions" yaml:"versions"`
	Maps     int   `json:"maps" yaml:"maps"`
}

// StatsProvider is implemented by stores that can summarise themselves.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// SourceInserter is implemented by stores that remember which map file a
// batch came from. InsertSource replaces every record previously inserted
// for the same non-empty source, so reloading a changed file does not
// duplicate its records.
type SourceInserter interface {
	InsertSource(ctx context.Context, source string, records iter.Seq2[Record, error]) (int, error)
}

// Seq adapts a slice to the sequence type taken by Store.Insert.
func Seq(records ...Record) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Collect drains a record sequence, stopping at the first error.
func Collect(records iter.Seq2[Record, error]) ([]Record, error) {
	var out []Record
	for r, err := range records {
		if err != nil {
			return nil, err
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseVersions converts distinct stored version strings ("" for untagged)
// into sorted versions.
func ParseVersions(texts []string) ([]*version.Version, error) {
	out := make([]*version.Version, 0, len(texts))
	for _, s := range texts {
		if s == "" {
			out = append(out, nil)
			continue
		}
		v, err := version.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	version.Sort(out)
	return slices.CompactFunc(out, (*version.Version).Equal), nil
}
