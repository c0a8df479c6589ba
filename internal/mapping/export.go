package mapping

import (
	"context"
	"fmt"
	"iter"
)

// SourcedRecord is a record with the source it was inserted under ("" for
// none).
type SourcedRecord struct {
	Source string
	Record
}

// Exporter is implemented by stores that can enumerate their contents.
// Export yields the records of one source contiguously, in insertion order.
type Exporter interface {
	Export(ctx context.Context) iter.Seq2[SourcedRecord, error]
}

// CopyStats summarises a Copy.
type CopyStats struct {
	Records int `json:"records"`
	Sources int `json:"sources"`
}

// Copy inserts every record of src into dst, one source at a time. Sources
// are kept when dst implements SourceInserter, so copying again replaces
// rather than duplicates named sources. progress, if set, receives the
// running record count after each source.
func Copy(ctx context.Context, dst Store, src Exporter, progress func(records int)) (CopyStats, error) {
	var (
		st      CopyStats
		source  string
		pending []Record
		started bool
	)
	flush := func() error {
		if !started {
			return nil
		}
		var (
			n   int
			err error
		)
		if si, ok := dst.(SourceInserter); ok && source != "" {
			n, err = si.InsertSource(ctx, source, Seq(pending...))
		} else {
			n, err = dst.Insert(ctx, Seq(pending...))
		}
		if err != nil {
			return fmt.Errorf("copying source %q: %w", source, err)
		}
		st.Records += n
		st.Sources++
		pending = pending[:0]
		if progress != nil {
			progress(st.Records)
		}
		return nil
	}

	for sr, err := range src.Export(ctx) {
		if err != nil {
			return st, err
		}
		if started && sr.Source != source {
			if err := flush(); err != nil {
				return st, err
			}
		}
		source, started = sr.Source, true
		r := sr.Record
		r.ID = 0
		pending = append(pending, r)
	}
	if err := flush(); err != nil {
		return st, err
	}
	return st, nil
}
