// Package dotfuscator reads Dotfuscator map files into mapping records and
// loads them into a mapping.Store.
package dotfuscator

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/net/html/charset"

	"unfuscator/internal/mapping"
	"unfuscator/internal/signature"
	"unfuscator/internal/version"
)

// progressEvery is the number of types between progress reports.
const progressEvery = 100

type mapType struct {
	Name    string      `xml:"name"`
	Methods []mapMethod `xml:"methodlist>method"`
}

type mapMethod struct {
	Name      *string `xml:"name"`
	NewName   *string `xml:"newname"`
	Signature *string `xml:"signature"`
}

// ReadStats counts what a Reader saw in one map file.
type ReadStats struct {
	Types       int `json:"types"`
	Methods     int `json:"methods"`
	Records     int `json:"records"`
	Filtered    int `json:"filtered"`    // skipped by the naming rules
	Unsupported int `json:"unsupported"` // signatures using constructs the parser rejects
	Failed      int `json:"failed"`      // signatures that did not parse
}

// Reader converts map files into records. A Reader is not safe for
// concurrent use; its Stats describe the most recent Read.
type Reader struct {
	logger *slog.Logger
	stats  ReadStats
}

// NewReader returns a Reader logging to logger (slog.Default when nil).
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// Stats returns the counters of the last Read.
func (rd *Reader) Stats() ReadStats {
	return rd.stats
}

func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// countTypes counts the <type> elements of a map after charset decoding.
// A decoding error stops the count; Read reports it on its own pass.
func countTypes(data []byte) int {
	dec := newDecoder(data)
	n := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return n
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "type" {
			n++
		}
	}
}

// ReadMap reads a map file with a default Reader.
func ReadMap(r io.Reader, ver *version.Version, progress func(float64)) iter.Seq2[mapping.Record, error] {
	return NewReader(nil).Read(r, ver, progress)
}

// Read returns the records of the map in r, tagged with ver. The input is
// read fully when iteration starts. progress, when non-nil, receives 0 at
// the start, the fraction of types read every 100 types, and 1 at the end.
//
// Methods that cannot serve as lookup keys are skipped: those of types whose
// name contains '!', methods without a name or signature, compiler-generated
// methods (name starting with '<'), nested types or methods (name containing
// '/') and generic instantiations (signature containing '!'). Signatures the
// parser rejects are skipped and counted. Malformed XML ends the sequence
// with an error.
func (rd *Reader) Read(r io.Reader, ver *version.Version, progress func(float64)) iter.Seq2[mapping.Record, error] {
	return func(yield func(mapping.Record, error) bool) {
		rd.stats = ReadStats{}
		report := func(f float64) {
			if progress != nil {
				progress(f)
			}
		}

		data, err := io.ReadAll(r)
		if err != nil {
			yield(mapping.Record{}, fmt.Errorf("reading map: %w", err))
			return
		}
		var total int
		if progress != nil {
			total = countTypes(data)
		}

		report(0)
		dec := newDecoder(data)
		for {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(mapping.Record{}, fmt.Errorf("decoding map: %w", err))
				return
			}
			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Local != "type" {
				continue
			}

			var t mapType
			if err := dec.DecodeElement(&t, &start); err != nil {
				yield(mapping.Record{}, fmt.Errorf("decoding type near offset %d: %w", dec.InputOffset(), err))
				return
			}
			rd.stats.Types++
			if rd.stats.Types%progressEvery == 0 && total > 0 {
				report(float64(rd.stats.Types) / float64(total))
			}
			typesRead.Inc()

			if strings.Contains(t.Name, "!") {
				rd.stats.Methods += len(t.Methods)
				rd.stats.Filtered += len(t.Methods)
				methodsSkipped.WithLabelValues(reasonFiltered).Add(float64(len(t.Methods)))
				continue
			}
			for _, m := range t.Methods {
				rec, ok := rd.convert(t.Name, m, ver)
				if !ok {
					continue
				}
				rd.stats.Records++
				if !yield(rec, nil) {
					return
				}
			}
		}
		report(1)

		rd.logger.Debug("map read",
			slog.Int("types", rd.stats.Types),
			slog.Int("records", rd.stats.Records),
			slog.Int("filtered", rd.stats.Filtered),
			slog.Int("unsupported", rd.stats.Unsupported),
			slog.Int("failed", rd.stats.Failed))
	}
}

// convert builds the record for one method, or reports false when the
// method is skipped.
func (rd *Reader) convert(typeName string, m mapMethod, ver *version.Version) (mapping.Record, bool) {
	rd.stats.Methods++
	if m.Name == nil || m.Signature == nil {
		rd.skip(reasonIncomplete)
		return mapping.Record{}, false
	}
	name, sig := *m.Name, *m.Signature
	if strings.HasPrefix(name, "<") || strings.Contains(typeName, "/") || strings.Contains(name, "/") {
		rd.skip(reasonFiltered)
		return mapping.Record{}, false
	}
	if strings.Contains(sig, "!") {
		rd.skip(reasonFiltered)
		return mapping.Record{}, false
	}

	newName := name
	if m.NewName != nil {
		newName = *m.NewName
	}
	parsed, err := signature.ParseMapSignature(sig, typeName+"."+newName)
	switch {
	case errors.Is(err, signature.ErrUnsupportedConstruct):
		rd.skip(reasonUnsupported)
		rd.logger.Debug("skipping unsupported signature",
			slog.String("method", typeName+"."+name), slog.String("signature", sig))
		return mapping.Record{}, false
	case err != nil:
		rd.skip(reasonFailed)
		rd.logger.Warn("skipping unparsable signature",
			slog.String("method", typeName+"."+name), slog.String("signature", sig), slog.Any("error", err))
		return mapping.Record{}, false
	}

	return mapping.NewRecord(ver, parsed.String(), parsed.WithMethodName(typeName+"."+name).String()), true
}

func (rd *Reader) skip(reason string) {
	switch reason {
	case reasonUnsupported:
		rd.stats.Unsupported++
	case reasonFailed:
		rd.stats.Failed++
	default:
		rd.stats.Filtered++
	}
	methodsSkipped.WithLabelValues(reason).Inc()
}
