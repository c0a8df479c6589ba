// Package render writes unfuscation results as plain text, JSON, XML or YAML.
package render

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"unfuscator/internal/unfuscate"
	"unfuscator/internal/version"
)

// Writer renders a result. target is the version the trace came from, or nil
// when unknown.
type Writer interface {
	Write(w io.Writer, res *unfuscate.Result, target *version.Version) error
}

// ContentTyper is implemented by writers that know their MIME type.
type ContentTyper interface {
	ContentType() string
}

var writers = map[string]Writer{
	"text": Text{},
	"json": JSON{Indent: "  "},
	"xml":  XML{Indent: "  "},
	"yaml": YAML{},
}

// Names lists the formats accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(writers))
	for name := range writers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ByName returns the writer for a format name, case-insensitively.
func ByName(name string) (Writer, error) {
	w, ok := writers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return w, nil
}

// Text writes one line per frame: the best alternative's original
// signature, or the parsed input signature followed by '?' when the frame
// has no alternative. A best alternative whose version does not fully match
// target is suffixed with "(v<version>)".
type Text struct {
	// Color forces ANSI colours on: unresolved frames in red, version
	// suffixes in yellow.
	Color bool
}

func (t Text) Write(w io.Writer, res *unfuscate.Result, target *version.Version) error {
	unresolved := color.New(color.FgRed)
	suffix := color.New(color.FgYellow)
	if t.Color {
		unresolved.EnableColor()
		suffix.EnableColor()
	} else {
		unresolved.DisableColor()
		suffix.DisableColor()
	}

	for _, frame := range res.Frames {
		best, ok := frame.Best()
		var err error
		switch {
		case !ok:
			_, err = unresolved.Fprintln(w, frame.Input.String()+"?")
		case best.Version == "" || version.Similarity(best.VersionNumber(), target) == version.MaxSimilarity:
			_, err = fmt.Fprintln(w, best.Unobfuscated)
		default:
			_, err = fmt.Fprintf(w, "%s%s\n", best.Unobfuscated, suffix.Sprintf("(v%s)", best.Version))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (Text) ContentType() string { return "text/plain; charset=utf-8" }

// JSON writes the result as a JSON document.
type JSON struct {
	Indent string
}

func (j JSON) Write(w io.Writer, res *unfuscate.Result, target *version.Version) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", j.Indent)
	return enc.Encode(res)
}

func (JSON) ContentType() string { return "application/json; charset=utf-8" }

// XML writes the result as an XML document rooted at
// <StackTraceUnobfuscationResult>.
type XML struct {
	Indent string
}

func (x XML) Write(w io.Writer, res *unfuscate.Result, target *version.Version) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", x.Indent)
	if err := enc.EncodeElement(res, xml.StartElement{Name: xml.Name{Local: "StackTraceUnobfuscationResult"}}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (XML) ContentType() string { return "application/xml; charset=utf-8" }

// YAML writes the result as a YAML document.
type YAML struct{}

func (YAML) Write(w io.Writer, res *unfuscate.Result, target *version.Version) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}

func (YAML) ContentType() string { return "application/yaml; charset=utf-8" }
