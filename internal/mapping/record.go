package mapping

import (
	"errors"
	"fmt"

	"unfuscator/internal/version"
)

// Record pairs an obfuscated signature key with the original signature text
// for one method of one map file.
type Record struct {
	ID           int64  `json:"-" xml:"-" yaml:"-"`
	Version      string `json:"version,omitempty" xml:"Version,omitempty" yaml:"version,omitempty"`
	Obfuscated   string `json:"obfuscated" xml:"Obfuscated" yaml:"obfuscated"`
	Unobfuscated string `json:"unobfuscated" xml:"Unobfuscated" yaml:"unobfuscated"`
}

// NewRecord builds a record for a map file tagged with ver (nil for untagged).
func NewRecord(ver *version.Version, obfuscated, unobfuscated string) Record {
	r := Record{Obfuscated: obfuscated, Unobfuscated: unobfuscated}
	if ver != nil {
		r.Version = ver.String()
	}
	return r
}

// VersionNumber returns the parsed version, or nil when the record is
// untagged or its version text is invalid.
func (r Record) VersionNumber() *version.Version {
	if r.Version == "" {
		return nil
	}
	v, err := version.Parse(r.Version)
	if err != nil {
		return nil
	}
	return v
}

// Validate checks the fields a store relies on.
func (r Record) Validate() error {
	if r.Obfuscated == "" {
		return errors.New("record has no obfuscated key")
	}
	if r.Version != "" {
		if _, err := version.Parse(r.Version); err != nil {
			return fmt.Errorf("record %q: %w", r.Obfuscated, err)
		}
	}
	return nil
}
