// Package version models the Major.Minor[.Build[.Revision]] numbers that map
// files are tagged with and scores how close two of them are.
package version

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ErrInvalid is returned by Parse for text that is not a 2 to 4 component
// dotted number.
var ErrInvalid = errors.New("invalid version")

// Version is a 2 to 4 component numeric version. Missing trailing components
// are absent rather than zero, so 1.2 and 1.2.0 are different versions.
type Version struct {
	v *goversion.Version
	n int
}

// Parse parses a dotted version such as "1.2" or "4.5.6.7".
func Parse(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, fmt.Errorf("%w %q: want 2 to 4 components", ErrInvalid, s)
	}
	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return nil, fmt.Errorf("%w %q: component %q is not a number", ErrInvalid, s, p)
		}
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalid, s, err)
	}
	return &Version{v: v, n: len(parts)}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Len returns the number of components present (2 to 4).
func (v *Version) Len() int { return v.n }

// Components returns the present components in order.
func (v *Version) Components() []int64 {
	return slices.Clone(v.v.Segments64()[:v.n])
}

// Component returns component i (0 = Major .. 3 = Revision) and whether it is present.
func (v *Version) Component(i int) (int64, bool) {
	if i < 0 || i >= v.n {
		return 0, false
	}
	return v.v.Segments64()[i], true
}

func (v *Version) String() string {
	parts := make([]string, v.n)
	for i, c := range v.v.Segments64()[:v.n] {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether both versions have the same components present with
// the same values. Two nil versions are equal.
func (v *Version) Equal(o *Version) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.n == o.n && slices.Equal(v.Components(), o.Components())
}

// Compare orders versions numerically; absent components sort before
// present ones (1.2 < 1.2.0 < 1.2.1). nil sorts first.
func Compare(a, b *Version) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c := a.v.Compare(b.v); c != 0 {
		return c
	}
	return a.n - b.n
}

// Sort sorts versions ascending, nil first.
func Sort(vs []*Version) {
	slices.SortFunc(vs, Compare)
}

// MarshalText implements encoding.TextMarshaler.
func (v *Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = *p
	return nil
}
