// Package purl implements the Package URL model used for every software
// record hsnap reports. A PackageURL is an immutable value: construct it
// with New or Parse, read it through accessors, and serialize it with String.
//
// Canonical form:
//
//	pkg:<type>/<namespace>/<name>@<version>?<qualifiers>#<subpath>
//
// Qualifiers are emitted in ascending key order so the same package always
// serializes to the same bytes.
package purl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Scheme is the fixed URL scheme of every package URL.
const Scheme = "pkg"

var (
	// ErrMalformed reports a structurally invalid package URL: missing
	// scheme, type, or name, or an illegal type or qualifier key.
	ErrMalformed = errors.New("malformed package url")

	// ErrInvalidEncoding reports an illegal percent-encoded sequence.
	ErrInvalidEncoding = errors.New("invalid percent-encoding")
)

// ParseError describes a package URL that could not be parsed or built.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("purl %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Qualifier is a single key=value qualifier pair.
type Qualifier struct {
	Key   string
	Value string
}

// PackageURL identifies one software package. The zero value is not a valid
// package URL; Validate reports why.
type PackageURL struct {
	typ        string
	namespace  string
	name       string
	version    string
	qualifiers []Qualifier // sorted by key, no empty values
	subpath    string
}

// New builds a validated PackageURL from decoded components. Qualifier keys
// are lower-cased; qualifiers with empty values are dropped.
func New(typ, namespace, name, version string, qualifiers map[string]string, subpath string) (PackageURL, error) {
	p := PackageURL{
		typ:       strings.ToLower(typ),
		namespace: cleanSegments(namespace),
		name:      name,
		version:   version,
		subpath:   cleanSubpath(subpath),
	}

	for k, v := range qualifiers {
		if v == "" {
			continue
		}
		key := strings.ToLower(k)
		for _, q := range p.qualifiers {
			if q.Key == key {
				return PackageURL{}, &ParseError{Err: fmt.Errorf("%w: duplicate qualifier %q", ErrMalformed, key)}
			}
		}
		p.qualifiers = append(p.qualifiers, Qualifier{Key: key, Value: v})
	}
	sortQualifiers(p.qualifiers)

	if err := p.Validate(); err != nil {
		return PackageURL{}, err
	}
	return p, nil
}

// Must is like New but panics on error. For fixtures and constants only.
func Must(p PackageURL, err error) PackageURL {
	if err != nil {
		panic(err)
	}
	return p
}

// Type returns the package ecosystem, e.g. "rpm" or "deb".
func (p PackageURL) Type() string { return p.typ }

// Namespace returns the vendor or distro namespace, possibly empty.
func (p PackageURL) Namespace() string { return p.namespace }

// Name returns the package name.
func (p PackageURL) Name() string { return p.name }

// Version returns the package version, possibly empty.
func (p PackageURL) Version() string { return p.version }

// Subpath returns the subpath, possibly empty.
func (p PackageURL) Subpath() string { return p.subpath }

// Qualifier returns the value of a single qualifier.
func (p PackageURL) Qualifier(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, q := range p.qualifiers {
		if q.Key == key {
			return q.Value, true
		}
	}
	return "", false
}

// Qualifiers returns a copy of the qualifiers in ascending key order.
func (p PackageURL) Qualifiers() []Qualifier {
	if len(p.qualifiers) == 0 {
		return nil
	}
	out := make([]Qualifier, len(p.qualifiers))
	copy(out, p.qualifiers)
	return out
}

// QualifierMap returns the qualifiers as a new map.
func (p PackageURL) QualifierMap() map[string]string {
	m := make(map[string]string, len(p.qualifiers))
	for _, q := range p.qualifiers {
		m[q.Key] = q.Value
	}
	return m
}

// Key is the deduplication identity of a package: type, namespace, name and
// version. Qualifiers and subpath are not part of it.
type Key struct {
	Type      string
	Namespace string
	Name      string
	Version   string
}

// Key returns the deduplication identity of p.
func (p PackageURL) Key() Key {
	return Key{Type: p.typ, Namespace: p.namespace, Name: p.name, Version: p.version}
}

// Equal reports whether p and o are identical, qualifiers and subpath included.
func (p PackageURL) Equal(o PackageURL) bool {
	if p.Key() != o.Key() || p.subpath != o.subpath || len(p.qualifiers) != len(o.qualifiers) {
		return false
	}
	for i := range p.qualifiers {
		if p.qualifiers[i] != o.qualifiers[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether p is the zero value.
func (p PackageURL) IsZero() bool {
	return p.typ == "" && p.name == "" && p.namespace == "" && p.version == "" &&
		len(p.qualifiers) == 0 && p.subpath == ""
}

// Validate checks the package URL invariants.
func (p PackageURL) Validate() error {
	if p.typ == "" {
		return &ParseError{Err: fmt.Errorf("%w: missing type", ErrMalformed)}
	}
	if !validType(p.typ) {
		return &ParseError{Err: fmt.Errorf("%w: invalid type %q", ErrMalformed, p.typ)}
	}
	if p.name == "" {
		return &ParseError{Err: fmt.Errorf("%w: missing name", ErrMalformed)}
	}
	for i, q := range p.qualifiers {
		if !validQualifierKey(q.Key) {
			return &ParseError{Err: fmt.Errorf("%w: invalid qualifier key %q", ErrMalformed, q.Key)}
		}
		if q.Value == "" {
			return &ParseError{Err: fmt.Errorf("%w: empty value for qualifier %q", ErrMalformed, q.Key)}
		}
		if i > 0 && p.qualifiers[i-1].Key >= q.Key {
			return &ParseError{Err: fmt.Errorf("%w: qualifiers not unique and sorted at %q", ErrMalformed, q.Key)}
		}
	}
	return nil
}

// String returns the canonical serialization.
func (p PackageURL) String() string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteByte(':')
	b.WriteString(p.typ)
	b.WriteByte('/')
	if p.namespace != "" {
		for _, seg := range strings.Split(p.namespace, "/") {
			b.WriteString(escape(seg, false))
			b.WriteByte('/')
		}
	}
	b.WriteString(escape(p.name, false))
	if p.version != "" {
		b.WriteByte('@')
		b.WriteString(escape(p.version, false))
	}
	for i, q := range p.qualifiers {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(q.Key)
		b.WriteByte('=')
		b.WriteString(escape(q.Value, true))
	}
	if p.subpath != "" {
		b.WriteByte('#')
		for i, seg := range strings.Split(p.subpath, "/") {
			if i > 0 {
				b.WriteByte('/')
			}
			b.WriteString(escape(seg, false))
		}
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p PackageURL) MarshalText() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PackageURL) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func sortQualifiers(qs []Qualifier) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].Key < qs[j].Key })
}

// cleanSegments drops empty path segments so "a//b/" becomes "a/b".
func cleanSegments(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "/")
	kept := parts[:0]
	for _, seg := range parts {
		if seg != "" {
			kept = append(kept, seg)
		}
	}
	return strings.Join(kept, "/")
}

// cleanSubpath drops empty, "." and ".." segments.
func cleanSubpath(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "/")
	kept := parts[:0]
	for _, seg := range parts {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}

func validType(t string) bool {
	for i := 0; i < len(t); i++ {
		c := t[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		case c == '.' || c == '+' || c == '-':
		default:
			return false
		}
	}
	return t != ""
}

func validQualifierKey(k string) bool {
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		case c == '.' || c == '-' || c == '_':
		default:
			return false
		}
	}
	return k != ""
}
