package purl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Parse decodes a package URL string. Errors wrap ErrMalformed or
// ErrInvalidEncoding and are *ParseError values carrying the input.
func Parse(s string) (PackageURL, error) {
	p, err := parse(s)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Input = s
			return PackageURL{}, pe
		}
		return PackageURL{}, &ParseError{Input: s, Err: err}
	}
	return p, nil
}

func parse(s string) (PackageURL, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || !strings.EqualFold(scheme, Scheme) {
		return PackageURL{}, fmt.Errorf("%w: missing %q scheme", ErrMalformed, Scheme)
	}
	rest = strings.TrimLeft(rest, "/")

	var p PackageURL

	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		sub, err := decodeSegments(rest[i+1:], true)
		if err != nil {
			return PackageURL{}, err
		}
		p.subpath = sub
		rest = rest[:i]
	}

	if i := strings.LastIndexByte(rest, '?'); i >= 0 {
		qs, err := parseQualifiers(rest[i+1:])
		if err != nil {
			return PackageURL{}, err
		}
		p.qualifiers = qs
		rest = rest[:i]
	}

	rest = strings.Trim(rest, "/")
	typ, rest, ok := strings.Cut(rest, "/")
	if typ == "" {
		return PackageURL{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !ok || rest == "" {
		return PackageURL{}, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	p.typ = strings.ToLower(typ)

	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		v, err := unescape(rest[at+1:])
		if err != nil {
			return PackageURL{}, err
		}
		p.version = v
		rest = rest[:at]
	}

	lastSlash := strings.LastIndexByte(rest, '/')

	rawName := rest
	if lastSlash >= 0 {
		ns, err := decodeSegments(rest[:lastSlash], false)
		if err != nil {
			return PackageURL{}, err
		}
		p.namespace = ns
		rawName = rest[lastSlash+1:]
	}
	name, err := unescape(rawName)
	if err != nil {
		return PackageURL{}, err
	}
	p.name = name

	if err := p.Validate(); err != nil {
		return PackageURL{}, err
	}
	return p, nil
}

func parseQualifiers(raw string) ([]Qualifier, error) {
	var qs []Qualifier
	seen := make(map[string]bool)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: qualifier %q has no value", ErrMalformed, pair)
		}
		key := strings.ToLower(k)
		if !validQualifierKey(key) {
			return nil, fmt.Errorf("%w: invalid qualifier key %q", ErrMalformed, k)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate qualifier %q", ErrMalformed, key)
		}
		seen[key] = true
		value, err := unescape(v)
		if err != nil {
			return nil, err
		}
		if value == "" {
			continue
		}
		qs = append(qs, Qualifier{Key: key, Value: value})
	}
	sortQualifiers(qs)
	return qs, nil
}

// decodeSegments splits on "/", percent-decodes each segment and drops empty
// ones. Subpaths additionally drop "." and "..".
func decodeSegments(raw string, subpath bool) (string, error) {
	var out []string
	for _, seg := range strings.Split(raw, "/") {
		if seg == "" {
			continue
		}
		d, err := unescape(seg)
		if err != nil {
			return "", err
		}
		if subpath && (d == "." || d == "..") {
			continue
		}
		out = append(out, d)
	}
	return strings.Join(out, "/"), nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	d, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEncoding, s)
	}
	return d, nil
}

const upperhex = "0123456789ABCDEF"

// escape percent-encodes everything except unreserved characters and ':'.
// Qualifier values also keep '/' literal.
func escape(s string, qualifier bool) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !keep(s[i], qualifier) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keep(c, qualifier) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

func keep(c byte, qualifier bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~' || c == ':':
		return true
	case c == '/':
		return qualifier
	}
	return false
}
