// Package report encodes, signs and delivers snapshots.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format names a wire encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat accepts "json" or "cbor", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCBOR:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json or cbor)", s)
	}
}

// Codec encodes documents for one Format.
type Codec interface {
	Format() Format
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CodecFor returns the codec for f.
func CodecFor(f Format) (Codec, error) {
	switch f {
	case FormatJSON, "":
		return jsonCodec{}, nil
	case FormatCBOR:
		return cborCodec{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q", f)
}

type jsonCodec struct{}

func (jsonCodec) Format() Format                  { return FormatJSON }
func (jsonCodec) ContentType() string             { return "application/json" }
func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Marshal leaves '&', '<' and '>' unescaped so qualifier separators in
// package URLs keep their canonical form.
func (jsonCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// cborEnc uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// snapshot always produces the same bytes, which keeps signatures stable.
// Package URLs travel as text strings and timestamps as RFC 3339.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	if cborEnc, err = opts.EncMode(); err != nil {
		panic("report: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("report: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Format() Format                  { return FormatCBOR }
func (cborCodec) ContentType() string             { return "application/cbor" }
func (cborCodec) Marshal(v any) ([]byte, error)   { return cborEnc.Marshal(v) }
func (cborCodec) Unmarshal(b []byte, v any) error { return cborDec.Unmarshal(b, v) }
