package report

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/fxamacker/cbor/v2"
)

// Envelope carries a snapshot with the signature of its encoding.
type Envelope struct {
	Snapshot  models.Snapshot `json:"snapshot"`
	Signature string          `json:"signature"`
}

// Document is an encoded report ready for a Sink.
type Document struct {
	Body        []byte
	ContentType string
	Format      Format
	Signed      bool
}

// Build encodes snap with codec. With a signer the result is an Envelope
// whose signature covers the codec's encoding of snap alone; without one it
// is the bare snapshot.
func Build(snap models.Snapshot, codec Codec, signer *Signer) (Document, error) {
	doc := Document{ContentType: codec.ContentType(), Format: codec.Format()}
	payload, err := codec.Marshal(snap)
	if err != nil {
		return doc, fmt.Errorf("encode snapshot: %w", err)
	}
	if signer == nil {
		doc.Body = payload
		return doc, nil
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return doc, err
	}
	body, err := codec.Marshal(Envelope{Snapshot: snap, Signature: sig})
	if err != nil {
		return doc, fmt.Errorf("encode envelope: %w", err)
	}
	doc.Body, doc.Signed = body, true
	return doc, nil
}

// ErrNoSignature is returned by Verify for documents without a signature.
var ErrNoSignature = errors.New("document is not signed")

// Verify checks a signed document as a receiver would: the signature must
// match the snapshot bytes embedded in the envelope. JSON whitespace added
// by pretty printing is ignored.
func Verify(pub *rsa.PublicKey, f Format, body []byte) error {
	var payload []byte
	var sig string
	switch f {
	case FormatJSON, "":
		var env struct {
			Snapshot  json.RawMessage `json:"snapshot"`
			Signature string          `json:"signature"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		if env.Signature == "" {
			return ErrNoSignature
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, env.Snapshot); err != nil {
			return fmt.Errorf("compact snapshot: %w", err)
		}
		payload, sig = buf.Bytes(), env.Signature
	case FormatCBOR:
		var env struct {
			Snapshot  cbor.RawMessage `json:"snapshot"`
			Signature string          `json:"signature"`
		}
		if err := cborDec.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		payload, sig = env.Snapshot, env.Signature
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
	if sig == "" {
		return ErrNoSignature
	}
	return VerifySignature(pub, payload, sig)
}
