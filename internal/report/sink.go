package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Sink delivers an encoded document.
type Sink interface {
	Send(ctx context.Context, doc Document) error
}

// WriterSink writes documents to W, usually standard output. With Pretty
// set, JSON documents are indented.
type WriterSink struct {
	W      io.Writer
	Pretty bool
}

// Send writes the document. JSON output ends with a newline.
func (s WriterSink) Send(_ context.Context, doc Document) error {
	body := doc.Body
	if doc.Format == FormatJSON {
		var buf bytes.Buffer
		if s.Pretty {
			if err := json.Indent(&buf, body, "", "  "); err != nil {
				return fmt.Errorf("indent document: %w", err)
			}
		} else {
			buf.Write(body)
		}
		buf.WriteByte('\n')
		body = buf.Bytes()
	}
	if _, err := s.W.Write(body); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
