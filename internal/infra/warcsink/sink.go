// Package warcsink persists fetched responses as gzip-compressed WARC 1.0
// response records. Compression uses klauspost/compress/gzip; the WARC
// format itself is a simple, well-documented text protocol, so hand-writing
// the record framing needs no further third-party support beyond
// compression and UUID generation.
package warcsink

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/harvestnet/reharvest/internal/domain"
)

// Sink writes one WARC response record per captured page to a single
// gzip-compressed file. A mutex serializes writers so the output stays
// a single well-formed stream under concurrent fetch tasks.
type Sink struct {
	mu sync.Mutex
	gz *gzip.Writer
	f  *os.File
	w  io.Writer // the active write target, always s.gz outside of tests
}

var _ domain.Sink = (*Sink)(nil)

// Open creates (or truncates) the WARC file at path and returns a Sink
// ready to accept WriteResponse calls. Callers must Close the Sink when
// the harvest run ends to flush the trailing gzip member.
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("warcsink: create %s: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	return &Sink{f: f, gz: gz, w: gz}, nil
}

// Close flushes and closes the underlying gzip stream and file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gz.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// WriteResponse appends one WARC response record. It is safe for
// concurrent use; calls are serialized.
func (s *Sink) WriteResponse(url string, statusLine string, header http.Header, body []byte) error {
	record := buildRecord(url, statusLine, header, body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(record); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	return nil
}

// buildRecord serializes one WARC/1.0 response record: the mandatory
// header block, a blank line, then the HTTP status line + raw headers +
// blank line + body as the record's payload (per the WARC "response"
// record type, content-type application/http).
func buildRecord(url string, statusLine string, header http.Header, body []byte) []byte {
	var payload bytes.Buffer
	payload.WriteString(statusLine)
	if !bytes.HasSuffix([]byte(statusLine), []byte("\r\n")) {
		payload.WriteString("\r\n")
	}
	header.Write(&payload)
	payload.WriteString("\r\n")
	payload.Write(body)

	var rec bytes.Buffer
	rec.WriteString("WARC/1.0\r\n")
	fmt.Fprintf(&rec, "WARC-Type: response\r\n")
	fmt.Fprintf(&rec, "WARC-Record-ID: <urn:uuid:%s>\r\n", uuid.New().String())
	fmt.Fprintf(&rec, "WARC-Date: %s\r\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&rec, "WARC-Target-URI: %s\r\n", url)
	fmt.Fprintf(&rec, "Content-Type: application/http;msgtype=response\r\n")
	fmt.Fprintf(&rec, "Content-Length: %d\r\n", payload.Len())
	rec.WriteString("\r\n")
	rec.Write(payload.Bytes())
	rec.WriteString("\r\n\r\n")

	return rec.Bytes()
}
