package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"creditiq/pkg/core/logging"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// MIME types the loader understands.
const (
	MimePDF   = "application/pdf"
	MimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeHTML  = "text/html"
	MimeText  = "text/plain"
	MimeXHTML = "application/xhtml+xml"
)

// ErrUnsupportedFormat is returned for content the loader cannot extract.
var ErrUnsupportedFormat = errors.New("unsupported document format")

var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".htm":  MimeHTML,
	".html": MimeHTML,
	".txt":  MimeText,
	".text": MimeText,
}

// Source identifies a document: a remote URL, or an in-memory payload.
type Source struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Identifier is a human-readable name for logs and results.
func (s Source) Identifier() string {
	switch {
	case s.URL != "":
		return s.URL
	case s.Filename != "":
		return s.Filename
	default:
		return fmt.Sprintf("upload(%d bytes)", len(s.Data))
	}
}

// Document is the extracted text of one source. It is never modified after Load.
type Document struct {
	Source      string    `json:"source"`
	Text        string    `json:"-"`
	MimeType    string    `json:"mime_type"`
	ExtractedAt time.Time `json:"extracted_at"`
	Hash        string    `json:"hash"`
}

// ProgressFunc receives page progress for long documents.
type ProgressFunc func(done, total int)

// Loader turns a Source into a Document.
type Loader struct {
	fetcher  *Fetcher
	progress ProgressFunc
	log      *logrus.Entry
	now      func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithProgress reports PDF page progress.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) { l.progress = fn }
}

// WithLogger sets the log entry.
func WithLogger(e *logrus.Entry) Option {
	return func(l *Loader) { l.log = e }
}

// NewLoader creates a loader; fetcher may be nil when only payloads are loaded.
func NewLoader(fetcher *Fetcher, opts ...Option) *Loader {
	l := &Loader{fetcher: fetcher, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logging.OrDiscard(l.log)
	return l
}

// Load fetches the source when it is remote and extracts its text.
func (l *Loader) Load(ctx context.Context, src Source) (*Document, error) {
	data, mime := src.Data, src.MimeType
	if src.URL != "" {
		if l.fetcher == nil {
			return nil, fmt.Errorf("load %s: no fetcher configured", src.URL)
		}
		body, contentType, err := l.fetcher.Get(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src.URL, err)
		}
		data = body
		if mime == "" {
			mime = contentType
		}
		if src.Filename == "" {
			src.Filename = urlPath(src.URL)
		}
	}

	mime = ResolveMimeType(mime, src.Filename, data)
	text, err := l.extract(mime, data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Identifier(), err)
	}

	sum := sha256.Sum256([]byte(text))
	doc := &Document{
		Source:      src.Identifier(),
		Text:        text,
		MimeType:    mime,
		ExtractedAt: l.now().UTC(),
		Hash:        hex.EncodeToString(sum[:]),
	}
	l.log.WithFields(logrus.Fields{
		"source":    doc.Source,
		"mime_type": mime,
		"chars":     utf8.RuneCountInString(text),
	}).Info("document loaded")
	return doc, nil
}

func (l *Loader) extract(mime string, data []byte) (string, error) {
	switch mime {
	case MimePDF:
		return ExtractPDF(data, l.progress)
	case MimeDOCX:
		return ExtractDOCX(data)
	case MimeHTML, MimeXHTML:
		return ExtractHTML(data)
	case MimeText:
		return strings.TrimSpace(strings.ToValidUTF8(string(data), "")), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, orUnknown(mime))
	}
}

// ResolveMimeType picks the content type from, in order: an explicit type,
// the filename extension, then content sniffing. Parameters are dropped.
func ResolveMimeType(explicit, filename string, data []byte) string {
	if m := baseType(explicit); m != "" && m != "application/octet-stream" {
		return m
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	if len(data) == 0 {
		return ""
	}
	detected := mimetype.Detect(data)
	for _, known := range []string{MimePDF, MimeDOCX, MimeHTML, MimeText} {
		if detected.Is(known) {
			return known
		}
	}
	return baseType(detected.String())
}

func baseType(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func urlPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
