// Package artifact turns backend responses into displayable results and owns
// the lifecycle of locally materialized PDF files.
package artifact

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/transport"
)

// DefaultFilename is used when the response names no file.
const DefaultFilename = "export.pdf"

// minBase64Len is the shortest string treated as an inline base64 PDF.
const minBase64Len = 100

// pdfFieldKeys are the JSON fields that may carry a PDF, in priority order.
var pdfFieldKeys = []string{"pdf", "pdfBase64", "pdf_base64", "pdfData", "fileBase64", "pdfDataUrl", "dataUrl", "pdfUrl", "url"}

var (
	base64Pattern      = regexp.MustCompile(`^[A-Za-z0-9+/=\s]+$`)
	dispositionPattern = regexp.MustCompile(`(?i)filename\*?=(?:UTF-8'')?"?([^";\n]+)"?`)
)

// ResultKind tags a classified response.
type ResultKind int

const (
	KindMalformed ResultKind = iota
	KindBinary
	KindStructured
)

func (k ResultKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindStructured:
		return "structured"
	default:
		return "malformed"
	}
}

// Binary is a displayable PDF. Exactly one of Bytes, DataURI, URL is set.
type Binary struct {
	Bytes    []byte
	DataURI  string
	URL      string
	Filename string
}

// Result is the tagged union returned by Classify.
type Result struct {
	Kind ResultKind
	// Binary is set for KindBinary.
	Binary *Binary
	// Structured is the decoded object for KindStructured. It is also kept
	// for KindBinary when the object carried note fields next to the PDF.
	Structured document.Object
	// Detail is the raw text or reason for KindMalformed.
	Detail string
}

// Err returns UNEXPECTED_FORMAT for malformed results and nil otherwise.
func (r Result) Err() error {
	if r.Kind != KindMalformed {
		return nil
	}
	return errors.NewUnexpectedFormat(r.Detail)
}

// Classify is the single normalization point for export and load responses.
func Classify(resp *transport.Response) Result {
	if resp == nil {
		return Result{Kind: KindMalformed, Detail: "empty response"}
	}
	return ClassifyBody(resp.ContentType(), resp.Header.Get("Content-Disposition"), resp.Body)
}

// ClassifyBody classifies a raw body given its content headers.
func ClassifyBody(contentType, disposition string, body []byte) Result {
	ct := strings.ToLower(contentType)
	trimmed := bytes.TrimSpace(body)

	if strings.Contains(ct, "application/pdf") {
		if len(body) == 0 {
			return Result{Kind: KindMalformed, Detail: "empty PDF body"}
		}
		return binaryResult(body, disposition)
	}
	if bytes.HasPrefix(trimmed, []byte("%PDF")) {
		return binaryResult(body, disposition)
	}
	if len(trimmed) > 0 && !jsonLooking(trimmed) && opaqueContentType(ct) {
		return binaryResult(body, disposition)
	}

	if !utf8.Valid(body) {
		return Result{Kind: KindMalformed, Detail: "response is neither a PDF nor UTF-8 text"}
	}
	text := string(body)

	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return Result{Kind: KindMalformed, Detail: text}
	}

	switch v := value.(type) {
	case string:
		if data, ok := decodeInlineBase64(v); ok {
			return Result{Kind: KindBinary, Binary: &Binary{Bytes: data, Filename: FilenameFromDisposition(disposition)}}
		}
		return Result{Kind: KindMalformed, Detail: text}
	case map[string]any:
		obj, _ := document.ParseObject(trimmed)
		return classifyObject(obj, disposition)
	default:
		return Result{Kind: KindMalformed, Detail: "unexpected response format"}
	}
}

func classifyObject(obj document.Object, disposition string) Result {
	var structured document.Object
	if document.NoteShaped(obj) {
		structured = obj
	}

	if candidate := obj.String(pdfFieldKeys...); candidate != "" {
		filename := obj.String("filename", "fileName")
		if filename == "" {
			filename = FilenameFromDisposition(disposition)
		}
		switch {
		case strings.HasPrefix(candidate, "data:"):
			return Result{Kind: KindBinary, Binary: &Binary{DataURI: candidate, Filename: filename}, Structured: structured}
		case strings.HasPrefix(candidate, "http://"), strings.HasPrefix(candidate, "https://"):
			return Result{Kind: KindBinary, Binary: &Binary{URL: candidate, Filename: filename}, Structured: structured}
		default:
			if data, ok := decodeInlineBase64(candidate); ok {
				return Result{Kind: KindBinary, Binary: &Binary{Bytes: data, Filename: filename}, Structured: structured}
			}
		}
	}

	if structured != nil {
		return Result{Kind: KindStructured, Structured: structured}
	}
	return Result{Kind: KindMalformed, Detail: "unexpected response format"}
}

// jsonLooking reports whether b starts like a JSON object, array or string.
func jsonLooking(b []byte) bool {
	switch b[0] {
	case '{', '[', '"':
		return true
	}
	return false
}

// opaqueContentType reports whether ct says nothing useful about the body.
func opaqueContentType(ct string) bool {
	return ct == "" || strings.Contains(ct, "application/octet-stream")
}

// decodeInlineBase64 decodes s when it has the length and alphabet of an
// inline base64 PDF.
func decodeInlineBase64(s string) ([]byte, bool) {
	if len(s) <= minBase64Len || !base64Pattern.MatchString(s) {
		return nil, false
	}
	cleaned := strings.Join(strings.Fields(s), "")
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if err != nil {
			return nil, false
		}
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// DecodeDataURI returns the bytes of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if !strings.HasPrefix(uri, "data:") || comma < 0 {
		return nil, errors.NewUnexpectedFormat("not a data URI")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, errors.NewUnexpectedFormat(err.Error())
		}
		return []byte(decoded), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(payload), ""))
	if err != nil {
		return nil, errors.NewUnexpectedFormat(err.Error())
	}
	return data, nil
}

// FilenameFromDisposition extracts the filename from a Content-Disposition
// header, defaulting to export.pdf.
func FilenameFromDisposition(cd string) string {
	m := dispositionPattern.FindStringSubmatch(cd)
	if len(m) < 2 {
		return DefaultFilename
	}
	name := strings.NewReplacer(`"`, "", "'", "").Replace(m[1])
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultFilename
	}
	return name
}

func binaryResult(body []byte, disposition string) Result {
	return Result{Kind: KindBinary, Binary: &Binary{Bytes: body, Filename: FilenameFromDisposition(disposition)}}
}

// EncodeBase64 encodes buf in 32 KiB windows. The output equals a single-shot
// standard encoding.
func EncodeBase64(buf []byte) string {
	const window = 32 * 1024
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(buf)))
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for i := 0; i < len(buf); i += window {
		end := min(i+window, len(buf))
		_, _ = enc.Write(buf[i:end])
	}
	_ = enc.Close()
	return sb.String()
}

// DataURI wraps a PDF as a base64 data URI.
func DataURI(buf []byte) string {
	return "data:application/pdf;base64," + EncodeBase64(buf)
}
