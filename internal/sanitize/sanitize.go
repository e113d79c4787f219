// Package sanitize normalizes raw source values into driver-safe parameters
// before insertion. Byte values are decoded to text through a codec priority
// list with a byte-exact round-trip check; blob handles are read eagerly;
// strings are inspected but never modified. Sanitization records events, it
// never fails a batch.
package sanitize

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

// Fallback policies for byte values no codec can decode reversibly.
const (
	FallbackReplace   = "replace"    // decode as Latin-1 with replacement
	FallbackKeepBytes = "keep-bytes" // pass the original bytes through
)

// Codec decodes bytes to text and re-encodes for the round-trip check.
type Codec interface {
	Name() string
	Decode(b []byte) (string, error)
	Encode(s string) ([]byte, error)
}

// DefaultCodecs returns the decoding priority list: UTF-8, then Latin-1,
// then Windows-1252.
func DefaultCodecs() []Codec {
	return []Codec{utf8Codec{}, charmapCodec{"latin-1", charmap.ISO8859_1}, charmapCodec{"cp1252", charmap.Windows1252}}
}

type utf8Codec struct{}

func (utf8Codec) Name() string { return "utf-8" }

func (utf8Codec) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(b), nil
}

func (utf8Codec) Encode(s string) ([]byte, error) {
	return []byte(s), nil
}

type charmapCodec struct {
	name string
	cm   *charmap.Charmap
}

func (c charmapCodec) Name() string { return c.name }

func (c charmapCodec) Decode(b []byte) (string, error) {
	return c.cm.NewDecoder().String(string(b))
}

func (c charmapCodec) Encode(s string) ([]byte, error) {
	return c.cm.NewEncoder().Bytes([]byte(s))
}

// Options controls sanitization behavior for one batch.
type Options struct {
	// Codecs overrides the decoding priority list. Nil means DefaultCodecs.
	Codecs []Codec
	// Fallback is the policy for undecodable bytes, FallbackReplace by
	// default.
	Fallback string
	// Logf receives warning messages. Nil disables them.
	Logf func(format string, args ...any)
}

func (o Options) codecs() []Codec {
	if o.Codecs != nil {
		return o.Codecs
	}
	return DefaultCodecs()
}

func (o Options) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// Stats accumulates per-column sanitization events for one batch.
type Stats struct {
	events map[string]map[string]int
}

// NewStats returns an empty event accumulator.
func NewStats() *Stats {
	return &Stats{events: make(map[string]map[string]int)}
}

// Record counts one event against a column.
func (s *Stats) Record(column, event string) {
	if s.events[column] == nil {
		s.events[column] = make(map[string]int)
	}
	s.events[column][event]++
}

// Count returns how many times an event fired for a column.
func (s *Stats) Count(column, event string) int {
	return s.events[column][event]
}

// Empty reports whether no event was recorded.
func (s *Stats) Empty() bool {
	return len(s.events) == 0
}

// LogSummary emits one line per recorded column event, columns and events in
// sorted order. Silent when nothing was recorded.
func (s *Stats) LogSummary(logf func(format string, args ...any)) {
	if s.Empty() || logf == nil {
		return
	}

	columns := make([]string, 0, len(s.events))
	for column := range s.events {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	logf("batch sanitization summary:")
	for _, column := range columns {
		events := make([]string, 0, len(s.events[column]))
		for event := range s.events[column] {
			events = append(events, event)
		}
		sort.Strings(events)
		for _, event := range events {
			logf(" - column %s: %d x %s", column, s.events[column][event], describeEvent(event))
		}
	}
}

func describeEvent(event string) string {
	switch {
	case strings.HasPrefix(event, "codec:"):
		parts := strings.SplitN(event, ":", 3)
		if len(parts) == 3 {
			return fmt.Sprintf("%s value(s) decoded with codec %s", parts[1], parts[2])
		}
	case strings.HasPrefix(event, "undecodable:"):
		return strings.TrimPrefix(event, "undecodable:") + " value(s) required fallback decoding"
	case event == "blob:read-error":
		return "blob(s) could not be read and were set to NULL"
	case event == "blob:nil-content":
		return "blob(s) returned no content"
	case event == "blob:bytes":
		return "blob(s) converted from bytes"
	case event == "string:single-quote":
		return "text value(s) containing single quotes (parameters keep them safe)"
	case event == "string:invalid-utf8":
		return "text value(s) with invalid UTF-8 code points"
	}
	return event
}

// SanitizeBatch returns a sanitized copy of the batch plus the events
// recorded while producing it. The input rows are not modified.
func SanitizeBatch(batch []adapter.Row, columns []string, opts Options) ([]adapter.Row, *Stats) {
	stats := NewStats()
	out := make([]adapter.Row, len(batch))
	for i, row := range batch {
		newRow := make(adapter.Row, len(row))
		for j, value := range row {
			column := ""
			if j < len(columns) {
				column = columns[j]
			}
			newRow[j] = sanitizeValue(value, column, stats, opts)
		}
		out[i] = newRow
	}
	return out, stats
}

func sanitizeValue(value any, column string, stats *Stats, opts Options) any {
	switch v := value.(type) {
	case []byte:
		return decodeBytes(v, column, "bytes", stats, opts)
	case adapter.Blob:
		return readBlob(v, column, stats, opts)
	case string:
		scanString(v, column, stats, opts)
		return v
	default:
		return value
	}
}

// decodeBytes walks the codec priority list and returns the first decoding
// that survives a byte-exact re-encode. Non-UTF-8 codecs record which codec
// won; the fallback path records an undecodable event and never errors.
func decodeBytes(value []byte, column, origin string, stats *Stats, opts Options) any {
	for _, codec := range opts.codecs() {
		text, err := codec.Decode(value)
		if err != nil {
			continue
		}
		encoded, err := codec.Encode(text)
		if err != nil || !bytes.Equal(encoded, value) {
			continue
		}
		if codec.Name() != "utf-8" {
			stats.Record(column, fmt.Sprintf("codec:%s:%s", origin, codec.Name()))
		}
		return text
	}

	stats.Record(column, "undecodable:"+origin)
	if opts.Fallback == FallbackKeepBytes {
		opts.logf("column %s: undecodable %s value kept as raw bytes", column, origin)
		return value
	}
	opts.logf("column %s: %s value decoded with replacement", column, origin)
	text, err := charmapCodec{"latin-1", charmap.ISO8859_1}.Decode(value)
	if err != nil {
		// Latin-1 maps every byte; this is unreachable in practice.
		return strings.ToValidUTF8(string(value), "�")
	}
	return text
}

// readBlob drains a deferred blob handle. Read failures become NULL, never
// an error; blob content re-enters the byte decoding path.
func readBlob(blob adapter.Blob, column string, stats *Stats, opts Options) any {
	content, err := blob.ReadAll()
	if err != nil {
		stats.Record(column, "blob:read-error")
		opts.logf("column %s: blob read failed (%v), value set to NULL", column, err)
		return nil
	}
	if content == nil {
		stats.Record(column, "blob:nil-content")
		return nil
	}
	stats.Record(column, "blob:bytes")
	return decodeBytes(content, column, "blob", stats, opts)
}

// scanString records advisory events without modifying the value.
func scanString(value, column string, stats *Stats, opts Options) {
	if strings.ContainsRune(value, '\'') {
		stats.Record(column, "string:single-quote")
	}
	if !utf8.ValidString(value) {
		stats.Record(column, "string:invalid-utf8")
		opts.logf("column %s: text contains invalid UTF-8 code points, value kept", column)
	}
}
