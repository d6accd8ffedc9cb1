package notify

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tripwire-io/tripwire/event"
)

const (
	// SummaryLimit caps Payload.Summary, used for subjects and chat messages.
	SummaryLimit = 80

	// ReasonLimit caps Payload.Reason, used for message bodies.
	ReasonLimit = 500

	// UnknownLocation replaces the location of events without a stack trace.
	UnknownLocation = "unknown location"
)

// LinkFunc builds a human-readable URL for an error id. An empty result omits the link.
type LinkFunc func(errorID string) string

// Field is a selected entry of the event context.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Payload is the formatted notification built once per dispatch and shared by all sinks.
type Payload struct {
	DispatchID      uuid.UUID  `json:"dispatch_id"`
	Header          string     `json:"header"`
	Kind            event.Kind `json:"kind"`
	ErrorID         string     `json:"error_id"`
	OccurrenceID    string     `json:"occurrence_id,omitempty"`
	Summary         string     `json:"summary"`
	Reason          string     `json:"reason"`
	Location        string     `json:"location"`
	Context         []Field    `json:"context,omitempty"`
	URL             string     `json:"url,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
	SuppressedCount uint64     `json:"suppressed_count"`
}

// NewPayload formats ev for delivery. fields selects the context entries to include, all if empty.
// link may be nil. Missing optional data never fails, a missing stack trace yields UnknownLocation.
func NewPayload(ev *event.ErrorEvent, header string, suppressedCount uint64, fields []string, link LinkFunc) *Payload {
	p := &Payload{
		DispatchID:      uuid.New(),
		Header:          AnnotateHeader(header, suppressedCount),
		Kind:            ev.Kind,
		ErrorID:         ev.ErrorID,
		OccurrenceID:    ev.OccurrenceID,
		Summary:         Truncate(firstLine(ev.Reason), SummaryLimit),
		Reason:          Truncate(ev.Reason, ReasonLimit),
		Location:        UnknownLocation,
		Context:         selectFields(ev.Context, fields),
		OccurredAt:      ev.Timestamp,
		SuppressedCount: suppressedCount,
	}

	if f, ok := ev.FirstFrame(); ok {
		if loc := f.String(); loc != "" {
			p.Location = loc
		}
	}

	if link != nil && ev.ErrorID != "" {
		p.URL = link(ev.ErrorID)
	}

	return p
}

// Text renders p as plain text for email bodies and chat messages.
func (p *Payload) Text() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "%s\n\n%s\n\nLocation: %s\n", p.Header, p.Reason, p.Location)

	if p.ErrorID != "" {
		_, _ = fmt.Fprintf(&b, "Error: %s\n", p.ErrorID)
	}
	if p.OccurrenceID != "" {
		_, _ = fmt.Fprintf(&b, "Occurrence: %s\n", p.OccurrenceID)
	}
	if !p.OccurredAt.IsZero() {
		_, _ = fmt.Fprintf(&b, "Time: %s\n", p.OccurredAt.UTC().Format(time.RFC3339))
	}

	if len(p.Context) > 0 {
		b.WriteString("\nContext:\n")
		for _, f := range p.Context {
			_, _ = fmt.Fprintf(&b, "  %s: %s\n", f.Key, f.Value)
		}
	}

	if p.URL != "" {
		_, _ = fmt.Fprintf(&b, "\n%s\n", p.URL)
	}

	return b.String()
}

// AnnotateHeader appends " (<n> occurrences)" to header if n > 1.
// A single suppressed occurrence is not worth mentioning.
func AnnotateHeader(header string, n uint64) string {
	if n > 1 {
		return fmt.Sprintf("%s (%d occurrences)", header, n)
	}

	return header
}

// Truncate shortens s to at most limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	const ellipsis = "..."
	if limit <= len(ellipsis) {
		return string([]rune(s)[:limit])
	}

	return strings.TrimRightFunc(string([]rune(s)[:limit-len(ellipsis)]), isSpace) + ellipsis
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}

	return s
}

// selectFields returns the entries of ctx named in keys, or all of them if keys is empty, sorted by key.
func selectFields(ctx map[string]string, keys []string) []Field {
	if len(ctx) == 0 {
		return nil
	}

	if len(keys) == 0 {
		keys = slices.Collect(maps.Keys(ctx))
	} else {
		keys = slices.Clone(keys)
	}

	slices.Sort(keys)
	keys = slices.Compact(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		if v, ok := ctx[k]; ok {
			fields = append(fields, Field{Key: k, Value: v})
		}
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}
