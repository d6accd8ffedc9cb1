package logging

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/ssgreg/journald"
	"go.uber.org/zap/zapcore"
)

// maxJournaldKeyLen is the longest field name journald accepts.
const maxJournaldKeyLen = 64

// inlineFields lists field keys that are repeated inside the message text, since journalctl's default
// output format hides journal fields.
var inlineFields = []string{"error"}

// NewJournaldCore returns a zapcore.Core sending entries to systemd-journald.
// Structured context becomes journal fields named after identifier, e.g. TRIPWIRE_ERROR_ID.
func NewJournaldCore(identifier string, enab zapcore.LevelEnabler) zapcore.Core {
	return &journaldCore{LevelEnabler: enab, identifier: identifier}
}

type journaldCore struct {
	zapcore.LevelEnabler
	identifier string
	context    []zapcore.Field
}

func (c *journaldCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

func (c *journaldCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.context = append(slices.Clip(c.context), fields...)

	return &clone
}

func (c *journaldCore) Sync() error {
	return nil
}

func (c *journaldCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	pri, err := journaldPriority(ent.Level)
	if err != nil {
		return err
	}

	all := append(slices.Clip(fields), c.context...)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range all {
		f.Key = c.identifier + "_" + f.Key
		f.AddTo(enc)
	}

	// Keys are encoded only after AddTo, which may emit extra keys such as errorVerbose.
	journalFields := make(map[string]any, len(enc.Fields)+1)
	for k, v := range enc.Fields {
		journalFields[journaldKey(k)] = v
	}
	journalFields["SYSLOG_IDENTIFIER"] = c.identifier

	msg := ent.Message + inlineFieldsMsg(inlineFields, all)
	if ent.LoggerName != c.identifier {
		msg = ent.LoggerName + ": " + msg
	}

	return journald.Send(msg, pri, journalFields)
}

func journaldPriority(level zapcore.Level) (journald.Priority, error) {
	switch level {
	case zapcore.DebugLevel:
		return journald.PriorityDebug, nil
	case zapcore.InfoLevel:
		return journald.PriorityInfo, nil
	case zapcore.WarnLevel:
		return journald.PriorityWarning, nil
	case zapcore.ErrorLevel:
		return journald.PriorityErr, nil
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return journald.PriorityCrit, nil
	default:
		return 0, errors.Errorf("unknown log level %q", level)
	}
}

// journaldKey turns key into a valid journal field name: SCREAMING_SNAKE_CASE, at most 64 bytes,
// starting with an ASCII capital. journald silently drops fields with other names.
func journaldKey(key string) string {
	if key == "" {
		return "EMPTY_KEY"
	}

	var b strings.Builder
	b.Grow(len(key) + 4)

	var prev rune
	for i, r := range key {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(asciiOrUnderscore(r))
		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(asciiOrUnderscore(unicode.ToUpper(r)))
		default:
			b.WriteByte('_')
		}
		prev = r
	}

	out := b.String()
	if out[0] < 'A' || out[0] > 'Z' {
		out = "ESC_" + out
	}

	if len(out) > maxJournaldKeyLen {
		out = out[:maxJournaldKeyLen]
	}

	return out
}

func asciiOrUnderscore(r rune) rune {
	if ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
		return r
	}

	return '_'
}

// inlineFieldsMsg renders the fields named in keys as a tab-prefixed `key="value"` list,
// sorted by key, or returns "" if none of them are present.
func inlineFieldsMsg(keys []string, fields []zapcore.Field) string {
	if len(keys) == 0 || len(fields) == 0 {
		return ""
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if slices.Contains(keys, f.Key) {
			f.AddTo(enc)
		}
	}

	var parts []string
	for _, k := range slices.Sorted(maps.Keys(enc.Fields)) {
		// errorVerbose and friends only show up when requested explicitly.
		if !slices.Contains(keys, k) {
			continue
		}

		switch v := enc.Fields[k].(type) {
		case string, []byte, error:
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		default:
			parts = append(parts, fmt.Sprintf(`%s="%v"`, k, v))
		}
	}

	if len(parts) == 0 {
		return ""
	}

	return "\t" + strings.Join(parts, ", ")
}
