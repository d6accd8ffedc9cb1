package event

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// fingerprintFrames is the number of innermost frames taken into account by Fingerprint.
const fingerprintFrames = 3

var (
	// Numbers, hex addresses and UUID-like tokens vary between occurrences of the same error.
	hexPattern    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numberPattern = regexp.MustCompile(`\d+`)
)

// Fingerprint derives a stable error identity from an event that arrived without an ErrorID.
// It hashes the normalized reason and the module and function of the innermost frames,
// ignoring line numbers, timestamps and other data that changes between occurrences.
func Fingerprint(e *ErrorEvent) string {
	parts := []string{normalizeReason(e.Reason)}

	for i, f := range e.StackFrames {
		if i == fingerprintFrames {
			break
		}

		parts = append(parts, f.Module+"."+f.Function)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return hex.EncodeToString(sum[:16])
}

func normalizeReason(reason string) string {
	reason = uuidPattern.ReplaceAllString(reason, "<uuid>")
	reason = hexPattern.ReplaceAllString(reason, "<addr>")
	reason = numberPattern.ReplaceAllString(reason, "<n>")

	return strings.TrimSpace(reason)
}
