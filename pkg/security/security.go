// Package security provides validation, sanitization, and limits for the fwjobs packages.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobIDLength is the maximum length for job ids (matches the id column)
	MaxJobIDLength = 36

	// MaxFlagsLength is the maximum length of the caller-supplied flag string
	MaxFlagsLength = 1024

	// MaxWorkers is the hard limit for pool size and gate capacity
	MaxWorkers = 256

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validJobID matches alphanumeric, hyphens and underscores.
// Job ids become directory names, so no dots or separators.
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]*$`)

// validFlag matches one whitespace-separated flag token.
var validFlag = regexp.MustCompile(`^[a-zA-Z0-9_\-\./=:,+@]+$`)

// ValidateJobID validates a job id
func ValidateJobID(id string) error {
	if id == "" || len(id) > MaxJobIDLength {
		return core.ErrInvalidJobID
	}
	if !validJobID.MatchString(id) {
		return core.ErrInvalidJobID
	}
	return nil
}

// ValidateFlags validates analysis flags and returns them split into tokens.
// The command runs without a shell, so tokens carrying shell syntax are
// rejected rather than silently passed through.
func ValidateFlags(flags string) ([]string, error) {
	if len(flags) > MaxFlagsLength {
		return nil, core.ErrInvalidFlags
	}
	tokens := strings.Fields(flags)
	for _, tok := range tokens {
		if !validFlag.MatchString(tok) {
			return nil, core.ErrInvalidFlags
		}
	}
	return tokens, nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampWorkers ensures a worker count or capacity is within limits
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
