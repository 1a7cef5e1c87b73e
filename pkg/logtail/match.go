package logtail

import (
	"regexp"
	"strings"
)

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	moduleName = regexp.MustCompile(`\b([PSLFQDY]\d{2,3}_[A-Za-z0-9_]+)`)
	phaseName  = regexp.MustCompile(`(?i)\b(pre-checking|testing|system emulation|live testing|reporting|final aggregator)\s+phase\b`)
)

// Progress is what a single log line says about the run.
type Progress struct {
	Phase  string
	Module string
	Line   string
}

// Match extracts module and phase from one raw log line. ok is false for
// lines that carry neither.
func Match(raw string) (p Progress, ok bool) {
	line := strings.TrimSpace(ansiEscape.ReplaceAllString(raw, ""))
	if line == "" {
		return Progress{}, false
	}
	if m := phaseName.FindStringSubmatch(line); m != nil {
		p.Phase = strings.ToLower(m[1])
	}
	if m := moduleName.FindStringSubmatch(line); m != nil {
		p.Module = m[1]
	}
	if p.Phase == "" && p.Module == "" {
		return Progress{}, false
	}
	p.Line = line
	return p, true
}
