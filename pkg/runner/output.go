package runner

import (
	"bufio"
	"io"
	"log/slog"
	"sync"
)

// outputSink forwards process output line by line to the logger and keeps
// the last few lines for failure reports.
type outputSink struct {
	pw     *io.PipeWriter
	done   chan struct{}
	logger *slog.Logger
	max    int

	mu   sync.Mutex
	tail []string
}

func newOutputSink(logger *slog.Logger, tailLines int) *outputSink {
	pr, pw := io.Pipe()
	s := &outputSink{
		pw:     pw,
		done:   make(chan struct{}),
		logger: logger,
		max:    tailLines,
	}
	go s.scan(pr)
	return s
}

func (s *outputSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *outputSink) scan(r *io.PipeReader) {
	defer close(s.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Debug("tool output", "line", line)
		s.keep(line)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("reading tool output", "error", err)
		// drain until the process closes its end
		_, _ = io.Copy(io.Discard, r)
	}
	_ = r.Close()
}

func (s *outputSink) keep(line string) {
	if s.max <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tail) == s.max {
		copy(s.tail, s.tail[1:])
		s.tail = s.tail[:s.max-1]
	}
	s.tail = append(s.tail, line)
}

// Close flushes buffered output and waits for the scanner to finish.
func (s *outputSink) Close() {
	_ = s.pw.Close()
	<-s.done
}

// Tail returns a copy of the retained lines.
func (s *outputSink) Tail() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tail...)
}
