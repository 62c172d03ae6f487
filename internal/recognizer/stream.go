package recognizer

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/procexec"
)

// segmentLine matches "[00:01.000 --> 00:03.500] text" and "[00:00:01.000 --> 00:00:03.500]  text".
var segmentLine = regexp.MustCompile(`^\s*\[\s*([0-9:.,]+)\s*-->\s*([0-9:.,]+)\s*\]\s?(.*)$`)

// ParseSegmentLine extracts a segment from one line of recognizer output.
func ParseSegmentLine(line string) (domain.Segment, bool) {
	match := segmentLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if match == nil {
		return domain.Segment{}, false
	}
	start, err := parseClock(match[1])
	if err != nil {
		return domain.Segment{}, false
	}
	end, err := parseClock(match[2])
	if err != nil {
		return domain.Segment{}, false
	}
	return domain.Segment{
		Start: start,
		End:   end,
		Text:  norm.NFC.String(strings.TrimSpace(match[3])),
	}, true
}

// parseClock reads [HH:]MM:SS.mmm into seconds.
func parseClock(value string) (float64, error) {
	parts := strings.Split(strings.ReplaceAll(value, ",", "."), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, part := range parts[:len(parts)-1] {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, err
		}
		total = total*60 + float64(n)
	}
	return total*60 + seconds, nil
}

// processStream parses segments from a running recognizer's stdout as they appear.
type processStream struct {
	proc    procexec.Process
	scanner *bufio.Scanner
	log     procexec.CommandLog
	err     error
	done    bool
}

func newProcessStream(proc procexec.Process) *processStream {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &processStream{proc: proc, scanner: scanner}
}

func (s *processStream) Next() (domain.Segment, bool) {
	if s.done {
		return domain.Segment{}, false
	}
	for s.scanner.Scan() {
		if seg, ok := ParseSegmentLine(s.scanner.Text()); ok {
			return seg, true
		}
	}
	s.finish(s.scanner.Err())
	return domain.Segment{}, false
}

// finish waits for the process after stdout is drained and records any failure.
func (s *processStream) finish(scanErr error) {
	s.done = true
	log, waitErr := s.proc.Wait()
	s.log = log
	switch {
	case scanErr != nil:
		s.err = fmt.Errorf("read recognizer output: %w", scanErr)
	case waitErr != nil:
		s.err = &ExitError{Log: log, Err: waitErr}
	}
}

func (s *processStream) Err() error {
	return s.err
}

// Close stops a recognizer that is still producing output. The resulting
// kill is not reported as a stream error.
func (s *processStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.proc.Kill(); err != nil {
		return fmt.Errorf("stop recognizer: %w", err)
	}
	s.log, _ = s.proc.Wait()
	return nil
}

// CommandLog returns the recognizer command log once the stream has ended.
func (s *processStream) CommandLog() procexec.CommandLog {
	return s.log
}

// SliceStream replays fixed segments; it backs fakes and pre-computed results.
type SliceStream struct {
	segments []domain.Segment
	failWith error
	pos      int
	pulled   int
	closed   bool
}

// NewSliceStream returns a stream over segments that ends with failWith (nil for success).
func NewSliceStream(segments []domain.Segment, failWith error) *SliceStream {
	return &SliceStream{segments: segments, failWith: failWith}
}

// Next returns the next stored segment.
func (s *SliceStream) Next() (domain.Segment, bool) {
	if s.closed || s.pos >= len(s.segments) {
		return domain.Segment{}, false
	}
	seg := s.segments[s.pos]
	s.pos++
	s.pulled++
	return seg, true
}

// Err returns the configured failure once all segments were consumed.
func (s *SliceStream) Err() error {
	if s.pos >= len(s.segments) {
		return s.failWith
	}
	return nil
}

// Close marks the stream closed.
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Pulled reports how many segments were handed out.
func (s *SliceStream) Pulled() int {
	return s.pulled
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	return s.closed
}
