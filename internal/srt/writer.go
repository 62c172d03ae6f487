package srt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"subtitle-assistant/internal/domain"
)

// OutputSuffix is appended to the video base name to build the subtitle file name.
const OutputSuffix = "_字幕.srt"

// OutputPath returns <dir>/<video basename without extension>_字幕.srt.
func OutputPath(videoPath, dir string) string {
	base := filepath.Base(videoPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "subtitle"
	}
	return filepath.Join(dir, name+OutputSuffix)
}

// FormatBlock renders one numbered caption block including its trailing blank line.
func FormatBlock(index int, seg domain.Segment) string {
	end := seg.End
	if end < seg.Start {
		end = seg.Start
	}
	return fmt.Sprintf(
		"%d\n%s --> %s\n%s\n\n",
		index,
		FormatTime(seg.Start),
		FormatTime(end),
		strings.TrimSpace(seg.Text),
	)
}

// Writer numbers segments 1..N in the order they are written.
type Writer struct {
	w    io.Writer
	next int
}

// NewWriter wraps w; every block is emitted with a single Write call.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, next: 1}
}

// WriteSegment appends the next block. The index only advances on success.
func (w *Writer) WriteSegment(seg domain.Segment) error {
	if _, err := io.WriteString(w.w, FormatBlock(w.next, seg)); err != nil {
		return err
	}
	w.next++
	return nil
}

// Count reports how many blocks were written.
func (w *Writer) Count() int {
	return w.next - 1
}

// Block is one parsed caption block.
type Block struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// ReadBlocks parses SubRip content into blocks. Text lines of one block are joined with "\n".
func ReadBlocks(r io.Reader) ([]Block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		blocks []Block
		lines  []string
	)
	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		defer func() { lines = lines[:0] }()
		if len(lines) < 2 {
			return fmt.Errorf("incomplete block %q", strings.Join(lines, "\\n"))
		}
		var index int
		if _, err := fmt.Sscanf(lines[0], "%d", &index); err != nil {
			return fmt.Errorf("invalid block index %q", lines[0])
		}
		times := strings.Split(lines[1], "-->")
		if len(times) != 2 {
			return fmt.Errorf("invalid timing line %q", lines[1])
		}
		start, err := ParseTime(times[0])
		if err != nil {
			return err
		}
		end, err := ParseTime(times[1])
		if err != nil {
			return err
		}
		blocks = append(blocks, Block{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], "\n"),
		})
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// CountBlocks parses the subtitle file at path and returns its block count.
func CountBlocks(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	blocks, err := ReadBlocks(file)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return len(blocks), nil
}
