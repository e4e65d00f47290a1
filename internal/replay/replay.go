// Package replay records deliberation event streams to JSONL files and plays
// them back, either instantly for tests or paced by the recorded timestamps
// for a live-looking rerun in the terminal.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/quorumlabs/quorum/internal/deliberation"
)

// maxGap caps the pause between two replayed frames so a recording with long
// synthesis waits still finishes in reasonable time.
const maxGap = 3 * time.Second

// Recording is an ordered set of raw event frames.
type Recording struct {
	Frames [][]byte
}

// Load reads a JSONL recording from disk. Blank lines are skipped; a line
// that is not a JSON object fails the load, since a truncated fixture should
// be caught loudly rather than replayed partially.
func Load(path string) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer file.Close()
	rec, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("replay: %s: %w", path, err)
	}
	return rec, nil
}

// Read parses JSONL frames from r.
func Read(r io.Reader) (*Recording, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	rec := &Recording{}
	line := 0
	for scanner.Scan() {
		line++
		frame := bytes.TrimSpace(scanner.Bytes())
		if len(frame) == 0 {
			continue
		}
		if !json.Valid(frame) {
			return nil, fmt.Errorf("line %d: not valid JSON", line)
		}
		rec.Frames = append(rec.Frames, append([]byte(nil), frame...))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Recorder appends frames to a JSONL file as they arrive. It is safe for use
// as a stream OnEvent callback.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	logger deliberation.Logger
}

// NewRecorder opens (or creates) path for appending.
func NewRecorder(path string, logger deliberation.Logger) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("replay: open recorder %s: %w", path, err)
	}
	if logger == nil {
		logger = deliberation.NopLogger()
	}
	return &Recorder{file: file, writer: bufio.NewWriter(file), logger: logger}, nil
}

// Record writes one frame as a JSONL line. Newlines inside the frame are
// compacted away so one frame is always one line.
func (r *Recorder) Record(frame []byte) {
	compact := &bytes.Buffer{}
	if err := json.Compact(compact, frame); err != nil {
		r.logger.Printf("dropping unrecordable frame: %v", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	compact.WriteByte('\n')
	if _, err := r.writer.Write(compact.Bytes()); err != nil {
		r.logger.Printf("record failed: %v", err)
	}
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	flushErr := r.writer.Flush()
	closeErr := r.file.Close()
	r.writer = nil
	r.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// PlayOptions controls playback pacing.
type PlayOptions struct {
	// Instant emits every frame back to back with no delays.
	Instant bool
	// Speed divides recorded gaps; 2 plays twice as fast. Zero means 1.
	Speed float64
}

// Play emits the recording's frames through emit, pacing by the gaps between
// recorded event timestamps unless Instant is set. It returns early if ctx is
// cancelled.
func Play(ctx context.Context, rec *Recording, emit func(raw []byte), opts PlayOptions) error {
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	var previous time.Time
	for _, frame := range rec.Frames {
		if !opts.Instant {
			at, ok := frameTime(frame)
			if ok && !previous.IsZero() {
				gap := at.Sub(previous)
				if gap > 0 {
					if err := pause(ctx, scaleGap(gap, speed)); err != nil {
						return err
					}
				}
			}
			if ok {
				previous = at
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		emit(frame)
	}
	return nil
}

func frameTime(frame []byte) (time.Time, bool) {
	var envelope struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil || envelope.Timestamp == "" {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, envelope.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func scaleGap(gap time.Duration, speed float64) time.Duration {
	scaled := time.Duration(float64(gap) / speed)
	if scaled > maxGap {
		return maxGap
	}
	return scaled
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
