// Package generate turns news items into audio files, skipping items whose
// audio already exists.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ppiankov/feedcast/internal/manifest"
	"github.com/ppiankov/feedcast/internal/news"
	"github.com/ppiankov/feedcast/internal/speech"
	"github.com/ppiankov/feedcast/internal/voicevox"
)

// Status is the outcome of one item.
type Status int

const (
	Pending Status = iota
	SkippedExisting
	Generated
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case SkippedExisting:
		return "skipped"
	case Generated:
		return "generated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result records what happened to a single item.
type Result struct {
	Key    string
	File   string
	Status Status
	Bytes  int
	Err    error
}

// Recorder persists per-item results. A Recorder error aborts the run.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Report is the outcome of a run. Entries are in feed order and exclude
// failed items.
type Report struct {
	Entries []manifest.Entry
	Results []Result
	Bytes   int64
}

// Count returns how many results have status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Generator writes one WAV file per item under OutputDir.
type Generator struct {
	Synth       voicevox.Synthesizer
	Builder     speech.Builder
	OutputDir   string
	AudioPrefix string // manifest path prefix, e.g. "../audio"
	Delay       time.Duration
	Recorder    Recorder
	Logger      *slog.Logger
	Out         io.Writer

	sleep func(ctx context.Context, d time.Duration) error
}

// Run processes items in order. Synthesis failures are logged and the item
// is left out of the manifest; the batch continues. Only context
// cancellation, disk errors, and Recorder errors stop the run.
func (g *Generator) Run(ctx context.Context, items []news.Item) (Report, error) {
	if g.Synth == nil {
		return Report{}, errors.New("generate: synthesizer is required")
	}
	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create output dir: %w", err)
	}

	logger := g.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := g.Out
	if out == nil {
		out = io.Discard
	}
	sleep := g.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	report := Report{Entries: []manifest.Entry{}}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		key := item.Key(i)
		safe := news.SafeID(key)
		file := filepath.Join(g.OutputDir, safe+".wav")
		res := Result{Key: key, File: file, Status: Pending}

		_, statErr := os.Stat(file)
		switch {
		case statErr == nil:
			res.Status = SkippedExisting
			_, _ = fmt.Fprintf(out, "  [%d/%d] skip %s (exists)\n", i+1, len(items), key)

		case !errors.Is(statErr, os.ErrNotExist):
			return report, fmt.Errorf("stat %s: %w", file, statErr)

		default:
			audio, err := g.Synth.Synthesize(ctx, g.Builder.Build(item))
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				res.Status = Failed
				res.Err = err
				logger.Warn("synthesis failed", "id", key, "error", err)
				_, _ = fmt.Fprintf(out, "  [%d/%d] FAIL %s: %v\n", i+1, len(items), key, err)
				break
			}
			if err := os.WriteFile(file, audio, 0o644); err != nil {
				return report, fmt.Errorf("write %s: %w", file, err)
			}
			res.Status = Generated
			res.Bytes = len(audio)
			report.Bytes += int64(len(audio))
			logger.Debug("audio written", "id", key, "file", file, "bytes", len(audio))
			_, _ = fmt.Fprintf(out, "  [%d/%d] %s\n", i+1, len(items), key)
		}

		if res.Status != Failed {
			report.Entries = append(report.Entries, manifest.NewEntry(item, key, g.audioPath(safe)))
		}
		report.Results = append(report.Results, res)

		if g.Recorder != nil {
			if err := g.Recorder.Record(ctx, res); err != nil {
				return report, fmt.Errorf("record %s: %w", key, err)
			}
		}

		if res.Status == Generated && g.Delay > 0 {
			if err := sleep(ctx, g.Delay); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (g *Generator) audioPath(safe string) string {
	name := safe + ".wav"
	if g.AudioPrefix == "" {
		return name
	}
	return path.Join(g.AudioPrefix, name)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
