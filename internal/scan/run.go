package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ZacharyZcR/findetw/internal/pe"
	"github.com/ZacharyZcR/findetw/internal/search"
)

// ErrPathNotFound is returned when the scan root is neither a file nor a directory.
var ErrPathNotFound = errors.New("目标文件或目录不存在")

// Options configures a run.
type Options struct {
	// Workers bounds the number of files scanned at once. Zero means runtime.NumCPU().
	Workers int
	// Timeout cancels the run after the given duration. Zero means no timeout.
	Timeout time.Duration
	// ImportSymbols overrides pe.DefaultRegistrationSymbols.
	ImportSymbols []string
	// Mapped memory-maps files instead of reading them into memory.
	Mapped bool
	// Enumerate controls directory traversal.
	Enumerate EnumerateOptions
	// OnStart is called once for directory runs with the number of candidate
	// files, before any of them is scanned.
	OnStart func(files int)
	// OnResult is called for every scanned file as it completes. Calls are
	// serialised, so the callback needs no locking.
	OnResult func(Result)
	// Log receives diagnostics. Nil discards them.
	Log logrus.FieldLogger
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{
		Workers:       runtime.NumCPU(),
		ImportSymbols: pe.DefaultRegistrationSymbols,
		Enumerate: EnumerateOptions{
			Extensions: DefaultExtensions,
		},
	}
}

// Summary aggregates a run.
type Summary struct {
	Root    string        `json:"root"`
	Files   int           `json:"files"`
	Scanned int           `json:"scanned"`
	Failed  int           `json:"failed"`
	Total   int           `json:"total_references"`
	Elapsed time.Duration `json:"elapsed_ns"`
	// Partial is set when the run was cancelled before every file was scanned.
	Partial bool `json:"partial"`
	// Results holds every file that produced hits or failed, in completion order.
	Results []Result `json:"results"`
}

func (s *Summary) add(r Result) {
	s.Scanned++
	if r.Failed() {
		s.Failed++
	}
	s.Total += len(r.Hits)
	if r.Failed() || len(r.Hits) > 0 {
		s.Results = append(s.Results, r)
	}
}

// Run scans root, a single file or a directory tree, for pattern.
//
// Per-file failures are recorded in the summary and never stop the run.
// Only a missing root or an invalid option aborts it with an error. When
// ctx is cancelled, or Options.Timeout expires, files not yet started are
// skipped and the summary is marked partial.
func Run(ctx context.Context, root string, pattern *search.Pattern, opts Options) (*Summary, error) {
	start := time.Now()
	log := opts.Log
	if log == nil {
		log = discardLogger()
	}

	stat, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, root)
	}
	if err := opts.Enumerate.Validate(); err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	scanner := NewScanner(pattern,
		WithImportSymbols(opts.ImportSymbols...),
		WithMapped(opts.Mapped),
	)
	summary := &Summary{Root: root}

	var files []string
	if stat.IsDir() {
		files, err = Enumerate(root, opts.Enumerate)
		if err != nil {
			return nil, err
		}
		if opts.OnStart != nil {
			opts.OnStart(len(files))
		}
	} else {
		files = []string{root}
	}
	summary.Files = len(files)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log.WithFields(logrus.Fields{
		"root":    root,
		"files":   len(files),
		"workers": workers,
	}).Debug("开始扫描")

	results := make(chan Result)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			summary.add(r)
			logResult(log, r)
			if opts.OnResult != nil {
				opts.OnResult(r)
			}
		}
	}()

	dispatch(ctx, files, workers, scanner, results)
	close(results)
	<-done

	summary.Partial = summary.Scanned < summary.Files
	summary.Elapsed = time.Since(start)
	if summary.Partial {
		log.WithFields(logrus.Fields{
			"scanned": summary.Scanned,
			"files":   summary.Files,
		}).Warn("扫描被中断，结果不完整")
	}
	return summary, nil
}

// dispatch scans files on at most workers goroutines and sends each result.
// It returns once every started scan has been delivered.
func dispatch(ctx context.Context, files []string, workers int, scanner *Scanner, results chan<- Result) {
	if len(files) == 1 {
		if ctx.Err() == nil {
			results <- scanner.Scan(files[0])
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Cancellation may have happened while waiting for a slot.
			if ctx.Err() != nil {
				return nil
			}
			results <- scanner.Scan(file)
			return nil
		})
	}
	_ = g.Wait()
}

func logResult(log logrus.FieldLogger, r Result) {
	entry := log.WithField("path", r.Path)
	if r.Err != nil {
		entry.WithError(r.Err).Warn("跳过文件")
		return
	}
	if r.ImportErr != nil {
		entry.WithError(r.ImportErr).Debug("导入表不可用")
	}
	entry.WithField("hits", len(r.Hits)).Debug("扫描完成")
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
