// Package inventory discovers the source sensor files for a subject
// directory and resolves each file's recorded time range.
//
// Discovery globs one fixed pattern per channel (sensor placement).
// Time ranges come from a persisted cache when available; otherwise the
// external sensor reader is invoked and the result is memoized. The
// reader is the only potentially expensive collaborator in the whole
// tracker, so uncached reads run on a bounded worker pool with an
// optional rate limit.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/armlab/ulftrack/pkg/timerange"
)

// ChannelID identifies a sensor placement within a subject's dataset
// (e.g. "R" for the right wrist).
type ChannelID string

// Channel pairs a channel identifier with the glob pattern its source
// files match within a subject directory.
type Channel struct {
	ID      ChannelID
	Pattern string
}

// SourceFile is one discovered sensor export. Immutable once
// discovered; re-discovered, never mutated, on each run.
type SourceFile struct {
	Path    string
	Channel ChannelID
	Range   timerange.Range
}

// RangeReader is the external sensor-reader collaborator. Given a file
// path it returns the first and last sample timestamp contained in it.
type RangeReader interface {
	ReadRange(ctx context.Context, path string) (timerange.Range, error)
}

// TimeCache is the persisted path -> time range cache consulted before
// the reader is invoked. Implementations must be safe for concurrent
// use; the journal provides the production implementation.
type TimeCache interface {
	Lookup(path string) (timerange.Range, bool)
	Store(path string, r timerange.Range)
}

// ErrUnreadable wraps reader failures. A file whose time range cannot
// be established is fatal for its subject: the tracker cannot silently
// skip data it cannot time-bound.
var ErrUnreadable = errors.New("sensor file unreadable")

// ErrInvalidPattern is returned when a channel glob cannot be compiled.
var ErrInvalidPattern = errors.New("invalid channel glob pattern")

// Config configures scanner behavior.
type Config struct {
	// Concurrency is the number of parallel reader invocations for
	// uncached files. Default: 4.
	Concurrency int

	// RateLimit is the maximum reader invocations per second.
	// Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() Config {
	return Config{Concurrency: 4}
}

// Scanner discovers source files and resolves their time ranges.
type Scanner struct {
	reader  RangeReader
	cache   TimeCache
	config  Config
	logger  *zap.Logger
	limiter *rate.Limiter

	// mu serializes cache writes from the worker pool.
	mu sync.Mutex
}

// NewScanner creates a scanner over the given reader and cache.
func NewScanner(reader RangeReader, cache TimeCache, cfg Config, logger *zap.Logger) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		reader: reader,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

// Scan discovers every channel's source files under dir and resolves
// their time ranges. Results are keyed by channel and ordered by path
// within each channel, so discovery order is stable across runs.
//
// Fails on the first unreadable file (wrapped in ErrUnreadable) or
// invalid channel pattern.
func (s *Scanner) Scan(ctx context.Context, dir string, channels []Channel) (map[ChannelID][]SourceFile, error) {
	discovered := make(map[ChannelID][]SourceFile, len(channels))
	var pending []*SourceFile

	for _, ch := range channels {
		paths, err := s.glob(dir, ch)
		if err != nil {
			return nil, err
		}

		files := make([]SourceFile, len(paths))
		for i, p := range paths {
			files[i] = SourceFile{Path: p, Channel: ch.ID}
			if r, ok := s.cache.Lookup(p); ok {
				files[i].Range = r
				continue
			}
			pending = append(pending, &files[i])
		}
		discovered[ch.ID] = files
	}

	if len(pending) > 0 {
		s.logger.Debug("Resolving uncached file times",
			zap.Int("files", len(pending)),
			zap.Int("concurrency", s.config.Concurrency))
		if err := s.resolvePending(ctx, pending); err != nil {
			return nil, err
		}
	}

	return discovered, nil
}

// glob lists the files matching one channel's pattern, sorted by path.
func (s *Scanner) glob(dir string, ch Channel) ([]string, error) {
	if !doublestar.ValidatePattern(ch.Pattern) {
		return nil, fmt.Errorf("%w: channel %s: %q", ErrInvalidPattern, ch.ID, ch.Pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), ch.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("glob channel %s: %w", ch.ID, err)
	}

	sort.Strings(matches)
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, m)
	}
	return paths, nil
}

// resolvePending reads the time range of every file missing from the
// cache, memoizing each result. Files are independent, so reads run in
// parallel; only the cache write is serialized.
func (s *Scanner) resolvePending(ctx context.Context, pending []*SourceFile) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, sf := range pending {
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			r, err := s.reader.ReadRange(ctx, sf.Path)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrUnreadable, sf.Path, err)
			}
			if !r.Valid() {
				return fmt.Errorf("%w: %s: %w", ErrUnreadable, sf.Path, timerange.ErrInverted)
			}

			sf.Range = r
			s.mu.Lock()
			s.cache.Store(sf.Path, r)
			s.mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}
