package execlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/0xmhha/autowatch/pkg/logger"
	"github.com/0xmhha/autowatch/pkg/metrics"
)

// Store appends execution records and keeps their metrics.
type Store struct {
	config Config
	logger logger.Logger
	path   string

	// mu guards the active file: a rotation and the append that follows
	// it are never interleaved with another rotation.
	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool

	agg    metrics.Aggregator
	errors chan error
}

// Open opens (or creates) the active log file in cfg.Dir. Records already
// in the log are replayed into the metrics.
func Open(cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, ErrNoDir
	}
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}

	s := &Store{
		config: cfg,
		logger: log.With("component", "execlog"),
		path:   filepath.Join(cfg.Dir, cfg.FileName),
		agg:    metrics.New(cfg.Metrics),
		errors: make(chan error, 16),
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if err := s.openActive(); err != nil {
			return nil, err
		}
		if err := s.seed(); err != nil {
			s.logger.Warn("failed to replay existing log into metrics", "error", err)
		}
	}

	return s, nil
}

// seed folds records already on disk into the metrics, oldest first.
func (s *Store) seed() error {
	for _, path := range s.files(true) {
		records, err := readFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		for _, r := range records {
			if smp, ok := r.sample(); ok {
				s.agg.Add(smp)
			}
		}
	}
	return nil
}

// Path returns the active log file path.
func (s *Store) Path() string {
	return s.path
}

// Errors reports write and rotation failures. Reports are dropped when
// nobody reads them.
func (s *Store) Errors() <-chan error {
	return s.errors
}

// Record appends r as one line and folds it into the metrics.
//
// A record the level filter keeps out of the log is not counted either, so
// replaying the log always reproduces the metrics. When logging is disabled
// every record is counted. Metrics are updated even when the write fails,
// so on I/O errors the in-memory metrics may run ahead of the durable log.
//
// A failed rotation does not drop r: it is appended to the active file and
// the rotation error is reported and returned.
func (s *Store) Record(r Record) error {
	if s.config.Enabled && !s.keeps(r.Level) {
		return nil
	}
	if smp, ok := r.sample(); ok {
		s.agg.Add(smp)
	}
	if !s.config.Enabled {
		return nil
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var rotateErr error
	if s.config.Rotation && s.config.MaxSize > 0 && s.size >= s.config.MaxSize {
		if err := s.rotate(); err != nil {
			rotateErr = s.fail(fmt.Errorf("%w: rotate: %v", ErrWrite, err))
		}
	}

	if s.file == nil {
		if err := s.openActive(); err != nil {
			return s.fail(fmt.Errorf("%w: %v", ErrWrite, err))
		}
	}

	n, err := s.file.Write(line)
	s.size += int64(n)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %v", ErrWrite, err))
	}

	return rotateErr
}

// keeps reports whether a record at level passes the level filter.
// Error records always do.
func (s *Store) keeps(level string) bool {
	return level == LevelError || levelRank(level) >= levelRank(s.config.Level)
}

// Metrics returns the incremental metrics snapshot.
func (s *Store) Metrics() metrics.Snapshot {
	return s.agg.Snapshot()
}

// ReadRecent returns up to n records, most recent last. It reads into the
// backlog when the active file holds fewer than n.
func (s *Store) ReadRecent(n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, path := range s.files(false) {
		records, err := readFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}

		out = append(records, out...)
		if len(out) >= n {
			break
		}
	}

	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// Close closes the active file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		if err != nil {
			return fmt.Errorf("failed to close execution log: %w", err)
		}
	}
	return nil
}

// openActive opens the active file for append. Callers hold mu or own s.
func (s *Store) openActive() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open execution log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close() // nolint:errcheck
		return fmt.Errorf("failed to stat execution log: %w", err)
	}

	s.file = f
	s.size = info.Size()
	return nil
}

// rotate shifts the backlog up by one, moves the active file to .1 and
// starts a fresh active file. Callers hold mu.
func (s *Store) rotate() error {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.logger.Warn("failed to close log before rotation", "error", err)
		}
		s.file = nil
	}

	keep := s.config.Retention
	if keep <= 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	} else {
		oldest := backlogPath(s.path, keep)
		if err := os.Remove(oldest); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		for i := keep - 1; i >= 1; i-- {
			err := os.Rename(backlogPath(s.path, i), backlogPath(s.path, i+1))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		if err := os.Rename(s.path, backlogPath(s.path, 1)); err != nil {
			return err
		}
	}

	if err := s.openActive(); err != nil {
		return err
	}

	s.logger.Info("rotated execution log", "path", s.path, "retention", keep)
	return nil
}

// fail reports err on the errors channel and returns it.
func (s *Store) fail(err error) error {
	s.logger.Error("execution log write failed", "error", err)

	select {
	case s.errors <- err:
	default:
	}
	return err
}

// files lists log files newest first, or oldest first when oldestFirst.
func (s *Store) files(oldestFirst bool) []string {
	return logFiles(s.path, s.config.Retention, oldestFirst)
}

func logFiles(active string, retention int, oldestFirst bool) []string {
	paths := []string{active}
	for i := 1; i <= retention; i++ {
		paths = append(paths, backlogPath(active, i))
	}

	if oldestFirst {
		for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
			paths[i], paths[j] = paths[j], paths[i]
		}
	}
	return paths
}

func backlogPath(active string, i int) string {
	return fmt.Sprintf("%s.%d", active, i)
}

// readFile parses every well-formed record line of path.
func readFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue // Skip malformed lines.
		}
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}
