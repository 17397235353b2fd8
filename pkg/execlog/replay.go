package execlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpcloud/tail"

	"github.com/0xmhha/autowatch/pkg/metrics"
)

// Replay rebuilds a metrics snapshot from the log files in cfg.Dir, oldest
// backlog first and the active file last.
func Replay(cfg Config) (metrics.Snapshot, error) {
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}

	agg := metrics.New(cfg.Metrics)
	active := filepath.Join(cfg.Dir, cfg.FileName)

	for _, path := range logFiles(active, cfg.Retention, true) {
		records, err := readFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return metrics.Snapshot{}, err
		}
		for _, r := range records {
			if smp, ok := r.sample(); ok {
				agg.Add(smp)
			}
		}
	}

	return agg.Snapshot(), nil
}

// Follow calls fn for every record appended to the active file until ctx
// is done. It keeps following across rotations.
func (s *Store) Follow(ctx context.Context, fn func(Record)) error {
	return FollowFile(ctx, s.path, fn)
}

// FollowFile tails path from its current end, decoding each new line.
func FollowFile(ctx context.Context, path string, fn func(Record)) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail execution log: %w", err)
	}
	defer func() {
		_ = t.Stop() // nolint:errcheck
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-t.Lines:
			if !ok {
				return fmt.Errorf("execution log tail closed: %w", t.Err())
			}
			if line == nil || line.Err != nil || line.Text == "" {
				continue
			}

			var r Record
			if err := json.Unmarshal([]byte(line.Text), &r); err != nil {
				continue
			}
			fn(r)
		}
	}
}
