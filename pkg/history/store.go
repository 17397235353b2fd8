package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/autowatch/pkg/logger"
)

// Bucket names.
var (
	bucketRuns  = []byte("runs")  // ID -> Run
	bucketOrder = []byte("order") // StartedAt|ID -> ID (index)
)

// store implements the Store interface using bbolt.
type store struct {
	db     *bolt.DB
	logger logger.Logger
	config Config
}

// New opens (or creates) the history database.
//
// Parameters:
//   - cfg: Store configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Store
//   - Error if database cannot be opened
func New(cfg Config, log logger.Logger) (Store, error) {
	if cfg.DBPath == "" {
		return nil, ErrNoPath
	}

	// Set default timeout.
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	// Expand home directory in path.
	dbPath := expandHome(cfg.DBPath)

	// Create directory if it doesn't exist.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize buckets.
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(bucketRuns); createErr != nil {
			return fmt.Errorf("failed to create runs bucket: %w", createErr)
		}
		if _, createErr := tx.CreateBucketIfNotExists(bucketOrder); createErr != nil {
			return fmt.Errorf("failed to create order bucket: %w", createErr)
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log = log.With("component", "history")
	log.Debug("history store opened", "db_path", dbPath)

	return &store{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// Begin implements Store.Begin.
func (s *store) Begin(root, configPath string) (*Run, error) {
	run := &Run{
		ID:         uuid.New().String(),
		Root:       root,
		ConfigPath: configPath,
		StartedAt:  time.Now(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx, run); err != nil {
			return err
		}
		if err := tx.Bucket(bucketOrder).Put(orderKey(run), []byte(run.ID)); err != nil {
			return fmt.Errorf("failed to store order index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("run started", "id", run.ID, "root", root)
	return run, nil
}

// Finish implements Store.Finish.
func (s *store) Finish(run *Run) error {
	if run == nil {
		return ErrNilRun
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		return ErrInvalidID
	}

	if run.StoppedAt.IsZero() {
		run.StoppedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketRuns).Get([]byte(run.ID)) == nil {
			return ErrRunNotFound
		}
		if err := put(tx, run); err != nil {
			return err
		}

		s.logger.Info("run finished",
			"id", run.ID,
			"reason", run.StopReason,
			"events", run.EventsProcessed,
			"actions", run.ActionsExecuted)
		return nil
	})
}

// Get implements Store.Get.
func (s *store) Get(id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	var run *Run

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return ErrRunNotFound
		}

		var r Run
		if unmarshalErr := json.Unmarshal(data, &r); unmarshalErr != nil {
			return fmt.Errorf("failed to unmarshal run: %w", unmarshalErr)
		}

		run = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return run, nil
}

// List implements Store.List.
func (s *store) List(n int) ([]*Run, error) {
	runs := make([]*Run, 0, 10)

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns)
		c := tx.Bucket(bucketOrder).Cursor()

		// Walk the time index newest first.
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if n > 0 && len(runs) >= n {
				break
			}

			raw := data.Get(id)
			if raw == nil {
				continue
			}

			var run Run
			if unmarshalErr := json.Unmarshal(raw, &run); unmarshalErr != nil {
				s.logger.Warn("failed to unmarshal run",
					"id", string(id),
					"error", unmarshalErr)
				continue // Skip invalid entries.
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// Close implements Store.Close.
func (s *store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Debug("history store closed")
	return nil
}

func put(tx *bolt.Tx, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	return nil
}

// orderKey sorts lexically by start time. The ID suffix keeps keys unique.
func orderKey(run *Run) []byte {
	return []byte(run.StartedAt.UTC().Format("20060102T150405.000000000") + "|" + run.ID)
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
