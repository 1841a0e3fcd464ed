package testdata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/filelock"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// Store owns the test data document on disk
type Store struct {
	path        string
	backupDir   string
	lockTimeout time.Duration

	gen    *Generator
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithGenerator replaces the record generator
func WithGenerator(g *Generator) Option {
	return func(s *Store) { s.gen = g }
}

// WithLockTimeout bounds the wait for the document lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithLogger sets the store's logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now for backup names
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store for the document at path. Backups go to
// backupDir, or next to the document when backupDir is empty.
func NewStore(path, backupDir string, opts ...Option) *Store {
	if backupDir == "" {
		backupDir = filepath.Dir(path)
	}
	s := &Store{
		path:        path,
		backupDir:   backupDir,
		lockTimeout: filelock.DefaultTimeout,
		now:         time.Now,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = NewGenerator()
	}
	s.logger = logging.Component(s.logger, "testdata")
	return s
}

// Path returns the document path
func (s *Store) Path() string {
	return s.path
}

// Load reads the document under the shared lock
func (s *Store) Load(ctx context.Context) (*Document, error) {
	var doc *Document
	err := filelock.WithReadLock(ctx, s.path, s.lockTimeout, func() error {
		var err error
		doc, err = s.read()
		return err
	})
	return doc, err
}

// Mutate runs fn on the current document and writes the result, all under
// the exclusive lock. The document is not written when fn fails.
func (s *Store) Mutate(ctx context.Context, fn func(*Document) error) (*Document, error) {
	var doc *Document
	err := filelock.WithLock(ctx, s.path, s.lockTimeout, func() error {
		var err error
		doc, err = s.read()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return s.write(doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Generate creates synthetic data for dataType and stores it under
// testData.<dataType>. A "count" above one in params produces a list; counts
// above MaxCount are rejected.
func (s *Store) Generate(ctx context.Context, dataType string, params map[string]interface{}) (interface{}, error) {
	if !s.gen.Supports(dataType) {
		return nil, errors.UnknownDataType(dataType, DataTypes)
	}
	count, err := countParam(params)
	if err != nil {
		return nil, err
	}
	record, err := s.gen.Generate(dataType, count)
	if err != nil {
		return nil, err
	}

	_, err = s.Mutate(ctx, func(doc *Document) error {
		doc.TestData[dataType] = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("generated test data", "dataType", dataType)
	return record, nil
}

func countParam(params map[string]interface{}) (int, error) {
	var n float64
	switch v := params["count"].(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	default:
		return 1, nil
	}
	if n > MaxCount {
		return 0, errors.Wrap(errors.CodeInvalidArguments,
			fmt.Sprintf("count %v exceeds the limit of %d records", n, MaxCount),
			"Generate large data sets in several calls.", nil).
			WithDetails("count", n)
	}
	if n < 1 {
		return 1, nil
	}
	return int(n), nil
}

// Update shallow-merges patch into testData.<dataType>. A non-object
// current value is replaced by the patch.
func (s *Store) Update(ctx context.Context, dataType string, patch map[string]interface{}) (map[string]interface{}, error) {
	var merged map[string]interface{}
	_, err := s.Mutate(ctx, func(doc *Document) error {
		merged = map[string]interface{}{}
		if current, ok := doc.TestData[dataType].(map[string]interface{}); ok {
			for k, v := range current {
				merged[k] = v
			}
		}
		for k, v := range patch {
			merged[k] = v
		}
		doc.TestData[dataType] = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("updated test data", "dataType", dataType, "fields", len(patch))
	return merged, nil
}

// Backup writes testData.<dataType> to backup-<dataType>-<unixMillis>.yaml
// and returns the file's path. The document itself is not modified.
func (s *Store) Backup(ctx context.Context, dataType string) (string, error) {
	var snapshot map[string]interface{}
	err := filelock.WithReadLock(ctx, s.path, s.lockTimeout, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		snapshot = map[string]interface{}{dataType: doc.TestData[dataType]}
		return nil
	})
	if err != nil {
		return "", err
	}

	data, err := marshalYAML(snapshot)
	if err != nil {
		return "", errors.StorageFailed("encode backup of", dataType, err)
	}
	if err := os.MkdirAll(s.backupDir, 0o750); err != nil {
		return "", errors.StorageFailed("create", s.backupDir, err)
	}
	path := filepath.Join(s.backupDir, fmt.Sprintf("backup-%s-%d.yaml", dataType, s.now().UnixMilli()))
	if err := filelock.WriteFile(path, data, 0o644); err != nil {
		return "", errors.StorageFailed("write", path, err)
	}
	s.logger.Info("backed up test data", "dataType", dataType, "path", path)
	return path, nil
}

// Validate checks a record against the rule table of dataType
func (s *Store) Validate(dataType string, record map[string]interface{}) types.ValidationResult {
	return Validate(dataType, record)
}

// read loads the document, falling back to DefaultDocument when the file
// does not exist. Callers hold the lock.
func (s *Store) read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debug("test data document missing, using defaults", "path", s.path)
		return DefaultDocument(), nil
	}
	if err != nil {
		return nil, errors.StorageFailed("read", s.path, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, errors.StorageFailed("parse", s.path, err)
	}
	return doc, nil
}

func (s *Store) write(doc *Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return errors.StorageFailed("encode", s.path, err)
	}
	if err := filelock.WriteFile(s.path, data, 0o644); err != nil {
		return errors.StorageFailed("write", s.path, err)
	}
	return nil
}
