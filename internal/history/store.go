package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/kubedos/ctwizard/internal/logger"
)

// Run is one journal row.
type Run struct {
	ID          string `gorm:"primaryKey;size:36"`
	Operation   string `gorm:"size:16;index"`
	Argv        string // JSON array
	CapturePath string
	State       string `gorm:"size:16;index"`
	Reason      string `gorm:"size:16"`
	ExitCode    int
	Lines       uint64
	Bytes       uint64
	Forced      bool
	Error       string
	StartedAt   time.Time `gorm:"index"`
	FinishedAt  time.Time
}

func (Run) TableName() string { return "runs" }

// Args decodes Argv.
func (r Run) Args() []string {
	var out []string
	_ = json.Unmarshal([]byte(r.Argv), &out)
	return out
}

func EncodeArgv(argv []string) string {
	b, _ := json.Marshal(argv)
	return string(b)
}

type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open opens (and migrates) the sqlite journal at dsn.
func Open(dsn string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newGormLogger(l)})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history handle: %w", err)
	}
	// sqlite: one writer, and :memory: is per connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Run{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, log: l}, nil
}

func (s *Store) Record(ctx context.Context, r *Run) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	var out []Run
	err := s.db.WithContext(ctx).Order("started_at desc").Limit(n).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var r Run
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
