// Package backup snapshots the submission journal to plain files and loads
// them back.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AvaProtocol/ap-userop/pkg/logger"
	"github.com/AvaProtocol/ap-userop/storage"
)

const backupFileName = "journal.backup"

type Service struct {
	logger    logger.Logger
	db        storage.Storage
	backupDir string
	now       func() time.Time
	// onBackup, when set, sees every file written by Run.
	onBackup  func(file string)
}

func NewService(l logger.Logger, db storage.Storage, backupDir string) *Service {
	return &Service{
		logger:    logger.EnsureLogger(l),
		db:        db,
		backupDir: backupDir,
		now:       time.Now,
	}
}

// Run takes a backup right away and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("backup interval must be positive, got %s", interval)
	}
	file, err := s.PerformBackup(ctx)
	if err != nil {
		return err
	}
	s.notify(file)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("Started periodic journal backup", "interval", interval, "dir", s.backupDir)

	for {
		select {
		case <-ticker.C:
			file, err := s.PerformBackup(ctx)
			if err != nil {
				s.logger.Error("Periodic backup failed", "err", err)
				continue
			}
			s.notify(file)
		case <-ctx.Done():
			s.logger.Info("Stopped periodic journal backup")
			return nil
		}
	}
}

func (s *Service) notify(file string) {
	if s.onBackup != nil {
		s.onBackup(file)
	}
}

// PerformBackup writes a full backup to <dir>/<yy-mm-dd-hh-mm-ss>/journal.backup.
func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	backupPath := filepath.Join(s.backupDir, s.now().Format("06-01-02-15-04-05"))
	if err := os.MkdirAll(backupPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupFile := filepath.Join(backupPath, backupFileName)
	f, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	if _, err := s.db.Backup(ctx, f, 0); err != nil {
		return "", fmt.Errorf("backup of %s failed: %w", s.db.DbPath(), err)
	}
	if err := f.Sync(); err != nil {
		return "", err
	}

	s.logger.Info("Journal backup completed", "file", backupFile)
	return backupFile, nil
}

// Restore loads a file written by PerformBackup. Existing keys are
// overwritten by the backup.
func (s *Service) Restore(ctx context.Context, backupFile string) error {
	f, err := os.Open(backupFile)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	if err := s.db.Load(ctx, f); err != nil {
		return fmt.Errorf("restore from %s failed: %w", backupFile, err)
	}
	s.logger.Info("Journal restored", "file", backupFile)
	return nil
}
