package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/smazurov/loopcast/internal/logging"
)

const (
	backupFilename     = "loopcast.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backupManager keeps one copy of the binary being replaced.
type backupManager struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger logging.Logger
}

func newBackupManager(dir string, logger logging.Logger) (*backupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, logger: logger}
	m.load()
	return m, nil
}

func (m *backupManager) load() {
	data, err := os.ReadFile(filepath.Join(m.dir, backupInfoFilename))
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(m.dir, backupFilename)); err != nil {
		m.logger.Warn("Backup file missing", "dir", m.dir)
		return
	}
	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
}

func (m *backupManager) create(execPath, ver string) error {
	if err := copyFile(execPath, filepath.Join(m.dir, backupFilename)); err != nil {
		return err
	}

	info := backupInfo{Version: ver, CreatedAt: time.Now(), ExecPath: execPath}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal backup info: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(m.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Backup created", "version", ver, "dir", m.dir)
	return nil
}

func (m *backupManager) restore() error {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()
	if info == nil {
		return errors.New("no backup available")
	}
	if err := copyFile(filepath.Join(m.dir, backupFilename), info.ExecPath); err != nil {
		return err
	}
	m.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (m *backupManager) available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info != nil
}

func (m *backupManager) version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.Version
}

// copyFile replaces to atomically, so a running executable is swapped
// rather than overwritten in place.
func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("open %s: %w", from, err)
	}
	defer src.Close()

	dst, err := renameio.NewPendingFile(to, renameio.WithPermissions(0o755))
	if err != nil {
		return fmt.Errorf("create %s: %w", to, err)
	}
	defer dst.Cleanup()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy to %s: %w", to, err)
	}
	if err := dst.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", to, err)
	}
	return nil
}
