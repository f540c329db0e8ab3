// Package updater replaces the loopcast binary with the latest GitHub
// release, keeping a backup of the running version for rollback.
package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/version"
)

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/loopcast"

// Options configures an Updater.
type Options struct {
	Repository string // GitHub slug, DefaultRepository when empty
	Prerelease bool
	BackupDir  string // defaults to ~/.cache/loopcast/backup
}

// UpdateInfo describes the latest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// releaseSource is the part of *selfupdate.Updater in use.
type releaseSource interface {
	DetectLatest(ctx context.Context, repo selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Updater checks for and applies releases.
type Updater struct {
	repo    selfupdate.Repository
	source  releaseSource
	backups *backupManager
	current string
	exePath func() (string, error)
	logger  logging.Logger
}

// New creates an updater backed by GitHub releases.
func New(opts Options) (*Updater, error) {
	logger := logging.GetLogger("updater")
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	dir := opts.BackupDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "loopcast", "backup")
	}
	backups, err := newBackupManager(dir, logger)
	if err != nil {
		logger.Warn("Backups unavailable", "error", err)
	}

	return &Updater{
		repo:    selfupdate.ParseSlug(opts.Repository),
		source:  up,
		backups: backups,
		current: version.Version,
		exePath: selfupdate.ExecutablePath,
		logger:  logger,
	}, nil
}

// Check looks up the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (*UpdateInfo, error) {
	_, info, err := u.latest(ctx)
	return info, err
}

func (u *Updater) latest(ctx context.Context) (*selfupdate.Release, *UpdateInfo, error) {
	release, found, err := u.source.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return nil, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	info := &UpdateInfo{
		CurrentVersion: u.current,
		LatestVersion:  release.Version(),
		// dev builds are always considered outdated
		UpdateAvailable: version.IsDev(u.current) || release.GreaterThan(u.current),
	}
	if info.UpdateAvailable {
		info.ReleaseNotes = release.ReleaseNotes
		info.ReleaseURL = release.URL
		info.PublishedAt = release.PublishedAt
		info.AssetSize = release.AssetByteSize
	}
	return release, info, nil
}

// Apply backs up the running binary and replaces it with the latest
// release. The new binary takes effect on the next start.
func (u *Updater) Apply(ctx context.Context) (*UpdateInfo, error) {
	exe, err := u.exePath()
	if err != nil {
		return nil, newError(ErrCodeApplyFailed, "failed to locate executable", err)
	}
	if ok, reason := checkWritePermission(filepath.Dir(exe)); !ok {
		return nil, newError(ErrCodeNoPermission, reason, nil)
	}

	release, info, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running the latest version", nil)
	}

	if u.backups != nil {
		if err := u.backups.create(exe, u.current); err != nil {
			return nil, newError(ErrCodeBackupFailed, "failed to back up current binary", err)
		}
	}

	u.logger.Info("Applying update", "from", u.current, "to", info.LatestVersion)
	if err := u.source.UpdateTo(ctx, release, exe); err != nil {
		if u.backups != nil {
			if rbErr := u.backups.restore(); rbErr != nil {
				u.logger.Error("Automatic rollback failed", "error", rbErr)
			} else {
				u.logger.Info("Automatic rollback completed")
			}
		}
		return nil, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}
	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the binary saved by the last Apply.
func (u *Updater) Rollback() (string, error) {
	if u.backups == nil || !u.backups.available() {
		return "", newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backups.restore(); err != nil {
		return "", newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return u.backups.version(), nil
}

// BackupVersion returns the version of the saved backup, empty if none.
func (u *Updater) BackupVersion() string {
	if u.backups == nil {
		return ""
	}
	return u.backups.version()
}

func checkWritePermission(dir string) (bool, string) {
	tmp := filepath.Join(dir, ".loopcast.update.test")
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(tmp)
	return true, ""
}
