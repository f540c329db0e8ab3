package updater

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/creativeprojects/go-selfupdate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	found bool
	err   error
}

func (f *fakeSource) DetectLatest(context.Context, selfupdate.Repository) (*selfupdate.Release, bool, error) {
	return nil, f.found, f.err
}

func (f *fakeSource) UpdateTo(context.Context, *selfupdate.Release, string) error {
	return errors.New("not expected")
}

func TestBackupCreateAndRestore(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "loopcast")
	if err := os.WriteFile(exe, []byte("v1 binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := newBackupManager(filepath.Join(dir, "backup"), testLogger())
	if err != nil {
		t.Fatalf("newBackupManager: %v", err)
	}
	if m.available() {
		t.Fatal("fresh manager should have no backup")
	}
	if err := m.create(exe, "1.0.0"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := os.WriteFile(exe, []byte("v2 binary"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	data, _ := os.ReadFile(exe)
	if string(data) != "v1 binary" {
		t.Errorf("restored binary = %q", data)
	}

	// A new manager picks up the saved backup info.
	again, err := newBackupManager(filepath.Join(dir, "backup"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if again.version() != "1.0.0" {
		t.Errorf("reloaded backup version = %q, want 1.0.0", again.version())
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	m, err := newBackupManager(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	u := &Updater{backups: m, logger: testLogger()}

	_, err = u.Rollback()
	if !errors.Is(err, &Error{Code: ErrCodeNoBackup}) {
		t.Errorf("Rollback = %v, want NO_BACKUP", err)
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
		code   string
	}{
		{"lookup failure", &fakeSource{err: errors.New("rate limited")}, ErrCodeCheckFailed},
		{"no releases", &fakeSource{found: false}, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &Updater{source: tt.source, current: "1.0.0", logger: testLogger()}
			_, err := u.Check(context.Background())
			var uerr *Error
			if !errors.As(err, &uerr) || uerr.Code != tt.code {
				t.Errorf("Check = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestApplyNeedsWritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write anywhere")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	u := &Updater{
		source:  &fakeSource{},
		exePath: func() (string, error) { return filepath.Join(dir, "loopcast"), nil },
		logger:  testLogger(),
	}
	_, err := u.Apply(context.Background())
	if !errors.Is(err, &Error{Code: ErrCodeNoPermission}) {
		t.Errorf("Apply = %v, want NO_PERMISSION", err)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(ErrCodeApplyFailed, "failed to apply update", io.ErrUnexpectedEOF)
	if got := err.Error(); got != "APPLY_FAILED: failed to apply update: unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause should unwrap")
	}
}
