// Package audit appends login/session events to a daily-rotated CSV file.
package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jonboulle/clockwork"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

const filePrefix = "audit-"

// ErrNoLog is returned when no audit file has been written yet.
var ErrNoLog = fmt.Errorf("audit log: %w", domain.ErrNotFound)

// CSVSink writes one row per event: status, timestamp, email, ip, user agent, device id, device name.
type CSVSink struct {
	mu     sync.Mutex
	dir    string
	maxAge time.Duration
	clock  clockwork.Clock
	rl     *rotatelogs.RotateLogs
}

func NewCSVSink(dir string, maxAge time.Duration, clock clockwork.Clock) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	s := &CSVSink{dir: dir, maxAge: maxAge, clock: clock}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) open() error {
	rl, err := rotatelogs.New(
		filepath.Join(s.dir, filePrefix+"%Y%m%d.csv"),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(s.maxAge),
		rotatelogs.WithClock(s.clock),
	)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	s.rl = rl
	return nil
}

// Record appends ev. A zero ev.At is stamped with the sink's clock.
func (s *CSVSink) Record(_ context.Context, ev domain.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := csv.NewWriter(s.rl)
	if err := w.Write([]string{
		ev.Status,
		ev.At.UTC().Format(time.RFC3339),
		ev.Email,
		ev.IP,
		ev.UserAgent,
		ev.DeviceID,
		ev.DeviceName,
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Open returns a reader over the current audit file and its base name.
func (s *CSVSink) Open() (io.ReadCloser, string, error) {
	s.mu.Lock()
	name := s.rl.CurrentFileName()
	s.mu.Unlock()
	if name == "" {
		return nil, "", ErrNoLog
	}
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNoLog
	}
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(name), nil
}

// Purge deletes every audit file and starts a fresh one. It reports the number removed.
func (s *CSVSink) Purge() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rl.Close(); err != nil {
		return 0, err
	}
	files, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.csv"))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return n, err
		}
		n++
	}
	return n, s.open()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rl.Close()
}
