package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapcam/internal/models"
)

var (
	// ErrIOFailure covers save directory and file write problems.
	ErrIOFailure = errors.New("io failure")
	// ErrConflict is returned when the target file already exists, which
	// happens when the same name is captured twice within one second.
	ErrConflict = errors.New("capture already exists")
)

// Snapshotter supplies fresh frames.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*models.Frame, error)
}

// EventPublisher receives an event for every saved capture.
type EventPublisher interface {
	PublishCapture(evt models.CaptureEvent) error
}

// Service saves snapshots to disk.
type Service struct {
	cam     Snapshotter
	dirs    DirResolver
	windows bool
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.RWMutex
	override string
	events   EventPublisher
}

// NewService creates a capture service. windows selects the Windows-safe
// filename format.
func NewService(cam Snapshotter, dirs DirResolver, windows bool, logger zerolog.Logger) *Service {
	return &Service{
		cam:     cam,
		dirs:    dirs,
		windows: windows,
		now:     time.Now,
		logger:  logger,
	}
}

// SetEventPublisher attaches an optional publisher for capture events.
func (s *Service) SetEventPublisher(p EventPublisher) {
	s.mu.Lock()
	s.events = p
	s.mu.Unlock()
}

// SetSaveDirOverride stores the user chosen directory. It is validated on the
// next capture.
func (s *Service) SetSaveDirOverride(dir string) {
	s.mu.Lock()
	s.override = dir
	s.mu.Unlock()
}

func (s *Service) SaveDirOverride() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.override
}

// SaveDir reports where the next capture would most likely go.
func (s *Service) SaveDir() string {
	return s.dirs.Peek(s.SaveDirOverride())
}

// Capture takes a fresh snapshot and writes it as a new file. Camera errors
// are returned unchanged; disk errors wrap ErrIOFailure or ErrConflict.
func (s *Service) Capture(ctx context.Context, base string) (*models.SavedImage, error) {
	frame, err := s.cam.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := s.dirs.Resolve(s.SaveDirOverride())
	if err != nil {
		return nil, err
	}

	now := s.now()
	name := FormatFilename(base, now, s.windows)
	path := filepath.Join(dir, name)

	if err := writeExclusive(path, frame.Data); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to save capture")
		return nil, err
	}

	saved := &models.SavedImage{
		Path:      path,
		Filename:  name,
		Seq:       frame.Seq,
		Bytes:     len(frame.Data),
		Device:    frame.Device,
		Timestamp: now,
	}
	s.logger.Info().
		Str("path", path).
		Uint64("seq", frame.Seq).
		Int("bytes", saved.Bytes).
		Msg("Capture saved")

	s.publish(saved)
	return saved, nil
}

func (s *Service) publish(saved *models.SavedImage) {
	s.mu.RLock()
	events := s.events
	s.mu.RUnlock()
	if events == nil {
		return
	}

	evt := models.CaptureEvent{
		ID:        uuid.NewString(),
		Path:      saved.Path,
		Filename:  saved.Filename,
		Seq:       saved.Seq,
		Device:    saved.Device,
		Bytes:     saved.Bytes,
		Timestamp: saved.Timestamp,
	}
	if err := events.PublishCapture(evt); err != nil {
		s.logger.Warn().Err(err).Str("path", saved.Path).Msg("Failed to publish capture event")
	}
}

// writeExclusive creates path and fails if it already exists. A partial file
// is removed on error.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrConflict, filepath.Base(path))
		}
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: write %s: %v", ErrIOFailure, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: close %s: %v", ErrIOFailure, path, err)
	}
	return nil
}
