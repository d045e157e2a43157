package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

// DirResolver picks the directory captures are written to.
type DirResolver struct {
	// Default is the platform location, used only when it already exists.
	Default string
	// Fallback is created when neither the override nor Default can be used.
	Fallback string

	logger zerolog.Logger
}

// NewDirResolver creates a resolver for the given platform default and
// fallback directories.
func NewDirResolver(def, fallback string, logger zerolog.Logger) DirResolver {
	return DirResolver{Default: def, Fallback: fallback, logger: logger}
}

// Resolve returns the override when it is set and can be created, otherwise
// Default when it exists, otherwise the created Fallback.
func (r DirResolver) Resolve(override string) (string, error) {
	if override != "" {
		err := os.MkdirAll(override, 0o755)
		if err == nil {
			return override, nil
		}
		r.logger.Warn().Err(err).Str("dir", override).Msg("Save directory override not usable, falling back")
	}

	if r.Default != "" && isDir(r.Default) {
		return r.Default, nil
	}

	if r.Fallback == "" {
		return "", fmt.Errorf("%w: no save directory available", ErrIOFailure)
	}
	if err := os.MkdirAll(r.Fallback, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrIOFailure, r.Fallback, err)
	}
	return r.Fallback, nil
}

// Peek reports the directory Resolve would pick without creating anything.
func (r DirResolver) Peek(override string) string {
	switch {
	case override != "":
		return override
	case r.Default != "" && isDir(r.Default):
		return r.Default
	}
	return r.Fallback
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// PlatformDefaultDir is the capture folder on the user's desktop on Windows
// and under Pictures elsewhere. It is only used if it already exists.
func PlatformDefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "Desktop", "test images pc logitech")
	}
	return filepath.Join(home, "Pictures", "snapcam")
}
