package engine

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

// DefaultBinary is the engine executable name searched for in PATH.
const DefaultBinary = "unity-bridge-engine"

// Config holds configuration for engine discovery.
type Config struct {
	// EnginePath is an explicit path that skips the PATH search.
	EnginePath string

	// Binary overrides DefaultBinary for the PATH search.
	Binary string

	// Logger is an optional logger for discovery operations.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Discoverer locates the engine binary.
type Discoverer interface {
	// Discover returns the path to the engine binary or an error.
	Discover(ctx context.Context) (string, error)
}

type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new engine discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the engine binary.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.log.Debug("Discovering engine binary")

	path, err := d.find()
	if err != nil {
		d.log.Error("Failed to find engine", "error", err)

		return "", err
	}

	d.log.Debug("Found engine binary", "engine_path", path)

	return path, nil
}

func (d *discoverer) find() (string, error) {
	// An explicit path is used and only it.
	if d.cfg.EnginePath != "" {
		if _, err := os.Stat(d.cfg.EnginePath); err == nil {
			return d.cfg.EnginePath, nil
		}

		d.log.Debug("Explicit engine path not found", "engine_path", d.cfg.EnginePath)

		return "", &errors.EngineNotFoundError{SearchedPaths: []string{d.cfg.EnginePath}}
	}

	binary := d.cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	searchedPaths := make([]string, 0, 4)

	if path, err := exec.LookPath(binary); err == nil {
		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	commonPaths := []string{
		filepath.Join("/usr/local/bin", binary),
		filepath.Join("/usr/bin", binary),
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(homeDir, ".local/bin", binary))
	}

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)

		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	d.log.Warn("Engine not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.EngineNotFoundError{SearchedPaths: searchedPaths}
}
