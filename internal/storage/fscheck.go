package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// errFSUnknown is returned by detectors on platforms without statfs support.
var errFSUnknown = errors.New("filesystem type unknown")

var networkFilesystems = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

type fsDetector func(path string) (string, error)

// checkLocalFilesystem refuses state paths on network mounts, where SQLite's
// file locking (and therefore record dedup) is unreliable.
func checkLocalFilesystem(path string, detect fsDetector) error {
	probe, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detect(probe)
	if errors.Is(err, errFSUnknown) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}

	if networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))] {
		return fmt.Errorf("state.path %q is on network filesystem %q; SQLite needs a local disk for reliable locking", path, fsType)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}
