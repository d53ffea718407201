package io

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// FileExists checks to see if a file exists at the given path.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err == nil:
		return true, nil
	default:
		return false, fmt.Errorf("failed to check for existence of file at path '%s': %w", filePath, err)
	}
}

// WriteJSON writes value as indented JSON to path. The file is written to a temporary
// file in the same directory first and renamed into place, so readers never see a
// partially written file.
func WriteJSON(path string, value any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for '%s': %w", path, err)
	}
	tmpPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(value)
	closeErr := tmp.Close()

	if err := errors.Join(encodeErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to write '%s': %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to move '%s' into place: %w", path, err)
	}

	return nil
}

// UniquePath returns dir/name+ext, or the first of dir/name-2+ext, dir/name-3+ext, ...
// that does not already exist.
func UniquePath(dir string, name string, ext string) (string, error) {
	candidate := filepath.Join(dir, name+ext)
	for suffix := 2; ; suffix++ {
		exists, err := FileExists(candidate)
		if err != nil {
			return "", err
		}

		if !exists {
			return candidate, nil
		}

		candidate = filepath.Join(dir, name+"-"+strconv.Itoa(suffix)+ext)
	}
}
