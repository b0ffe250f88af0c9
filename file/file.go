// Package file holds small filesystem helpers used by the CLI to read
// input payloads and persist captured output.
package file

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// PathExists reports whether path exists at all.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CreateFileDir ensures the parent directory of filePath exists.
func CreateFileDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}

// WriteFile writes content to filePath with the given mode, creating
// parent directories as needed.
func WriteFile(filePath string, content []byte, perm fs.FileMode) error {
	if err := CreateFileDir(filePath); err != nil {
		return err
	}
	if err := os.WriteFile(filePath, content, perm); err != nil {
		return errors.Wrapf(err, "failed to write file %s", filePath)
	}
	return nil
}

// ReadFile reads the whole file at filePath.
func ReadFile(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %s", filePath)
	}
	return content, nil
}
