package codex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

// AtomicWrite replaces path with content via a fsynced sibling tmp file and
// a rename. A failure at any stage leaves the previous file intact.
func AtomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return apperrors.Wrap(apperrors.AtomicWriteError, "creating auth directory", err)
	}

	tmpPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json.tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return apperrors.Wrap(apperrors.AtomicWriteError, "creating temp file", err)
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.AtomicWriteError, "writing temp file", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.AtomicWriteError, "syncing temp file", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.AtomicWriteError, "closing temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.AtomicWriteError, "replacing auth file", err)
	}
	return nil
}

// CreateSnapshot copies the current auth file into snapshotsDir under a
// millisecond-timestamped name. Returns "" when the source does not exist.
func CreateSnapshot(authPath, snapshotsDir string) (string, error) {
	source, err := os.Open(authPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperrors.Wrap(apperrors.SnapshotMissing, "opening auth file for snapshot", err)
	}
	defer source.Close()

	if err := os.MkdirAll(snapshotsDir, 0700); err != nil {
		return "", apperrors.Wrap(apperrors.SnapshotMissing, "creating snapshots directory", err)
	}

	now := time.Now().UTC()
	name := fmt.Sprintf("snapshot-%s%03d.json", now.Format("20060102150405"), now.Nanosecond()/1e6)
	snapshotPath := filepath.Join(snapshotsDir, name)

	dest, err := os.OpenFile(snapshotPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", apperrors.Wrap(apperrors.SnapshotMissing, "creating snapshot file", err)
	}
	defer dest.Close()
	if _, err := io.Copy(dest, source); err != nil {
		os.Remove(snapshotPath)
		return "", apperrors.Wrap(apperrors.SnapshotMissing, "copying auth file to snapshot", err)
	}
	return snapshotPath, nil
}
