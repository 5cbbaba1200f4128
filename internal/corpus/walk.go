package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DefaultMaxFileSize is the largest file the walker accepts (16 MB).
const DefaultMaxFileSize int64 = 16 << 20

// File is one corpus file found by Walk.
type File struct {
	Path        string // Absolute path on disk.
	RelPath     string // Slash-separated path relative to the root.
	Size        int64
	ContentHash string // SHA-256 hex digest of the content.
}

// WalkConfig controls Walk.
type WalkConfig struct {
	Root        string
	Include     []string // Glob patterns; empty means DefaultInclude.
	Exclude     []string
	MaxFileSize int64 // 0 means DefaultMaxFileSize.
}

// Walk returns the corpus files under cfg.Root in lexical path order.
// Binary and oversized files are skipped.
func Walk(cfg WalkConfig) ([]File, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("corpus: resolve root: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}

	include := cfg.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if !MatchesInclude(relPath, include) || MatchesExclude(relPath, cfg.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			return nil
		}
		files = append(files, File{
			Path:        path,
			RelPath:     filepath.ToSlash(relPath),
			Size:        info.Size(),
			ContentHash: hash,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: traversal: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// isBinary reports whether the first 512 bytes contain a NUL byte.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
