package watch

import (
	"os"
	"path/filepath"
	"time"
)

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func walkDirs(root string, fn func(dir string)) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort: skip paths we can't stat
		}
		if info.IsDir() {
			fn(path)
		}
		return nil
	})
}

func walkFiles(root string, fn func(path string)) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			fn(path)
		}
		return nil
	})
}

// waitUntilStable polls a file's size until it holds steady across two
// consecutive polls (the copy into the drop directory finished). Returns
// false if the file disappears first.
func waitUntilStable(path string, interval time.Duration) bool {
	lastSize, stable := int64(-1), 0
	for stable < 2 {
		time.Sleep(interval)
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		size := info.Size()
		if size == lastSize && size > 0 {
			stable++
		} else {
			stable = 0
		}
		lastSize = size
	}
	return true
}
