package orchestrator

import (
	"io"
	"os"
)

// copyFileContents copies a single file (used for the WIM copy in stage 3
// and export destination staging); unlike otiai10/copy, which the Driver,
// Update, and Staging components use for directory trees, a single large
// WIM is copied with a plain streaming io.Copy to avoid reading it whole
// into memory.
func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func removeAll(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}
