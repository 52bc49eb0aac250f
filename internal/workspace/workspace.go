// Package workspace manages the sandbox working directory: the single
// directory commands execute in and uploaded/downloaded files live in.
// The directory is an explicit configuration value passed in, never
// process-wide mutable state, so concurrent executions stay isolated.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultRoot is the conventional in-container working directory.
const DefaultRoot = "/app"

// Workspace is the sandbox working directory.
type Workspace struct {
	Root string
}

// New creates a Workspace rooted at the given path. It resolves ~ to the
// user's home directory and creates the root if it does not exist.
func New(root string) (*Workspace, error) {
	if root == "" {
		root = DefaultRoot
	}
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %q: %w", root, err)
	}
	if err := os.MkdirAll(resolved, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	return &Workspace{Root: resolved}, nil
}

// SaveUpload writes an uploaded file into the workspace root and returns
// its absolute path. The name is sanitized — uploads can never escape the
// workspace.
func (w *Workspace) SaveUpload(name string, r io.Reader) (string, error) {
	path := filepath.Join(w.Root, sanitizeName(name))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return "", fmt.Errorf("creating upload %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("writing upload %s: %w", path, err)
	}
	return path, nil
}

// Resolve maps a caller-supplied relative file path to an absolute path
// inside the workspace, rejecting anything that would escape the root.
func (w *Workspace) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file path")
	}
	path := filepath.Clean(filepath.Join(w.Root, name))

	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", name, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", name)
	}
	return path, nil
}

// Sweep removes workspace entries whose modification time is older than
// maxAge. Returns the number of entries removed. Used by the janitor to
// keep long-lived sandboxes from accumulating stale files.
func (w *Workspace) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return 0, fmt.Errorf("reading workspace: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.Root, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// sanitizeName replaces path separator characters to prevent directory traversal.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "_"
	}
	return name
}
