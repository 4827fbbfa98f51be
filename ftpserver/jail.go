package ftpserver

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// resolve maps a client-supplied path to an absolute host path confined to
// the session's home. A leading "/" means home-relative, anything else is
// relative to the current directory. The result is canonicalized (".",
// "..", symlinks where the filesystem supports them) and checked for
// containment; escaping the home yields ErrPermissionDenied.
//
// With requireExists the target itself must exist; without it only the
// parent directory must (MKD and STOR create a new leaf).
func (c *clientHandler) resolve(p string, requireExists bool) (string, error) {
	rel := strings.TrimPrefix(p, "/")
	if !strings.HasPrefix(p, "/") {
		rel = path.Join(strings.TrimPrefix(c.path, "/"), p)
	}

	host := filepath.Join(c.home, filepath.FromSlash(rel))

	canonical, err := canonicalize(c.server.fs, host)
	if err != nil {
		return "", newFileAccessError("could not canonicalize path", err)
	}

	if !contained(c.home, canonical) {
		return "", ErrPermissionDenied
	}

	if requireExists {
		if _, err := c.server.fs.Stat(canonical); err != nil {
			if os.IsNotExist(err) {
				return "", ErrNotFound
			}

			return "", newFileAccessError("could not stat path", err)
		}

		return canonical, nil
	}

	parent := filepath.Dir(canonical)

	info, err := c.server.fs.Stat(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}

		return "", newFileAccessError("could not stat parent", err)
	}

	if !info.IsDir() {
		return "", ErrNotFound
	}

	return canonical, nil
}

// ftpPath maps an absolute host path back to the "/"-rooted virtual path
// shown to the client. The host prefix never leaks into replies.
func (c *clientHandler) ftpPath(host string) string {
	if host == c.home {
		return "/"
	}

	return "/" + filepath.ToSlash(strings.TrimPrefix(host, c.home+string(os.PathSeparator)))
}

// contained reports whether p equals home or lives under it. The check is
// separator-aware so that "/srv/alicex" does not pass for home "/srv/alice".
func contained(home, p string) bool {
	return p == home || strings.HasPrefix(p, home+string(os.PathSeparator))
}

// canonicalize cleans a path lexically and, on a filesystem with symlink
// support, resolves symlinks on the deepest existing ancestor so a link
// pointing outside the jail cannot smuggle a path past the prefix check.
func canonicalize(fs afero.Fs, p string) (string, error) {
	p = filepath.Clean(p)

	if _, ok := fs.(afero.Symlinker); !ok {
		return p, nil
	}

	existing := p
	suffix := ""

	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}

		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not resolve %q: %w", existing, err)
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			// Hit the filesystem root without finding an existing ancestor
			return p, nil
		}

		suffix = filepath.Join(filepath.Base(existing), suffix)
		existing = parent
	}
}
