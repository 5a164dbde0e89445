// Package vfs translates virtual FTP paths into jailed filesystem operations.
//
// Every session owns one Gateway rooted at the configured directory. Paths
// from the wire are interpreted relative to the session's virtual working
// directory, canonicalized, and executed through an os.Root handle so that
// neither dot-dot traversal nor symlink resolution can reach outside the
// root. The gateway performs no caching and holds no cross-session locks;
// concurrent writers to the same file get whatever the underlying filesystem
// gives them.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscapesRoot is returned when a path would resolve outside the
	// configured root, whether via dot-dot segments or a symlink.
	ErrPathEscapesRoot = errors.New("vfs: path escapes root")

	// ErrReadOnly is returned for write operations on a read-only gateway.
	ErrReadOnly = errors.New("vfs: filesystem is read-only")

	// ErrNotDirectory is returned when a directory operation targets a file.
	ErrNotDirectory = errors.New("vfs: not a directory")
)

// Gateway provides jailed filesystem access for a single session.
//
// The virtual working directory always names a directory inside the root;
// it is updated only after the destination has been verified to exist.
// Gateway methods are not safe for concurrent use; the owning session
// serializes commands, and transfers receive their file handle before the
// next command is processed.
type Gateway struct {
	root     *os.Root
	rootPath string
	cwd      string
	readOnly bool
}

// NewGateway opens a gateway rooted at rootPath.
//
// The root must exist and be a directory; it is canonicalized (symlinks
// resolved) once at open time so later containment checks compare against
// the real location.
func NewGateway(rootPath string, readOnly bool) (*Gateway, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}

	rootPath, err = filepath.EvalSymlinks(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	root, err := os.OpenRoot(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open root: %w", err)
	}

	return &Gateway{
		root:     root,
		rootPath: rootPath,
		cwd:      "/",
		readOnly: readOnly,
	}, nil
}

// Close releases the root directory handle.
func (g *Gateway) Close() error {
	return g.root.Close()
}

// RootPath returns the canonicalized real path of the root directory.
func (g *Gateway) RootPath() string {
	return g.rootPath
}

// ReadOnly reports whether write operations are rejected.
func (g *Gateway) ReadOnly() bool {
	return g.readOnly
}

// WorkingDir returns the current virtual directory, always absolute and
// rooted at "/".
func (g *Gateway) WorkingDir() string {
	return g.cwd
}

// resolve maps a wire path to a path relative to the root handle.
//
// Absolute wire paths are taken from the virtual root; relative ones from the
// current virtual directory. The cleaned result must stay at or below "/";
// anything else escapes the jail.
func (g *Gateway) resolve(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(g.cwd, p)
	}
	p = path.Clean(p)

	// Clean never leaves ".." in an absolute path, so any residue means the
	// input was malformed rather than merely deep.
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "/..") {
		return "", ErrPathEscapesRoot
	}

	rel := strings.TrimPrefix(p, "/")
	if rel == "" {
		rel = "."
	}
	return rel, nil
}

// virtual returns the cleaned absolute virtual path for a wire path.
func (g *Gateway) virtual(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(g.cwd, p)
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// classify maps os.Root containment failures onto ErrPathEscapesRoot and
// passes all other errors through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	// os.Root reports symlink breakouts as "path escapes from parent".
	if strings.Contains(err.Error(), "escapes from parent") {
		return ErrPathEscapesRoot
	}
	return err
}

// ChangeDir moves the virtual working directory.
// The destination must exist and be a directory inside the root.
func (g *Gateway) ChangeDir(p string) error {
	rel, err := g.resolve(p)
	if err != nil {
		return err
	}

	info, err := g.root.Stat(rel)
	if err != nil {
		return classify(err)
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	g.cwd = g.virtual(p)
	return nil
}

// Stat returns file information for a virtual path.
func (g *Gateway) Stat(p string) (os.FileInfo, error) {
	rel, err := g.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := g.root.Stat(rel)
	return info, classify(err)
}

// OpenRead opens a file for a download transfer.
func (g *Gateway) OpenRead(p string) (io.ReadCloser, error) {
	rel, err := g.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := g.root.OpenFile(rel, os.O_RDONLY, 0)
	if err != nil {
		return nil, classify(err)
	}
	return f, nil
}

// OpenWrite opens (creating or truncating) a file for an upload transfer.
func (g *Gateway) OpenWrite(p string) (io.WriteCloser, error) {
	return g.openWrite(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

// OpenAppend opens a file for appending.
func (g *Gateway) OpenAppend(p string) (io.WriteCloser, error) {
	return g.openWrite(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
}

func (g *Gateway) openWrite(p string, flags int) (io.WriteCloser, error) {
	if g.readOnly {
		return nil, ErrReadOnly
	}
	rel, err := g.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := g.root.OpenFile(rel, flags, 0644)
	if err != nil {
		return nil, classify(err)
	}
	return f, nil
}

// Delete removes a file.
func (g *Gateway) Delete(p string) error {
	if g.readOnly {
		return ErrReadOnly
	}
	rel, err := g.resolve(p)
	if err != nil {
		return err
	}
	return classify(g.root.Remove(rel))
}

// MakeDir creates a directory with 0755 permissions.
func (g *Gateway) MakeDir(p string) error {
	if g.readOnly {
		return ErrReadOnly
	}
	rel, err := g.resolve(p)
	if err != nil {
		return err
	}
	return classify(g.root.Mkdir(rel, 0755))
}

// RemoveDir removes an empty directory.
func (g *Gateway) RemoveDir(p string) error {
	if g.readOnly {
		return ErrReadOnly
	}
	rel, err := g.resolve(p)
	if err != nil {
		return err
	}
	return classify(g.root.Remove(rel))
}

// Rename moves or renames a file or directory.
// Both endpoints must resolve inside the root.
func (g *Gateway) Rename(fromPath, toPath string) error {
	if g.readOnly {
		return ErrReadOnly
	}
	srcRel, err := g.resolve(fromPath)
	if err != nil {
		return err
	}
	dstRel, err := g.resolve(toPath)
	if err != nil {
		return err
	}
	return classify(g.root.Rename(srcRel, dstRel))
}
