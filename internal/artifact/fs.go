package artifact

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// replaceDir copies src next to dst, removes dst and renames the copy into
// place. The rename keeps the window where dst is missing to a single
// syscall even when src lives on another filesystem.
func replaceDir(src, dst string) (err error) {
	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}

	sibling := filepath.Join(parent, "."+filepath.Base(dst)+"-"+uuid.NewString())
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.RemoveAll(sibling))
		}
	}()

	if err := copyTree(src, sibling); err != nil {
		return fmt.Errorf("copy model: %w", err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove previous model: %w", err)
	}
	if err := os.Rename(sibling, dst); err != nil {
		return fmt.Errorf("move model into place: %w", err)
	}
	return nil
}

// copyPath copies a file or a whole directory tree.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyTree(src, dst)
	}
	return copyFile(src, dst)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("%s: not a regular file", path)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, in.Close())
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}
