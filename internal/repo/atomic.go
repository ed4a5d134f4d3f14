package repo

import (
	"os"
	"path/filepath"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
)

// renameFile is replaced in tests to simulate a crash before the rename.
var renameFile = os.Rename

// writeFileAtomic writes data to a temp file next to path and renames it
// over path. Until the rename succeeds the old content stays in place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return apperr.StorageIO("write", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return apperr.StorageIO("write", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return apperr.StorageIO("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return apperr.StorageIO("write", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.StorageIO("write", err)
	}
	if err := renameFile(tmpName, path); err != nil {
		return apperr.StorageIO("rename", err)
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return apperr.StorageIO("sync", err)
	}
	defer f.Close()
	// на некоторых ФС fsync каталога не поддерживается, это не повод ронять запись
	_ = f.Sync()
	return nil
}
