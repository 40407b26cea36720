package models

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// TempFile is an on-disk copy of a downloaded document. The file is removed
// by the first call to Release; later calls do nothing.
type TempFile struct {
	Path      string
	Size      int64
	SourceURL string

	once sync.Once
	err  error
}

func NewTempFile(path string, size int64, sourceURL string) *TempFile {
	return &TempFile{Path: path, Size: size, SourceURL: sourceURL}
}

func (f *TempFile) Release() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		err := os.Remove(f.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.err = err
		}
	})
	return f.err
}
