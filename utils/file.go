// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package utils

import (
	"os"
	"path/filepath"
	"runtime"
)

// AtomicWriteFile replaces filename with data. Readers see either the old
// or the new content, never a partial file. The file is staged as a hidden
// temp file in the same directory, which must already exist; perm is not
// applied on windows.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return err
	}

	if err := stage(tmp, data, perm); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return syncDir(dir)
}

// stage writes data to f, flushes it to disk and closes it.
func stage(f *os.File, data []byte, perm os.FileMode) error {
	_, err := f.Write(data)
	if err == nil && runtime.GOOS != "windows" {
		err = f.Chmod(perm)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// syncDir persists the rename itself. Directories cannot be opened for
// syncing on windows, where the rename is already durable.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
