// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

func programData() string {
	if d := os.Getenv("ProgramData"); d != "" {
		return d
	}
	return `C:\ProgramData`
}

// DefaultConfigFile is the JSON config read by every wmiq command.
func DefaultConfigFile() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(programData(), "wmiq", "config.json")
	default:
		return "/etc/wmiq/config.json"
	}
}

func DefaultLogFile() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(programData(), "wmiq", "wmiq.log")
	default:
		return ""
	}
}

func MkConfigDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return err
	}

	fi, err := os.Stat(dirPath)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("expected %q is a directory, but %v", dirPath, fi.Mode())
	}
	return nil
}
