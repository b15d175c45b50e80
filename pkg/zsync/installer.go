// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Install atomically moves workingPath into targetPath, backing up any
// pre-existing file under targetPath+".zs-old" first, and restores mtime
// when provided (spec §4.6).
func Install(logger *slog.Logger, workingPath, targetPath string, mtime int64, haveMtime bool) error {
	backupPath := targetPath + ".zs-old"

	if _, err := os.Stat(targetPath); err == nil {
		os.Remove(backupPath)
		if err := os.Link(targetPath, backupPath); err != nil {
			return &DriverError{
				Outcome:     OutcomeBackupFailed,
				ScratchPath: workingPath,
				Err:         fmt.Errorf("backing up %s to %s: %w", targetPath, backupPath, err),
			}
		}
	}

	if err := os.Rename(workingPath, targetPath); err != nil {
		return &DriverError{
			Outcome:     OutcomeMoveFailed,
			ScratchPath: workingPath,
			Err:         fmt.Errorf("renaming %s to %s: %w", workingPath, targetPath, err),
		}
	}

	if haveMtime {
		// os.Chtimes requires both atime and mtime; stdlib has no portable
		// atime accessor, so the current time stands in for "current atime"
		// and only mtime carries the control document's advisory value.
		mt := time.Unix(mtime, 0)
		if err := os.Chtimes(targetPath, time.Now(), mt); err != nil {
			logger.Warn("failed to restore mtime on installed file", "path", targetPath, "error", err)
		}
	}

	return nil
}
