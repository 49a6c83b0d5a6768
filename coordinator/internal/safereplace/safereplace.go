// Package safereplace implements SafeReplace: the only component allowed to
// write into the media tree. It swaps a transcoded candidate in for its
// original, crash-safely, never leaving the original unrecoverable.
package safereplace

import (
	"fmt"
	"os"
)

// ErrCandidateTooLarge is returned when the candidate doesn't clear the
// minimum-savings bar and the swap is rejected before touching the
// filesystem.
var ErrCandidateTooLarge = fmt.Errorf("safereplace: candidate does not meet minimum savings")

// Replace swaps candidatePath in for originalPath, keeping a path+".bak"
// backup unless keepBackup is false, in which case the backup is unlinked
// once the swap succeeds. It is crash-safe: at every point before step 2
// nothing has moved, and from step 2 onward either both renames complete
// or a best-effort rollback restores the original name.
//
// Steps (exactly as specified): reject an oversized candidate; rename
// original -> .bak; rename candidate -> original; optionally unlink .bak;
// roll back on any failure after the first rename.
func Replace(originalPath, candidatePath string, minSavingsPct float64, keepBackup bool) error {
	origInfo, err := os.Stat(originalPath)
	if err != nil {
		return fmt.Errorf("safereplace: failed to stat original: %w", err)
	}
	candInfo, err := os.Stat(candidatePath)
	if err != nil {
		return fmt.Errorf("safereplace: failed to stat candidate: %w", err)
	}

	maxAllowed := float64(origInfo.Size()) * (1 - minSavingsPct/100)
	if float64(candInfo.Size()) > maxAllowed {
		return ErrCandidateTooLarge
	}

	backupPath := originalPath + ".bak"

	// Step 2: original -> backup.
	if err := os.Rename(originalPath, backupPath); err != nil {
		return fmt.Errorf("safereplace: failed to back up original: %w", err)
	}

	// Step 3: candidate -> original.
	if err := os.Rename(candidatePath, originalPath); err != nil {
		// Step 5: roll back.
		if rbErr := os.Rename(backupPath, originalPath); rbErr != nil {
			return fmt.Errorf("safereplace: failed to place candidate (%v) and rollback failed (%w) — original is at %s", err, rbErr, backupPath)
		}
		return fmt.Errorf("safereplace: failed to place candidate, rolled back: %w", err)
	}

	// Step 4: drop the backup unless the caller wants it retained.
	if !keepBackup {
		if err := os.Remove(backupPath); err != nil {
			return fmt.Errorf("safereplace: swap succeeded but failed to remove backup: %w", err)
		}
	}

	return nil
}
