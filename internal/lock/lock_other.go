//go:build !unix

package lock

import "os"

// Advisory locking is only implemented on unix; elsewhere the lock file
// still records the holder but does not exclude a second process.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
