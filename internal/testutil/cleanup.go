// Package testutil holds small helpers shared by the examples.
package testutil

import "os"

// RemoveAll deletes a scratch directory and everything below it, ignoring
// errors, so it can be deferred right after os.MkdirTemp:
//
//	dir, err := os.MkdirTemp("", "flatfile-*")
//	...
//	defer testutil.RemoveAll(dir)
func RemoveAll(dir string) { _ = os.RemoveAll(dir) }
