// Package output provides utilities for locating Context log output.
package output

import (
	"fmt"
	"path"
)

const (
	// Root is the default parallelrun log output root directory.
	Root = "/var/log/parallelrun"
	// FileMode is the default FileMode for log output resources.
	FileMode = 0644
)

// File returns the standard log file location for the Context uniquely
// identified by id.
func File(id fmt.Stringer) string {
	return path.Join(Root, fmt.Sprintf("%s.log", id.String()))
}
