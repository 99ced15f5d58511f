// Package paths computes download destination directories.
package paths

import (
	"path/filepath"

	"arcadl/internal/model"
)

// Dir returns the destination directory for the given save mode. An empty
// base means the current working directory. The caller is responsible for
// creating the directory before any write.
func Dir(mode model.SaveMode, base, source, category string) string {
	if base == "" {
		base = "."
	}
	switch mode {
	case model.SavePerSource:
		return filepath.Join(base, source)
	case model.SavePerSourceCategory:
		return filepath.Join(base, source, category)
	default:
		return filepath.Clean(base)
	}
}
