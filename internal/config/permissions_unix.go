//go:build unix

package config

import (
	"fmt"
	"os"
)

// checkFilePermissions warns when the config file is accessible to other
// users, since it usually carries database passwords.
func checkFilePermissions(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	mode := info.Mode().Perm()
	if mode&0077 == 0 {
		return ""
	}

	return fmt.Sprintf(
		"WARNING: config file %s is readable by other users (mode %04o).\n"+
			"         It likely contains database passwords. Tighten it with: chmod 600 %s\n\n",
		path, mode, path,
	)
}
