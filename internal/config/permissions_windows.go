//go:build windows

package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Broad ACL principals that let other accounts read the file.
var broadPrincipals = []string{
	"everyone",
	"authenticated users",
	"builtin\\users",
	"users",
}

// checkFilePermissions warns when the config file's ACL grants access to
// broad principals, since it usually carries database passwords. The check
// shells out to icacls; when that fails the warning is skipped.
func checkFilePermissions(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	out, err := exec.Command("icacls", path).Output()
	if err != nil {
		return ""
	}

	acl := strings.ToLower(string(out))
	for _, principal := range broadPrincipals {
		if !strings.Contains(acl, principal) {
			continue
		}
		return fmt.Sprintf(
			"WARNING: config file %s grants access to %q.\n"+
				"         It likely contains database passwords. Restrict it with:\n"+
				"         icacls \"%s\" /inheritance:r /grant:r \"%%USERNAME%%:F\"\n\n",
			path, principal, path,
		)
	}
	return ""
}
