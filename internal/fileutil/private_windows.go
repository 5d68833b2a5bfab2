//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// restrict replaces the DACL on path with a single ACE for the current
// user and blocks inheritance from the parent. Directories pass the ACE on
// to their children.
func restrict(path string, isDir bool) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("current user SID: %w", err)
	}

	inherit := uint32(windows.NO_INHERITANCE)
	if isDir {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("build ACL: %w", err)
	}

	return windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION),
		nil, nil, acl, nil)
}

// PrivateDir creates dir and any missing parents, restricting each
// directory it creates to the current user. DACL failures are logged.
func PrivateDir(dir string) error {
	var created []string
	for p := filepath.Clean(dir); ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		}
		created = append(created, p)
		if filepath.Dir(p) == p {
			break
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	for _, p := range created {
		if err := restrict(p, true); err != nil {
			slog.Warn("restrict directory failed", "path", p, "error", err)
		}
	}
	return nil
}

// RestrictFile limits path to the current user. A missing file is not an
// error and DACL failures are logged.
func RestrictFile(path string) error {
	if err := os.Chmod(path, 0600); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := restrict(path, false); err != nil {
		slog.Warn("restrict file failed", "path", path, "error", err)
	}
	return nil
}
