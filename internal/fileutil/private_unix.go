//go:build !windows

// Package fileutil keeps credential-bearing files private to the current
// user. On Unix this is plain mode bits. On Windows a protected DACL
// granting access only to the current user is applied as well.
package fileutil

import "os"

// PrivateDir creates dir and any missing parents with mode 0700.
func PrivateDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// RestrictFile sets path to mode 0600. A missing file is not an error.
func RestrictFile(path string) error {
	err := os.Chmod(path, 0600)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
