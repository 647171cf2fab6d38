//go:build !windows

// Package fileutil writes owner-only files and directories. The data
// directory and the key/value fallback file carry encrypted account tokens,
// so everything mailpod puts on disk is created with modes that keep other
// users out. On Unix the helpers defer to os.*; on Windows, owner-only modes
// (perm & 0077 == 0) additionally set a DACL restricting access to the
// current user.
package fileutil

import "os"

// SecureWriteFile writes data to the named file, creating it if necessary.
// On Unix this is os.WriteFile; on Windows, owner-only modes get a
// restrictive DACL.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// SecureMkdirAll creates a directory path and all missing parents. On Unix
// this is os.MkdirAll; on Windows, owner-only modes get a restrictive DACL.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
