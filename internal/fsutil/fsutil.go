// Copyright 2024 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//		 https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package fsutil provides the platform-dependent pieces of the checkout
// engine: filesystem capability probing and classification of an error as
// a path collision rather than a hard failure.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// Capabilities describes what the destination filesystem supports.
type Capabilities struct {
	// Symlink reports whether symlink(2)-style links can be created.
	Symlink bool
	// ExecutableBit reports whether the executable permission bit is
	// honored (and thus worth setting) on this filesystem.
	ExecutableBit bool
	// CaseSensitive reports whether two paths differing only by case
	// name distinct files.
	CaseSensitive bool
}

// ProbeCapabilities creates a few throwaway files under root to determine
// what the destination filesystem supports. Callers that already know
// their target's capabilities (the common case for a repository checked
// out once and reused) should build a Capabilities value directly instead.
func ProbeCapabilities(root string) (Capabilities, error) {
	var caps Capabilities

	exePath := filepath.Join(root, ".gg-probe-exec")
	if f, err := os.OpenFile(exePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o777); err == nil {
		f.Close()
		defer os.Remove(exePath)
		if fi, err := os.Stat(exePath); err == nil {
			caps.ExecutableBit = fi.Mode().Perm()&0o100 != 0
		}
	}

	linkPath := filepath.Join(root, ".gg-probe-link")
	if err := os.Symlink("target", linkPath); err == nil {
		caps.Symlink = true
		os.Remove(linkPath)
	}

	lowerPath := filepath.Join(root, ".gg-probe-case")
	upperPath := filepath.Join(root, ".GG-PROBE-CASE")
	if f, err := os.OpenFile(lowerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666); err == nil {
		f.Close()
		defer os.Remove(lowerPath)
		if _, err := os.Stat(upperPath); err == nil {
			caps.CaseSensitive = false
		} else {
			caps.CaseSensitive = true
		}
	}

	return caps, nil
}

// CollisionKind discriminates the reason a destination path could not be
// written because something already occupies it.
type CollisionKind int

const (
	// AlreadyExists means the destination path already existed and
	// exclusive-create semantics were requested.
	AlreadyExists CollisionKind = iota + 1
	// NotADirectory means a file blocked a path component that needed
	// to be a directory, which can happen on a case-insensitive
	// filesystem when two index entries collapse to the same path.
	NotADirectory
	// PermissionPath means the operating system reported a permission
	// error where a collision is the more likely explanation (Windows
	// only, per the underlying platform's behavior).
	PermissionPath
)

// notADirErrno is the raw errno value used by the reference Rust
// implementation (gitoxide's git-worktree) to detect a file blocking a
// directory path on POSIX systems. It is checked by value rather than by
// the syscall.ENOTDIR/unix.ENOTDIR symbol because the reference
// implementation matches the literal errno, not a named constant.
const notADirErrno = 21

// Classify reports whether err represents a path collision rather than a
// hard filesystem failure, per the platform rules: AlreadyExists always
// counts; on non-Windows, the raw errno used by gitoxide's checkout also
// counts (unix.ENOTDIR shares numbering with this errno family on the
// platforms golang.org/x/sys/unix supports); on Windows, PermissionDenied
// also counts because Windows reports access-denied for several
// collision-shaped failures that POSIX reports more precisely.
func Classify(err error) (CollisionKind, bool) {
	if errors.Is(err, fs.ErrExist) {
		return AlreadyExists, true
	}
	if runtime.GOOS == "windows" {
		if errors.Is(err, fs.ErrPermission) {
			return PermissionPath, true
		}
		return 0, false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == notADirErrno || errno == syscall.Errno(unix.ENOTDIR)) {
		return NotADirectory, true
	}
	return 0, false
}
