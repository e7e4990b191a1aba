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

// Package checkout materializes index entries into a worktree: regular
// files, executable files, and symlinks, recording the filesystem's
// authoritative stat metadata back onto each entry once written.
package checkout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/gg-scm/git-plumbing/githash"
	"github.com/gg-scm/git-plumbing/internal/fsutil"
)

// Mode is an index entry's file mode, restricted to the values a checkout
// knows how to materialize.
type Mode uint32

// Modes recognized by Checkout. Directory and Commit (gitlink) entries
// are valid index modes but are not materialized by this package.
const (
	RegularFile    Mode = 0o100644
	ExecutableFile Mode = 0o100755
	Symlink        Mode = 0o120000
	Directory      Mode = 0o040000
	Commit         Mode = 0o160000
)

// Entry is one index entry to be checked out.
type Entry struct {
	// Path is the entry's path, encoded as it was stored in the index
	// (raw bytes, slash-separated, not yet validated as UTF-8).
	Path []byte
	// Mode is the entry's file mode.
	Mode Mode
	// OID is the blob's object ID. Meaningless for Directory and Commit.
	OID githash.SHA1
	// SkipWorktree mirrors the index's skip-worktree bit: if set, the
	// entry is left untouched.
	SkipWorktree bool
	// Stat is overwritten with freshly read metadata once the entry has
	// been materialized.
	Stat Stat
}

// Stat is the subset of filesystem metadata Checkout refreshes on each
// entry after writing it, expressed as (seconds, nanoseconds) pairs since
// the Unix epoch, with the seconds field truncated to 32 bits to match
// the index's on-disk representation.
type Stat struct {
	CTimeSec  int32
	CTimeNsec int32
	MTimeSec  int32
	MTimeNsec int32
}

// Index is the sequence of entries Checkout materializes, visited in the
// order Entries returns them.
type Index interface {
	Entries() []*Entry
}

// FindFunc looks up a blob by object ID, appending its content to buf (in
// the manner of append, reusing buf's capacity when possible) and
// reporting whether it was found. It is the checkout engine's one
// dependency on an external object database.
type FindFunc func(oid githash.SHA1, buf []byte) (data []byte, ok bool)

// Capabilities re-exports fsutil's filesystem capability probe result
// for callers that only import this package.
type Capabilities = fsutil.Capabilities

// Options configures a Checkout call.
type Options struct {
	// Capabilities describes what the destination filesystem supports.
	Capabilities Capabilities
	// DestinationIsInitiallyEmpty, when true, makes every write use
	// exclusive-create semantics (fail if the path already exists)
	// instead of create-or-truncate. Set this when checking out into a
	// worktree known to be empty, to catch unexpected collisions rather
	// than silently overwrite them.
	DestinationIsInitiallyEmpty bool
	// KeepGoing, when true, makes Checkout accumulate non-collision
	// errors into the returned Outcome instead of stopping at the first
	// one.
	KeepGoing bool
	// TrustCtime and CheckStat are not consulted by Checkout; they are
	// carried for callers that later compare the refreshed Stat values.
	TrustCtime bool
	CheckStat  bool
}

// CollisionKind re-exports fsutil's classification for callers that only
// import this package.
type CollisionKind = fsutil.CollisionKind

// Collision values, re-exported from fsutil for convenience.
const (
	AlreadyExists  = fsutil.AlreadyExists
	NotADirectory  = fsutil.NotADirectory
	PermissionPath = fsutil.PermissionPath
)

// Collision records a path whose write was skipped because something
// already occupied it.
type Collision struct {
	Path string
	Kind CollisionKind
}

// Outcome summarizes the result of a Checkout call that did not abort
// early.
type Outcome struct {
	// Collisions lists every path classified as a collision rather than
	// a hard failure.
	Collisions []Collision
	// Errors lists non-collision errors recorded because Options.KeepGoing
	// was set. Empty when KeepGoing is false, since in that case the
	// first such error aborts Checkout entirely.
	Errors []error
}

// ErrUnsupportedMode is returned for a Directory or Commit entry; submodule
// and tree checkout are out of scope for this package.
var ErrUnsupportedMode = errors.New("checkout: unsupported mode")

// IllFormedUTF8Error is returned when an entry's path cannot be decoded
// as UTF-8.
type IllFormedUTF8Error struct {
	Path []byte
}

func (e *IllFormedUTF8Error) Error() string {
	return fmt.Sprintf("checkout: path %q is not valid UTF-8", e.Path)
}

// ObjectNotFoundError is returned when FindFunc could not locate an
// entry's blob. Path is the checkout root, not the entry's destination
// path, matching how the reference implementation reports this error.
type ObjectNotFoundError struct {
	OID  githash.SHA1
	Path string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("checkout %s: object %v not found", e.Path, e.OID)
}

// Checkout materializes index's entries under root. find supplies blob
// content by object ID. See the package doc and Options for the precise
// per-entry behavior.
func Checkout(index Index, root string, find FindFunc, opts Options) (Outcome, error) {
	var out Outcome
	var blobBuf []byte
	for _, entry := range index.Entries() {
		if entry.SkipWorktree {
			continue
		}
		if err := checkoutEntry(entry, root, find, opts, &blobBuf, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func checkoutEntry(entry *Entry, root string, find FindFunc, opts Options, blobBuf *[]byte, out *Outcome) error {
	if !utf8.Valid(entry.Path) {
		return recordOrReturn(out, opts, &IllFormedUTF8Error{Path: append([]byte(nil), entry.Path...)})
	}
	relPath := filepath.FromSlash(string(entry.Path))
	dest := filepath.Join(root, relPath)

	switch entry.Mode {
	case RegularFile, ExecutableFile:
		return checkoutFile(entry, root, dest, find, opts, blobBuf, out)
	case Symlink:
		return checkoutSymlink(entry, root, dest, find, opts, blobBuf, out)
	default:
		return recordOrReturn(out, opts, fmt.Errorf("checkout %s: %w", relPath, ErrUnsupportedMode))
	}
}

func checkoutFile(entry *Entry, root, dest string, find FindFunc, opts Options, blobBuf *[]byte, out *Outcome) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return classifyOrReturn(dest, err, out, opts)
	}
	data, ok := find(entry.OID, (*blobBuf)[:0])
	if !ok {
		return recordOrReturn(out, opts, &ObjectNotFoundError{OID: entry.OID, Path: root})
	}
	*blobBuf = data

	perm := os.FileMode(0o666)
	if entry.Mode == ExecutableFile && opts.Capabilities.ExecutableBit {
		perm = 0o777
	}
	flag := os.O_WRONLY | os.O_CREATE
	if opts.DestinationIsInitiallyEmpty {
		flag |= os.O_EXCL
	} else {
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(dest, flag, perm)
	if err != nil {
		return classifyOrReturn(dest, err, out, opts)
	}
	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		return classifyOrReturn(dest, writeErr, out, opts)
	}
	if closeErr != nil {
		return classifyOrReturn(dest, closeErr, out, opts)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return classifyOrReturn(dest, err, out, opts)
	}
	entry.Stat = statFromFileInfo(fi)
	return nil
}

func checkoutSymlink(entry *Entry, root, dest string, find FindFunc, opts Options, blobBuf *[]byte, out *Outcome) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return classifyOrReturn(dest, err, out, opts)
	}
	data, ok := find(entry.OID, (*blobBuf)[:0])
	if !ok {
		return recordOrReturn(out, opts, &ObjectNotFoundError{OID: entry.OID, Path: root})
	}
	*blobBuf = data
	if !utf8.Valid(data) {
		return recordOrReturn(out, opts, &IllFormedUTF8Error{Path: append([]byte(nil), entry.Path...)})
	}

	if opts.Capabilities.Symlink {
		if err := os.Symlink(string(data), dest); err != nil {
			return classifyOrReturn(dest, err, out, opts)
		}
	} else {
		flag := os.O_WRONLY | os.O_CREATE
		if opts.DestinationIsInitiallyEmpty {
			flag |= os.O_EXCL
		} else {
			flag |= os.O_TRUNC
		}
		f, err := os.OpenFile(dest, flag, 0o666)
		if err != nil {
			return classifyOrReturn(dest, err, out, opts)
		}
		_, writeErr := f.Write(data)
		closeErr := f.Close()
		if writeErr != nil {
			return classifyOrReturn(dest, writeErr, out, opts)
		}
		if closeErr != nil {
			return classifyOrReturn(dest, closeErr, out, opts)
		}
	}

	fi, err := os.Lstat(dest)
	if err != nil {
		return classifyOrReturn(dest, err, out, opts)
	}
	entry.Stat = statFromFileInfo(fi)
	return nil
}

func classifyOrReturn(dest string, err error, out *Outcome, opts Options) error {
	if kind, ok := fsutil.Classify(err); ok {
		out.Collisions = append(out.Collisions, Collision{Path: dest, Kind: kind})
		return nil
	}
	return recordOrReturn(out, opts, fmt.Errorf("checkout %s: %w", dest, err))
}

func recordOrReturn(out *Outcome, opts Options, err error) error {
	if opts.KeepGoing {
		out.Errors = append(out.Errors, err)
		return nil
	}
	return err
}

func statFromFileInfo(fi os.FileInfo) Stat {
	mtime := fi.ModTime()
	// CTimeSec/CTimeNsec report true file creation time, not the
	// inode's change time: syscall.Stat_t's Ctim field on Linux is
	// change time, not birth time, and Linux has no birth-time field to
	// read at all. There is nothing correct to report here, so it is
	// left zero, matching the documented fallback for a platform that
	// can't supply creation time.
	return Stat{
		MTimeSec:  int32(mtime.Unix()),
		MTimeNsec: int32(mtime.Nanosecond()),
	}
}
