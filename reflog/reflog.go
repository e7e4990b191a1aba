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

// Package reflog reads the reference logs that Git keeps under a
// repository's logs directory, one file per ref, recording every object
// ID transition a ref has gone through.
package reflog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gg-scm/git-plumbing/githash"
	"github.com/gg-scm/git-plumbing/object"
)

// An Entry is a single recorded transition of a ref from one object to
// another.
type Entry struct {
	Old     githash.SHA1
	New     githash.SHA1
	Who     object.User
	Time    time.Time
	Message string
}

// DecodeError is returned when a single reflog line cannot be parsed. It
// always wraps the underlying parse failure.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("parse reflog line %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrInvalidRefName is returned by OpenForward and OpenReverse when the
// supplied ref name fails githash.Ref's validity check.
var ErrInvalidRefName = errors.New("reflog: invalid ref name")

// logPath computes the path of the log file that records name's history
// under base (a repository's control directory, e.g. the ".git" directory).
func logPath(base string, name githash.Ref) (string, error) {
	if !name.IsValid() {
		return "", ErrInvalidRefName
	}
	return filepath.Join(base, "logs", filepath.FromSlash(string(name))), nil
}

// An Iterator yields reflog entries one at a time. Call Next until it
// returns false, then check Err to distinguish a clean end of iteration
// from a failure.
type Iterator interface {
	// Next advances to the next entry, returning false when iteration
	// has ended (whether due to exhaustion or an error).
	Next() bool
	// Entry returns the entry most recently made current by Next. Its
	// result is undefined before the first call to Next or after Next
	// has returned false.
	Entry() Entry
	// Err returns the first error encountered, if any.
	Err() error
}

// OpenForward opens the log file for name under base and returns an
// iterator that yields its entries in file order, oldest first. It
// returns a nil Iterator and a nil error if the log file does not exist.
// buf is cleared and then used to hold the file's entire contents; it
// must remain valid for the lifetime of the returned Iterator.
func OpenForward(base string, name githash.Ref, buf *[]byte) (Iterator, error) {
	path, err := logPath(base, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open reflog %s: %w", name, err)
	}
	defer f.Close()

	*buf = (*buf)[:0]
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("open reflog %s: %w", name, err)
	}
	*buf = append(*buf, data...)
	return &forwardIterator{data: *buf}, nil
}

type forwardIterator struct {
	data []byte
	pos  int
	cur  Entry
	err  error
	done bool
}

func (it *forwardIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if it.pos >= len(it.data) {
		it.done = true
		return false
	}
	rest := it.data[it.pos:]
	eol := bytes.IndexByte(rest, '\n')
	var line []byte
	if eol == -1 {
		line = rest
		it.pos = len(it.data)
	} else {
		line = rest[:eol]
		it.pos += eol + 1
	}
	entry, err := parseEntry(line)
	if err != nil {
		it.err = &DecodeError{Line: append([]byte(nil), line...), Err: err}
		it.done = true
		return false
	}
	it.cur = entry
	return true
}

func (it *forwardIterator) Entry() Entry { return it.cur }
func (it *forwardIterator) Err() error   { return it.err }

// OpenReverse opens the log file for name under base and returns an
// iterator that yields its entries from newest to oldest. It returns a
// nil Iterator and a nil error if the log file does not exist.
//
// buf is used as fixed-size scratch space into the file's tail; it must
// be large enough to hold the longest single line in the file, or that
// line will surface as a decode error. The returned Iterator owns the
// open file handle: exhausting it (Next returning false) closes the
// file automatically. A caller that abandons iteration early should
// type-assert for io.Closer and close it explicitly.
func OpenReverse(base string, name githash.Ref, buf []byte) (Iterator, error) {
	path, err := logPath(base, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open reflog %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open reflog %s: %w", name, err)
	}
	// A trailing newline terminates the last line; it is not itself an
	// empty final line, so it is dropped from the region to be parsed.
	size := info.Size()
	if size > 0 {
		var last [1]byte
		if _, err := f.ReadAt(last[:], size-1); err != nil {
			f.Close()
			return nil, fmt.Errorf("open reflog %s: %w", name, err)
		}
		if last[0] == '\n' {
			size--
		}
	}
	return &reverseIterator{
		f:          f,
		name:       name,
		buf:        buf,
		fileOffset: size,
	}, nil
}

type reverseIterator struct {
	f          *os.File
	name       githash.Ref
	buf        []byte
	fileOffset int64 // bytes [0, fileOffset) of the file not yet loaded
	start, end int   // pending data lives in buf[start:end]
	cur        Entry
	err        error
	done       bool
}

func (it *reverseIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for {
		if idx := bytes.LastIndexByte(it.buf[it.start:it.end], '\n'); idx >= 0 {
			lineStart := it.start + idx + 1
			line := it.buf[lineStart:it.end]
			entry, perr := parseEntry(line)
			it.end = it.start + idx
			if perr != nil {
				it.err = &DecodeError{Line: append([]byte(nil), line...), Err: perr}
				it.done = true
				it.f.Close()
				return false
			}
			it.cur = entry
			return true
		}
		if it.fileOffset == 0 {
			if it.end == it.start {
				it.done = true
				it.f.Close()
				return false
			}
			line := it.buf[it.start:it.end]
			entry, perr := parseEntry(line)
			it.start, it.end = 0, 0
			it.done = true
			it.f.Close()
			if perr != nil {
				it.err = &DecodeError{Line: append([]byte(nil), line...), Err: perr}
				return false
			}
			it.cur = entry
			return true
		}
		if it.start == 0 {
			if it.end == len(it.buf) {
				it.err = &DecodeError{
					Line: append([]byte(nil), it.buf[it.start:it.end]...),
					Err:  fmt.Errorf("line exceeds buffer size (%d bytes)", len(it.buf)),
				}
				it.done = true
				it.f.Close()
				return false
			}
			// Shift the unconsumed prefix to the end of buf to free
			// room at the front for an earlier chunk.
			pending := it.end - it.start
			copy(it.buf[len(it.buf)-pending:], it.buf[it.start:it.end])
			it.start = len(it.buf) - pending
			it.end = len(it.buf)
		}
		toRead := it.start
		if int64(toRead) > it.fileOffset {
			toRead = int(it.fileOffset)
		}
		newOffset := it.fileOffset - int64(toRead)
		destStart := it.start - toRead
		n, err := it.f.ReadAt(it.buf[destStart:it.start], newOffset)
		if err != nil && !errors.Is(err, io.EOF) {
			it.err = fmt.Errorf("read reflog %s: %w", it.name, err)
			it.done = true
			it.f.Close()
			return false
		}
		if n != toRead {
			it.err = fmt.Errorf("read reflog %s: %w", it.name, io.ErrUnexpectedEOF)
			it.done = true
			it.f.Close()
			return false
		}
		it.start = destStart
		it.fileOffset = newOffset
	}
}

func (it *reverseIterator) Entry() Entry { return it.cur }
func (it *reverseIterator) Err() error   { return it.err }

// Close releases the underlying file handle. It is a no-op if iteration
// already ran to completion or failure, both of which close the file as
// they happen.
func (it *reverseIterator) Close() error {
	if it.done {
		return nil
	}
	it.done = true
	return it.f.Close()
}

// parseEntry decodes a single reflog line of the form
// "<old-oid> <new-oid> <actor> <timestamp> <tz>\t<message>".
func parseEntry(line []byte) (Entry, error) {
	const hexLen = githash.SHA1Size * 2
	if len(line) < 2*hexLen+2 {
		return Entry{}, fmt.Errorf("line too short")
	}
	var oldHash, newHash githash.SHA1
	if err := oldHash.UnmarshalText(line[:hexLen]); err != nil {
		return Entry{}, err
	}
	if line[hexLen] != ' ' {
		return Entry{}, fmt.Errorf("missing separator after old object id")
	}
	if err := newHash.UnmarshalText(line[hexLen+1 : 2*hexLen+1]); err != nil {
		return Entry{}, err
	}
	if line[2*hexLen+1] != ' ' {
		return Entry{}, fmt.Errorf("missing separator after new object id")
	}
	rest := line[2*hexLen+2:]

	var whoPart, message []byte
	if tab := bytes.IndexByte(rest, '\t'); tab == -1 {
		whoPart = rest
	} else {
		whoPart = rest[:tab]
		message = rest[tab+1:]
	}

	who, when, err := parseWhoTime(whoPart)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Old:     oldHash,
		New:     newHash,
		Who:     who,
		Time:    when,
		Message: string(message),
	}, nil
}

// parseWhoTime parses "<actor> <timestamp> <tz>", scanning from the end of
// the field so that the actor (which may itself contain spaces) doesn't
// need to be delimited. Mirrors the landmark-scanning approach Git commit
// headers use for the same author/committer line shape.
func parseWhoTime(src []byte) (object.User, time.Time, error) {
	timestampEnd := bytes.LastIndexByte(src, ' ')
	if timestampEnd == -1 {
		return "", time.Time{}, fmt.Errorf("invalid actor/time format")
	}
	tzPart := src[timestampEnd+1:]
	userEnd := bytes.LastIndexByte(src[:timestampEnd], ' ')
	if userEnd == -1 {
		return "", time.Time{}, fmt.Errorf("invalid actor/time format")
	}
	timestampPart := src[userEnd+1 : timestampEnd]

	timestamp, err := strconv.ParseInt(string(timestampPart), 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	offset, err := parseTZOffset(tzPart)
	if err != nil {
		return "", time.Time{}, err
	}
	tz := time.FixedZone(string(tzPart), offset)
	return object.User(src[:userEnd]), time.Unix(timestamp, 0).In(tz), nil
}

func parseTZOffset(src []byte) (int, error) {
	if len(src) < 2 || len(src) > 5 {
		return 0, fmt.Errorf("parse UTC offset %q: wrong length", src)
	}
	var sign int
	switch src[0] {
	case '-':
		sign = -1
	case '+':
		sign = 1
	default:
		return 0, fmt.Errorf("parse UTC offset %q: must start with plus or minus sign", src)
	}
	digits := string(src[1:])
	for len(digits) < 4 {
		digits = "0" + digits
	}
	hours, err := strconv.Atoi(digits[:2])
	if err != nil {
		return 0, fmt.Errorf("parse UTC offset %q: %w", src, err)
	}
	minutes, err := strconv.Atoi(digits[2:])
	if err != nil {
		return 0, fmt.Errorf("parse UTC offset %q: %w", src, err)
	}
	return sign * (hours*3600 + minutes*60), nil
}
