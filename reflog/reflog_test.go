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

package reflog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gg-scm/git-plumbing/githash"
)

const sampleLog = "" +
	"0000000000000000000000000000000000000000 1111111111111111111111111111111111111111 Octo Cat <octo@example.com> 1609459200 +0000\tclone: from https://example.com/repo.git\n" +
	"1111111111111111111111111111111111111111 2222222222222222222222222222222222222222 Octo Cat <octo@example.com> 1609545600 -0500\tcommit: add README\n" +
	"2222222222222222222222222222222222222222 3333333333333333333333333333333333333333 Octo Cat <octo@example.com> 1609632000 +0000\tcommit: fix typo\n"

func writeLog(t *testing.T, dir string, name githash.Ref, content string) {
	t.Helper()
	path := filepath.Join(dir, "logs", filepath.FromSlash(string(name)))
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o666); err != nil {
		t.Fatal(err)
	}
}

func collectForward(t *testing.T, it Iterator) []Entry {
	t.Helper()
	var entries []Entry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return entries
}

func TestOpenForwardMissingFile(t *testing.T) {
	base := t.TempDir()
	var buf []byte
	it, err := OpenForward(base, githash.Ref("refs/heads/main"), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if it != nil {
		t.Fatal("expected a nil Iterator for a missing log file")
	}
}

func TestOpenReverseMissingFile(t *testing.T) {
	base := t.TempDir()
	it, err := OpenReverse(base, githash.Ref("refs/heads/main"), make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	if it != nil {
		t.Fatal("expected a nil Iterator for a missing log file")
	}
}

func TestOpenForwardInvalidRefName(t *testing.T) {
	base := t.TempDir()
	var buf []byte
	_, err := OpenForward(base, githash.Ref("not a valid ref"), &buf)
	if !errors.Is(err, ErrInvalidRefName) {
		t.Fatalf("err = %v; want ErrInvalidRefName", err)
	}
}

func TestForwardAndReverseAreExactReverses(t *testing.T) {
	base := t.TempDir()
	ref := githash.Ref("refs/heads/main")
	writeLog(t, base, ref, sampleLog)

	var buf []byte
	fwd, err := OpenForward(base, ref, &buf)
	if err != nil {
		t.Fatal(err)
	}
	forward := collectForward(t, fwd)
	if len(forward) != 3 {
		t.Fatalf("len(forward) = %d; want 3", len(forward))
	}

	rev, err := OpenReverse(base, ref, make([]byte, 256))
	if err != nil {
		t.Fatal(err)
	}
	var reverse []Entry
	for rev.Next() {
		reverse = append(reverse, rev.Entry())
	}
	if err := rev.Err(); err != nil {
		t.Fatalf("reverse iteration error: %v", err)
	}
	if len(reverse) != 3 {
		t.Fatalf("len(reverse) = %d; want 3", len(reverse))
	}

	for i := range forward {
		want := forward[i]
		got := reverse[len(reverse)-1-i]
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("entry %d mismatch (-forward +reverse):\n%s", i, diff)
		}
	}
	if forward[0].Message != "clone: from https://example.com/repo.git" {
		t.Errorf("forward[0].Message = %q", forward[0].Message)
	}
	if forward[2].Message != "commit: fix typo" {
		t.Errorf("forward[2].Message = %q", forward[2].Message)
	}
}

func TestReverseIterationSmallBufferErrorsOnLongLine(t *testing.T) {
	base := t.TempDir()
	ref := githash.Ref("refs/heads/main")
	writeLog(t, base, ref, sampleLog)

	rev, err := OpenReverse(base, ref, make([]byte, 8))
	if err != nil {
		t.Fatal(err)
	}
	for rev.Next() {
	}
	if rev.Err() == nil {
		t.Fatal("expected an error from a buffer too small to hold a single line")
	}
}

func TestReverseIterationToleratesMissingTrailingNewline(t *testing.T) {
	base := t.TempDir()
	ref := githash.Ref("refs/heads/main")
	noTrailingNewline := sampleLog[:len(sampleLog)-1]
	writeLog(t, base, ref, noTrailingNewline)

	rev, err := OpenReverse(base, ref, make([]byte, 256))
	if err != nil {
		t.Fatal(err)
	}
	var entries []Entry
	for rev.Next() {
		entries = append(entries, rev.Entry())
	}
	if err := rev.Err(); err != nil {
		t.Fatalf("reverse iteration error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d; want 3", len(entries))
	}
	if entries[0].Message != "commit: fix typo" {
		t.Errorf("entries[0].Message = %q; want the newest entry first", entries[0].Message)
	}
}

func TestEmptyLogFileYieldsNoEntries(t *testing.T) {
	base := t.TempDir()
	ref := githash.Ref("refs/heads/main")
	writeLog(t, base, ref, "")

	var buf []byte
	fwd, err := OpenForward(base, ref, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if fwd.Next() {
		t.Fatal("expected no entries from an empty log file")
	}
	if err := fwd.Err(); err != nil {
		t.Fatal(err)
	}

	rev, err := OpenReverse(base, ref, make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	if rev.Next() {
		t.Fatal("expected no entries from an empty log file")
	}
	if err := rev.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeErrorWrapsLine(t *testing.T) {
	base := t.TempDir()
	ref := githash.Ref("refs/heads/main")
	writeLog(t, base, ref, "not a valid reflog line\n")

	var buf []byte
	fwd, err := OpenForward(base, ref, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if fwd.Next() {
		t.Fatal("expected no entries from a malformed line")
	}
	var decodeErr *DecodeError
	if !errors.As(fwd.Err(), &decodeErr) {
		t.Fatalf("err = %v; want *DecodeError", fwd.Err())
	}
}
