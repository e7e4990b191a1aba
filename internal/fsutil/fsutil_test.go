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

package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestClassifyAlreadyExists(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "taken.txt")
	if err := os.WriteFile(path, []byte("x"), 0o666); err != nil {
		t.Fatal(err)
	}
	_, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err == nil {
		t.Fatal("expected an error creating an already-existing file exclusively")
	}
	kind, ok := Classify(err)
	if !ok {
		t.Fatalf("Classify(%v) = _, false; want a classified collision", err)
	}
	if kind != AlreadyExists {
		t.Errorf("Classify(%v) kind = %v; want AlreadyExists", err, kind)
	}
}

// TestClassifyNotADirectory exercises the same failure a case-insensitive
// filesystem produces when two index entries collapse onto the same path
// (one entry's file sits where another entry expects a directory): here
// it's reproduced directly, by writing a plain file and then asking the
// OS to treat it as a directory component, which fails with the same
// errno on any POSIX filesystem regardless of case sensitivity.
func TestClassifyNotADirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("errno-based classification only applies on POSIX")
	}
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o666); err != nil {
		t.Fatal(err)
	}
	_, err := os.OpenFile(filepath.Join(blocker, "child"), os.O_WRONLY|os.O_CREATE, 0o666)
	if err == nil {
		t.Fatal("expected an error writing under a path component that is a file")
	}
	kind, ok := Classify(err)
	if !ok {
		t.Fatalf("Classify(%v) = _, false; want a classified collision", err)
	}
	if kind != NotADirectory {
		t.Errorf("Classify(%v) kind = %v; want NotADirectory", err, kind)
	}
}

func TestClassifyUnrelatedErrorIsNotCollision(t *testing.T) {
	root := t.TempDir()
	_, err := os.Open(filepath.Join(root, "does-not-exist"))
	if err == nil {
		t.Fatal("expected an error opening a missing file")
	}
	if _, ok := Classify(err); ok {
		t.Errorf("Classify(%v) = _, true; want false for a plain not-exist error", err)
	}
}
