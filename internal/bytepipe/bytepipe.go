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

// Package bytepipe provides a bounded, in-memory byte pipe with an in-band
// terminal error slot. Unlike io.Pipe, a Writer records a terminal error
// (rather than just closing) that the Reader observes as the result of a
// Read once all previously written bytes have been drained.
package bytepipe

import (
	"io"
	"sync"
)

// A Pipe connects a Writer to a Reader. Use New to construct a connected
// pair; the zero value is not usable.
type pipe struct {
	chunks    chan []byte
	errc      chan error
	closed    chan struct{}
	abandoned chan struct{}

	closeOnce   sync.Once
	abandonOnce sync.Once
}

// New returns the two ends of a fresh pipe. The pipe holds at most one
// unread chunk: a Write returns immediately if that slot is free, and
// blocks only once it is occupied by a chunk no Read has drained yet. A
// Read blocks until a chunk is available or the writer closes the pipe.
// The one-chunk slack lets a writer deliver a single small chunk (such as
// a block of response headers) and close without a reader ever having to
// show up.
//
// If the reader abandons the pipe (Reader.Close) while a Write is
// blocked waiting for room, that Write unblocks and fails rather than
// hanging forever: this is how a caller cancels a mid-stream transfer
// without the writing side ever finding out except through this signal.
func New() (*Writer, *Reader) {
	p := &pipe{
		chunks:    make(chan []byte, 1),
		errc:      make(chan error, 1),
		closed:    make(chan struct{}),
		abandoned: make(chan struct{}),
	}
	return &Writer{p: p}, &Reader{p: p}
}

// Writer is the write half of a Pipe.
type Writer struct {
	p *pipe
}

// Write sends p's bytes to the reader as one chunk. It returns as soon as
// the pipe's one-chunk slot can take it, blocking only while an earlier
// chunk is still waiting to be read. It returns io.ErrClosedPipe if the
// pipe was already closed, or if the reader abandoned the pipe
// (Reader.Close) before or while the write was blocked.
func (w *Writer) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case <-w.p.closed:
		return 0, io.ErrClosedPipe
	case <-w.p.abandoned:
		return 0, io.ErrClosedPipe
	default:
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case w.p.chunks <- buf:
		return len(p), nil
	case <-w.p.closed:
		return 0, io.ErrClosedPipe
	case <-w.p.abandoned:
		return 0, io.ErrClosedPipe
	}
}

// CloseWithError terminates the pipe, delivering err (or io.EOF if err is
// nil) to the reader once all previously written bytes have been drained.
// Only the first call has any effect.
func (w *Writer) CloseWithError(err error) error {
	if err == nil {
		err = io.EOF
	}
	w.p.closeOnce.Do(func() {
		w.p.errc <- err
		close(w.p.closed)
	})
	return nil
}

// Close is equivalent to CloseWithError(nil).
func (w *Writer) Close() error {
	return w.CloseWithError(nil)
}

// Reader is the read half of a Pipe.
type Reader struct {
	p       *pipe
	pending []byte
	err     error
}

// Close abandons the pipe from the reader's side: any Write blocked on
// delivering a chunk, or any future Write, fails immediately with
// io.ErrClosedPipe instead of blocking. This is how a caller signals
// mid-stream cancellation to a writer it no longer intends to drain.
// Only the first call has any effect.
func (r *Reader) Close() error {
	r.p.abandonOnce.Do(func() {
		close(r.p.abandoned)
	})
	return nil
}

// Read implements io.Reader. Once the writer closes the pipe, Read
// returns the error passed to CloseWithError (io.EOF if none was given),
// after any bytes written before the close have been delivered.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		// A chunk buffered before the close must be delivered before the
		// terminal error, even though both cases may be ready at once:
		// check chunks first, non-blocking, so select below never races
		// a pending chunk against the close signal.
		select {
		case chunk := <-r.p.chunks:
			r.pending = chunk
			continue
		default:
		}
		select {
		case chunk := <-r.p.chunks:
			r.pending = chunk
		case <-r.p.closed:
			select {
			case chunk := <-r.p.chunks:
				r.pending = chunk
			default:
				r.err = <-r.p.errc
			}
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
