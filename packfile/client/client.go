// Copyright 2021 The gg Authors
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

/*
Package client provides a synchronous GET/POST client for the smart HTTP
transport used to talk to a Git server, backed by a single worker thread
that owns a blocking HTTP client. The caller streams a request body in
and a response out through bounded byte pipes rather than holding the
whole exchange in memory.
*/
package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gg-scm/git-plumbing/internal/giturl"
)

// BodyKind describes how a request body will be supplied to Post.
type BodyKind int

const (
	// NoBody means the request carries no body (used for Get).
	NoBody BodyKind = iota
	// BoundedFitsInMemory means the caller's upload pipe will be drained
	// fully into memory before the request is sent.
	BoundedFitsInMemory
	// Unbounded means the caller's upload pipe will be attached directly
	// as a streaming request body.
	Unbounded
)

// ErrorKind classifies the I/O error synthesized for a non-2xx response.
type ErrorKind int

const (
	// Other is any non-2xx status not covered by a more specific kind.
	Other ErrorKind = iota
	// PermissionDenied corresponds to an HTTP 401 response.
	PermissionDenied
	// ConnectionAborted corresponds to an HTTP 5xx response.
	ConnectionAborted
)

// StatusError is the error delivered through a Response's Headers pipe
// when the server answered with a non-2xx status.
type StatusError struct {
	Kind   ErrorKind
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s", e.Status)
}

// ErrConfigureRequest wraps an error returned by an Options.ConfigureRequest
// hook that rejected a prepared request.
var ErrConfigureRequest = errors.New("client: configure request")

// ErrInitHTTPClient is returned when a StreamingRemote's worker has
// exited and the remote had to be reinitialized before the caller's
// request could be sent.
var ErrInitHTTPClient = errors.New("client: init http client")

// IsSpurious reports whether err is the kind of transient failure worth
// retrying: a timeout, a failed connection attempt, or an HTTP 5xx
// response. Any other error is considered terminal.
func IsSpurious(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Kind == ConnectionAborted {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

func classifyStatus(resp *http.Response) *StatusError {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &StatusError{Kind: PermissionDenied, Status: resp.Status}
	case resp.StatusCode >= 500:
		return &StatusError{Kind: ConnectionAborted, Status: resp.Status}
	default:
		return &StatusError{Kind: Other, Status: resp.Status}
	}
}

// ParseURL parses a Git remote URL, including the alternative SCP syntax.
// See git-fetch(1) for details.
func ParseURL(urlstr string) (*url.URL, error) {
	return giturl.Parse(urlstr)
}

func resolveURL(baseURL, path string) (*url.URL, error) {
	base, err := giturl.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("resolve url: base: %w", err)
	}
	if path == "" {
		return base, nil
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("resolve url: %w", err)
	}
	return base.ResolveReference(ref), nil
}

// parseHeaderLines builds a header map from lines of the form
// "name:value". A line without a colon is a programmer error.
func parseHeaderLines(lines []string) (http.Header, error) {
	h := make(http.Header, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("header line %q missing colon", line)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}
