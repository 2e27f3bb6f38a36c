// SPDX-License-Identifier: MPL-2.0

// Package server exposes discovery, assignment, and effective settings over
// a localhost HTTP service with bearer-token auth. Streaming discovery is
// served as server-sent events; the batch endpoint returns the same data in
// one response when a stream cannot be established.
package server
