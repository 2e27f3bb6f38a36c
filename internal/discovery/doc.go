// SPDX-License-Identifier: MPL-2.0

// Package discovery walks scope roots and catalogs the resources they hold.
//
// One scan pass reads filesystem truth into fresh resource items; nothing
// mutates an item after its scanner produced it. Malformed files become
// partial records flagged with a parse error, and traversal problems become
// diagnostics, so a scan never aborts on a single bad file or unreadable
// directory.
package discovery
