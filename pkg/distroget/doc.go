// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package distroget downloads sets of large files, typically distro
// installation images, through a bounded worker pool.
//
// A Manager accepts URLs in submission order and drains them with a
// fixed number of workers. Files land in a local directory, or are
// staged and relayed over scp when the destination is "host:path".
// Transfers stream in chunks through a ".part" file, report cumulative
// progress, skip files that already exist, and retry transient
// failures with doubling delays. Callers observe everything through
// ProgressFunc events and point-in-time Status snapshots.
package distroget
