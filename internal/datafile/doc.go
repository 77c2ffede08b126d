// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package datafile reads and writes the data half of a history pack:
// an append-only series of per-file revision sections behind a one
// byte format version.
//
// A data file looks like:
//
//	┌─────────────────────┐
//	│ version (1 byte)    │
//	├─────────────────────┤
//	│ file section        │
//	│ file section        │
//	│ ...                 │
//	└─────────────────────┘
//
// Each file section holds every revision recorded for one file path,
// newest first (children always precede their parents):
//
//	 0    1    2    3    4    5    6    7
//	+----+----+----+----+----+----+----+----+
//	|nlen| filename...                      |
//	+----+----+----+----+----+----+----+----+
//	| revision count    | revisions...      |
//	+----+----+----+----+----+----+----+----+
//
// And each revision is a fixed 82-byte record followed by an optional
// copy source path:
//
//	+---------+---------+---------+---------+------+-----------+
//	| node 20 | p1 20   | p2 20   | link 20 |cflen | copyfrom..|
//	+---------+---------+---------+---------+------+-----------+
//
// All integers are big-endian.  The newest-first ordering is
// load-bearing: ancestor queries are answered with a single forward
// scan that grows a wanted-set as it encounters parents.
package datafile
