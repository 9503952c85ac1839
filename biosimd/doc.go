// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides table-driven nucleotide operations on ASCII byte
// arrays, used when barcode tails and adapter signatures are extracted from
// reads.
package biosimd
