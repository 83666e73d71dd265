// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"fmt"
)

// Block names an IP block the platform is asked to locate.
type Block int

const (
	BlockDebug Block = 0 // external debug units
	BlockCTI   Block = 1 // cross trigger interfaces
	BlockETM   Block = 2 // trace units
	BlockETB   Block = 3 // local trace buffers
)

func (b Block) String() string {
	switch b {
	case BlockDebug:
		return "debug"
	case BlockCTI:
		return "cti"
	case BlockETM:
		return "etm"
	case BlockETB:
		return "etb"
	default:
		return fmt.Sprintf("block(%d)", int(b))
	}
}

// Discovery resolves a block to its per cluster base addresses. A table
// whose second entry is zero describes a single cluster platform and is not
// an error; an error means the block could not be located at all.
type Discovery interface {
	Resolve(block Block) (BaseTable, error)
}

// StaticDiscovery serves base addresses known up front, typically parsed
// from the command line or a board description.
type StaticDiscovery map[Block]BaseTable

func (s StaticDiscovery) Resolve(block Block) (BaseTable, error) {
	table, ok := s[block]

	if !ok || !table.populated() {
		return BaseTable{}, newDebugError(ErrorNotResolved, "no base address for %s block", block)
	}

	return table, nil
}
