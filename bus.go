// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

type BarrierKind int

const (
	BarrierData        BarrierKind = 0 // all earlier accesses complete (dsb)
	BarrierInstruction BarrierKind = 1 // later accesses observe earlier state (isb)
)

func (k BarrierKind) String() string {
	switch k {
	case BarrierData:
		return "dsb"
	case BarrierInstruction:
		return "isb"
	default:
		return "unknown barrier"
	}
}

// Bus gives access to the memory mapped registers of the target SoC.
//
// Accesses cannot fail at this layer: a block that ignores writes shows up
// later as a poll that never completes. Transport backed implementations
// remember their first transport error and expose it separately.
type Bus interface {
	// Read32 is an ordered 32 bit load.
	Read32(addr uint64) uint32

	// Write32 is an ordered 32 bit store, observed by the target before any
	// later access issued through the same bus.
	Write32(addr uint64, value uint32)

	// WriteRelaxed32 stays ordered against other accesses to the same
	// block but carries no ordering against anything else. Used for bulk
	// register write back where nothing outside the block depends on it.
	WriteRelaxed32(addr uint64, value uint32)

	Barrier(kind BarrierKind)
}
