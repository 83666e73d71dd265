// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"fmt"
	"math"
)

// wordAccessor is the part of StLink the bus needs.
type wordAccessor interface {
	ReadWord(ap uint16, addr uint32) (uint32, error)
	WriteWord(ap uint16, addr uint32, value uint32) error
	usbGetReadWriteStatus() error
}

// StLinkBus reaches the debug and trace blocks of the target through a
// memory access port of an ST-Link probe. Every access is a complete probe
// transaction, so stores are observed in program order and relaxed stores
// are issued like ordered ones.
//
// A failed transfer does not stop the sequence in progress: reads return
// 0xFFFFFFFF like an unpowered block would, and the first error is kept for
// Err.
type StLinkBus struct {
	link wordAccessor
	ap   uint16
	err  error
}

func NewStLinkBus(link *StLink, ap uint16) *StLinkBus {
	return &StLinkBus{link: link, ap: ap}
}

func (b *StLinkBus) fail(op string, addr uint64, err error) {
	logger.Debugf("%s at 0x%x failed: %v", op, addr, err)

	if b.err == nil {
		b.err = fmt.Errorf("%s at 0x%x: %v", op, addr, err)
	}
}

func (b *StLinkBus) address(op string, addr uint64) (uint32, bool) {
	if addr > math.MaxUint32 {
		b.fail(op, addr, fmt.Errorf("address beyond the 32 bit range of the access port"))
		return 0, false
	}

	return uint32(addr), true
}

func (b *StLinkBus) Read32(addr uint64) uint32 {
	target, ok := b.address("read", addr)
	if !ok {
		return math.MaxUint32
	}

	value, err := b.link.ReadWord(b.ap, target)
	if err != nil {
		b.fail("read", addr, err)
		return math.MaxUint32
	}

	return value
}

func (b *StLinkBus) Write32(addr uint64, value uint32) {
	target, ok := b.address("write", addr)
	if !ok {
		return
	}

	if err := b.link.WriteWord(b.ap, target, value); err != nil {
		b.fail("write", addr, err)
	}
}

func (b *StLinkBus) WriteRelaxed32(addr uint64, value uint32) {
	b.Write32(addr, value)
}

// Barrier waits until the probe reports the last access as completed on
// the target.
func (b *StLinkBus) Barrier(kind BarrierKind) {
	if err := b.link.usbGetReadWriteStatus(); err != nil {
		b.fail(kind.String(), 0, err)
	}
}

// Err returns the first transfer error seen by the bus.
func (b *StLinkBus) Err() error {
	return b.err
}

// ClearErr forgets a recorded transfer error, e.g. after the probe has
// reconnected.
func (b *StLinkBus) ClearErr() {
	b.err = nil
}
