// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gocoresight

import (
	"bytes"
	"fmt"
)

func (h *StLink) writeMemHeader(ctx *transferCtx, cmd byte, ap uint16, addr uint32, len uint16) error {
	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(cmd)

	ctx.cmdBuf.WriteUint32LE(addr)
	ctx.cmdBuf.WriteUint16LE(len)

	// any AP other than 0 needs banked DP registers besides the AP byte
	if ap != 0 && !(h.version.flags.Get(flagHasCsw) && h.version.flags.Get(flagHasDpBankSel)) {
		return newUsbError(fmt.Sprintf("firmware cannot access memory through AP %d", ap), usbErrorCommandNotFound)
	}

	if h.version.flags.Get(flagHasCsw) {
		ctx.cmdBuf.WriteByte(byte(ap))
	}

	return nil
}

// Read ((len/4) * 4) bytes from Target's memory behind access port ap, addr must be 32bit aligned
func (h *StLink) UsbReadMem32(ap uint16, addr uint32, len uint16, buffer *bytes.Buffer) error {

	/* data must be a multiple of 4 and word aligned */
	if ((len % 4) > 0) || ((addr % 4) > 0) {
		return newUsbError("ReadMem32 Invalid data alignment", usbErrorTargetUnalignedAccess)
	}

	if err := h.usbOpenAccessPort(ap); err != nil {
		return err
	}

	ctx := h.initTransfer(transferIncoming)

	if err := h.writeMemHeader(ctx, debugReadMem32Bit, ap, addr, len); err != nil {
		return err
	}

	err := h.usbTransferNoErrCheck(ctx, uint32(len))

	if err != nil {
		return newUsbError(fmt.Sprintf("ReadMem32 transfer error occurred: %v", err), usbErrorFail)
	}

	buffer.Write(ctx.DataBytes())

	return h.usbGetReadWriteStatus()
}

// Write ((len/4) * 4) bytes to Target's memory behind access port ap, addr must be 32bit aligned
func (h *StLink) UsbWriteMem32(ap uint16, addr uint32, len uint16, buffer []byte) error {
	writeLen := uint32(len)

	/* data must be a multiple of 4 and word aligned */
	if ((len % 4) > 0) || ((addr % 4) > 0) {
		return newUsbError("WriteMem32 Invalid data alignment", usbErrorTargetUnalignedAccess)
	}

	if err := h.usbOpenAccessPort(ap); err != nil {
		return err
	}

	ctx := h.initTransfer(transferOutgoing)

	if err := h.writeMemHeader(ctx, debugWriteMem32Bit, ap, addr, len); err != nil {
		return err
	}

	ctx.dataBuf.Write(buffer[:len])

	err := h.usbTransferNoErrCheck(ctx, writeLen)

	if err != nil {
		return err
	}

	return h.usbGetReadWriteStatus()
}

// ReadWord reads a single 32 bit register.
func (h *StLink) ReadWord(ap uint16, addr uint32) (uint32, error) {
	buffer := NewBuffer(4)

	if err := h.UsbReadMem32(ap, addr, 4, &buffer.Buffer); err != nil {
		return 0, err
	}

	if buffer.Len() < 4 {
		return 0, newUsbError(fmt.Sprintf("short read at 0x%08x", addr), usbErrorFail)
	}

	return buffer.Uint32At(0, littleEndian), nil
}

// WriteWord writes a single 32 bit register.
func (h *StLink) WriteWord(ap uint16, addr uint32, value uint32) error {
	buffer := NewBuffer(4)
	buffer.WriteUint32LE(value)

	return h.UsbWriteMem32(ap, addr, 4, buffer.Bytes())
}
