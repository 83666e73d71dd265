// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gocoresight

import (
	"errors"
	"fmt"
	"time"
)

type transferDirection uint8

const (
	transferIncoming transferDirection = 0
	transferOutgoing transferDirection = 1
)

type transferCtx struct {
	direction transferDirection
	cmdBuf    *Buffer
	dataBuf   *Buffer
}

func (ctx *transferCtx) DataBytes() []byte {
	return ctx.dataBuf.Bytes()
}

func (h *StLink) initTransfer(direction transferDirection) *transferCtx {
	return &transferCtx{
		direction: direction,
		cmdBuf:    NewBuffer(cmdSizeV2),
		dataBuf:   NewBuffer(dataBufferSize),
	}
}

func (h *StLink) usbTransferNoErrCheck(ctx *transferCtx, size uint32) error {
	if ctx.cmdBuf.Len() > cmdSizeV2 {
		return newUsbError(fmt.Sprintf("command of %d bytes exceeds %d", ctx.cmdBuf.Len(), cmdSizeV2), usbErrorFail)
	}

	cmd := make([]byte, cmdSizeV2)
	copy(cmd, ctx.cmdBuf.Bytes())

	if _, err := usbWrite(h.txEndpoint, cmd); err != nil {
		return err
	}

	if size == 0 {
		return nil
	}

	if ctx.direction == transferOutgoing {
		if uint32(ctx.dataBuf.Len()) < size {
			return newUsbError("outgoing transfer shorter than announced", usbErrorFail)
		}

		if _, err := usbWrite(h.txEndpoint, ctx.DataBytes()[:size]); err != nil {
			return err
		}
	} else {
		rx := make([]byte, size)

		bytesRead, err := usbRead(h.rxEndpoint, rx)
		if err != nil {
			return err
		}

		ctx.dataBuf.Reset()
		ctx.dataBuf.Write(rx[:bytesRead])
	}

	return nil
}

func (h *StLink) usbTransferErrCheck(ctx *transferCtx, size uint32) error {

	err := h.usbTransferNoErrCheck(ctx, size)

	if err != nil {
		return err
	}

	return h.usbErrorCheck(ctx)
}

/** Issue an STLINK command via USB transfer, with retries on any wait status responses.

  Works for commands where the STLINK_DEBUG status is returned in the first
  byte of the response packet.
*/
func (h *StLink) usbCmdAllowRetry(ctx *transferCtx, size uint32) error {
	var retries int = 0

	for {
		err := h.usbTransferNoErrCheck(ctx, size)
		if err != nil {
			return err
		}

		err = h.usbErrorCheck(ctx)

		if isUsbWait(err) && retries < maximumWaitRetries {
			var delayUs time.Duration = (1 << uint(retries)) * 1000

			retries++
			logger.Debugf("cmdAllowRetry ERROR_WAIT, retry %d, delaying %d microseconds", retries, delayUs)
			time.Sleep(delayUs * time.Microsecond)

			continue
		}

		return err
	}
}

func (h *StLink) usbAssertSrst(srst byte) error {

	if h.version.stlink == 1 {
		return errors.New("rsrt command not supported by st-link V1")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(debugApiV2DriveNrst)
	ctx.cmdBuf.WriteByte(srst)

	return h.usbCmdAllowRetry(ctx, 2)
}

// usbGetReadWriteStatus returns the outcome of the last memory access. A
// pending write has completed on the target once this returned.
func (h *StLink) usbGetReadWriteStatus() error {

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)

	if h.version.flags.Get(flagHasGetLastRwStatus2) {
		ctx.cmdBuf.WriteByte(debugApiV2GetLastRWStatus2)

		return h.usbTransferErrCheck(ctx, 12)
	} else {
		ctx.cmdBuf.WriteByte(debugApiV2GetLastRWStatus)

		return h.usbTransferErrCheck(ctx, 2)
	}
}
