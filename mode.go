// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gocoresight

import (
	"errors"
)

func usbModeToString(mode byte) string {
	switch mode {
	case deviceModeDFU:
		return "dfu"
	case deviceModeMass:
		return "mass storage"
	case deviceModeDebug:
		return "debug"
	case deviceModeSwim:
		return "swim"
	case deviceModeBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

func (h *StLink) usbModeEnter(stMode StLinkMode) error {
	ctx := h.initTransfer(transferIncoming)

	switch stMode {
	case StLinkModeDebugJtag:
		ctx.cmdBuf.WriteByte(cmdDebug)
		ctx.cmdBuf.WriteByte(debugApiV2Enter)
		ctx.cmdBuf.WriteByte(debugEnterJTagNoReset)

	case StLinkModeDebugSwd:
		ctx.cmdBuf.WriteByte(cmdDebug)
		ctx.cmdBuf.WriteByte(debugApiV2Enter)
		ctx.cmdBuf.WriteByte(debugEnterSwdNoReset)

	default:
		return errors.New("only jtag and swd debug modes can be entered")
	}

	return h.usbCmdAllowRetry(ctx, 2)
}

func (h *StLink) usbCurrentMode() (byte, error) {

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdGetCurrentMode)

	err := h.usbTransferNoErrCheck(ctx, 2)

	if err != nil {
		return 0, err
	} else if len(ctx.DataBytes()) == 0 {
		return 0, errors.New("empty mode response")
	} else {
		return ctx.DataBytes()[0], nil
	}
}

func (h *StLink) usbInitMode(connectUnderReset bool, initialInterfaceSpeed uint32) error {

	mode, err := h.usbCurrentMode()

	if err != nil {
		logger.Error("could not get usb mode")
		return err
	}

	logger.Tracef("device usb mode before switching: %s (0x%02x)", usbModeToString(mode), mode)

	var stLinkMode StLinkMode

	switch mode {
	case deviceModeDFU:
		stLinkMode = StLinkModeDfu

	case deviceModeDebug:
		stLinkMode = StLinkModeDebugSwd

	case deviceModeSwim:
		stLinkMode = StLinkModeDebugSwim

	case deviceModeMass:
		stLinkMode = StLinkModeMass

	default:
		stLinkMode = StLinkModeUnknown
	}

	if stLinkMode != StLinkModeUnknown {
		if err = h.usbLeaveMode(stLinkMode); err != nil {
			logger.Warn("error occured while trying to leave mode: ", err)
		}
	}

	mode, err = h.usbCurrentMode()

	if err != nil {
		logger.Error("could not get usb mode")
		return err
	}

	logger.Tracef("device usb mode after mode exit: %s (0x%02x)", usbModeToString(mode), mode)

	/* we check the target voltage here as an aid to debugging connection problems.
	 * the stlink requires the target Vdd to be connected for reliable debugging.
	 */
	if mode != deviceModeDFU {
		voltage, err := h.GetTargetVoltage()

		if err != nil {
			logger.Error(err)
			// attempt to continue as it is not a catastrophic failure
		} else if voltage < 1.5 {
			logger.Warn("target voltage may be too low for reliable debugging")
		}
	}

	if _, err := h.SetSpeed(initialInterfaceSpeed, false); err != nil {
		logger.Warn("keeping default interface speed: ", err)
	}

	if connectUnderReset {
		logger.Trace("assert RST line 1")

		// do not check the return status here, the reset is asserted again
		// after the mode has been entered
		h.usbAssertSrst(0)
	}

	logger.Tracef("entering usb mode %d", h.stMode)

	if err = h.usbModeEnter(h.stMode); err != nil {
		return err
	}

	if connectUnderReset {
		logger.Trace("assert RST line 2")

		if err = h.usbAssertSrst(0); err != nil {
			return err
		}
	}

	mode, err = h.usbCurrentMode()

	if err != nil {
		return err
	}

	logger.Tracef("device usb mode after mode enter: %s (0x%02x)", usbModeToString(mode), mode)

	return nil
}

func (h *StLink) usbLeaveMode(mode StLinkMode) error {
	ctx := h.initTransfer(transferIncoming)

	switch mode {
	case StLinkModeDebugJtag, StLinkModeDebugSwd:
		ctx.cmdBuf.WriteByte(cmdDebug)
		ctx.cmdBuf.WriteByte(debugExit)

	case StLinkModeDebugSwim:
		ctx.cmdBuf.WriteByte(cmdSwim)
		ctx.cmdBuf.WriteByte(swimExit)

	case StLinkModeDfu:
		ctx.cmdBuf.WriteByte(cmdDfu)
		ctx.cmdBuf.WriteByte(dfuExit)

	case StLinkModeMass:
		return errors.New("cannot leave mass storage mode")
	default:
		return errors.New("unknown stlink mode")
	}

	return h.usbTransferNoErrCheck(ctx, 0)
}
