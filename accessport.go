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
)

// usbOpenAccessPort prepares a memory access port once per session. The
// CoreSight blocks of application cores usually sit behind an APB-AP that
// is not AP 0.
func (h *StLink) usbOpenAccessPort(apsel uint16) error {

	/* nothing to do on old versions */
	if !h.version.flags.Get(flagHasApInit) {
		return nil
	}

	if apsel > debugAccessPortSelectionMaximum {
		return fmt.Errorf("access port %d exceeds maximum %d", apsel, debugAccessPortSelectionMaximum)
	}

	if h.openedAps.Get(int(apsel)) {
		return nil
	}

	if err := h.usbInitAccessPort(byte(apsel)); err != nil {
		return err
	}

	logger.Debugf("AP %d enabled", apsel)
	h.openedAps.Set(int(apsel), true)

	return nil
}

func (h *StLink) usbInitAccessPort(apNum byte) error {
	if !h.version.flags.Get(flagHasApInit) {
		return errors.New("could not find access port command")
	}

	logger.Debugf("init ap_num = %d", apNum)

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(debugApiV2InitAccessPort)
	ctx.cmdBuf.WriteByte(apNum)

	if err := h.usbTransferErrCheck(ctx, 2); err != nil {
		return fmt.Errorf("could not init access port %d on device: %v", apNum, err)
	}

	return nil
}

func (h *StLink) usbCloseAccessPort(apNum byte) error {
	if !h.version.flags.Get(flagHasApInit) {
		return nil
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(debugApiV2CloseAccessPortDbg)
	ctx.cmdBuf.WriteByte(apNum)

	// firmware before the close fix reports bogus status codes
	if !h.version.flags.Get(flagFixCloseAp) {
		return h.usbTransferNoErrCheck(ctx, 2)
	}

	return h.usbTransferErrCheck(ctx, 2)
}
