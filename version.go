// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"errors"
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

type stLinkVersion struct {
	stlink  int
	jtag    int
	jtagApi stLinkApiVersion
	flags   bitmap.Bitmap // indexed by the flagHas* constants
}

// versionInfo is the firmware version as reported by the probe.
type versionInfo struct {
	stlink byte
	jtag   byte
	swim   byte
	msd    byte
	bridge byte

	vid gousb.ID
	pid gousb.ID

	// STLINK-V3 reports 0.0 in the short response and needs a second command
	extended bool
}

func (v versionInfo) String() string {
	vStr := fmt.Sprintf("V%d", v.stlink)

	if v.jtag > 0 || v.msd != 0 {
		vStr += fmt.Sprintf("J%d", v.jtag)
	}

	if v.msd > 0 {
		vStr += fmt.Sprintf("M%d", v.msd)
	}

	if v.bridge > 0 {
		vStr += fmt.Sprintf("B%d", v.bridge)
	}

	return vStr
}

// decodeVersion splits the 6 byte GET_VERSION response.
func decodeVersion(data *Buffer) versionInfo {
	version := data.Uint16At(0, bigEndian)

	v := byte((version >> 12) & 0x0f)
	x := byte((version >> 6) & 0x3f)
	y := byte(version & 0x3f)

	info := versionInfo{
		stlink:   v,
		vid:      gousb.ID(data.Uint16At(2, littleEndian)),
		pid:      gousb.ID(data.Uint16At(4, littleEndian)),
		extended: v == 3 && x == 0 && y == 0,
	}

	switch info.pid {
	case stLinkV21Pid, stLinkV21NoMsdPid:
		if (x <= 22 && y == 7) || (x >= 25 && y >= 7 && y <= 12) {
			info.msd = x
			info.swim = y
		} else {
			info.jtag = x
			info.msd = y
		}

	default:
		info.jtag = x
		info.swim = y
	}

	return info
}

// decodeVersionV3 splits the 12 byte response of the STLINK-V3 extended
// version command.
func decodeVersionV3(data *Buffer) versionInfo {
	raw := data.Bytes()

	return versionInfo{
		stlink: raw[0],
		swim:   raw[1],
		jtag:   raw[2],
		msd:    raw[3],
		bridge: raw[4],
		vid:    gousb.ID(data.Uint16At(8, littleEndian)),
		pid:    gousb.ID(data.Uint16At(10, littleEndian)),
	}
}

// setFeatures derives the api version and the feature flags from the
// firmware version.
func (s *stLinkVersion) setFeatures(info versionInfo) {
	s.stlink = int(info.stlink)
	s.jtag = int(info.jtag)

	flags := bitmap.New(flagCount)

	switch s.stlink {
	case 1:
		/* ST-LINK/V1 from J11 switch to api-v2 (and support SWD) */
		if s.jtag >= 11 {
			s.jtagApi = jTagApiV2
		} else {
			s.jtagApi = jTagApiV1
		}
	case 2:
		/* all ST-LINK/V2 and ST-Link/V2.1 use api-v2 */
		s.jtagApi = jTagApiV2

		/* API for trace and target voltage from J13 */
		if s.jtag >= 13 {
			flags.Set(flagHasTrace, true)
		}

		/* preferred API to get last R/W status from J15 */
		if s.jtag >= 15 {
			flags.Set(flagHasGetLastRwStatus2, true)
		}

		/* API to set SWD frequency from J22 */
		if s.jtag >= 22 {
			flags.Set(flagHasSwdSetFreq, true)
		}

		/* API to set JTAG frequency from J24 */
		if s.jtag >= 24 {
			flags.Set(flagHasJtagSetFreq, true)
		}

		/* API required to init AP before any AP access from J28 */
		if s.jtag >= 28 {
			flags.Set(flagHasApInit, true)
		}

		/* API required to return proper error code on close AP from J29 */
		if s.jtag >= 29 {
			flags.Set(flagFixCloseAp, true)
		}

		/* Banked regs (DPv1 & DPv2) and memory access on any AP from J32 */
		if s.jtag >= 32 {
			flags.Set(flagHasDpBankSel, true)
			flags.Set(flagHasCsw, true)
		}
	case 3:
		/* all STLINK-V3 use api-v3 */
		s.jtagApi = jTagApiV3

		/* STLINK-V3 is a superset of ST-LINK/V2 */
		flags.Set(flagHasTrace, true)            // API for trace and for target voltage
		flags.Set(flagHasGetLastRwStatus2, true) // preferred API to get last R/W status
		flags.Set(flagHasApInit, true)           // API required to init AP before any AP access
		flags.Set(flagFixCloseAp, true)          // API required to return proper error code on close AP

		if s.jtag >= 2 {
			flags.Set(flagHasDpBankSel, true) // Banked regs (DPv1 & DPv2) support from V3J2
			flags.Set(flagHasCsw, true)       // memory access on any AP from V3J2
		}

	default:
		break
	}

	s.flags = flags
}

func (h *StLink) usbParseVersion() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdGetVersion)

	err := h.usbTransferNoErrCheck(ctx, 6)

	if err != nil {
		return err
	}

	if len(ctx.DataBytes()) < 6 {
		return errors.New("short version response")
	}

	info := decodeVersion(ctx.dataBuf)

	/* STLINK-V3 requires a specific command */
	if info.extended {
		ctxV3 := h.initTransfer(transferIncoming)

		ctxV3.cmdBuf.WriteByte(debugApiV3GetVersionEx)

		err := h.usbTransferNoErrCheck(ctxV3, 12)

		if err != nil {
			return err
		}

		if len(ctxV3.DataBytes()) < 12 {
			return errors.New("short v3 version response")
		}

		info = decodeVersionV3(ctxV3.dataBuf)
	}

	h.vid = info.vid
	h.pid = info.pid

	h.version.setFeatures(info)

	serialNo, _ := h.libUsbDevice.SerialNumber()

	logger.Debugf("parsed st-link version [%s] for [%s]", info, serialNo)

	return nil
}
