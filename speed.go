// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"errors"
	"fmt"
	"math"
)

/* interface clock speed */
type speedMap struct {
	speed        uint32
	speedDivisor int
}

var swdKHzToSpeedMap = [...]speedMap{
	{4000, 0},
	{1800, 1}, /* default */
	{1200, 2},
	{950, 3},
	{480, 7},
	{240, 15},
	{125, 31},
	{100, 40},
	{50, 79},
	{25, 158},
	{15, 265},
	{5, 798},
}

var jTagKHzToSpeedMap = [...]speedMap{
	{9000, 4},
	{4500, 8},
	{2250, 16},
	{1125, 32}, /* default */
	{562, 64},
	{281, 128},
	{140, 256},
}

// SetSpeed selects the closest interface clock not above khz. With query
// set nothing is changed on the probe. It returns the selected frequency.
func (h *StLink) SetSpeed(khz uint32, query bool) (uint32, error) {
	isJtag := h.stMode == StLinkModeDebugJtag

	switch h.stMode {
	case StLinkModeDebugSwd, StLinkModeDebugJtag:
		if h.version.jtagApi == jTagApiV3 {
			return h.setSpeedV3(isJtag, khz, query)
		}

		return h.setSpeedV2(isJtag, khz, query)

	default:
		return khz, errors.New("requested ST-Link mode not supported yet")
	}
}

func (h *StLink) setSpeedV3(isJtag bool, khz uint32, query bool) (uint32, error) {
	smap, err := h.usbGetComFreq(isJtag)

	if err != nil {
		return khz, err
	}

	speedIndex, err := matchSpeedMap(smap, khz, query)

	if err != nil {
		return khz, err
	}

	if !query {
		if err := h.usbSetComFreq(isJtag, smap[speedIndex].speed); err != nil {
			return khz, err
		}
	}

	return smap[speedIndex].speed, nil
}

func (h *StLink) setSpeedV2(isJtag bool, khz uint32, query bool) (uint32, error) {
	smap := swdKHzToSpeedMap[:]
	flag := flagHasSwdSetFreq
	cmd := byte(debugApiV2SwdSetFreq)

	if isJtag {
		smap = jTagKHzToSpeedMap[:]
		flag = flagHasJtagSetFreq
		cmd = debugApiV2JTagSetFreq
	}

	/* old firmware cannot change it */
	if !h.version.flags.Get(flag) {
		return khz, errors.New("cannot change speed on old firmware")
	}

	speedIndex, err := matchSpeedMap(smap, khz, query)

	if err != nil {
		return khz, err
	}

	if !query {
		ctx := h.initTransfer(transferIncoming)

		ctx.cmdBuf.WriteByte(cmdDebug)
		ctx.cmdBuf.WriteByte(cmd)
		ctx.cmdBuf.WriteUint16LE(uint16(smap[speedIndex].speedDivisor))

		if err := h.usbCmdAllowRetry(ctx, 2); err != nil {
			return khz, errors.New("unable to set adapter speed")
		}
	}

	return smap[speedIndex].speed, nil
}

func (h *StLink) usbGetComFreq(isJtag bool) ([]speedMap, error) {

	if h.version.jtagApi != jTagApiV3 {
		return nil, errors.New("unknown command")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(debugApiV3GetComFreq)

	if isJtag {
		ctx.cmdBuf.WriteByte(1)
	} else {
		ctx.cmdBuf.WriteByte(0)
	}

	if err := h.usbTransferErrCheck(ctx, 52); err != nil {
		return nil, err
	}

	if len(ctx.DataBytes()) < 52 {
		return nil, errors.New("short frequency table response")
	}

	size := int(ctx.DataBytes()[8])

	if size > v3MaxFreqNb {
		size = v3MaxFreqNb
	}

	smap := make([]speedMap, v3MaxFreqNb)

	for i := 0; i < size; i++ {
		smap[i].speed = ctx.dataBuf.Uint32At(12+4*i, littleEndian)
		smap[i].speedDivisor = i
	}

	return smap, nil
}

func (h *StLink) usbSetComFreq(isJtag bool, frequency uint32) error {

	if h.version.jtagApi != jTagApiV3 {
		return errors.New("unknown command")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(debugApiV3SetComFreq)

	if isJtag {
		ctx.cmdBuf.WriteByte(1)
	} else {
		ctx.cmdBuf.WriteByte(0)
	}

	ctx.cmdBuf.WriteByte(0)
	ctx.cmdBuf.WriteUint32LE(frequency)

	return h.usbTransferErrCheck(ctx, 8)
}

func matchSpeedMap(smap []speedMap, khz uint32, query bool) (int, error) {
	var lastValidSpeed int = -1
	var speedIndex = -1
	var speedDiff uint32 = math.MaxUint32
	var match bool = true

	for i, s := range smap {
		if s.speed == 0 {
			continue
		}

		lastValidSpeed = i

		if khz == s.speed {
			speedIndex = i
			break
		} else if khz > s.speed && khz-s.speed < speedDiff {
			speedDiff = khz - s.speed
			speedIndex = i
		}
	}

	if speedIndex == -1 {
		// this will only be here if we cannot match the slow speed.
		// use the slowest speed we support.
		if lastValidSpeed == -1 {
			return -1, errors.New("empty speed map")
		}

		speedIndex = lastValidSpeed
		match = false
	} else if smap[speedIndex].speed != khz {
		match = false
	}

	if !match && query {
		return -1, fmt.Errorf("unable to match requested speed %d kHz, using %d kHz",
			khz, smap[speedIndex].speed)
	}

	return speedIndex, nil
}
