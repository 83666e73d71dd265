// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gocoresight

import (
	"errors"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

const AllSupportedVIds = 0xFFFF
const AllSupportedPIds = 0xFFFF

var supportedVIds = []gousb.ID{stLinkVid}
var supportedPIds = []gousb.ID{stLinkV1Pid, stLinkV2Pid, stLinkV21Pid, stLinkV3UsbLoaderPid, stLinkV3EPid,
	stLinkV3SPid, stLinkV21NoMsdPid, stLinkV32VcpPid}

type StLink struct {
	libUsbDevice *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface

	rxEndpoint *gousb.InEndpoint
	txEndpoint *gousb.OutEndpoint

	stMode  StLinkMode
	version stLinkVersion

	openedAps bitmap.Bitmap

	vid gousb.ID
	pid gousb.ID
}

type StLinkInterfaceConfig struct {
	vid               gousb.ID
	pid               gousb.ID
	mode              StLinkMode
	serial            string
	initialSpeed      uint32
	connectUnderReset bool
}

func NewStLinkConfig(vid gousb.ID, pid gousb.ID, mode StLinkMode,
	serial string, initialSpeed uint32, connectUnderReset bool) *StLinkInterfaceConfig {

	config := &StLinkInterfaceConfig{
		vid:               vid,
		pid:               pid,
		mode:              mode,
		serial:            serial,
		initialSpeed:      initialSpeed,
		connectUnderReset: connectUnderReset,
	}

	return config
}

func NewStLink(config *StLinkInterfaceConfig) (*StLink, error) {
	var err error
	var devices []*gousb.Device

	handle := &StLink{}
	handle.stMode = config.mode
	handle.openedAps = bitmap.New(debugAccessPortSelectionMaximum + 1)

	vids := supportedVIds
	pids := supportedPIds

	if config.vid != AllSupportedVIds {
		vids = []gousb.ID{config.vid}
	}

	if config.pid != AllSupportedPIds {
		pids = []gousb.ID{config.pid}
	}

	devices, err = usbFindDevices(vids, pids)

	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, errors.New("could not find any ST-Link connected to computer")
	}

	if config.serial == "" && len(devices) > 1 {
		closeDevices(devices, nil)
		return nil, errors.New("could not identity exact stlink by given parameters. (Perhaps a serial no is missing?)")
	} else if len(devices) == 1 {
		handle.libUsbDevice = devices[0]
	} else {
		for _, dev := range devices {
			devSerialNo, _ := dev.SerialNumber()

			logger.Debugf("compare serial no %s with number %s", devSerialNo, config.serial)

			if devSerialNo == config.serial {
				handle.libUsbDevice = dev

				logger.Infof("found st link with serial number %s", devSerialNo)
				break
			}
		}

		closeDevices(devices, handle.libUsbDevice)
	}

	if handle.libUsbDevice == nil {
		return nil, errors.New("could not find ST-Link by given parameters")
	}

	if err = handle.openEndpoints(); err != nil {
		handle.Close()
		return nil, err
	}

	if err = handle.usbParseVersion(); err != nil {
		handle.Close()
		return nil, err
	}

	switch handle.stMode {
	case StLinkModeDebugSwd:
		if handle.version.jtagApi == jTagApiV1 {
			handle.Close()
			return nil, errors.New("SWD not supported by jtag api v1")
		}
	case StLinkModeDebugJtag:
		if handle.version.jtag == 0 {
			handle.Close()
			return nil, errors.New("JTAG transport not supported by stlink")
		}
	default:
		handle.Close()
		return nil, errors.New("only SWD and JTAG transports reach a CoreSight target")
	}

	if err = handle.usbInitMode(config.connectUnderReset, config.initialSpeed); err != nil {
		handle.Close()
		return nil, err
	}

	return handle, nil
}

func closeDevices(devices []*gousb.Device, keep *gousb.Device) {
	for _, dev := range devices {
		if dev != keep {
			dev.Close()
		}
	}
}

func (h *StLink) openEndpoints() error {
	var err error

	// no request required configuration an matching usb interface :D
	h.usbConfig, err = h.libUsbDevice.Config(1)
	if err != nil {
		logger.Debug(err)
		return errors.New("could not request configuration #1 for st-link debugger")
	}

	h.usbInterface, err = h.usbConfig.Interface(0, 0)
	if err != nil {
		logger.Debug(err)
		return errors.New("could not claim interface 0,0 for st-link debugger")
	}

	// endpoint for rx is on all st links the same
	h.rxEndpoint, err = h.usbInterface.InEndpoint(usbRxEndpointNo)
	if err != nil {
		return err
	}

	txEndpointNo := usbTxEndpointNo

	switch h.libUsbDevice.Desc.Product {
	case stLinkV1Pid:
		return errors.New("ST-Link/V1 cannot reach a CoreSight target")

	case stLinkV21Pid, stLinkV21NoMsdPid, stLinkV3UsbLoaderPid, stLinkV3EPid, stLinkV3SPid, stLinkV32VcpPid:
		txEndpointNo = usbTxEndpointApi2v1No

	case stLinkV2Pid:
		txEndpointNo = usbTxEndpointNo

	default:
		logger.Infof("could not determine pid of debugger %04x, assuming ST-Link/V2", uint16(h.libUsbDevice.Desc.Product))
	}

	h.txEndpoint, err = h.usbInterface.OutEndpoint(txEndpointNo)

	return err
}

func (h *StLink) Close() {
	if h.libUsbDevice != nil {
		logger.Debugf("close ST-Link device [%04x:%04x]", uint16(h.vid), uint16(h.pid))

		for ap := 0; ap <= debugAccessPortSelectionMaximum; ap++ {
			if h.openedAps.Get(ap) {
				h.usbCloseAccessPort(byte(ap))
				h.openedAps.Set(ap, false)
			}
		}

		if h.usbInterface != nil {
			h.usbInterface.Close()
		}

		if h.usbConfig != nil {
			h.usbConfig.Close()
		}

		h.libUsbDevice.Close()
		h.libUsbDevice = nil
	}
}

func (h *StLink) GetTargetVoltage() (float32, error) {
	var adcResults [2]uint32

	/* no error message, simply quit with error */
	if !h.version.flags.Get(flagHasTargetVolt) {
		return -1.0, errors.New("device does not support voltage measurement")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdGetTargetVoltage)

	err := h.usbTransferNoErrCheck(ctx, 8)

	if err != nil {
		return -1.0, err
	}

	/* convert result */
	adcResults[0] = ctx.dataBuf.Uint32At(0, littleEndian)
	adcResults[1] = ctx.dataBuf.Uint32At(4, littleEndian)

	var targetVoltage float32 = 0.0

	if adcResults[0] > 0 {
		targetVoltage = 2 * (float32(adcResults[1]) * (1.2 / float32(adcResults[0])))
	}

	logger.Infof("target voltage: %f", targetVoltage)

	return targetVoltage, nil
}

func (h *StLink) GetIdCode() (uint32, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuf.WriteByte(cmdDebug)
	ctx.cmdBuf.WriteByte(debugApiV2ReadIdCodes)

	if err := h.usbTransferErrCheck(ctx, 12); err != nil {
		return 0, err
	}

	return ctx.dataBuf.Uint32At(4, littleEndian), nil
}
