// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// traceKeeper enables instruction trace on a set of cores and keeps the
// trace configuration alive across power collapses. The power management
// side signals an imminent collapse with SIGUSR1 and the power up with
// SIGUSR2.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbnote/gocoresight"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	logger *logrus.Logger
)

type powerEvent int

const (
	powerDown powerEvent = iota
	powerUp
	shutdown
)

func setUpSignalHandler() <-chan powerEvent {
	signals := make(chan os.Signal, 1)
	events := make(chan powerEvent, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGUSR1:
				events <- powerDown
			case syscall.SIGUSR2:
				events <- powerUp
			default:
				events <- shutdown
				return
			}
		}
	}()

	return events
}

func initLogger() {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger = logrus.New()

	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stdout)
}

func main() {
	initLogger()
	gocoresight.SetLogger(logger)

	var platform gocoresight.PlatformFlags
	var probe gocoresight.ProbeFlags

	platform.Register(flag.CommandLine)
	probe.Register(flag.CommandLine)

	flagLogLevel := flag.Int("LogLevel", int(logrus.InfoLevel), "Logging verbosity [0 - 6]")
	flagCores := flag.String("Cores", "0x1", "cores to trace, mask (0x3) or list (0,1)")

	flag.Parse()

	logger.SetLevel(logrus.Level(*flagLogLevel))

	mask, err := gocoresight.ParseCoreMask(*flagCores)
	if err != nil {
		logger.Fatal(err)
	}

	config, err := platform.Config()
	if err != nil {
		logger.Fatal(err)
	}

	discovery, err := platform.Discovery()
	if err != nil {
		logger.Fatal(err)
	}

	linkConfig, err := probe.StLinkConfig()
	if err != nil {
		logger.Fatal(err)
	}

	if err := gocoresight.InitUsb(); err != nil {
		logger.Panic(err)
	}

	stLink, err := gocoresight.NewStLink(linkConfig)
	if err != nil {
		gocoresight.CloseUSB()
		logger.Fatal("error while scanning for st-links on your computer: ", err)
	}

	code, err := stLink.GetIdCode()
	if err == nil {
		logger.Infof("got id code: %08x", code)
	}

	bus := gocoresight.NewStLinkBus(stLink, uint16(probe.AccessPort))
	debugger := gocoresight.NewDebugger(config, bus, discovery)

	exitCode := run(debugger, bus, mask)

	stLink.Close()
	gocoresight.CloseUSB()

	os.Exit(exitCode)
}

func run(debugger *gocoresight.Debugger, bus *gocoresight.StLinkBus, mask uint32) int {
	if err := debugger.EnableTrace(mask); err != nil {
		logger.Error("could not enable trace: ", err)
		return -1
	}

	if err := bus.Err(); err != nil {
		logger.Error("probe error during trace bring-up: ", err)
		return -1
	}

	logger.Infof("tracing cores 0x%x, waiting for power events (SIGUSR1 down, SIGUSR2 up)", mask)

	events := setUpSignalHandler()

	for event := range events {
		switch event {
		case powerDown:
			forEachCore(mask, debugger.SaveCoreDebugState)
			logger.Info("trace state saved")

		case powerUp:
			forEachCore(mask, debugger.RestoreCoreDebugState)
			logger.Info("trace state restored")

		case shutdown:
			forEachCore(mask, func(core int) {
				if err := debugger.StopTrace(core); err != nil {
					logger.Warnf("could not stop trace on core %d: %v", core, err)
				}
			})
			return 0
		}

		if err := bus.Err(); err != nil {
			logger.Error("probe error: ", err)
			bus.ClearErr()
		}
	}

	return 0
}

func forEachCore(mask uint32, fn func(core int)) {
	for core := 0; core < gocoresight.MaxCores; core++ {
		if mask&(1<<uint(core)) != 0 {
			fn(core)
		}
	}
}
