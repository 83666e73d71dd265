// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// coreHalt stops a core of the target through its cross trigger interface,
// optionally executes one instruction on it and lets it run again.
package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/bbnote/gocoresight"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var logger *logrus.Logger

func main() {
	logger = logrus.New()
	logger.SetFormatter(&prefixed.TextFormatter{
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	})
	logger.SetOutput(os.Stdout)

	gocoresight.SetLogger(logger)

	var platform gocoresight.PlatformFlags
	var probe gocoresight.ProbeFlags

	platform.Register(flag.CommandLine)
	probe.Register(flag.CommandLine)

	flagLogLevel := flag.Int("LogLevel", int(logrus.InfoLevel), "Logging verbosity [0 - 6]")
	flagCore := flag.Int("Core", 0, "logical index of the core to halt")
	flagInject := flag.String("Inject", "", "instruction to execute while halted (hex opcode, empty for none)")
	flagSample := flag.Bool("SamplePC", true, "dump program counter samples before halting")
	flagStayHalted := flag.Bool("StayHalted", false, "leave the core halted")

	flag.Parse()

	logger.SetLevel(logrus.Level(*flagLogLevel))

	var opcode uint64
	var err error

	if *flagInject != "" {
		if opcode, err = strconv.ParseUint(*flagInject, 0, 32); err != nil {
			logger.Fatalf("invalid instruction '%s': %v", *flagInject, err)
		}
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

	logger.Info("starting core halt tool...")

	if err = gocoresight.InitUsb(); err != nil {
		logger.Panic(err)
	}

	stLink, err := gocoresight.NewStLink(linkConfig)
	if err != nil {
		gocoresight.CloseUSB()
		logger.Fatal("could not find any st-link on your computer: ", err)
	}

	bus := gocoresight.NewStLinkBus(stLink, uint16(probe.AccessPort))
	debugger := gocoresight.NewDebugger(config, bus, discovery)

	exitCode := 0

	if err := debugger.Init(); err != nil {
		logger.Warn("debug subsystem partially initialized: ", err)
	}

	if err := halt(debugger, *flagCore, *flagInject != "", uint32(opcode), *flagSample, *flagStayHalted); err != nil {
		logger.Error(err)
		exitCode = -1
	}

	if err := bus.Err(); err != nil {
		logger.Error("probe error: ", err)
		exitCode = -1
	}

	stLink.Close()
	gocoresight.CloseUSB()

	os.Exit(exitCode)
}

func halt(debugger *gocoresight.Debugger, core int, inject bool, opcode uint32, sample bool, stayHalted bool) error {
	if err := debugger.EnableDebugAccess(core); err != nil {
		return err
	}

	if sample {
		if _, err := debugger.DumpProgramCounterSample(core); err != nil {
			return err
		}
	}

	if err := debugger.HaltCore(core); err != nil {
		return err
	}

	logger.Infof("core %d halted", core)

	if inject {
		if err := debugger.InjectInstruction(core, opcode); err != nil {
			return err
		}
	}

	if stayHalted {
		return nil
	}

	if err := debugger.ResumeCore(core); err != nil {
		return err
	}

	logger.Infof("core %d resumed", core)
	return nil
}
