// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger = nil
)

const MaxLogLevel = logrus.DebugLevel

func init() {
	logger = logrus.New()
}

// SetLogger replaces the package logger. Emergency diagnostics (halt
// failures, injected instruction faults, pc samples) are reported at error
// level, soft poll timeouts at warn level.
func SetLogger(loggerInstance *logrus.Logger) {

	logger = loggerInstance
}

func coreLogger(core int) *logrus.Entry {
	return logger.WithField("core", core)
}
