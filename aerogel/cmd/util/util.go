// Copyright 2026 The AerogelOS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package util groups helpers shared by aerogel commands.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
)

// ErrorLogger is where error messages should be written to, in addition to
// stderr. It may be nil.
var ErrorLogger io.Writer

// Errorf logs an error to the log and to stderr, and returns
// subcommands.ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	writeError(format, args...)
	return subcommands.ExitFailure
}

// Fatalf logs an error to the log and to stderr, and exits.
func Fatalf(format string, args ...any) {
	writeError(format, args...)
	os.Exit(128)
}

func writeError(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	msg := fmt.Sprintf(format+"\n", args...)
	fmt.Fprint(os.Stderr, msg)
	if ErrorLogger != nil {
		fmt.Fprint(ErrorLogger, msg)
	}
}
