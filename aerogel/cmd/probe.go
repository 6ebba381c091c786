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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/cmd/util"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
)

// Probe implements subcommands.Command for the "probe" command.
type Probe struct{}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "read the host's interrupt controller masks and keyboard status (requires CAP_SYS_RAWIO)"
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return `probe - read host controller registers.

Only reads are performed. Nothing is written to the host's ports.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Probe) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Probe) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	bus, closeBus, err := openHostBus()
	if err != nil {
		return util.Errorf("opening host ports: %v", err)
	}
	defer closeBus()
	writeProbe(os.Stdout, bus)
	return subcommands.ExitSuccess
}

// writeProbe reads the mask registers and keyboard status from bus.
func writeProbe(w io.Writer, bus ioport.Bus) {
	master := bus.Inb(ioport.MasterData)
	slave := bus.Inb(ioport.SlaveData)
	status := bus.Inb(ioport.KeyboardStatus)
	fmt.Fprintf(w, "master IMR  %08b\n", master)
	fmt.Fprintf(w, "slave IMR   %08b\n", slave)
	fmt.Fprintf(w, "kbd status  %08b (output full: %t)\n", status, status&kbd.StatusOutputFull != 0)
}
