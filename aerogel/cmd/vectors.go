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
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/cmd/util"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/config"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
	"github.com/Rangdy-Kor/AerogelOS/pkg/interrupts"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
)

// Vectors implements subcommands.Command for the "vectors" command.
type Vectors struct {
	all bool
}

// Name implements subcommands.Command.Name.
func (*Vectors) Name() string {
	return "vectors"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Vectors) Synopsis() string {
	return "print the interrupt descriptor table built at bring-up"
}

// Usage implements subcommands.Command.Usage.
func (*Vectors) Usage() string {
	return "vectors [flags] - print the interrupt descriptor table.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (v *Vectors) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&v.all, "all", false, "include vectors without a present gate.")
}

// Execute implements subcommands.Command.Execute.
func (v *Vectors) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	mc, err := newMachine(conf)
	if err != nil {
		return util.Errorf("%v", err)
	}
	// The machine is never started; Init only records what it loads.
	if err := mc.sub.Init(); err != nil {
		return util.Errorf("initializing interrupts: %v", err)
	}
	if err := writeVectors(os.Stdout, mc.sub, v.all); err != nil {
		return util.Errorf("writing table: %v", err)
	}
	return subcommands.ExitSuccess
}

// writeVectors writes one row per gate of the subsystem's table.
func writeVectors(out io.Writer, s *interrupts.Subsystem, all bool) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "VECTOR\tNAME\tSELECTOR\tIST\tDPL\tOFFSET\tCLASS")
	idt := s.Kernel().IDT()
	for i := range idt {
		gate := &idt[i]
		vec := ring0.Vector(i)
		if !gate.Present() {
			if all {
				fmt.Fprintf(w, "%#02x\t%s\t-\t-\t-\t-\t-\n", i, vectorName(s, vec))
			}
			continue
		}
		fmt.Fprintf(w, "%#02x\t%s\t%#x\t%d\t%d\t%#x\t%s\n", i, vectorName(s, vec), uint16(gate.Selector()), gate.IST(), gate.DPL(), gate.Offset(), vectorClass(s, vec))
	}
	return w.Flush()
}

func vectorName(s *interrupts.Subsystem, v ring0.Vector) string {
	if v.IsException() {
		return v.String()
	}
	if line, ok := s.Controllers().Line(v); ok {
		return fmt.Sprintf("IRQ %d", line)
	}
	return v.String()
}

func vectorClass(s *interrupts.Subsystem, v ring0.Vector) string {
	switch {
	case v.IsException():
		return ring0.Classify(v).String()
	case s.Controllers().Handles(v):
		return "device"
	default:
		return "unexpected"
	}
}
