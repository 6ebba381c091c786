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
	"github.com/Rangdy-Kor/AerogelOS/aerogel/config"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
	"github.com/Rangdy-Kor/AerogelOS/pkg/interrupts"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sim"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// Remap implements subcommands.Command for the "remap" command.
type Remap struct {
	writesOnly bool
}

// Name implements subcommands.Command.Name.
func (*Remap) Name() string {
	return "remap"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Remap) Synopsis() string {
	return "print the port accesses made while programming the interrupt controllers"
}

// Usage implements subcommands.Command.Usage.
func (*Remap) Usage() string {
	return "remap [flags] - print the controller programming sequence.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Remap) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.writesOnly, "writes-only", false, "omit port reads, including I/O delays.")
}

// Execute implements subcommands.Command.Execute.
func (r *Remap) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	ops, err := traceRemap(conf.Interrupts())
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := writeOps(os.Stdout, ops, r.writesOnly); err != nil {
		return util.Errorf("writing trace: %v", err)
	}
	return subcommands.ExitSuccess
}

// traceRemap brings up interrupts on a powered-on machine and returns every
// port access.
func traceRemap(cfg interrupts.Config) ([]ioport.Op, error) {
	m := sim.New(sim.Opts{})
	rec := &ioport.Recorder{Next: m.Bus()}
	s, err := interrupts.New(m.CPU(), rec, vga.NewTextBuffer(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating interrupt subsystem: %w", err)
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("initializing interrupts: %w", err)
	}
	return rec.Ops(), nil
}

func writeOps(w io.Writer, ops []ioport.Op, writesOnly bool) error {
	for _, op := range ops {
		if writesOnly && !op.Write {
			continue
		}
		if _, err := fmt.Fprintln(w, op); err != nil {
			return err
		}
	}
	return nil
}
