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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// build returns a cleanup that appends 1, 2 and 3 to order when run.
func build(order *[]int) Cleanup {
	cu := Make(func() { *order = append(*order, 1) })
	cu.Add(func() { *order = append(*order, 2) })
	cu.Add(func() { *order = append(*order, 3) })
	return cu
}

func TestClean(t *testing.T) {
	var order []int
	cu := build(&order)
	cu.Clean()
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("clean order mismatch (-want +got):\n%s", diff)
	}
	cu.Clean()
	if len(order) != 3 {
		t.Errorf("second Clean ran functions again: %v", order)
	}
}

func TestRelease(t *testing.T) {
	var order []int
	cu := build(&order)
	run := cu.Release()
	cu.Clean()
	if len(order) != 0 {
		t.Fatalf("Clean after Release ran %v", order)
	}
	run()
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("released functions mismatch (-want +got):\n%s", diff)
	}
}

func TestDeferredRestore(t *testing.T) {
	restored := false
	func() {
		cu := Make(func() { restored = true })
		defer cu.Clean()
	}()
	if !restored {
		t.Errorf("deferred Clean did not run")
	}
}
