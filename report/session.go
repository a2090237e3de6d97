// GEMA: Gene Expression Survival Meta-Analysis Library
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/gema/blob/master/LICENSE.txt>.

package report

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// PrintSessionInfo prints the environment of a run: program identity, Go toolchain, platform,
// and the dependency versions baked into the binary. Printed at the end of every run so
// results can be traced back to the software that produced them.
func PrintSessionInfo(program string, version float64) {
	fmt.Println("Session info:")
	fmt.Println(program, " version ", version)
	fmt.Println("Go: ", runtime.Version(), " ", runtime.GOOS, "/", runtime.GOARCH)
	fmt.Println("CPUs: ", runtime.NumCPU(), " GOMAXPROCS: ", runtime.GOMAXPROCS(0))
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fmt.Println("Dependencies:")
	for _, dep := range info.Deps {
		fmt.Println("  ", dep.Path, " ", dep.Version)
	}
}
