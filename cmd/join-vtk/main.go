// Command join-vtk merges per-partition VTK files into merged/ for every
// timestep whose merged file is missing or out of date.
package main

import (
	"os"

	"github.com/livinlefevreloca/postproc/internal/cli"
	"github.com/livinlefevreloca/postproc/internal/pipeline"
)

func main() {
	os.Exit(cli.Main(pipeline.StageMerge, os.Args[1:], os.Stdout, os.Stderr))
}
