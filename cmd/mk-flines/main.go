// Command mk-flines traces field lines for every merged timestep whose
// .flines file is missing or older than its VTK and seed inputs.
package main

import (
	"os"

	"github.com/livinlefevreloca/postproc/internal/cli"
	"github.com/livinlefevreloca/postproc/internal/pipeline"
)

func main() {
	os.Exit(cli.Main(pipeline.StageFlines, os.Args[1:], os.Stdout, os.Stderr))
}
