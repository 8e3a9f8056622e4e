// Command shogizero is the bare USI entrypoint reachable via `go run .`;
// cmd/shogizero-usi carries the flag-driven variant (CPU profiling,
// explicit -evalfile) for operators who need it.
package main

import (
	"os"

	"github.com/hiraoka/shogizero/internal/usi"
)

func main() {
	usi.New(os.Stdout).Run(os.Stdin)
}
