// Command shogizero-usi runs the engine as a USI protocol process
// talking over stdin/stdout, with flags for CPU profiling and an
// explicit weights path.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/hiraoka/shogizero/internal/persist"
	"github.com/hiraoka/shogizero/internal/usi"
)

var (
	cpuProfile = flag.String("cpuprofile", "", "write CPU profile to file")
	evalFile   = flag.String("evalfile", "", "path to an NNUE weights file (empty uses the material evaluator)")
)

func main() {
	flag.Parse()

	profilePath := *cpuProfile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatalf("create cpu profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("start cpu profile: %v", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("cpu profiling enabled, writing to %s", profilePath)
	}

	driver := usi.New(os.Stdout)

	path := *evalFile
	if path == "" {
		path = autoDiscoverEvalFile()
	}
	if path != "" {
		driver.SetOption("EvalFile", path)
	}

	driver.Run(os.Stdin)
}

// autoDiscoverEvalFile looks for a network file named "nn.bin" in the
// engine's data directory so an operator can drop a trained network in
// place without passing -evalfile on every launch.
func autoDiscoverEvalFile() string {
	dir, err := persist.GetNNUEDir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(dir, "nn.bin")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
