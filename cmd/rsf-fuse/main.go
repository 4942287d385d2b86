// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.9.21
//

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	m "github.com/tchmukai/rsf"
	"github.com/tchmukai/rsf/app"
)

func main() {
	args, err := parseArgs()
	if err != nil {
		flag.Usage()
		os.Exit(1)
	}

	if err := runApplication(args); err != nil {
		m.PrintE(err)
		os.Exit(1)
	}
}

// cmdOpt holds the parsed command line: four positional arguments
// (INPUT_FILE OUTPUT_FILE RESERVED ERROR_MODEL) plus the -v flag.
// RESERVED is accepted and ignored, preserving invocation compatibility
// with the original four-argument CLI rather than guessing at its
// never-observed intent.
type cmdOpt struct {
	inputFn    string
	outputFn   string
	reserved   string
	errorModel string
	verbosity  int
}

func parseArgs() (a cmdOpt, err error) {
	flag.Usage = func() {
		m.PrintA(`
[Usage]
	%s [Options] INPUT_FILE OUTPUT_FILE RESERVED ERROR_MODEL

ERROR_MODEL one of: gauss, dcs, cdce, sm, mm, stsm, stmm, stsm_vbi, stmm_vbi

[Options]
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.IntVar(&a.verbosity, "v", 0, "Debug information display. 0(OFF), 1(display), 2(detailed display)")
	flag.Parse()

	if flag.NArg() != 4 {
		return a, fmt.Errorf("expected 4 positional arguments, got %d", flag.NArg())
	}
	a.inputFn = flag.Arg(0)
	a.outputFn = flag.Arg(1)
	a.reserved = flag.Arg(2)
	a.errorModel = flag.Arg(3)

	m.DBG_ = a.verbosity
	return a, nil
}

func runApplication(args cmdOpt) error {
	cfg := app.Config{
		InputFile:       args.inputFn,
		OutputFile:      args.outputFn,
		ErrorModelToken: args.errorModel,
		Verbosity:       args.verbosity,
	}
	return app.Run(cfg)
}
