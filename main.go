// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for vmaftools application

package main

import (
	"fmt"
	"os"

	"github.com/evolution-gaming/vmaftools/internal/logging"
)

// root represents top level of vmaftools command, including dispatching to subcommands.
func root(args []string) error {
	usage := `Vmaftools - VMAF/XPSNR video quality comparison

Usage:

    vmaftools <command> [arguments] [-h|-help]

The commands are:

    compare     measure VMAF and XPSNR of distorted video against reference and report
    plot        create plot for given metric from metrics JSON report
    dump-conf   output actual application configuration
    version     print vmaftools version and exit

Use "vmaftools <command> -h|-help" for more information about command.`

	if len(args) < 1 {
		fmt.Println(usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	switch args[0] {
	case "compare":
		return CreateCompareCommand().Run(args[1:])
	case "plot":
		return CreatePlotCommand().Run(args[1:])
	case "dump-conf", "dump":
		return CreateDumpConfCommand().Run(args[1:])
	case "version":
		printVersion()
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Println(usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Println(usage)
		return &AppError{
			msg:      "unknown command/flag",
			exitCode: 2,
		}
	}
}

func main() {
	// Enable info logger by default and early enough.
	logging.EnableInfoLogger()

	if err := root(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		switch e := err.(type) {
		case *AppError:
			os.Exit(e.ExitCode())
		default:
			os.Exit(1)
		}
	}
	os.Exit(0)
}
