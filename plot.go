// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Implementation of plot subcommand, plot creation from an existing metrics
// report without re-running the measuring passes.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/vmaftools/internal/analysis"
	"github.com/evolution-gaming/vmaftools/internal/logging"
	"github.com/evolution-gaming/vmaftools/internal/vqm"
)

func CreatePlotCommand() Commander {
	longHelp := `Subcommand "plot" will create a metric plot from a merged metrics JSON report
as produced by the compare subcommand.

Metric name is matched against per-frame metric keys in the report
case-insensitively, e.g. both VMAF and vmaf select the same metric.

Examples:

	vmaftools plot report.json
	vmaftools plot -m XPSNR -o xpsnr.png report.json
	vmaftools plot -m VMAF -multi report.json`

	app := &PlotApp{
		fs: flag.NewFlagSet("plot", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flMetric, "m", "VMAF", "Metric to plot")
	app.fs.StringVar(&app.flOutFile, "o", "", "Output plot file (default derived from report name)")
	app.fs.BoolVar(&app.flMulti, "multi", false,
		"Create multi-panel plot with histogram and CDF subplots")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure PlotApp implements Commander interface.
var _ Commander = (*PlotApp)(nil)

// PlotApp is subcommand application context that implements Commander interface.
type PlotApp struct {
	fs *flag.FlagSet
	gf globalFlags

	flMetric  string
	flOutFile string
	flMulti   bool
}

func (a *PlotApp) Name() string {
	return a.fs.Name()
}

func (a *PlotApp) Help() {
	a.fs.Usage()
}

// Parse will parse CLI flags and positional arguments.
func (a *PlotApp) Parse(args []string) (reportFile string, err error) {
	if err := a.fs.Parse(args); err != nil {
		return "", &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	if a.fs.NArg() < 1 {
		a.fs.Usage()
		return "", &AppError{
			exitCode: 2,
			msg:      "metrics report JSON file is a required argument",
		}
	}
	reportFile = a.fs.Arg(0)

	if !fileExists(reportFile) {
		return "", &AppError{exitCode: 1,
			msg: fmt.Sprintf("metrics report file not found: %s", reportFile)}
	}

	return reportFile, nil
}

// Run is main entry point into PlotApp execution.
func (a *PlotApp) Run(args []string) error {
	reportFile, err := a.Parse(args)
	if err != nil {
		return err
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	if err := a.run(reportFile); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	return nil
}

func (a *PlotApp) run(reportFile string) error {
	f, err := os.Open(reportFile)
	if err != nil {
		return fmt.Errorf("opening metrics report: %w", err)
	}
	defer f.Close()

	doc, err := vqm.ParseDocument(f)
	if err != nil {
		return err
	}

	key := strings.ToLower(a.flMetric)
	values := doc.MetricValues(key)
	if len(values) == 0 {
		return fmt.Errorf("no %s values in report %s", a.flMetric, reportFile)
	}

	name := strings.ToUpper(a.flMetric)
	outFile := a.flOutFile
	if outFile == "" {
		base := strings.TrimSuffix(reportFile, filepath.Ext(reportFile))
		outFile = fmt.Sprintf("%s_%s_plot.png", base, key)
	}

	title := fmt.Sprintf("%s for %s", name, filepath.Base(reportFile))
	if a.flMulti {
		err = analysis.MultiPlotMetric(values, name, title, outFile)
	} else {
		err = analysis.MetricPlot(values, name, title, outFile)
	}
	if err != nil {
		return fmt.Errorf("creating %s plot: %w", name, err)
	}
	if _, err := os.Stat(outFile); err != nil {
		return fmt.Errorf("%s plot file was not created: %w", name, err)
	}
	logging.Infof("%s plot: %s", name, outFile)

	return nil
}
