// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Implementation of compare subcommand, the full VMAF/XPSNR measuring
// pipeline from ffprobe metadata checks to report files and plots.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jszwec/csvutil"

	"github.com/evolution-gaming/vmaftools/internal/analysis"
	"github.com/evolution-gaming/vmaftools/internal/filter"
	"github.com/evolution-gaming/vmaftools/internal/logging"
	"github.com/evolution-gaming/vmaftools/internal/metric"
	"github.com/evolution-gaming/vmaftools/internal/tools"
	"github.com/evolution-gaming/vmaftools/internal/video"
	"github.com/evolution-gaming/vmaftools/internal/vqm"
)

const defaultReportPrefix = "vmaf_analysis"

func CreateCompareCommand() Commander {
	longHelp := `Subcommand "compare" will measure VMAF and XPSNR metrics of a distorted video
file against a reference video file and produce a merged metrics report.

Both metrics are calculated with ffmpeg filters (libvmaf and xpsnr), each in a
separate pass over the video pair. Per-frame results are merged into a single
JSON document, validated for gross measurement problems and summarised as a
terminal table, a CSV file and per-metric plots.

Examples:

	vmaftools compare reference.mp4 distorted.mp4
	vmaftools compare -out-dir results -profile film reference.mkv distorted.mkv my_report`

	app := &CompareApp{
		fs: flag.NewFlagSet("compare", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.BoolVar(&app.flDenoise, "denoise", true,
		"Apply denoise filter to reference video before metric calculation")
	app.fs.StringVar(&app.flOutDir, "out-dir", ".", "Directory to place report artifacts in")
	app.fs.BoolVar(&app.flLog, "log", false, "Also write log output to a file in out-dir")
	app.fs.StringVar(&app.flProfile, "profile", "standard",
		"Content type profile for metric range validation")
	app.fs.StringVar(&app.flProfiles, "profiles", "",
		"YAML file with additional content type profiles (optional)")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure CompareApp implements Commander interface.
var _ Commander = (*CompareApp)(nil)

// CompareApp is subcommand application context that implements Commander interface.
type CompareApp struct {
	fs *flag.FlagSet
	gf globalFlags

	flDenoise  bool
	flOutDir   string
	flLog      bool
	flProfile  string
	flProfiles string
}

func (a *CompareApp) Name() string {
	return a.fs.Name()
}

func (a *CompareApp) Help() {
	a.fs.Usage()
}

// Parse will parse CLI flags and positional arguments.
func (a *CompareApp) Parse(args []string) (referenceFile, distortedFile, prefix string, err error) {
	if err := a.fs.Parse(args); err != nil {
		return "", "", "", &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	if a.fs.NArg() < 2 {
		a.fs.Usage()
		return "", "", "", &AppError{
			exitCode: 2,
			msg:      "reference and distorted video files are required arguments",
		}
	}

	referenceFile = a.fs.Arg(0)
	distortedFile = a.fs.Arg(1)
	prefix = defaultReportPrefix
	if a.fs.NArg() > 2 {
		prefix = a.fs.Arg(2)
	}

	if !fileExists(referenceFile) {
		return "", "", "", &AppError{exitCode: 1,
			msg: fmt.Sprintf("reference video file not found: %s", referenceFile)}
	}
	if !fileExists(distortedFile) {
		return "", "", "", &AppError{exitCode: 1,
			msg: fmt.Sprintf("distorted video file not found: %s", distortedFile)}
	}

	return referenceFile, distortedFile, prefix, nil
}

// Run is main entry point into CompareApp execution.
func (a *CompareApp) Run(args []string) error {
	referenceFile, distortedFile, prefix, err := a.Parse(args)
	if err != nil {
		return err
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	cfg, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if err := os.MkdirAll(a.flOutDir, 0o755); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("creating out-dir: %s", err)}
	}

	if a.flLog {
		logFile := filepath.Join(a.flOutDir,
			fmt.Sprintf("%s_%s.log", prefix, time.Now().Format("20060102T150405")))
		closer, err := logging.TeeToFile(logFile)
		if err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
		defer closer.Close()
		logging.Infof("Logging to %s", logFile)
	}

	if err := a.run(cfg, referenceFile, distortedFile, prefix); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	return nil
}

// run executes the compare pipeline proper, separated from Run so that all
// failures funnel through a single AppError conversion point.
func (a *CompareApp) run(cfg Config, referenceFile, distortedFile, prefix string) error {
	logging.Infof("Reference video: %s", referenceFile)
	logging.Infof("Distorted video: %s", distortedFile)

	refMeta, err := tools.FfprobeExtractMetadata(referenceFile)
	if err != nil {
		return fmt.Errorf("reference video metadata: %w", err)
	}
	distMeta, err := tools.FfprobeExtractMetadata(distortedFile)
	if err != nil {
		return fmt.Errorf("distorted video metadata: %w", err)
	}

	if err := checkComparable(refMeta, distMeta); err != nil {
		return err
	}

	modelPath, err := selectModelPath(cfg, refMeta)
	if err != nil {
		return err
	}

	vmafLog := filepath.Join(a.flOutDir, prefix+"_vmaf.json")
	xpsnrLog := filepath.Join(a.flOutDir, prefix+"_xpsnr.log")

	fParams := filter.Params{
		Reference:    refMeta,
		Distorted:    distMeta,
		Denoise:      a.flDenoise,
		ModelPath:    modelPath,
		NThreads:     vqm.DefaultNThreads(),
		NSubsample:   cfg.VMAFSubsample.Value(),
		VMAFLogPath:  vmafLog,
		XPSNRLogPath: xpsnrLog,
	}

	vmafGraph, err := filter.VMAFGraph(fParams)
	if err != nil {
		return fmt.Errorf("VMAF filter graph: %w", err)
	}
	xpsnrGraph, err := filter.XPSNRGraph(fParams)
	if err != nil {
		return fmt.Errorf("XPSNR filter graph: %w", err)
	}

	doc, err := measure(cfg, vmafGraph, xpsnrGraph, distortedFile, referenceFile, vmafLog, xpsnrLog)
	if err != nil {
		return err
	}

	// Intermediate pass results are folded into the merged document.
	for _, f := range []string{vmafLog, xpsnrLog} {
		if err := os.Remove(f); err != nil {
			logging.Infof("Unable to remove intermediate file %s: %s", f, err)
		}
	}

	if err := a.validate(cfg, doc); err != nil {
		return err
	}

	reportFile := filepath.Join(a.flOutDir, prefix+".json")
	if err := writeDocument(doc, reportFile); err != nil {
		return err
	}
	logging.Infof("Metrics report: %s", reportFile)

	store, err := pooledStore(doc)
	if err != nil {
		return err
	}
	printSummaryTable(store, os.Stdout)

	csvFile := filepath.Join(a.flOutDir, prefix+"_summary.csv")
	if err := writeSummaryCSV(store, csvFile); err != nil {
		return err
	}
	logging.Infof("Summary CSV: %s", csvFile)

	return createPlots(doc, a.flOutDir, prefix)
}

// checkComparable fails early when video pair cannot produce a meaningful
// frame-by-frame comparison.
func checkComparable(ref, dist video.Metadata) error {
	if ref.FrameCount != dist.FrameCount {
		return fmt.Errorf("frame count mismatch: reference has %d frames, distorted has %d",
			ref.FrameCount, dist.FrameCount)
	}

	refFps, err := ref.Fps()
	if err != nil {
		return fmt.Errorf("reference video: %w", err)
	}
	distFps, err := dist.Fps()
	if err != nil {
		return fmt.Errorf("distorted video: %w", err)
	}
	if refFps != distFps {
		return fmt.Errorf("frame rate mismatch: reference %.3f fps, distorted %.3f fps",
			refFps, distFps)
	}

	return nil
}

// selectModelPath maps reference video resolution to configured model file.
func selectModelPath(cfg Config, ref video.Metadata) (string, error) {
	switch model := filter.SelectModel(ref.Height); model {
	case filter.Model4K:
		logging.Infof("Using 4K libvmaf model for %dp reference", ref.Height)
		return cfg.LibvmafModel4KPath.Value(), nil
	case filter.ModelHD:
		logging.Infof("Using HD libvmaf model for %dp reference", ref.Height)
		return cfg.LibvmafModelPath.Value(), nil
	default:
		return "", fmt.Errorf("unknown libvmaf model variant: %s", model)
	}
}

// measure runs both metric passes and returns the merged document.
func measure(cfg Config, vmafGraph, xpsnrGraph *filter.Graph,
	distortedFile, referenceFile, vmafLog, xpsnrLog string,
) (*vqm.MetricDocument, error) {
	passes := []struct {
		name       string
		graph      *filter.Graph
		resultFile string
	}{
		{name: "VMAF", graph: vmafGraph, resultFile: vmafLog},
		{name: "XPSNR", graph: xpsnrGraph, resultFile: xpsnrLog},
	}

	for _, p := range passes {
		m, err := vqm.NewFfmpegMetric(&vqm.FfmpegMetricConfig{
			Name:           p.name,
			FfmpegPath:     cfg.FfmpegPath.Value(),
			FfmpegTemplate: cfg.FfmpegMetricTemplate.Value(),
			FilterGraph:    p.graph.Render(),
			ResultFile:     p.resultFile,
		}, distortedFile, referenceFile)
		if err != nil {
			return nil, err
		}
		logging.Infof("Starting %s measuring pass", p.name)
		start := time.Now()
		if err := m.Measure(); err != nil {
			return nil, err
		}
		logging.Infof("%s pass done in %s", p.name, time.Since(start).Round(time.Second))
	}

	vmafReport, err := os.Open(vmafLog)
	if err != nil {
		return nil, fmt.Errorf("opening VMAF result: %w", err)
	}
	defer vmafReport.Close()
	doc, err := vqm.ParseDocument(vmafReport)
	if err != nil {
		return nil, err
	}

	xpsnrFrames, err := vqm.ParseXPSNRLogFile(xpsnrLog)
	if err != nil {
		return nil, err
	}

	if err := vqm.Merge(doc, xpsnrFrames); err != nil {
		return nil, err
	}

	return doc, nil
}

// validate runs all document validators, hard failures abort, warnings are
// only logged.
func (a *CompareApp) validate(cfg Config, doc *vqm.MetricDocument) error {
	if err := vqm.ValidateScores(doc); err != nil {
		return err
	}
	if err := vqm.ValidateFrameSync(doc); err != nil {
		return err
	}

	warnings, err := vqm.ValidateXPSNRCoverage(doc)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logging.Infof("WARNING: %s", w)
	}

	// CLI flag wins over profiles file from configuration.
	profilesFile := cfg.ProfilesFile.Value()
	if a.flProfiles != "" {
		profilesFile = a.flProfiles
	}
	profiles, err := vqm.LoadProfiles(profilesFile)
	if err != nil {
		return err
	}
	profile, ok := profiles[a.flProfile]
	if !ok {
		return fmt.Errorf("unknown content type profile: %s", a.flProfile)
	}

	warnings, err = vqm.ValidateMetricRange(doc, profile)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logging.Infof("WARNING: %s", w)
	}

	return nil
}

func writeDocument(doc *vqm.MetricDocument, outFile string) error {
	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()

	return doc.WriteJSON(f)
}

// pooledStore aggregates per-frame values of all merged metrics into a Store.
func pooledStore(doc *vqm.MetricDocument) (*metric.Store, error) {
	store := metric.NewStore()
	for _, name := range []string{
		vqm.MetricVMAF, vqm.MetricXPSNR,
		vqm.MetricXPSNRY, vqm.MetricXPSNRU, vqm.MetricXPSNRV,
	} {
		values := doc.MetricValues(name)
		if len(values) == 0 {
			continue
		}
		m, err := metric.Aggregate(values)
		if err != nil {
			return nil, fmt.Errorf("aggregating %s: %w", name, err)
		}
		store.Insert(name, m)
	}

	return store, nil
}

// printSummaryTable renders pooled metric summary as a terminal table.
func printSummaryTable(store *metric.Store, out *os.File) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Metric", "Min", "Max", "Mean", "Harmonic Mean", "StDev"})
	for _, name := range store.Names() {
		m, err := store.Get(name)
		if err != nil {
			continue
		}
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("%.3f", m.Min),
			fmt.Sprintf("%.3f", m.Max),
			fmt.Sprintf("%.3f", m.Mean),
			fmt.Sprintf("%.3f", m.HarmonicMean),
			fmt.Sprintf("%.3f", m.StDev),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// summaryRecord is one CSV line of pooled metric summary.
type summaryRecord struct {
	Metric       string  `csv:"metric"`
	Min          float64 `csv:"min"`
	Max          float64 `csv:"max"`
	Mean         float64 `csv:"mean"`
	HarmonicMean float64 `csv:"harmonic_mean"`
	StDev        float64 `csv:"st_dev"`
	Variance     float64 `csv:"variance"`
}

func writeSummaryCSV(store *metric.Store, outFile string) error {
	var records []summaryRecord
	for _, name := range store.Names() {
		m, err := store.Get(name)
		if err != nil {
			return err
		}
		records = append(records, summaryRecord{
			Metric:       name,
			Min:          m.Min,
			Max:          m.Max,
			Mean:         m.Mean,
			HarmonicMean: m.HarmonicMean,
			StDev:        m.StDev,
			Variance:     m.Variance,
		})
	}

	b, err := csvutil.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling summary CSV: %w", err)
	}
	if err := os.WriteFile(outFile, b, 0o644); err != nil {
		return fmt.Errorf("writing summary CSV: %w", err)
	}

	return nil
}

// createPlots renders per-metric plots and fails when a plot file did not
// materialize.
func createPlots(doc *vqm.MetricDocument, outDir, prefix string) error {
	plots := []struct {
		key    string
		title  string
		suffix string
	}{
		{key: vqm.MetricVMAF, title: "VMAF", suffix: "_vmaf_plot.png"},
		{key: vqm.MetricXPSNR, title: "XPSNR", suffix: "_xpsnr_plot.png"},
	}

	for _, p := range plots {
		outFile := filepath.Join(outDir, prefix+p.suffix)
		values := doc.MetricValues(p.key)
		if err := analysis.MetricPlot(values, p.title, p.title, outFile); err != nil {
			return fmt.Errorf("creating %s plot: %w", p.title, err)
		}
		if _, err := os.Stat(outFile); err != nil {
			return fmt.Errorf("%s plot file was not created: %w", p.title, err)
		}
		logging.Infof("%s plot: %s", p.title, outFile)
	}

	return nil
}
