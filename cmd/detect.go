package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/fetcher"
	"github.com/sells-group/anomaly-cli/internal/loader"
	"github.com/sells-group/anomaly-cli/internal/lof"
	"github.com/sells-group/anomaly-cli/internal/pipeline"
	"github.com/sells-group/anomaly-cli/internal/report"
)

var (
	detectSource          string
	detectNeighbors       int
	detectContamination   float64
	detectTimestampField  string
	detectValueField      string
	detectTimestampLayout string
	detectFormat          string
	detectSheet           string
	detectTable           string
	detectQuery           string
	detectEncoding        string
	detectIndex           string
	detectWorkers         int
	detectPlot            string
	detectOutput          string
	detectOutputFormat    string
	detectPreview         int
	detectMaxListed       int
)

var detectCmd = &cobra.Command{
	Use:          "detect",
	Short:        "Score a time series and report anomalies",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyDetectFlags(cmd)
		if err := cfg.Validate("detect"); err != nil {
			return err
		}

		f := fetcher.New(fetcher.Options{
			Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxAttempts: cfg.Fetch.MaxAttempts,
			UserAgent:   cfg.Fetch.UserAgent,
		})
		p := pipeline.New(loader.New(f))

		res, err := p.Run(ctx, pipeline.Request{
			Source: detectSource,
			Load:   loadOptions(),
			Params: detectParams(),
		})
		if err != nil {
			return describeError(err)
		}

		out := cmd.OutOrStdout()
		if detectPreview > 0 {
			writePreview(out, res, detectPreview)
		}
		if err := report.RenderText(out, res.Scored, res.Statistics, report.TextOptions{
			Source:    res.Source,
			MaxListed: cfg.Report.MaxListed,
		}); err != nil {
			return err
		}

		if detectPlot != "" {
			title := fmt.Sprintf("Anomalies in %s", fetcher.BaseName(res.Source))
			if err := report.RenderPlot(detectPlot, res.Scored, report.PlotOptions{Title: title}); err != nil {
				return eris.Wrap(err, "write plot")
			}
			zap.L().Info("plot written", zap.String("path", detectPlot))
		}

		if detectOutput != "" {
			if err := report.ExportFile(detectOutput, detectOutputFormat, res.Document(), res.Scored); err != nil {
				return eris.Wrap(err, "write export")
			}
			zap.L().Info("export written", zap.String("path", detectOutput))
		}

		return nil
	},
}

// applyDetectFlags copies explicitly set flags over the loaded config.
func applyDetectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("neighbors") {
		cfg.Detector.NeighborhoodSize = detectNeighbors
	}
	if flags.Changed("contamination") {
		cfg.Detector.Contamination = detectContamination
	}
	if flags.Changed("index") {
		cfg.Detector.Index = detectIndex
	}
	if flags.Changed("workers") {
		cfg.Detector.Workers = detectWorkers
	}
	if flags.Changed("timestamp-field") {
		cfg.Input.TimestampField = detectTimestampField
	}
	if flags.Changed("value-field") {
		cfg.Input.ValueField = detectValueField
	}
	if flags.Changed("timestamp-layout") {
		cfg.Input.TimestampLayout = detectTimestampLayout
	}
	if flags.Changed("encoding") {
		cfg.Input.Encoding = detectEncoding
	}
	if flags.Changed("max-listed") {
		cfg.Report.MaxListed = detectMaxListed
	}
}

func loadOptions() loader.Options {
	return loader.Options{
		Format:          detectFormat,
		TimestampField:  cfg.Input.TimestampField,
		ValueField:      cfg.Input.ValueField,
		TimestampLayout: cfg.Input.TimestampLayout,
		Encoding:        cfg.Input.Encoding,
		Sheet:           detectSheet,
		Table:           detectTable,
		Query:           detectQuery,
	}
}

func detectParams() lof.Params {
	return lof.Params{
		NeighborhoodSize: cfg.Detector.NeighborhoodSize,
		Contamination:    cfg.Detector.Contamination,
		Index:            lof.IndexKind(cfg.Detector.Index),
		Workers:          cfg.Detector.Workers,
	}
}

func writePreview(w io.Writer, res *pipeline.Result, n int) {
	rows := loader.Preview(res.Series, n)
	fmt.Fprintf(w, "First %d observations:\n", len(rows))
	for _, o := range rows {
		fmt.Fprintf(w, "  %-20s %14.2f\n", o.Timestamp.Format(report.TimeLayout), o.Value)
	}
	fmt.Fprintln(w)
}

func init() {
	f := detectCmd.Flags()
	f.StringVarP(&detectSource, "source", "s", "", "path, URL or database DSN of the series (required)")
	f.IntVarP(&detectNeighbors, "neighbors", "k", lof.DefaultNeighborhoodSize, "neighborhood size (default from config)")
	f.Float64VarP(&detectContamination, "contamination", "c", lof.DefaultContamination, "expected anomalous fraction in (0, 0.5] (default from config)")
	f.StringVar(&detectTimestampField, "timestamp-field", loader.DefaultTimestampField, "name of the timestamp column")
	f.StringVar(&detectValueField, "value-field", loader.DefaultValueField, "name of the value column")
	f.StringVar(&detectTimestampLayout, "timestamp-layout", "", "Go time layout for timestamps (default: auto-detect)")
	f.StringVar(&detectFormat, "format", "", "input format: csv, tsv, xlsx, json, sqlite, postgres (default: from source)")
	f.StringVar(&detectSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	f.StringVar(&detectTable, "table", "", "database table to read")
	f.StringVar(&detectQuery, "query", "", "SQL query to read instead of a table")
	f.StringVar(&detectEncoding, "encoding", "", "text encoding of CSV/TSV input, e.g. windows-1252 (default utf-8)")
	f.StringVar(&detectIndex, "index", string(lof.IndexAuto), "neighbor index: auto, brute, sorted")
	f.IntVar(&detectWorkers, "workers", 0, "parallel neighbor search workers (0 = GOMAXPROCS)")
	f.StringVar(&detectPlot, "plot", "", "write a plot to this .png, .svg or .pdf file")
	f.StringVarP(&detectOutput, "output", "o", "", "export scored observations to this file")
	f.StringVar(&detectOutputFormat, "output-format", "", "export format: json, csv, yaml (default: from extension)")
	f.IntVar(&detectPreview, "preview", 0, "print the first N loaded observations")
	f.IntVar(&detectMaxListed, "max-listed", 0, "max anomalies listed in the report (0 = all)")
	_ = detectCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(detectCmd)
}
