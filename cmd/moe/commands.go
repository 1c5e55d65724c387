// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// --- Global Command Variables ---
var (
	storePath     string
	logLevel      string
	clusters      int
	smooth        bool
	tuneHeaviside bool
	excluded      []string
	criterionCols int
	outputPath    string
	serveAddr           string
	serveTrainRPS       float64
	telemetryConfigPath string

	rootCmd = &cobra.Command{
		Use:   "moe",
		Short: "Train, query, and serve mixture-of-experts regression models",
		Long: `moe manages mixture-of-experts regression models: training from
CSV datasets, prediction against stored models, and an HTTP service
exposing both.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	trainCmd = &cobra.Command{
		Use:   "train [dataset.csv]",
		Short: "Train a model from a CSV dataset and store its snapshot",
		Long: `Trains a mixture-of-experts model from a CSV dataset whose last
column is the regression target and stores the trained snapshot. With
--criterion-cols N, the N columns before the target are used as the
clustering criterion instead of the target itself.`,
		Args: cobra.ExactArgs(1),
		RunE: runTrain, // Defined in cmd_train.go
	}

	predictCmd = &cobra.Command{
		Use:   "predict [model-id] [queries.csv]",
		Short: "Predict with a stored model against CSV query rows",
		Args:  cobra.ExactArgs(2),
		RunE:  runPredict, // Defined in cmd_predict.go
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List stored model IDs",
		Args:  cobra.NoArgs,
		RunE:  runListModels, // Defined in cmd_predict.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the training and prediction API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "./moe-models", "Directory for the model snapshot store")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	trainCmd.Flags().IntVar(&clusters, "clusters", 1, "Number of experts")
	trainCmd.Flags().BoolVar(&smooth, "smooth", false, "Use smooth recombination instead of hard")
	trainCmd.Flags().BoolVar(&tuneHeaviside, "tune", false, "Tune the gate scale on the validation split")
	trainCmd.Flags().StringSliceVar(&excluded, "exclude", nil, "Model names excluded from the automatic search (default exclusions when unset)")
	trainCmd.Flags().IntVar(&criterionCols, "criterion-cols", 0, "Trailing input columns used as the clustering criterion")

	predictCmd.Flags().StringVar(&outputPath, "output", "", "Write predictions to this file instead of stdout")

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().Float64Var(&serveTrainRPS, "train-rps", 1, "Training requests allowed per second")
	serveCmd.Flags().StringVar(&telemetryConfigPath, "telemetry-config", "", "YAML file with trace and metric exporter settings")

	viper.SetEnvPrefix("MOE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, flag := range []string{"store", "log-level"} {
		_ = viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag))
	}
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("train-rps", serveCmd.Flags().Lookup("train-rps"))

	rootCmd.AddCommand(trainCmd, predictCmd, modelsCmd, serveCmd)
}

// setupLogging installs the process-wide logger: human-readable text on
// a terminal, JSON otherwise.
func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
