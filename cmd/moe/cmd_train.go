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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianMOE/services/moe"
	"github.com/AleutianAI/AleutianMOE/services/moe/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// trainOutput is the JSON summary printed after training.
type trainOutput struct {
	ID          string   `json:"id"`
	NumClusters int      `json:"num_clusters"`
	Hard        bool     `json:"hard_recombination"`
	Scale       float64  `json:"scale"`
	ModelNames  []string `json:"model_names"`
	HardRMSE    float64  `json:"hard_rmse"`
	SmoothRMSE  float64  `json:"smooth_rmse"`
}

func runTrain(cmd *cobra.Command, args []string) error {
	x, y, c, err := loadDataset(args[0], criterionCols)
	if err != nil {
		return err
	}
	n, d := x.Dims()
	slog.Info("dataset loaded", slog.String("path", args[0]), slog.Int("rows", n), slog.Int("inputs", d))

	opts := moe.DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.C = c
	opts.NumberClusters = clusters
	opts.HardRecombination = !smooth
	opts.TuneHeaviside = tuneHeaviside
	opts.Excluded = excluded

	model, err := moe.New(opts)
	if err != nil {
		return err
	}
	if err := model.Train(cmd.Context()); err != nil {
		return fmt.Errorf("training: %w", err)
	}

	snap, err := model.Snapshot()
	if err != nil {
		return err
	}

	st, err := store.Open(store.DefaultConfig(viper.GetString("store")))
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Put(cmd.Context(), snap); err != nil {
		return err
	}

	hard, smoothReport := model.Reports()
	out := trainOutput{
		ID:          snap.ID,
		NumClusters: snap.NumClusters,
		Hard:        snap.HardRecombination,
		Scale:       snap.Scale,
		ModelNames:  snap.ModelNames,
		HardRMSE:    hard.RMSE,
		SmoothRMSE:  smoothReport.RMSE,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
