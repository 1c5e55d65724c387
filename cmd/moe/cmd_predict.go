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
	"os"

	"github.com/AleutianAI/AleutianMOE/services/moe"
	"github.com/AleutianAI/AleutianMOE/services/moe/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runPredict(cmd *cobra.Command, args []string) error {
	id, queriesFile := args[0], args[1]

	queries, err := loadQueries(queriesFile)
	if err != nil {
		return err
	}

	st, err := store.Open(store.DefaultConfig(viper.GetString("store")))
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	model, err := moe.Restore(snap, nil)
	if err != nil {
		return fmt.Errorf("restore model %s: %w", id, err)
	}

	pred, err := model.PredictValues(cmd.Context(), queries)
	if err != nil {
		return err
	}

	values := make([]float64, pred.Len())
	for i := range values {
		values[i] = pred.AtVec(i)
	}

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return json.NewEncoder(out).Encode(values)
}

func runListModels(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(store.DefaultConfig(viper.GetString("store")))
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
