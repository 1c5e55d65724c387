// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianMOE/services/moe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testSnapshot builds a minimal single-cluster snapshot.
func testSnapshot(id string) *moe.Snapshot {
	return &moe.Snapshot{
		ID:                id,
		CreatedAt:         time.Now().UTC(),
		Dim:               1,
		NumClusters:       1,
		HardRecombination: true,
		Scale:             1,
		Weights:           []float64{1},
		Means:             [][]float64{{0.5, 0.25}},
		Covariances:       [][]float64{{0.1, 0, 0, 0.1}},
		ModelNames:        []string{"LS"},
		Models:            []json.RawMessage{json.RawMessage(`{"intercept":0,"coefficients":[1],"dim":1,"fitted":true}`)},
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := testSnapshot("abc")
	require.NoError(t, s.Put(ctx, snap))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Weights, got.Weights)
	assert.Equal(t, snap.ModelNames, got.ModelNames)

	// A restored model from the stored snapshot predicts.
	restored, err := moe.Restore(got, nil)
	require.NoError(t, err)
	assert.Equal(t, moe.PhaseTrained, restored.Phase())
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("a")))
	require.NoError(t, s.Put(ctx, testSnapshot("b")))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), ErrNotFound)

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestStore_EmptyID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, &moe.Snapshot{}), ErrEmptyID)
	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.ErrorIs(t, s.Delete(ctx, ""), ErrEmptyID)
}
