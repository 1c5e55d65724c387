// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package moe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianMOE/services/moe/cluster"
	"github.com/AleutianAI/AleutianMOE/services/moe/ensemble"
	"github.com/AleutianAI/AleutianMOE/services/moe/gate"
	"github.com/AleutianAI/AleutianMOE/services/moe/partition"
	"github.com/AleutianAI/AleutianMOE/services/moe/report"
	"github.com/AleutianAI/AleutianMOE/services/moe/selector"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"gonum.org/v1/gonum/mat"
)

// validationBlocks is the round-robin block count for the deterministic
// train/validation split: row i lands in block i mod validationBlocks,
// and block zero is held out for validation.
const validationBlocks = 10

// Gate scale sweep bounds for heaviside tuning.
const (
	scaleSweepMin  = 0.1
	scaleSweepMax  = 2.1
	scaleSweepStep = 0.1
)

// MixtureOfExperts partitions an input space by probabilistic
// clustering, trains one local regression expert per cluster, and
// predicts by hard or smooth recombination through a Gaussian gate.
//
// Thread Safety: Train must not run concurrently with any other method.
// A trained instance is safe for concurrent PredictValues calls.
type MixtureOfExperts struct {
	opts  Options
	phase Phase
	dim   int
	scale float64

	params     *cluster.MixtureParams
	gate       *gate.Gate
	models     []surrogate.Regressor
	modelNames []string
	recombiner *ensemble.Recombiner

	hardReport   *report.Report
	smoothReport *report.Report
}

// New builds an untrained model from the given configuration.
func New(opts Options) (*MixtureOfExperts, error) {
	if opts.Scale == 0 {
		opts.Scale = gate.DefaultScale
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = surrogate.DefaultRegistry()
	}
	if opts.Excluded == nil {
		opts.Excluded = surrogate.DefaultExclusions()
	}
	if opts.Estimator == nil {
		opts.Estimator = cluster.NewGaussianMixture(opts.NumberClusters)
	}

	_, d := opts.X.Dims()
	return &MixtureOfExperts{
		opts:  opts,
		phase: PhaseConfigured,
		dim:   d,
		scale: opts.Scale,
	}, nil
}

// Phase returns the current training phase.
func (m *MixtureOfExperts) Phase() Phase { return m.phase }

// NumClusters returns the configured expert count.
func (m *MixtureOfExperts) NumClusters() int { return m.opts.NumberClusters }

// Hard reports whether trained predictions use hard recombination.
func (m *MixtureOfExperts) Hard() bool { return m.opts.HardRecombination }

// Scale returns the gate covariance scale factor in effect, which may
// differ from the configured one after heaviside tuning.
func (m *MixtureOfExperts) Scale() float64 { return m.scale }

// Gate returns the trained gate, or nil before training.
func (m *MixtureOfExperts) Gate() *gate.Gate { return m.gate }

// ModelNames returns the chosen expert model name per cluster.
func (m *MixtureOfExperts) ModelNames() []string {
	out := make([]string, len(m.modelNames))
	copy(out, m.modelNames)
	return out
}

// Reports returns the hard and smooth validation reports recorded
// during training, or nils before training.
func (m *MixtureOfExperts) Reports() (hard, smooth *report.Report) {
	return m.hardReport, m.smoothReport
}

// Train runs the full training state machine.
//
// Description:
//
//	Splits the data, fits the clustering provider on [X | C], searches
//	the expert catalog per cluster against the validation split, records
//	hard and smooth validation reports, and finally refits every chosen
//	expert type on the full dataset. Any error aborts the run and resets
//	the model to the configured phase; there is no partial success.
//
// Inputs:
//
//   - ctx: Context observed between phases and inside clustering and
//     selection.
//
// Outputs:
//
//   - error: Non-nil on configuration, clustering, selection, or fit
//     failure.
func (m *MixtureOfExperts) Train(ctx context.Context) error {
	ctx, span := startTrainSpan(ctx, m.opts.NumberClusters, m.opts.HardRecombination)
	defer span.End()

	start := time.Now()
	err := m.train(ctx)
	recordTrainMetrics(ctx, time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		m.phase = PhaseConfigured
		return err
	}

	slog.Info("mixture of experts trained",
		slog.Int("clusters", m.opts.NumberClusters),
		slog.Bool("hard", m.opts.HardRecombination),
		slog.Float64("scale", m.scale),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (m *MixtureOfExperts) train(ctx context.Context) error {
	m.phase = PhaseConfigured
	// Restored models carry no training data and cannot be retrained.
	if m.opts.X == nil || m.opts.Y == nil {
		return ErrMissingInputs
	}
	k := m.opts.NumberClusters
	crit := m.criterion()

	// Configured -> Split.
	xTrain, yTrain, cTrain, xValid, yValid, err := m.split(crit)
	if err != nil {
		return err
	}
	m.phase = PhaseSplit

	// The cluster cap depends on the training split, so it is checked
	// here rather than in Validate, and always before clustering runs.
	nTrain, _ := xTrain.Dims()
	if maxClusters := nTrain/validationBlocks + 1; k > maxClusters {
		return fmt.Errorf("%w: requested %d, maximum %d for %d training rows",
			ErrTooManyClusters, k, maxClusters, nTrain)
	}

	// Split -> Clustered.
	var joinedTrain mat.Dense
	joinedTrain.Augment(xTrain, cTrain)
	params, err := m.opts.Estimator.Fit(ctx, &joinedTrain)
	if err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	g, err := gate.New(m.dim, params.Weights, params.Means, params.Covariances, m.opts.Scale)
	if err != nil {
		return err
	}
	m.phase = PhaseClustered

	// Clustered -> PerClusterFit. Hard assignment comes from the
	// clustering provider's own posterior, not the gate's.
	labels, err := m.opts.Estimator.Predict(&joinedTrain)
	if err != nil {
		return fmt.Errorf("cluster assignment: %w", err)
	}
	groups, err := partition.ByLabel(labels, k)
	if err != nil {
		return err
	}
	models, names, err := m.fitClusterModels(ctx, xTrain, yTrain, groups, xValid, yValid)
	if err != nil {
		return err
	}
	m.phase = PhasePerClusterFit

	// PerClusterFit -> Validated.
	scale := m.opts.Scale
	if m.opts.TuneHeaviside && k > 1 {
		scale, err = m.tuneScale(ctx, params, models, xValid, yValid)
		if err != nil {
			return err
		}
		if scale != m.opts.Scale {
			if g, err = gate.New(m.dim, params.Weights, params.Means, params.Covariances, scale); err != nil {
				return err
			}
		}
	}
	hardReport, smoothReport, err := m.validate(ctx, g, models, xValid, yValid)
	if err != nil {
		return err
	}
	m.phase = PhaseValidated

	// Validated -> Refit. The validation-time experts are discarded; a
	// fresh expert of each chosen type is fitted on the full dataset.
	// With an external validation set the search already trained on the
	// full dataset, so the search-phase experts are kept as-is.
	final := models
	if m.opts.ValidationX == nil {
		if final, err = m.refit(ctx, crit, names, k); err != nil {
			return err
		}
	}
	m.phase = PhaseRefit

	recombiner, err := ensemble.New(g, final, m.opts.HardRecombination, ensemble.WithWorkers(m.opts.Workers))
	if err != nil {
		return err
	}

	m.params = params
	m.gate = g
	m.scale = scale
	m.models = final
	m.modelNames = names
	m.recombiner = recombiner
	m.hardReport = hardReport
	m.smoothReport = smoothReport
	m.phase = PhaseTrained
	return nil
}

// PredictValues evaluates the trained ensemble at every row of x, using
// the recombination mode fixed at configuration time.
func (m *MixtureOfExperts) PredictValues(ctx context.Context, x mat.Matrix) (*mat.VecDense, error) {
	if m.phase != PhaseTrained {
		return nil, fmt.Errorf("%w: phase is %s", ErrNotTrained, m.phase)
	}
	n, _ := x.Dims()

	start := time.Now()
	out, err := m.recombiner.Predict(ctx, x)
	recordPredictMetrics(ctx, time.Since(start), n, err == nil)
	return out, err
}

// MembershipGradient exposes the gate's analytic probability gradient
// for one sample. Only available after training.
func (m *MixtureOfExperts) MembershipGradient(x []float64) (*mat.Dense, error) {
	if m.phase != PhaseTrained {
		return nil, fmt.Errorf("%w: phase is %s", ErrNotTrained, m.phase)
	}
	return m.gate.MembershipGradient(x)
}

// criterion returns the clustering criterion matrix, defaulting to the
// outputs as a single column.
func (m *MixtureOfExperts) criterion() *mat.Dense {
	if m.opts.C != nil {
		return m.opts.C
	}
	n := m.opts.Y.Len()
	c := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c.Set(i, 0, m.opts.Y.AtVec(i))
	}
	return c
}

// split produces the training and validation splits: the external
// validation set when supplied, otherwise a deterministic round-robin
// hold-out of every tenth row.
func (m *MixtureOfExperts) split(crit *mat.Dense) (xTrain *mat.Dense, yTrain *mat.VecDense, cTrain *mat.Dense, xValid *mat.Dense, yValid *mat.VecDense, err error) {
	if m.opts.ValidationX != nil {
		return m.opts.X, m.opts.Y, crit, m.opts.ValidationX, m.opts.ValidationY, nil
	}

	n, _ := m.opts.X.Dims()
	trainIdx := make([]int, 0, n)
	validIdx := make([]int, 0, n/validationBlocks+1)
	for i := 0; i < n; i++ {
		if i%validationBlocks == 0 {
			validIdx = append(validIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(trainIdx) == 0 {
		return nil, nil, nil, nil, nil, fmt.Errorf("%w: %d rows leave no training data after the hold-out", ErrMissingInputs, n)
	}

	xTrain, yTrain, err = partition.Rows(m.opts.X, m.opts.Y, trainIdx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	xValid, yValid, err = partition.Rows(m.opts.X, m.opts.Y, validIdx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	cTrain = selectRows(crit, trainIdx)
	return xTrain, yTrain, cTrain, xValid, yValid, nil
}

// fitClusterModels runs the model search for every cluster's training
// group against the global validation split.
func (m *MixtureOfExperts) fitClusterModels(
	ctx context.Context,
	xTrain *mat.Dense, yTrain *mat.VecDense,
	groups [][]int,
	xValid *mat.Dense, yValid *mat.VecDense,
) ([]surrogate.Regressor, []string, error) {
	models := make([]surrogate.Regressor, len(groups))
	names := make([]string, len(groups))
	for k, indices := range groups {
		xg, yg, err := partition.Rows(xTrain, yTrain, indices)
		if err != nil {
			return nil, nil, err
		}
		if xg == nil {
			return nil, nil, fmt.Errorf("cluster %d: %w", k, ErrEmptyCluster)
		}

		res, err := selector.SelectBest(ctx, m.opts.Registry, m.opts.Excluded, xg, yg, xValid, yValid)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %d: %w", k, err)
		}
		models[k] = res.Model
		names[k] = res.Name
		recordExpertSelected(ctx, res.Name)

		slog.Debug("expert selected for cluster",
			slog.Int("cluster", k),
			slog.String("model", res.Name),
			slog.Int("rows", len(indices)),
			slog.Bool("bypassed", res.Bypassed),
		)
	}
	return models, names, nil
}

// tuneScale sweeps the gate scale grid and returns the value with the
// lowest hard-gating validation RMSE. Scales whose gate cannot be built
// or evaluated are skipped.
func (m *MixtureOfExperts) tuneScale(
	ctx context.Context,
	params *cluster.MixtureParams,
	models []surrogate.Regressor,
	xValid *mat.Dense, yValid *mat.VecDense,
) (float64, error) {
	best := m.opts.Scale
	bestRMSE, err := m.hardRMSE(ctx, params, m.opts.Scale, models, xValid, yValid)
	if err != nil {
		return 0, err
	}

	for scale := scaleSweepMin; scale <= scaleSweepMax+scaleSweepStep/2; scale += scaleSweepStep {
		rmse, err := m.hardRMSE(ctx, params, scale, models, xValid, yValid)
		if err != nil {
			slog.Debug("scale candidate skipped",
				slog.Float64("scale", scale),
				slog.String("error", err.Error()),
			)
			continue
		}
		if rmse < bestRMSE {
			best, bestRMSE = scale, rmse
		}
	}

	slog.Debug("gate scale tuned", slog.Float64("scale", best), slog.Float64("rmse", bestRMSE))
	return best, nil
}

// hardRMSE scores hard-gated validation predictions for one candidate
// gate scale.
func (m *MixtureOfExperts) hardRMSE(
	ctx context.Context,
	params *cluster.MixtureParams,
	scale float64,
	models []surrogate.Regressor,
	xValid *mat.Dense, yValid *mat.VecDense,
) (float64, error) {
	g, err := gate.New(m.dim, params.Weights, params.Means, params.Covariances, scale)
	if err != nil {
		return 0, err
	}
	rec, err := ensemble.New(g, models, true, ensemble.WithWorkers(m.opts.Workers))
	if err != nil {
		return 0, err
	}
	pred, err := rec.Predict(ctx, xValid)
	if err != nil {
		return 0, err
	}
	return report.RMSE(yValid, pred)
}

// validate records hard and smooth validation reports for the
// search-phase experts.
func (m *MixtureOfExperts) validate(
	ctx context.Context,
	g *gate.Gate,
	models []surrogate.Regressor,
	xValid *mat.Dense, yValid *mat.VecDense,
) (hard, smooth *report.Report, err error) {
	for _, mode := range []bool{true, false} {
		rec, err := ensemble.New(g, models, mode, ensemble.WithWorkers(m.opts.Workers))
		if err != nil {
			return nil, nil, err
		}
		pred, err := rec.Predict(ctx, xValid)
		if err != nil {
			return nil, nil, err
		}
		rep, err := report.New(yValid, pred)
		if err != nil {
			return nil, nil, err
		}
		if mode {
			hard = rep
		} else {
			smooth = rep
		}
	}
	return hard, smooth, nil
}

// refit partitions the full dataset with the fixed cluster assignment
// and fits a fresh expert of each chosen type on its cluster's rows.
func (m *MixtureOfExperts) refit(ctx context.Context, crit *mat.Dense, names []string, k int) ([]surrogate.Regressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var joined mat.Dense
	joined.Augment(m.opts.X, crit)
	labels, err := m.opts.Estimator.Predict(&joined)
	if err != nil {
		return nil, fmt.Errorf("full-data cluster assignment: %w", err)
	}
	groups, err := partition.ByLabel(labels, k)
	if err != nil {
		return nil, err
	}

	final := make([]surrogate.Regressor, k)
	for c, indices := range groups {
		xg, yg, err := partition.Rows(m.opts.X, m.opts.Y, indices)
		if err != nil {
			return nil, err
		}
		if xg == nil {
			return nil, fmt.Errorf("refit cluster %d: %w", c, ErrEmptyCluster)
		}

		model, err := m.opts.Registry.New(names[c])
		if err != nil {
			return nil, err
		}
		if err := model.Fit(xg, yg); err != nil {
			return nil, fmt.Errorf("refit cluster %d (%s): %w", c, names[c], err)
		}
		final[c] = model
	}
	return final, nil
}

// selectRows copies the given rows of x into a new matrix.
func selectRows(x mat.Matrix, indices []int) *mat.Dense {
	_, d := x.Dims()
	out := mat.NewDense(len(indices), d, nil)
	row := make([]float64, d)
	for i, idx := range indices {
		mat.Row(row, idx, x)
		out.SetRow(i, row)
	}
	return out
}
