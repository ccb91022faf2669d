// Package trainer runs the combination search: every requested
// (classifier, normalizer, balancer) triple is trained and scored on a
// shared validation split, and the best scorer is selected.
package trainer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radon-h2020/radon-defect-predictor/balance"
	"github.com/radon-h2020/radon-defect-predictor/classifier"
	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/dataset"
	"github.com/radon-h2020/radon-defect-predictor/normalize"
	"github.com/radon-h2020/radon-defect-predictor/pkg/metrics"
)

// Options configures one training run. Zero values mean defaults: all
// variants on an empty axis, validation ratio 0.25, one worker per CPU,
// no deadline.
type Options struct {
	Classifiers     []core.ClassifierKind
	Normalizers     []core.NormalizerKind
	Balancers       []core.BalancerKind
	Seed            int64
	ValidationRatio float64
	Workers         int
	Budget          time.Duration
}

func (o Options) withDefaults() Options {
	if len(o.Classifiers) == 0 {
		o.Classifiers = core.Classifiers
	}
	if len(o.Normalizers) == 0 {
		o.Normalizers = core.Normalizers
	}
	if len(o.Balancers) == 0 {
		o.Balancers = core.Balancers
	}
	o.Classifiers = dedupe(o.Classifiers)
	o.Normalizers = dedupe(o.Normalizers)
	o.Balancers = dedupe(o.Balancers)
	if o.ValidationRatio == 0 {
		o.ValidationRatio = 0.25
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := in[:0:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Trainer owns one validated Options set and is safe for repeated runs.
type Trainer struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.PipelineMetrics
	tracer  trace.Tracer
}

// New validates opts and builds a Trainer. logger may be nil.
func New(opts Options, logger *zap.Logger, m *metrics.PipelineMetrics) (*Trainer, error) {
	opts = opts.withDefaults()
	if opts.ValidationRatio <= 0 || opts.ValidationRatio >= 1 {
		return nil, fmt.Errorf("validation ratio %v outside (0,1)", opts.ValidationRatio)
	}
	if opts.Budget < 0 {
		return nil, fmt.Errorf("negative budget %v", opts.Budget)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		opts:    opts,
		logger:  logger.With(zap.String("component", "trainer")),
		metrics: m,
		tracer:  otel.Tracer("trainer"),
	}, nil
}

// Train searches the combination grid over ds and returns the selected
// model together with every evaluated candidate. Per-candidate fit
// failures never abort the search; they come back with the failing
// sentinel score. When every candidate failed the error matches
// core.ErrNoViableModel and the candidates are still returned.
func (t *Trainer) Train(ctx context.Context, ds core.Dataset) (*core.SelectedModel, []core.Candidate, error) {
	if t.opts.Budget > 0 {
		return t.runWithBudget(ctx, ds)
	}
	return t.run(ctx, ds)
}

func (t *Trainer) run(ctx context.Context, ds core.Dataset) (*core.SelectedModel, []core.Candidate, error) {
	ctx, span := t.tracer.Start(ctx, "train")
	defer span.End()

	runID := uuid.NewString()
	combos := core.Combinations(t.opts.Classifiers, t.opts.Normalizers, t.opts.Balancers)
	log := t.logger.With(zap.String("run_id", runID))
	log.Info("training started",
		zap.Int("rows", ds.NumRows()),
		zap.Int("combinations", len(combos)),
		zap.Int64("seed", t.opts.Seed),
		zap.Int("workers", t.opts.Workers))

	train, valid, err := dataset.Partition(ds, t.opts.ValidationRatio, t.opts.Seed)
	if err != nil {
		t.metrics.RecordRun("failed")
		return nil, nil, err
	}
	Xt, yt, err := dataset.Split(train)
	if err != nil {
		t.metrics.RecordRun("failed")
		return nil, nil, err
	}
	Xv, yv, err := dataset.Split(valid)
	if err != nil {
		t.metrics.RecordRun("failed")
		return nil, nil, err
	}

	// The grid is embarrassingly parallel: the splits are shared
	// read-only and every candidate writes only its own slot.
	candidates := make([]core.Candidate, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, combo := range combos {
		g.Go(func() error {
			// Cancellation is cooperative between combinations; a
			// running fit always completes its slot.
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			candidates[i] = t.evaluate(gctx, combo, Xt, yt, Xv, yv)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.metrics.RecordRun("canceled")
		return nil, nil, fmt.Errorf("training aborted: %w", err)
	}

	for _, c := range candidates {
		status := "ok"
		if c.Failed() {
			status = "failed"
		}
		t.metrics.RecordCandidate(
			string(c.Combo.Classifier), string(c.Combo.Normalizer), string(c.Combo.Balancer),
			status, c.Elapsed)
		if c.Failed() {
			log.Warn("candidate failed",
				zap.String("combination", c.Combo.String()),
				zap.String("reason", c.FitErr))
		} else {
			log.Debug("candidate evaluated",
				zap.String("combination", c.Combo.String()),
				zap.Float64("f1", c.Score),
				zap.Duration("elapsed", c.Elapsed))
		}
	}

	best, err := SelectBest(candidates)
	if err != nil {
		t.metrics.RecordRun("failed")
		log.Error("no candidate survived", zap.Int("failed", len(candidates)))
		return nil, candidates, err
	}

	model := &core.SelectedModel{
		RunID:     runID,
		Features:  ds.FeatureColumns(),
		Combo:     best.Combo,
		Model:     best.Model,
		Scale:     best.Scale,
		Score:     best.Score,
		Seed:      t.opts.Seed,
		TrainedAt: time.Now().UTC(),
	}
	t.metrics.RecordRun("ok")
	span.SetAttributes(attribute.String("selected", best.Combo.String()))
	log.Info("training finished",
		zap.String("selected", best.Combo.String()),
		zap.Float64("f1", best.Score))
	return model, candidates, nil
}

// evaluate trains and scores one combination. Failures are contained in
// the candidate, never propagated.
func (t *Trainer) evaluate(ctx context.Context, combo core.Combination, Xt [][]float64, yt []int, Xv [][]float64, yv []int) core.Candidate {
	_, span := t.tracer.Start(ctx, "evaluate",
		trace.WithAttributes(attribute.String("combination", combo.String())))
	defer span.End()

	start := time.Now()
	cand := core.Candidate{Combo: combo, Score: core.FailedScore}
	fail := func(stage string, err error) core.Candidate {
		cand.FitErr = fmt.Sprintf("%s: %v", stage, err)
		cand.Elapsed = time.Since(start)
		return cand
	}

	bal, err := balance.New(combo.Balancer)
	if err != nil {
		return fail("balancer", err)
	}
	Xb, yb := bal.Balance(Xt, yt, t.opts.Seed)

	norm, err := normalize.New(combo.Normalizer)
	if err != nil {
		return fail("normalizer", err)
	}
	params, err := norm.Fit(Xb)
	if err != nil {
		return fail("fit normalizer", err)
	}
	Xbn := normalize.Apply(params, Xb)
	Xvn := normalize.Apply(params, Xv)

	model, err := classifier.New(combo.Classifier, t.opts.Seed)
	if err != nil {
		return fail("classifier", err)
	}
	if err := model.Fit(Xbn, yb); err != nil {
		return fail("fit classifier", err)
	}
	probs, err := model.PredictProba(Xvn)
	if err != nil {
		return fail("score", err)
	}
	_, _, f1 := PrecisionRecallF1(yv, classifier.Labels(probs))

	cand.Model = model
	cand.Scale = params
	cand.Score = f1
	cand.Elapsed = time.Since(start)
	return cand
}
