package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/join"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/metrics"
	"bank-analytics/pkg/schema"
	"bank-analytics/pkg/window"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Analysis names a report analysis.
type Analysis string

const (
	AnalysisTopCustomers      Analysis = "top_customers"
	AnalysisRunningTotals     Analysis = "running_totals"
	AnalysisMonthlyGrowth     Analysis = "monthly_growth"
	AnalysisQuartiles         Analysis = "quartiles"
	AnalysisSegments          Analysis = "segments"
	AnalysisMovingAverages    Analysis = "moving_averages"
	AnalysisInactiveCustomers Analysis = "inactive_customers"
	AnalysisChannelMix        Analysis = "channel_mix"
)

// Analyses lists every analysis in report order.
var Analyses = []Analysis{
	AnalysisTopCustomers,
	AnalysisRunningTotals,
	AnalysisMonthlyGrowth,
	AnalysisQuartiles,
	AnalysisSegments,
	AnalysisMovingAverages,
	AnalysisInactiveCustomers,
	AnalysisChannelMix,
}

// ParseAnalysis resolves a name, accepting dashes for underscores.
func ParseAnalysis(name string) (Analysis, error) {
	a := Analysis(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	for _, known := range Analyses {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", analytics.ErrUnknownAnalysis, name)
}

// joinMode returns the facts an analysis consumes.
func (a Analysis) joinMode() join.Mode {
	if a == AnalysisInactiveCustomers {
		return join.CustomerOuter
	}
	return join.Inner
}

// Assembler runs analyses over a store.
type Assembler struct {
	store     *schema.Store
	config    analytics.Config
	resolver  *join.Resolver
	collector metrics.Collector
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCollector records analysis runs on c.
func WithCollector(c metrics.Collector) Option {
	return func(a *Assembler) { a.collector = c }
}

// WithLogger sets the assembler logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithClock overrides the time source stamped on results.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler validates config and builds an assembler over store.
func NewAssembler(store *schema.Store, config analytics.Config, opts ...Option) (*Assembler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &Assembler{
		store:     store,
		config:    config,
		collector: metrics.NoOpCollector{},
		logger:    logging.L(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("report")
	a.resolver = join.NewResolver(store, join.ResolverConfig{
		Workers: config.Workers,
		Logger:  a.logger,
	})
	return a, nil
}

// Fingerprint returns the fingerprint of the underlying dataset.
func (a *Assembler) Fingerprint() string {
	return a.store.Fingerprint()
}

// Config returns the assembler configuration.
func (a *Assembler) Config() analytics.Config {
	return a.config
}

func (a *Assembler) window() window.Window {
	return window.Window{Size: a.config.MovingWindow, Partial: a.config.PartialWindows}
}

func (a *Assembler) resolve(ctx context.Context, mode join.Mode) ([]join.Fact, error) {
	start := time.Now()
	facts, err := a.resolver.Resolve(ctx, mode)
	if err != nil {
		return nil, err
	}
	a.collector.RecordResolve(mode.String(), len(facts), time.Since(start))
	return facts, nil
}

// compute runs analysis over already resolved facts.
func (a *Assembler) compute(analysis Analysis, facts []join.Fact) (any, int, error) {
	switch analysis {
	case AnalysisTopCustomers:
		rows, err := TopCustomers(facts, a.config.TopN)
		return rows, len(rows), err
	case AnalysisRunningTotals:
		rows, err := RunningTotals(facts)
		return rows, len(rows), err
	case AnalysisMonthlyGrowth:
		rows, err := MonthlyGrowth(facts)
		return rows, len(rows), err
	case AnalysisQuartiles:
		rows, err := Quartiles(facts)
		return rows, len(rows), err
	case AnalysisSegments:
		rows, err := Segments(facts, a.config.Quantiles)
		return rows, len(rows), err
	case AnalysisMovingAverages:
		rows, err := MovingAverages(facts, a.window())
		return rows, len(rows), err
	case AnalysisInactiveCustomers:
		rows, err := InactiveCustomers(facts)
		return rows, len(rows), err
	case AnalysisChannelMix:
		rows, err := ChannelMix(facts)
		return rows, len(rows), err
	default:
		return nil, 0, fmt.Errorf("%w: %q", analytics.ErrUnknownAnalysis, analysis)
	}
}

// observe computes analysis, records the run and tags any error.
func (a *Assembler) observe(runID string, analysis Analysis, facts []join.Fact) (any, int, error) {
	logger := a.logger.ForAnalysis(string(analysis), runID)
	start := time.Now()

	rows, n, err := a.compute(analysis, facts)
	duration := time.Since(start)
	err = analytics.WrapError(err, analytics.StageAssemble, string(analysis))
	a.collector.RecordAnalysis(string(analysis), n, duration, analytics.ClassifyError(err))

	if err != nil {
		logger.Warn("analysis failed", zap.Error(err), zap.Duration("duration", duration))
		return nil, 0, err
	}
	logger.Debug("analysis computed", zap.Int("rows", n), zap.Duration("duration", duration))
	return rows, n, nil
}

// Run resolves the facts an analysis needs and computes it.
// name is normalized with ParseAnalysis.
func (a *Assembler) Run(ctx context.Context, name Analysis) (*Result, error) {
	analysis, err := ParseAnalysis(string(name))
	if err != nil {
		a.collector.RecordAnalysis(string(name), 0, 0, analytics.ClassifyError(err))
		return nil, analytics.WrapError(err, analytics.StageAssemble, string(name))
	}

	runID := uuid.NewString()
	facts, err := a.resolve(ctx, analysis.joinMode())
	if err != nil {
		err = analytics.WrapError(err, analytics.StageResolve, string(analysis))
		a.collector.RecordAnalysis(string(analysis), 0, 0, analytics.ClassifyError(err))
		return nil, err
	}

	rows, n, err := a.observe(runID, analysis, facts)
	if err != nil {
		return nil, err
	}
	return &Result{
		Analysis:    analysis,
		RunID:       runID,
		Fingerprint: a.store.Fingerprint(),
		GeneratedAt: a.now().UTC(),
		RowCount:    n,
		Rows:        rows,
	}, nil
}

// All resolves facts once per join mode and computes every analysis
// concurrently. Either every analysis succeeds or the first error is returned.
func (a *Assembler) All(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	start := time.Now()

	inner, err := a.resolve(ctx, join.Inner)
	if err != nil {
		return nil, err
	}
	outer, err := a.resolve(ctx, join.CustomerOuter)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(Analyses))
	g, gctx := errgroup.WithContext(ctx)
	for i, analysis := range Analyses {
		facts := inner
		if analysis.joinMode() == join.CustomerOuter {
			facts = outer
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return analytics.WrapError(err, analytics.StageAssemble, string(analysis))
			}
			rows, _, err := a.observe(runID, analysis, facts)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{
		RunID:       runID,
		Fingerprint: a.store.Fingerprint(),
		GeneratedAt: a.now().UTC(),
		Stats:       a.store.Stats(),
	}
	for i, analysis := range Analyses {
		switch analysis {
		case AnalysisTopCustomers:
			r.TopCustomers = results[i].([]TopCustomerRow)
		case AnalysisRunningTotals:
			r.RunningTotals = results[i].([]RunningTotalRow)
		case AnalysisMonthlyGrowth:
			r.MonthlyGrowth = results[i].([]GrowthRow)
		case AnalysisQuartiles:
			r.Quartiles = results[i].([]QuartileRow)
		case AnalysisSegments:
			r.Segments = results[i].([]SegmentRow)
		case AnalysisMovingAverages:
			r.MovingAverages = results[i].([]MovingAverageRow)
		case AnalysisInactiveCustomers:
			r.InactiveCustomers = results[i].([]InactiveCustomerRow)
		case AnalysisChannelMix:
			r.ChannelMix = results[i].([]ChannelMixRow)
		}
	}

	a.logger.Info("report assembled",
		zap.String("run_id", runID),
		zap.String("fingerprint", r.Fingerprint),
		zap.Int("analyses", len(Analyses)),
		zap.Duration("duration", time.Since(start)),
	)
	return r, nil
}

// TopCustomers runs the top customers per branch analysis.
func (a *Assembler) TopCustomers(ctx context.Context) ([]TopCustomerRow, error) {
	return runTyped[[]TopCustomerRow](ctx, a, AnalysisTopCustomers)
}

// RunningTotals runs the running monthly totals analysis.
func (a *Assembler) RunningTotals(ctx context.Context) ([]RunningTotalRow, error) {
	return runTyped[[]RunningTotalRow](ctx, a, AnalysisRunningTotals)
}

// MonthlyGrowth runs the month over month growth analysis.
func (a *Assembler) MonthlyGrowth(ctx context.Context) ([]GrowthRow, error) {
	return runTyped[[]GrowthRow](ctx, a, AnalysisMonthlyGrowth)
}

// Quartiles runs the customer quartile analysis.
func (a *Assembler) Quartiles(ctx context.Context) ([]QuartileRow, error) {
	return runTyped[[]QuartileRow](ctx, a, AnalysisQuartiles)
}

// Segments runs the customer segmentation analysis with Config.Quantiles buckets.
func (a *Assembler) Segments(ctx context.Context) ([]SegmentRow, error) {
	return runTyped[[]SegmentRow](ctx, a, AnalysisSegments)
}

// MovingAverages runs the trailing monthly average analysis.
func (a *Assembler) MovingAverages(ctx context.Context) ([]MovingAverageRow, error) {
	return runTyped[[]MovingAverageRow](ctx, a, AnalysisMovingAverages)
}

// InactiveCustomers runs the inactive customers analysis.
func (a *Assembler) InactiveCustomers(ctx context.Context) ([]InactiveCustomerRow, error) {
	return runTyped[[]InactiveCustomerRow](ctx, a, AnalysisInactiveCustomers)
}

// ChannelMix runs the channel mix analysis.
func (a *Assembler) ChannelMix(ctx context.Context) ([]ChannelMixRow, error) {
	return runTyped[[]ChannelMixRow](ctx, a, AnalysisChannelMix)
}

func runTyped[R any](ctx context.Context, a *Assembler, analysis Analysis) (R, error) {
	var zero R
	res, err := a.Run(ctx, analysis)
	if err != nil {
		return zero, err
	}
	return res.Rows.(R), nil
}
