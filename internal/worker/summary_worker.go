package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/log"
	"tracker/internal/services"
	"tracker/internal/sheets"
)

// Consumer delivers record-change notifications to a handler until ctx ends.
type Consumer interface {
	ConsumeRecordChanges(ctx context.Context, handler func(context.Context, *amqp.RecordChangedMessage) error) error
}

// Config holds the worker's tunables.
type Config struct {
	// Interval is how often the current month is re-exported (default: 15m).
	Interval time.Duration

	// TrendWindow is the trailing window, in days, of the weight trend (default: 30).
	TrendWindow int
}

func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		TrendWindow: 30,
	}
}

// SummaryWorker recomputes summaries when records change and exports the
// expense month summary.
type SummaryWorker struct {
	summaries *services.SummaryService
	exporter  sheets.SummaryExporter
	logger    *log.Logger
	config    Config
}

func NewSummaryWorker(summaries *services.SummaryService, exporter sheets.SummaryExporter, config Config, logger *log.Logger) *SummaryWorker {
	if logger == nil {
		logger = log.Discard()
	}
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.TrendWindow <= 0 {
		config.TrendWindow = def.TrendWindow
	}
	return &SummaryWorker{
		summaries: summaries,
		exporter:  exporter,
		logger:    logger.WithComponent(log.ComponentWorker),
		config:    config,
	}
}

// HandleRecordChanged processes a single record-change message from AMQP.
func (w *SummaryWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing record change",
		log.FieldKind, msg.Kind,
		log.FieldRecordID, msg.ID,
		"op", msg.Op,
		log.FieldMonth, msg.MonthKey)

	switch msg.Kind {
	case core.KindExpense:
		month := w.summaries.Today().MonthOf()
		if msg.MonthKey != "" {
			m, err := ledger.ParseMonth(msg.MonthKey)
			if err != nil {
				w.logger.WarnContext(ctx, "Ignoring malformed month key, using current month",
					log.FieldMonth, msg.MonthKey, log.FieldError, err)
			} else {
				month = m
			}
		}
		_, err := w.ExportMonth(ctx, month)
		return err
	case core.KindWeight:
		return w.RefreshTrend(ctx)
	default:
		w.logger.DebugContext(ctx, "No summary to refresh for kind", log.FieldKind, msg.Kind)
		return nil
	}
}

// ExportMonth recomputes the expense calendar of month and exports it.
// Without an exporter the summary is only computed and logged.
func (w *SummaryWorker) ExportMonth(ctx context.Context, month ledger.Month) (string, error) {
	summary, err := w.summaries.CalendarSummary(ctx, month)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", month.Key(), err)
	}

	fields := log.NewFields().
		WithOperation(log.OpExport).
		WithProblems(summary.Problems.Skipped(), len(summary.Problems))
	fields[log.FieldMonth] = month.Key()
	fields["net"] = summary.Balance.Net()

	if w.exporter == nil {
		w.logger.InfoContext(ctx, "Month summary computed, no exporter configured", fields.ToSlice()...)
		return "", nil
	}

	ref, err := w.exporter.ExportMonthSummary(ctx, summary)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export month summary", fields.WithError(err).ToSlice()...)
		return "", fmt.Errorf("export %s: %w", month.Key(), err)
	}
	fields["ref"] = ref
	w.logger.InfoContext(ctx, "Month summary exported", fields.ToSlice()...)
	return ref, nil
}

// RefreshTrend recomputes the trailing weight trend.
func (w *SummaryWorker) RefreshTrend(ctx context.Context) error {
	view, err := w.summaries.Trend(ctx, core.KindWeight, "", w.config.TrendWindow)
	if err != nil {
		return fmt.Errorf("weight trend: %w", err)
	}
	w.logger.InfoContext(ctx, "Weight trend refreshed",
		log.FieldWindow, view.WindowDays,
		"points", len(view.Points),
		"average", view.DisplayAverage,
		"latest", view.DisplayLatest,
		log.FieldSkipped, view.Skipped)
	return nil
}

// StartupExport refreshes every summary the worker owns. Useful to recover
// from messages missed while the worker was down.
func (w *SummaryWorker) StartupExport(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := w.ExportMonth(gctx, w.summaries.Today().MonthOf())
		return err
	})
	g.Go(func() error {
		return w.RefreshTrend(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup export: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup export completed")
	return nil
}

// Run consumes record changes and re-exports the current month on every
// tick until ctx is cancelled. A nil consumer runs the ticker only.
func (w *SummaryWorker) Run(ctx context.Context, consumer Consumer) error {
	g, gctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeRecordChanges(gctx, w.HandleRecordChanged)
		})
	}
	g.Go(func() error {
		w.runLoop(gctx)
		return nil
	})

	w.logger.InfoContext(ctx, "Summary worker started", "interval", w.config.Interval)
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	w.logger.InfoContext(ctx, "Summary worker stopped")
	return nil
}

func (w *SummaryWorker) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ExportMonth(ctx, w.summaries.Today().MonthOf()); err != nil {
				w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldError, err)
			}
		}
	}
}
