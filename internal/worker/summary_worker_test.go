package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/services"
	sheetsmem "tracker/internal/sheets/memory"
	"tracker/internal/store/memory"
)

func fixedClock() time.Time {
	return time.Date(2025, 4, 10, 12, 0, 0, 0, ledger.ReportingZone)
}

func newSummaries() *services.SummaryService {
	s := memory.New(
		core.Record{Kind: core.KindExpense, Date: "2025-04-01", Payload: core.Payload{core.FieldAmount: 1000.0, core.FieldDirection: "income"}},
		core.Record{Kind: core.KindExpense, Date: "2025-03-15", Payload: core.Payload{core.FieldAmount: 200.0, core.FieldDirection: "expense"}},
		core.Record{Kind: core.KindWeight, Date: "2025-04-09", Payload: core.Payload{core.FieldWeight: 70.0}},
	)
	return services.NewSummaryService(s, nil).WithClock(fixedClock)
}

type failingExporter struct{}

func (failingExporter) ExportMonthSummary(context.Context, ledger.CalendarSummary) (string, error) {
	return "", errors.New("quota exceeded")
}

// oneShotConsumer delivers its messages then blocks until cancelled.
type oneShotConsumer struct {
	msgs    []*amqp.RecordChangedMessage
	handled chan error
}

func (c *oneShotConsumer) ConsumeRecordChanges(ctx context.Context, handler func(context.Context, *amqp.RecordChangedMessage) error) error {
	for _, m := range c.msgs {
		c.handled <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleRecordChanged(t *testing.T) {
	tests := []struct {
		name      string
		msg       *amqp.RecordChangedMessage
		wantMonth string
	}{
		{"expense with month", amqp.NewRecordChangedMessage(core.KindExpense, "a", amqp.OpCreated, "2025-03"), "2025-03"},
		{"expense delete uses current month", amqp.NewRecordChangedMessage(core.KindExpense, "a", amqp.OpDeleted, ""), "2025-04"},
		{"malformed month falls back", amqp.NewRecordChangedMessage(core.KindExpense, "a", amqp.OpUpdated, "2025-13"), "2025-04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := sheetsmem.New()
			w := NewSummaryWorker(newSummaries(), exp, Config{}, nil)

			require.NoError(t, w.HandleRecordChanged(context.Background(), tt.msg))
			assert.Equal(t, 1, exp.Count())
			_, ok := exp.Rows(tt.wantMonth)
			assert.True(t, ok, "month %s not exported", tt.wantMonth)
		})
	}
}

func TestHandleRecordChangedOtherKinds(t *testing.T) {
	exp := sheetsmem.New()
	w := NewSummaryWorker(newSummaries(), exp, Config{}, nil)

	require.NoError(t, w.HandleRecordChanged(context.Background(), amqp.NewRecordChangedMessage(core.KindWeight, "w", amqp.OpCreated, "2025-04")))
	require.NoError(t, w.HandleRecordChanged(context.Background(), amqp.NewRecordChangedMessage(core.KindWorkout, "x", amqp.OpCreated, "2025-04")))
	assert.Equal(t, 0, exp.Count())
}

func TestExportMonth(t *testing.T) {
	exp := sheetsmem.New()
	w := NewSummaryWorker(newSummaries(), exp, Config{}, nil)

	ref, err := w.ExportMonth(context.Background(), ledger.Month{Year: 2025, Month: 4})
	require.NoError(t, err)
	assert.Equal(t, "mem:2025-04", ref)

	rows, ok := exp.Rows("2025-04")
	require.True(t, ok)
	assert.Equal(t, []any{"2025-04-01", 1000.0, 0.0, 1000.0}, rows[1])
}

func TestExportMonthWithoutExporter(t *testing.T) {
	w := NewSummaryWorker(newSummaries(), nil, Config{}, nil)
	ref, err := w.ExportMonth(context.Background(), ledger.Month{Year: 2025, Month: 4})
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestExportMonthFailure(t *testing.T) {
	w := NewSummaryWorker(newSummaries(), failingExporter{}, Config{}, nil)
	_, err := w.ExportMonth(context.Background(), ledger.Month{Year: 2025, Month: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestStartupExport(t *testing.T) {
	exp := sheetsmem.New()
	w := NewSummaryWorker(newSummaries(), exp, Config{}, nil)

	require.NoError(t, w.StartupExport(context.Background()))
	_, ok := exp.Rows("2025-04")
	assert.True(t, ok)

	bad := NewSummaryWorker(newSummaries(), failingExporter{}, Config{}, nil)
	assert.Error(t, bad.StartupExport(context.Background()))
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	exp := sheetsmem.New()
	w := NewSummaryWorker(newSummaries(), exp, Config{Interval: time.Hour}, nil)
	consumer := &oneShotConsumer{
		msgs:    []*amqp.RecordChangedMessage{amqp.NewRecordChangedMessage(core.KindExpense, "a", amqp.OpCreated, "2025-03")},
		handled: make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	select {
	case err := <-consumer.handled:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("message not handled")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, ok := exp.Rows("2025-03")
	assert.True(t, ok)
}

func TestRunTickerExports(t *testing.T) {
	exp := sheetsmem.New()
	w := NewSummaryWorker(newSummaries(), exp, Config{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, nil) }()

	assert.Eventually(t, func() bool {
		_, ok := exp.Rows("2025-04")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

type capturePublisher struct {
	msgs []*amqp.RecordChangedMessage
}

func (p *capturePublisher) PublishRecordChanged(_ context.Context, msg *amqp.RecordChangedMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestDeletePastMonthReexportsThatMonth(t *testing.T) {
	ctx := context.Background()
	s := memory.New(
		core.Record{ID: "old", Kind: core.KindExpense, Date: "2025-03-15", Payload: core.Payload{core.FieldAmount: 200.0, core.FieldDirection: "expense"}},
	)
	pub := &capturePublisher{}
	records := services.NewRecordService(s, pub, nil)
	summaries := services.NewSummaryService(records, nil).WithClock(fixedClock)
	exp := sheetsmem.New()
	w := NewSummaryWorker(summaries, exp, Config{}, nil)

	require.NoError(t, records.Delete(ctx, core.KindExpense, "old"))
	require.Len(t, pub.msgs, 1)
	require.NoError(t, w.HandleRecordChanged(ctx, pub.msgs[0]))

	rows, ok := exp.Rows("2025-03")
	require.True(t, ok, "month the record left must be re-exported")
	_, current := exp.Rows("2025-04")
	assert.False(t, current)
	assert.Equal(t, []any{"Total", 0.0, 0.0, 0.0}, rows[len(rows)-2])
}
