package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/log"
	"tracker/internal/store"
)

// Publisher sends record change notifications; *amqp.Client implements it.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error
}

var (
	_ store.Store      = (*RecordService)(nil)
	_ store.Subscriber = (*RecordService)(nil)
)

// RecordService wraps a record store, publishing a change message after
// every successful write and fanning changes out to subscribers.
type RecordService struct {
	store     store.Store
	publisher Publisher
	logger    *log.Logger

	mu      sync.Mutex
	subs    map[core.Kind]map[uint64]func([]core.Record)
	nextSub uint64
}

func NewRecordService(s store.Store, publisher Publisher, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecordService{
		store:     s,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentStore),
		subs:      make(map[core.Kind]map[uint64]func([]core.Record)),
	}
}

func (s *RecordService) List(ctx context.Context, kind core.Kind, filter store.Filter) ([]core.Record, error) {
	return s.store.List(ctx, kind, filter)
}

// Create saves the record and publishes a change message. A failed publish
// is logged; the record stays saved.
func (s *RecordService) Create(ctx context.Context, r core.Record) (core.Record, error) {
	created, err := s.store.Create(ctx, r)
	if err != nil {
		return core.Record{}, fmt.Errorf("create %s record: %w", r.Kind, err)
	}
	s.logger.InfoContext(ctx, "Record created", log.NewFields().WithRecord(string(created.Kind), created.ID).WithOperation(log.OpCreate).ToSlice()...)
	s.changed(ctx, created.Kind, created.ID, amqp.OpCreated, monthOf(created))
	return created, nil
}

// Update publishes the new month and, when the date moved to another month,
// the month the record left.
func (s *RecordService) Update(ctx context.Context, kind core.Kind, id string, patch store.Patch) (core.Record, error) {
	before := s.storedMonth(ctx, kind, id)
	updated, err := s.store.Update(ctx, kind, id, patch)
	if err != nil {
		return core.Record{}, fmt.Errorf("update %s record %s: %w", kind, id, err)
	}
	s.logger.InfoContext(ctx, "Record updated", log.NewFields().WithRecord(string(kind), id).WithOperation(log.OpUpdate).ToSlice()...)
	s.changed(ctx, kind, id, amqp.OpUpdated, monthOf(updated), before)
	return updated, nil
}

// Delete publishes the month the record was booked in.
func (s *RecordService) Delete(ctx context.Context, kind core.Kind, id string) error {
	before := s.storedMonth(ctx, kind, id)
	if err := s.store.Delete(ctx, kind, id); err != nil {
		return fmt.Errorf("delete %s record %s: %w", kind, id, err)
	}
	s.logger.InfoContext(ctx, "Record deleted", log.NewFields().WithRecord(string(kind), id).WithOperation(log.OpDelete).ToSlice()...)
	s.changed(ctx, kind, id, amqp.OpDeleted, before)
	return nil
}

// storedMonth returns the month key of the stored record, or "" when it
// cannot be read.
func (s *RecordService) storedMonth(ctx context.Context, kind core.Kind, id string) string {
	records, err := s.store.List(ctx, kind, store.Filter{})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read record before write",
			log.NewFields().WithRecord(string(kind), id).WithError(err).ToSlice()...)
		return ""
	}
	for _, r := range records {
		if r.ID == id {
			return monthOf(r)
		}
	}
	return ""
}

// Subscribe calls fn with the snapshot of kind now and after every write
// made through the service.
func (s *RecordService) Subscribe(kind core.Kind, fn func([]core.Record)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[kind] == nil {
		s.subs[kind] = make(map[uint64]func([]core.Record))
	}
	s.subs[kind][id] = fn
	s.mu.Unlock()

	s.deliver(context.Background(), kind, []func([]core.Record){fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[kind], id)
	}
}

// changed notifies subscribers once and publishes one message per distinct
// month. An empty first month still yields a message.
func (s *RecordService) changed(ctx context.Context, kind core.Kind, id string, op amqp.Op, months ...string) {
	s.mu.Lock()
	fns := make([]func([]core.Record), 0, len(s.subs[kind]))
	for _, fn := range s.subs[kind] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	s.deliver(ctx, kind, fns)

	if s.publisher == nil {
		return
	}
	for i, monthKey := range months {
		if i > 0 && (monthKey == "" || slices.Contains(months[:i], monthKey)) {
			continue
		}
		if err := s.publisher.PublishRecordChanged(ctx, amqp.NewRecordChangedMessage(kind, id, op, monthKey)); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish record change",
				log.NewFields().WithRecord(string(kind), id).WithOperation(log.OpPublish).WithError(err).ToSlice()...)
		}
	}
}

func (s *RecordService) deliver(ctx context.Context, kind core.Kind, fns []func([]core.Record)) {
	if len(fns) == 0 {
		return
	}
	snapshot, err := s.store.List(ctx, kind, store.Filter{})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load snapshot for subscribers",
			log.NewFields().WithRecord(string(kind), "").WithError(err).ToSlice()...)
		return
	}
	for _, fn := range fns {
		fn(snapshot)
	}
}

func monthOf(r core.Record) string {
	d, err := ledger.Normalize(r.Date, r.DateFormat)
	if err != nil {
		return ""
	}
	return d.MonthKey()
}

// Close closes the store and the publisher when it has a Close method.
func (s *RecordService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
