package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guardpost/guardpost/internal/shared"
)

const writeTimeout = 5 * time.Second

// Writer persists a single entry inside its own transaction.
type Writer interface {
	Insert(ctx context.Context, entry Entry) error
}

// Recorder is the audit sink. It implements shared.Auditor.
type Recorder struct {
	store    Writer
	logger   *slog.Logger
	failures prometheus.Counter
	now      func() time.Time
}

// NewRecorder wires the sink. A nil registerer skips metric registration.
func NewRecorder(store Writer, logger *slog.Logger, registerer prometheus.Registerer) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardpost_audit_write_failures_total",
		Help: "Audit entries whose primary write failed.",
	})
	if registerer != nil {
		registerer.MustRegister(failures)
	}
	return &Recorder{
		store:    store,
		logger:   logger,
		failures: failures,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one entry attributed to the identity in ctx. When the write
// fails a single ERROR_LOG entry describing the failure is attempted; if that
// fails too the error is logged and dropped.
func (r *Recorder) Record(ctx context.Context, operation, entity, description string, changes any) {
	if r == nil || r.store == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("audit: recovered panic", slog.Any("panic", p))
		}
	}()

	sess := shared.SessionFromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	entry, err := r.build(sess, operation, entity, description, changes)
	if err == nil {
		err = r.store.Insert(ctx, entry)
	}
	if err == nil {
		return
	}
	r.failures.Inc()

	systemID := SystemActorID
	fallback := Entry{
		At:          r.now(),
		ActorID:     &systemID,
		ActorName:   SystemActorName,
		ActorRole:   SystemActorRole,
		Operation:   shared.OpErrorLog,
		Entity:      shared.EntityLog,
		Description: fmt.Sprintf("Falha ao registrar log %q/%q: %v", operation, entity, err),
	}
	if ferr := r.store.Insert(ctx, fallback); ferr != nil {
		r.logger.Error("audit: fallback write failed",
			slog.String("operation", operation),
			slog.String("entity", entity),
			slog.Any("error", err),
			slog.Any("fallback_error", ferr))
	}
}

func (r *Recorder) build(sess *shared.Session, operation, entity, description string, changes any) (Entry, error) {
	operation = strings.TrimSpace(operation)
	entity = strings.TrimSpace(entity)
	if operation == "" || entity == "" {
		return Entry{}, errors.New("audit: operation and entity tags are required")
	}
	entry := Entry{
		At:          r.now(),
		Operation:   operation,
		Entity:      entity,
		Description: description,
	}
	if id, name, role, ok := sess.Identity(); ok {
		entry.ActorID = &id
		entry.ActorName = name
		entry.ActorRole = role
	} else {
		systemID := SystemActorID
		entry.ActorID = &systemID
		entry.ActorName = SystemActorName
		entry.ActorRole = SystemActorRole
	}
	payload, err := encodeChanges(changes)
	if err != nil {
		return Entry{}, err
	}
	entry.Changes = payload
	return entry, nil
}

func encodeChanges(changes any) (*string, error) {
	switch v := changes.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case []byte:
		s := string(v)
		return &s, nil
	case json.RawMessage:
		s := string(v)
		return &s, nil
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("audit: encode changes: %w", err)
	}
	s := string(raw)
	return &s, nil
}

var _ shared.Auditor = (*Recorder)(nil)
