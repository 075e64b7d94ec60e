package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"orgadmin/internal/audit"
)

type contextKey string

const (
	txKey  contextKey = "gorm_tx"
	uowKey contextKey = "unit_of_work"
)

// TransactionManager runs a function as one unit of work: staged entities
// are stamped and written when fn returns nil, and nothing is written otherwise.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// ChangeNotifier receives the stamped changes of each committed unit of work.
type ChangeNotifier interface {
	Publish(changes []audit.Change)
}

// CommitObserver records unit of work outcomes.
type CommitObserver interface {
	ObserveStamp(entity, kind string)
	ObserveCommit(d time.Duration, err error)
}

type TxOption func(*transactionManager)

func WithNotifier(n ChangeNotifier) TxOption {
	return func(t *transactionManager) { t.notifier = n }
}

func WithObserver(o CommitObserver) TxOption {
	return func(t *transactionManager) { t.observer = o }
}

func WithClock(now func() time.Time) TxOption {
	return func(t *transactionManager) { t.now = now }
}

func WithLogger(log *logrus.Logger) TxOption {
	return func(t *transactionManager) { t.log = log.WithField("component", "uow") }
}

type transactionManager struct {
	db       *gorm.DB
	notifier ChangeNotifier
	observer CommitObserver
	now      func() time.Time
	log      *logrus.Entry
}

func NewTransactionManager(db *gorm.DB, opts ...TxOption) TransactionManager {
	t := &transactionManager{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: logrus.NewEntry(logrus.StandardLogger()).WithField("component", "uow"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunInTx joins the unit of work already in ctx, or opens a new one. Only the
// outermost call flushes and commits.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if unitFrom(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := otel.Tracer("orgadmin/repository").Start(ctx, "uow.commit")
	defer span.End()
	start := time.Now()

	var (
		u       *unitOfWork
		changes []audit.Change
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u = newUnitOfWork(tx)
		txCtx := context.WithValue(context.WithValue(ctx, txKey, tx), uowKey, u)
		if err := fn(txCtx); err != nil {
			return err
		}
		// an abandoned request never stamps
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		changes, err = u.flush(audit.ActorFrom(ctx), t.now())
		return err
	})
	if err != nil {
		if u != nil {
			u.rollback()
		}
		err = translateError(err, "record")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.observe(time.Since(start), err, nil)
		return err
	}

	u.committed()
	span.SetAttributes(attribute.Int("uow.changes", len(changes)))
	t.observe(time.Since(start), nil, changes)
	if t.notifier != nil && len(changes) > 0 {
		t.notifier.Publish(changes)
	}
	t.log.WithField("changes", len(changes)).Debug("unit of work committed")
	return nil
}

func (t *transactionManager) observe(d time.Duration, err error, changes []audit.Change) {
	if t.observer == nil {
		return
	}
	for _, c := range changes {
		t.observer.ObserveStamp(c.Entity, c.Kind)
	}
	t.observer.ObserveCommit(d, err)
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
