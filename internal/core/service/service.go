package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/state"
	"github.com/rl1809/warehouse-flow/internal/port"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Store    port.DocumentStore
	Identity port.IdentityProvider
	Guard    port.CommandGuard
	Notifier port.Notifier
	Metrics  port.MetricsRecorder
	Mirror   *state.Mirror
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

type base struct {
	Deps
	audit *AuditSink
}

func newBase(d Deps) base {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return base{Deps: d, audit: NewAuditSink(d.NewID, d.Now)}
}

// run wraps a public operation. A failure is logged, counted and sent to
// the caller as an error notice before being returned.
func (b *base) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	token, err := b.claimIdempotency(ctx, op)
	if err == nil {
		err = fn()
		if err != nil && token != "" {
			b.forgetIdempotency(ctx, token)
		}
	}
	if b.Metrics != nil {
		b.Metrics.Observe(ctx, op, err == nil, time.Since(start))
	}

	userID := domain.UserIDFromContext(ctx)
	if err != nil {
		b.Logger.Warn("operation failed",
			zap.String("operation", op),
			zap.String("user", userID),
			zap.Error(err),
		)
		if b.Notifier != nil {
			b.Notifier.Notify(ctx, domain.Notice{
				UserID:    userID,
				Level:     domain.NoticeError,
				Operation: op,
				Message:   userMessage(err),
			})
		}
		return err
	}

	b.Logger.Debug("operation succeeded",
		zap.String("operation", op),
		zap.String("user", userID),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "You do not have permission to do that."
	case errors.Is(err, domain.ErrUnauthenticated):
		return "Please sign in first."
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrOptimisticLock):
		return "Someone else changed this record, refresh and try again."
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "This action was already submitted."
	case errors.Is(err, domain.ErrStoreWrite):
		return "Saving failed, please try again."
	}
	return err.Error()
}

func (b *base) principal(ctx context.Context) (domain.Principal, error) {
	identity, err := b.Identity.CurrentPrincipal(ctx)
	if err != nil {
		return domain.Principal{}, err
	}
	profile, err := b.Identity.UserProfile(ctx, identity.ID)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("load profile for %s: %w", identity.ID, err)
	}
	return domain.Principal{Identity: identity, Profile: profile}, nil
}

func denied(action string) error {
	return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, action)
}

func itemKey(id string) string     { return "item:" + id }
func taskKey(id string) string     { return "task:" + id }
func requestKey(id string) string  { return "request:" + id }
func transferKey(id string) string { return "transfer:" + id }

// lock claims the entity keys for the rest of the command.
func (b *base) lock(ctx context.Context, keys ...string) (func(), error) {
	unlock, err := b.Guard.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			b.Logger.Warn("failed to release lock", zap.Strings("keys", keys), zap.Error(err))
		}
	}, nil
}

// claimIdempotency rejects a command whose client token was already used.
// It returns the claimed token, or "" when the caller sent none.
func (b *base) claimIdempotency(ctx context.Context, op string) (string, error) {
	key := domain.IdempotencyKeyFromContext(ctx)
	if key == "" {
		return "", nil
	}
	token := op + ":" + key
	ok, err := b.Guard.Remember(ctx, token)
	if err != nil {
		return "", fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return "", domain.ErrDuplicateRequest
	}
	return token, nil
}

// forgetIdempotency releases the token of a failed command so the client
// can resubmit it.
func (b *base) forgetIdempotency(ctx context.Context, token string) {
	if err := b.Guard.Forget(context.WithoutCancel(ctx), token); err != nil {
		b.Logger.Warn("failed to release idempotency token", zap.String("token", token), zap.Error(err))
	}
}

// pendingRequestFor reports the kind of pending request referencing the
// item, read from the store rather than the mirror.
func (b *base) pendingRequestFor(ctx context.Context, itemID string) (string, error) {
	pending, err := b.pendingRequests(ctx)
	if err != nil {
		return "", err
	}
	return pending[itemID], nil
}

// pendingRequests maps every item id with a pending request to the
// request kind, "delivery" or "return".
func (b *base) pendingRequests(ctx context.Context) (map[string]string, error) {
	pending := make(map[string]string)
	deliveries, err := listAll[domain.DeliveryRequest](ctx, b.Store, domain.CollectionDeliveryRequests)
	if err != nil {
		return nil, err
	}
	for _, d := range deliveries {
		if d.Pending() {
			pending[d.ItemID] = "delivery"
		}
	}
	returns, err := listAll[domain.ReturnRequest](ctx, b.Store, domain.CollectionReturnRequests)
	if err != nil {
		return nil, err
	}
	for _, r := range returns {
		if r.Pending() {
			pending[r.ItemID] = "return"
		}
	}
	return pending, nil
}

// pendingTransferFor returns the id of a pending transfer listing the item,
// or "".
func (b *base) pendingTransferFor(ctx context.Context, itemID string) (string, error) {
	transfers, err := listAll[domain.Transfer](ctx, b.Store, domain.CollectionTransfers)
	if err != nil {
		return "", err
	}
	for _, t := range transfers {
		if t.Pending() && slices.Contains(t.ItemIDs, itemID) {
			return t.ID, nil
		}
	}
	return "", nil
}

func (b *base) commit(ctx context.Context, cs *changeSet) error {
	if cs.err != nil {
		return cs.err
	}
	if err := b.Store.Commit(ctx, cs.mutations...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWrite, err)
	}
	return nil
}

func load[T any](ctx context.Context, store port.DocumentStore, c domain.Collection, id string) (T, int64, error) {
	var v T
	doc, err := store.Get(ctx, c, id)
	if err != nil {
		return v, 0, err
	}
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, 0, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return v, doc.Version, nil
}

func listAll[T any](ctx context.Context, store port.DocumentStore, c domain.Collection) ([]T, error) {
	docs, err := store.List(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c, doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// changeSet collects the mutations of one command so they commit together.
type changeSet struct {
	mutations []port.Mutation
	err       error
}

func (cs *changeSet) encode(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil && cs.err == nil {
		cs.err = fmt.Errorf("encode document: %w", err)
	}
	return data
}

// create fails the commit if the document already exists.
func (cs *changeSet) create(c domain.Collection, id string, v any) {
	cs.mutations = append(cs.mutations, port.WriteMutation(c, id, cs.encode(v)).Expect(0))
}

// put replaces a document read at version.
func (cs *changeSet) put(c domain.Collection, id string, v any, version int64) {
	cs.mutations = append(cs.mutations, port.WriteMutation(c, id, cs.encode(v)).Expect(version))
}

func (cs *changeSet) remove(c domain.Collection, id string, version int64) {
	cs.mutations = append(cs.mutations, port.DeleteMutation(c, id).Expect(version))
}

func (cs *changeSet) log(entry domain.LogEntry) {
	cs.create(domain.CollectionLogs, entry.ID, entry)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
