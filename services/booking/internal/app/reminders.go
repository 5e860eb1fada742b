package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicebay/internal/util"
	"servicebay/pkg/domain"
	"servicebay/pkg/events"
)

// ListUserReminders returns the caller's reminders, latest scheduled first.
func (a *App) ListUserReminders(_ context.Context, userID string) ([]domain.Reminder, error) {
	if userID == "" {
		return []domain.Reminder{}, nil
	}
	reminders, err := a.store.ListRemindersByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// DispatchDueReminders publishes one event per unsent reminder scheduled in
// (from, to]. Delivery and the sent flag belong to the consumer, so nothing
// is written back. It returns how many events were published.
func (a *App) DispatchDueReminders(ctx context.Context, from, to time.Time) (int, error) {
	if a.publisher == nil {
		return 0, fmt.Errorf("event publisher: %w", ErrConfiguration)
	}
	if !to.After(from) {
		return 0, nil
	}
	due, err := a.store.ListPendingReminders(from, to)
	if err != nil {
		return 0, fmt.Errorf("list pending reminders: %w", err)
	}
	logger := util.LoggerFromContext(ctx)
	published := 0
	var errs []error
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := a.publisher.Publish(ctx, events.RoutingReminderDue, events.NewReminderDue(r)); err != nil {
			logger.Warn("publish reminder failed", "reminder_id", r.ID, "err", err)
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
			continue
		}
		published++
	}
	if len(due) > 0 {
		logger.Info("reminders dispatched", "due", len(due), "published", published, "from", from, "to", to)
	}
	return published, errors.Join(errs...)
}

// ReminderCheckpoint persists the upper bound of the last dispatched window
// so a restarted worker resumes where the previous one stopped.
type ReminderCheckpoint interface {
	Load(ctx context.Context) (time.Time, bool, error)
	Save(ctx context.Context, t time.Time) error
}

// DispatchReminderWindow dispatches (checkpoint, now] and advances the
// checkpoint to now. Without a saved checkpoint the window opens lookback
// before now. Publish failures still advance the checkpoint; cancellation
// does not.
func (a *App) DispatchReminderWindow(ctx context.Context, checkpoint ReminderCheckpoint, lookback time.Duration) (int, error) {
	now := a.now().UTC()
	from, ok, err := checkpoint.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load reminder checkpoint: %w", err)
	}
	if !ok {
		from = now.Add(-lookback)
	}
	if !now.After(from) {
		return 0, nil
	}
	n, dispatchErr := a.DispatchDueReminders(ctx, from, now)
	if ctx.Err() != nil {
		return n, errors.Join(dispatchErr, ctx.Err())
	}
	if err := checkpoint.Save(ctx, now); err != nil {
		return n, errors.Join(dispatchErr, fmt.Errorf("save reminder checkpoint: %w", err))
	}
	return n, dispatchErr
}
