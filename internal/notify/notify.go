// Package notify delivers notifications to plan members. Every notification
// is written to the recipient's store-backed inbox (clients drain it and mark
// entries sent) and, when push is configured, additionally sent to each of
// the recipient's registered device tokens. Delivery is fire-and-forget:
// failures are logged and counted, never propagated to the state write that
// triggered them.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/metrics"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// Notifier is the side-effect boundary the reducer and gates depend on.
type Notifier interface {
	Notify(ctx context.Context, recipientUID, title, body, category, planID string)
}

// PushSender sends one push message to one device token.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Dispatcher implements Notifier on top of the document store and an
// optional push sender.
type Dispatcher struct {
	store  store.Store
	push   PushSender
	logger *logrus.Logger
	now    func() time.Time
	newID  func() string
}

// NewDispatcher creates a Dispatcher. push may be nil when push delivery is
// disabled; the store-backed inbox still works.
func NewDispatcher(st store.Store, push PushSender, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:  st,
		push:   push,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, recipientUID, title, body, category, planID string) {
	var errs *multierror.Error

	n := models.Notification{
		ID:        d.newID(),
		To:        recipientUID,
		Title:     title,
		Body:      body,
		Category:  category,
		PlanID:    planID,
		Status:    models.NotificationPending,
		CreatedAt: d.now(),
	}
	if err := d.store.Insert(ctx, store.CollectionNotifications, n.ID, n); err != nil {
		errs = multierror.Append(errs, err)
	}

	if d.push != nil {
		errs = multierror.Append(errs, d.sendPush(ctx, recipientUID, title, body, category, planID)...)
	}

	metrics.NotificationsTotal.WithLabelValues(category).Inc()
	if err := errs.ErrorOrNil(); err != nil {
		metrics.NotificationFailures.Inc()
		d.logger.WithError(err).WithFields(logrus.Fields{
			"recipient": recipientUID,
			"category":  category,
		}).Warn("notification delivery incomplete")
	}
}

// sendPush fans the message out to every registered token of the recipient.
// Tokens accumulate without pruning, so failures for dead tokens are routine.
func (d *Dispatcher) sendPush(ctx context.Context, recipientUID, title, body, category, planID string) []error {
	var profile models.UserProfile
	if err := d.store.Get(ctx, store.CollectionUsers, recipientUID, &profile); err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return []error{err}
	}

	data := map[string]string{"category": category}
	if planID != "" {
		data["planId"] = planID
	}

	var errs []error
	for _, token := range profile.FCMTokens {
		if err := d.push.Send(ctx, token, title, body, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
