// Package notify turns watch matches into persisted in-app
// notifications and, for opted-in users, push messages.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/observability"
	"github.com/example/liftmatch/internal/storage"
)

// PushPayload is the single message delivered to all of one user's
// devices for one trigger ride.
type PushPayload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	RideID string `json:"ride_id"`
}

// PushReceipt reports a send attempt. Endpoints the gateway flags as
// expired are deleted from the store afterwards.
type PushReceipt struct {
	Sent    int
	Expired []models.PushEndpoint
}

// PushGateway delivers one payload to a set of device endpoints.
type PushGateway interface {
	SendPush(ctx context.Context, endpoints []models.PushEndpoint, payload PushPayload) (PushReceipt, error)
}

// DispatchResult summarizes one trigger event.
type DispatchResult struct {
	MatchedCount      int `json:"matched_count"`
	NotificationsSent int `json:"notifications_sent"`
	PushSent          int `json:"push_sent"`
}

// Dispatcher fans watch matches out to the notification store, push
// gateway and any live websocket sessions. Everything here is
// best-effort: a failure must never surface to ride creation.
type Dispatcher struct {
	Notifications storage.NotificationStore
	Endpoints     storage.PushEndpointStore
	Push          PushGateway
	WS            *WSRegistry
	Logger        *slog.Logger
	Now           func() time.Time
}

func NewDispatcher(ns storage.NotificationStore, es storage.PushEndpointStore, gw PushGateway, ws *WSRegistry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Notifications: ns,
		Endpoints:     es,
		Push:          gw,
		WS:            ws,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Dispatch processes the matches for one trigger ride. Each matched
// watch becomes its own in-app notification; push delivery is merged
// into one payload per user so a single ride does not flood a device.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger models.Ride, matches []models.WatchMatch) DispatchResult {
	res := DispatchResult{MatchedCount: len(matches)}
	if len(matches) == 0 {
		return res
	}

	batch := make([]models.Notification, 0, len(matches))
	for _, m := range matches {
		batch = append(batch, models.Notification{
			ID:        uuid.NewString(),
			UserID:    m.Watch.OwnerID,
			WatchID:   m.Watch.ID,
			RideID:    trigger.ID,
			Title:     fmt.Sprintf("New ride for your watch %q", m.Watch.Name),
			Body:      m.Explanation,
			CreatedAt: d.Now(),
		})
	}
	if err := d.Notifications.InsertNotifications(ctx, batch); err != nil {
		d.Logger.Error("notification batch insert failed", "ride_id", trigger.ID, "count", len(batch), "error", err)
	} else {
		res.NotificationsSent = len(batch)
		observability.NotificationsPersisted.Add(float64(len(batch)))
	}

	d.deliverLive(batch)
	res.PushSent = d.deliverPush(ctx, trigger, matches)
	return res
}

// Go runs Dispatch on a background goroutine with its own context.
// The caller returns immediately; dispatch past the request lifetime
// runs to completion, since partial delivery beats silent total loss.
func (d *Dispatcher) Go(trigger models.Ride, matches []models.WatchMatch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		start := time.Now()
		res := d.Dispatch(ctx, trigger, matches)
		d.Logger.Info("watch dispatch finished",
			"ride_id", trigger.ID,
			"matched", res.MatchedCount,
			"notifications", res.NotificationsSent,
			"pushes", res.PushSent,
			"duration_ms", time.Since(start).Milliseconds())
	}()
}

// deliverLive forwards notifications to connected websocket sessions.
func (d *Dispatcher) deliverLive(batch []models.Notification) {
	if d.WS == nil {
		return
	}
	for _, n := range batch {
		if err := d.WS.Send(n.UserID, n); err != nil {
			d.Logger.Debug("live delivery skipped", "user_id", n.UserID, "error", err)
		}
	}
}

// deliverPush groups push-enabled matches by user and sends one
// payload per user naming all their matched watches.
func (d *Dispatcher) deliverPush(ctx context.Context, trigger models.Ride, matches []models.WatchMatch) int {
	if d.Push == nil || d.Endpoints == nil {
		return 0
	}
	watchNames := make(map[string][]string)
	for _, m := range matches {
		if !m.Watch.PushEnabled {
			continue
		}
		watchNames[m.Watch.OwnerID] = append(watchNames[m.Watch.OwnerID], m.Watch.Name)
	}

	users := make([]string, 0, len(watchNames))
	for u := range watchNames {
		users = append(users, u)
	}
	sort.Strings(users)

	sent := 0
	for _, userID := range users {
		endpoints, err := d.Endpoints.EndpointsForUser(ctx, userID)
		if err != nil {
			d.Logger.Error("push endpoint lookup failed", "user_id", userID, "error", err)
			continue
		}
		if len(endpoints) == 0 {
			continue
		}
		payload := PushPayload{
			Title:  "New matching ride",
			Body:   fmt.Sprintf("A new ride matches: %s", strings.Join(watchNames[userID], ", ")),
			RideID: trigger.ID,
		}
		receipt, err := d.Push.SendPush(ctx, endpoints, payload)
		if err != nil {
			d.Logger.Error("push send failed", "user_id", userID, "error", err)
			continue
		}
		sent += receipt.Sent
		observability.PushesSent.Add(float64(receipt.Sent))
		d.pruneExpired(ctx, receipt.Expired)
	}
	return sent
}

// pruneExpired removes endpoints the gateway reported dead; only runs
// after a successful send attempt.
func (d *Dispatcher) pruneExpired(ctx context.Context, expired []models.PushEndpoint) {
	if len(expired) == 0 {
		return
	}
	ids := make([]string, len(expired))
	for i, e := range expired {
		ids[i] = e.ID
	}
	if err := d.Endpoints.DeleteEndpoints(ctx, ids); err != nil {
		d.Logger.Error("expired endpoint cleanup failed", "count", len(ids), "error", err)
		return
	}
	observability.PushEndpointsPruned.Add(float64(len(ids)))
}
