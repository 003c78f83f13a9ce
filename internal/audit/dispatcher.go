// Package audit forwards ledger events to external audit consumers over
// HTTP webhooks. Deliveries are signed with a per-subscriber HMAC secret so
// consumers can authenticate the ledger as the sender.
package audit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
	"go.uber.org/zap"
)

// Subscriber is one audit consumer endpoint.
type Subscriber struct {
	URL    string
	Secret string // HMAC key for the X-Ledger-Signature header; empty = unsigned
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher fans ledger events out to the configured subscribers.
// It implements actledger.EventSink.
type Dispatcher struct {
	subs       []Subscriber
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewDispatcher creates a Dispatcher for the given subscribers.
func NewDispatcher(subs []Subscriber, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subs:       subs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// Publish implements actledger.EventSink. Delivery runs in the background;
// a failing subscriber never affects the originating ledger operation.
func (d *Dispatcher) Publish(_ context.Context, ev actledger.Event) {
	if len(d.subs) == 0 {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("audit: marshal event", zap.Error(err))
		return
	}

	for _, sub := range d.subs {
		go d.deliver(sub, ev, body)
	}
}

// deliver sends one event to one subscriber with retries.
// Backoff between the three attempts: 1s, then 5s.
func (d *Dispatcher) deliver(sub Subscriber, ev actledger.Event, body []byte) {
	deliveryID := uuid.New().String()
	delays := []time.Duration{0, 1 * time.Second, 5 * time.Second}

	for attempt := 1; attempt <= 3; attempt++ {
		time.Sleep(delays[attempt-1])

		err := d.post(sub, ev.Type, deliveryID, body)
		if err == nil {
			if d.onMetrics != nil {
				d.onMetrics(true)
			}
			d.logger.Debug("audit event delivered",
				zap.String("event", ev.Type),
				zap.Uint64("log_id", ev.LogID),
				zap.String("url", sub.URL),
				zap.Int("attempt", attempt),
			)
			return
		}

		d.logger.Warn("audit delivery failed",
			zap.String("event", ev.Type),
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	if d.onMetrics != nil {
		d.onMetrics(false)
	}
}

// post performs a single delivery attempt.
func (d *Dispatcher) post(sub Subscriber, eventType, deliveryID string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ledger-Event", eventType)
	req.Header.Set("X-Ledger-Delivery", deliveryID)
	if sub.Secret != "" {
		req.Header.Set("X-Ledger-Signature", "sha256="+signPayload(body, sub.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("subscriber returned %d", resp.StatusCode)
	}
	return nil
}

// signPayload computes the hex HMAC-SHA256 of the payload.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
