// Package notify delivers rendered reports to their destination.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
)

// Notifier delivers one rendered notification message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	http       *http.Client
}

// compile time check of interface implementation
var _ Notifier = &Slack{}

// NewSlack returns a Notifier posting to the given incoming webhook URL.
func NewSlack(webhookURL string, opts ...SlackOpt) *Slack {
	s := &Slack{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// SlackOpt is a type representing functional Slack options.
type SlackOpt func(*Slack)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) SlackOpt {
	return func(s *Slack) {
		s.http = hc
	}
}

func (s *Slack) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: message})
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %v", sitewatch.ErrNotifyFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", sitewatch.ErrNotifyFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sitewatch.ErrNotifyFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned status %d", sitewatch.ErrNotifyFailed, resp.StatusCode)
	}

	return nil
}

// Log writes notifications to the logger instead of delivering them - used
// for dry runs and when no webhook is configured.
type Log struct {
	logger *slog.Logger
}

// compile time check of interface implementation
var _ Notifier = &Log{}

// NewLog returns a Notifier writing to the given logger.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, message string) error {
	l.logger.Info("notification", slog.String("message", message))
	return nil
}
