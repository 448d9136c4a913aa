package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries best-effort outbound notifications.
	QueueNotifications = "notifications"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Kind labels the notification for metrics, e.g. "driver_invoice_approved".
	Kind string `json:"kind,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// EmailHandler delivers TaskTypeSendEmail tasks through a Mailer.
type EmailHandler struct {
	mailer  Mailer
	metrics *observability.JobMetrics
	logger  *slog.Logger
}

// NewEmailHandler wires the mail task handler.
func NewEmailHandler(mailer Mailer, metrics *observability.JobMetrics, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{mailer: mailer, metrics: metrics, logger: logger}
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func (h *EmailHandler) HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Warn("discard malformed email task", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if payload.To == "" {
		h.logger.Warn("discard email task without recipient", slog.String("subject", payload.Subject))
		return asynq.SkipRetry
	}
	kind := payload.Kind
	if kind == "" {
		kind = "generic"
	}
	tracker := h.metrics.Track(TaskTypeSendEmail + ":" + kind)
	err := h.mailer.Send(ctx, Message{To: payload.To, Subject: payload.Subject, Body: payload.Body})
	if err != nil {
		err = fmt.Errorf("jobs: send email: %w", err)
		h.logger.Error("email delivery failed", slog.String("kind", kind), slog.Any("error", err))
	}
	return tracker.End(err)
}

// TaskHandlers returns the handlers the worker registers for this package.
func (h *EmailHandler) TaskHandlers() []TaskHandler {
	return []TaskHandler{{Type: TaskTypeSendEmail, Handler: h.HandleSendEmailTask}}
}
