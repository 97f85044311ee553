package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/couchcryptid/church-discovery-engine/internal/discovery"
	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

// Notifier computes the notification for one reminder request.
type Notifier interface {
	Notify(ctx context.Context, req domain.ReminderRequest) (domain.Notification, error)
}

// ReminderTransformer implements Transformer by decoding reminder requests
// and planning them through a Notifier.
type ReminderTransformer struct {
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTransformer creates a ReminderTransformer.
func NewTransformer(notifier Notifier, logger *slog.Logger) *ReminderTransformer {
	return &ReminderTransformer{
		notifier: notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (t *ReminderTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Notification, error) {
	req, err := t.decode(raw)
	if err != nil {
		return domain.Notification{}, err
	}

	note, err := t.notifier.Notify(ctx, req)
	if err != nil {
		err = fmt.Errorf("plan reminder for user %s venue %s: %w", req.UserID, req.VenueID, err)
		if errors.Is(err, discovery.ErrVenueNotFound) || errors.Is(err, discovery.ErrNoReminder) {
			return domain.Notification{}, permanent(err)
		}
		return domain.Notification{}, err
	}

	t.logger.Debug("reminder planned",
		"user_id", note.UserID,
		"venue_id", note.VenueID,
		"fire_at", note.FireAt,
		"service_at", note.ServiceAt,
	)
	return note, nil
}

// decode parses a reminder request. A missing user id falls back to the
// message key, which producers set to the user id.
func (t *ReminderTransformer) decode(raw domain.RawEvent) (domain.ReminderRequest, error) {
	var req domain.ReminderRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return domain.ReminderRequest{}, permanent(fmt.Errorf("decode reminder request: %w", err))
	}
	if req.UserID == "" {
		req.UserID = string(raw.Key)
	}
	if err := t.validate.Struct(req); err != nil {
		return domain.ReminderRequest{}, permanent(fmt.Errorf("invalid reminder request: %w", err))
	}
	return req, nil
}
