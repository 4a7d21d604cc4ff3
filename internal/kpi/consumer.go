package kpi

import (
	"context"
	"errors"
	"fmt"

	"affiliatepay/internal/common/events"
)

// HandleContactStatusChanged consumes contact.status_changed events. Events
// for affiliates outside leveling and for months already evaluated are
// acknowledged without effect.
func (s *Service) HandleContactStatusChanged(ctx context.Context, evt *events.Event) error {
	var data events.ContactStatusChangedData
	if err := evt.DecodeData(&data); err != nil {
		return fmt.Errorf("decoding %s: %w", evt.ID, err)
	}

	status, err := ParseContactStatus(data.To)
	if err != nil {
		s.logger.Warn("dropping contact event", "event_id", evt.ID, "error", err)
		return nil
	}

	at := data.ChangedAt
	if at.IsZero() {
		at = evt.OccurredAt
	}

	err = s.RecordContactTransition(ctx, ContactTransition{
		AffiliateID: data.AffiliateID,
		ContactID:   data.ContactID,
		To:          status,
		At:          at,
	})
	switch {
	case errors.Is(err, ErrNotEnrolled):
		return nil
	case errors.Is(err, ErrAlreadyEvaluated):
		s.logger.Warn("contact event for evaluated month",
			"event_id", evt.ID,
			"affiliate_id", data.AffiliateID,
			"contact_id", data.ContactID,
		)
		return nil
	}
	return err
}
