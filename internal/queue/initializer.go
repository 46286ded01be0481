package queue

import (
	"context"
	"errors"
	"time"

	"cati-platform/pkg/utils"

	"github.com/google/uuid"
)

// Contact is one row of a survey's respondent-contact list, supplied by the
// external ingestion collaborator.
type Contact struct {
	Name         string `json:"name"`
	CountryCode  string `json:"country_code"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	AreaCode     string `json:"area_code,omitempty"`
	PrecinctCode string `json:"precinct_code,omitempty"`
	StationCode  string `json:"station_code,omitempty"`
}

// Initializer seeds a survey's queue from its contact list.
type Initializer struct {
	store Store
	clock func() time.Time
}

func NewInitializer(store Store) *Initializer {
	return &Initializer{store: store, clock: time.Now}
}

type SeedResult struct {
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
}

// Seed enqueues one pending entry per distinct phone number. Numbers are
// normalized to digits before comparison, and contacts already queued for the
// survey are skipped, so re-running an import with an overlapping list never
// duplicates a respondent.
func (i *Initializer) Seed(ctx context.Context, surveyID string, contacts []Contact) (SeedResult, error) {
	if surveyID == "" {
		return SeedResult{}, ErrValidation
	}

	now := i.clock().UTC()
	seen := map[string]struct{}{}
	var res SeedResult

	for _, c := range contacts {
		phone := utils.DigitsOnly(c.Phone)
		if phone == "" {
			res.Skipped++
			continue
		}
		if _, dup := seen[phone]; dup {
			res.Skipped++
			continue
		}
		seen[phone] = struct{}{}

		queued, err := i.store.PhoneQueued(ctx, surveyID, phone)
		if err != nil {
			return res, err
		}
		if queued {
			res.Skipped++
			continue
		}

		e := QueueEntry{
			ID:       uuid.NewString(),
			SurveyID: surveyID,
			Respondent: Respondent{
				Name:         c.Name,
				CountryCode:  c.CountryCode,
				Phone:        phone,
				Email:        c.Email,
				Address:      c.Address,
				City:         c.City,
				AreaCode:     c.AreaCode,
				PrecinctCode: c.PrecinctCode,
				StationCode:  c.StationCode,
			},
			Status:    StatusPending,
			Priority:  PriorityNormal,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := i.store.Insert(ctx, e); err != nil {
			// A concurrent import won the unique index race; same outcome as
			// the PhoneQueued check.
			if errors.Is(err, ErrConflict) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Queued++
	}
	return res, nil
}
