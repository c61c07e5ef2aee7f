package services

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/notify"
)

// InspectionInput is the home screen's checklist form. An empty check result
// means the item was not inspected.
type InspectionInput struct {
	Registration string             `validate:"required,max=20"`
	Brakes       models.CheckResult `validate:"omitempty,oneof=pass fail"`
	Lights       models.CheckResult `validate:"omitempty,oneof=pass fail"`
	SeatBelt     models.CheckResult `validate:"omitempty,oneof=pass fail"`
	HandBrake    models.CheckResult `validate:"omitempty,oneof=pass fail"`
	Comments     string             `validate:"max=500"`
}

// InspectionService records inspections for the signed-in user.
type InspectionService interface {
	// Submit stores a new inspection and returns its id. The creation time is
	// assigned by the backend.
	Submit(ctx context.Context, in InspectionInput) (string, error)
}

type inspectionService struct {
	provider identity.Provider
	store    docstore.Store
	notifier notify.Notifier
	log      logging.Logger
}

func NewInspectionService(p identity.Provider, store docstore.Store, n notify.Notifier, l logging.Logger) InspectionService {
	return &inspectionService{
		provider: p,
		store:    store,
		notifier: n,
		log:      l.With("module", "inspection_service"),
	}
}

func (s *inspectionService) Submit(ctx context.Context, in InspectionInput) (string, error) {
	id := s.provider.Current()
	if id == nil {
		s.notifier.Notify(notify.Error("Submit Failed", "Please sign in first."))
		return "", identity.ErrNoSession
	}

	in.Registration = strings.ToUpper(strings.TrimSpace(in.Registration))
	in.Comments = strings.TrimSpace(in.Comments)
	if err := validateInput(in); err != nil {
		s.notifier.Notify(notify.Error("Submit Failed", userMessage(err)))
		return "", err
	}

	data := map[string]any{
		models.FieldUserID:       id.UserID,
		models.FieldRegistration: in.Registration,
		models.FieldComments:     in.Comments,
		models.FieldCreatedAt:    docstore.ServerTimestamp,
	}
	checks := map[string]models.CheckResult{
		models.FieldBrakes:    in.Brakes,
		models.FieldLights:    in.Lights,
		models.FieldSeatBelt:  in.SeatBelt,
		models.FieldHandBrake: in.HandBrake,
	}
	for field, c := range checks {
		if c == models.CheckNotInspected {
			data[field] = nil
			continue
		}
		data[field] = string(c)
	}

	docID, err := s.store.Add(ctx, common.CollectionInspections, data)
	if err != nil {
		s.log.Error(ctx, "add inspection", "user_id", id.UserID, "error", err)
		s.notifier.Notify(notify.Error("Submit Failed", "Could not save the inspection. Please try again."))
		return "", err
	}

	s.log.Info(ctx, "inspection submitted", "id", docID, "registration", in.Registration)
	s.notifier.Notify(notify.Success("Inspection Saved", "Registration "+in.Registration+" recorded."))
	return docID, nil
}
