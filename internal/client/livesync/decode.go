package livesync

import (
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
)

// FormatDate renders a creation time for display; nil means the server has
// not stamped the record yet.
func FormatDate(t *time.Time) string {
	if t == nil {
		return models.PendingDate
	}
	return t.Format(models.DateLayout)
}

func decodeUser(d docstore.Document) models.UserRecord {
	return models.UserRecord{
		UserID:    d.ID,
		Name:      d.String(models.FieldName),
		Email:     d.String(models.FieldEmail),
		Image:     d.StringPtr(models.FieldImage),
		CreatedAt: d.Time(models.FieldCreatedAt),
	}
}

func decodeInspection(d docstore.Document) models.InspectionRecord {
	created := d.Time(models.FieldCreatedAt)
	return models.InspectionRecord{
		ID:           d.ID,
		UserID:       d.String(models.FieldUserID),
		Registration: d.String(models.FieldRegistration),
		Brakes:       models.ParseCheckResult(d.Data[models.FieldBrakes]),
		Lights:       models.ParseCheckResult(d.Data[models.FieldLights]),
		SeatBelt:     models.ParseCheckResult(d.Data[models.FieldSeatBelt]),
		HandBrake:    models.ParseCheckResult(d.Data[models.FieldHandBrake]),
		Comments:     d.String(models.FieldComments),
		CreatedAt:    created,
		Date:         FormatDate(created),
	}
}

func decodeInspections(docs []docstore.Document) []models.InspectionRecord {
	out := make([]models.InspectionRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeInspection(d))
	}
	return out
}
