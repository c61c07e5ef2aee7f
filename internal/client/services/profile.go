package services

import (
	"context"
	"path"
	"strings"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/notify"
)

// Uploader stores media and returns a URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// ProfileInput is the edit-profile form. ImageData is optional.
type ProfileInput struct {
	Name      string `validate:"required,max=100"`
	ImageName string `validate:"required_with=ImageData"`
	ImageData []byte
}

// ProfileService edits the signed-in user's profile.
type ProfileService interface {
	// Update saves the name and, when ImageData is set, uploads a new image.
	// A failed upload keeps the previous image and the rest of the update
	// still goes through.
	Update(ctx context.Context, in ProfileInput) error
}

type profileService struct {
	provider identity.Provider
	store    docstore.Store
	uploader Uploader
	notifier notify.Notifier
	log      logging.Logger
}

func NewProfileService(p identity.Provider, store docstore.Store, u Uploader, n notify.Notifier, l logging.Logger) ProfileService {
	return &profileService{
		provider: p,
		store:    store,
		uploader: u,
		notifier: n,
		log:      l.With("module", "profile_service"),
	}
}

func (s *profileService) Update(ctx context.Context, in ProfileInput) error {
	id := s.provider.Current()
	if id == nil {
		s.notifier.Notify(notify.Error("Update Failed", "Please sign in first."))
		return identity.ErrNoSession
	}

	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		s.notifier.Notify(notify.Error("Update Failed", userMessage(err)))
		return err
	}

	fields := map[string]any{models.FieldName: in.Name}
	if len(in.ImageData) > 0 {
		if url := s.upload(ctx, id.UserID, in.ImageName, in.ImageData); url != "" {
			fields[models.FieldImage] = url
		}
	}

	if err := s.store.Update(ctx, common.CollectionUsers, id.UserID, fields); err != nil {
		s.log.Error(ctx, "update profile", "user_id", id.UserID, "error", err)
		s.notifier.Notify(notify.Error("Update Failed", "Could not save your profile. Please try again."))
		return err
	}

	s.notifier.Notify(notify.Success("Profile Updated", "Your changes have been saved."))
	return nil
}

// upload is best effort: it returns "" on failure.
func (s *profileService) upload(ctx context.Context, userID, name string, data []byte) string {
	if s.uploader == nil {
		return ""
	}
	key := path.Join("profiles", userID, path.Base(name))
	url, err := s.uploader.Upload(ctx, key, data)
	if err != nil {
		s.log.Warn(ctx, "upload profile image", "user_id", userID, "error", err)
		s.notifier.Notify(notify.Error("Upload Failed", "Keeping your previous image."))
		return ""
	}
	return url
}
