package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"chatcord-backend/internal/store"
	"chatcord-backend/internal/validator"
	"context"
	"strings"

	"go.uber.org/zap"
)

// Identity is what the identity provider vouches for about a caller.
type Identity struct {
	ExternalID  string
	Username    string
	DisplayName string
	ImageURL    string
}

type ProfileInput struct {
	DisplayName string `json:"displayName" validate:"required,max=64"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,max=2048"`
	Status      string `json:"status" validate:"max=32"`
	About       string `json:"about" validate:"max=512"`
}

type ProfileService struct {
	store store.Store
	sugar *zap.SugaredLogger
}

func NewProfileService(s store.Store, sugar *zap.SugaredLogger) *ProfileService {
	return &ProfileService{store: s, sugar: sugar}
}

// Ensure returns the profile of the identity, creating it on first sight.
// Two requests racing on a new identity both end up with the same profile.
func (s *ProfileService) Ensure(ctx context.Context, identity Identity) (models.Profile, error) {
	const op = "chat.EnsureProfile"

	if identity.ExternalID == "" {
		return models.Profile{}, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}

	profile, err := s.store.GetProfileByExternalID(ctx, identity.ExternalID)
	if err == nil {
		return profile, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return models.Profile{}, err
	}

	username := identity.Username
	if validator.Username(username) != nil {
		username = "user" + strings.TrimPrefix(identity.ExternalID, "user_")
		if len(username) > 32 {
			username = username[:32]
		}
	}
	displayName := identity.DisplayName
	if validator.DisplayName(displayName) != nil {
		displayName = username
	}

	profile = models.Profile{
		ID:             snowflake.Generate(),
		ExternalAuthID: identity.ExternalID,
		Username:       username,
		DisplayName:    displayName,
		ImageURL:       identity.ImageURL,
		AccessLevel:    "user",
	}

	err = s.store.CreateProfile(ctx, profile)
	if apperr.Is(err, apperr.Conflict) {
		return s.store.GetProfileByExternalID(ctx, identity.ExternalID)
	}
	if err != nil {
		return models.Profile{}, apperr.New(apperr.KindOf(err), op, err)
	}

	s.sugar.Infow("Profile created", "profileID", profile.ID, "username", profile.Username)
	return profile, nil
}

// Get returns the public part of any profile.
func (s *ProfileService) Get(ctx context.Context, profileID int64) (models.PublicProfile, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return models.PublicProfile{}, err
	}
	return profile.Public(), nil
}

// Own returns the caller's whole profile.
func (s *ProfileService) Own(ctx context.Context, profileID int64) (models.Profile, error) {
	if profileID == 0 {
		return models.Profile{}, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}
	return s.store.GetProfile(ctx, profileID)
}

func (s *ProfileService) List(ctx context.Context) ([]models.PublicProfile, error) {
	return s.store.ListProfiles(ctx)
}

// UpdateOwn changes the caller's own profile.
func (s *ProfileService) UpdateOwn(ctx context.Context, profileID int64, input ProfileInput) (models.Profile, error) {
	const op = "chat.UpdateProfile"

	if profileID == 0 {
		return models.Profile{}, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}
	if err := validator.DisplayName(input.DisplayName); err != nil {
		return models.Profile{}, validator.Invalid(op, err)
	}

	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return models.Profile{}, err
	}

	profile.DisplayName = strings.TrimSpace(input.DisplayName)
	profile.ImageURL = input.ImageURL
	profile.Status = input.Status
	profile.About = input.About

	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}
