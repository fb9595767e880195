package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"chatcord-backend/internal/store"
	"chatcord-backend/internal/validator"
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ServerInput struct {
	Name     string `json:"name" validate:"required,max=64"`
	ImageURL string `json:"imageUrl" validate:"max=2048"`
}

// ServerService covers servers, their members and their channels. Every
// mutation authorizes first and then relies on the store's conditional
// writes, so a role change in between makes the write fail instead of
// slipping through.
type ServerService struct {
	store   store.Store
	gate    *authz.Gate
	emitter Emitter
	sugar   *zap.SugaredLogger
}

func NewServerService(s store.Store, gate *authz.Gate, emitter Emitter, sugar *zap.SugaredLogger) *ServerService {
	return &ServerService{
		store:   s,
		gate:    gate,
		emitter: emitter,
		sugar:   sugar,
	}
}

// Create makes a server owned by the caller, who joins it as ADMIN. Every
// server starts with a text channel named "general".
func (s *ServerService) Create(ctx context.Context, profileID int64, input ServerInput) (models.Server, error) {
	if profileID == 0 {
		return models.Server{}, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}
	if err := validator.ServerName(input.Name); err != nil {
		return models.Server{}, validator.Invalid("chat.CreateServer", err)
	}

	server := models.Server{
		ID:             snowflake.Generate(),
		Name:           input.Name,
		ImageURL:       input.ImageURL,
		InviteCode:     uuid.NewString(),
		OwnerProfileID: profileID,
	}
	owner := models.Member{
		ID:        snowflake.Generate(),
		ProfileID: profileID,
		ServerID:  server.ID,
		Role:      models.RoleAdmin,
	}
	general := models.Channel{
		ID:               snowflake.Generate(),
		ServerID:         server.ID,
		Name:             models.GeneralChannelName,
		Type:             models.ChannelTypeText,
		CreatorProfileID: profileID,
	}

	if err := s.store.CreateServer(ctx, server, owner, general); err != nil {
		return models.Server{}, err
	}

	s.sugar.Infow("Server created", "serverID", server.ID, "ownerProfileID", profileID)
	return server, nil
}

func (s *ServerService) ListMine(ctx context.Context, profileID int64) ([]models.Server, error) {
	if profileID == 0 {
		return nil, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}

	servers, err := s.store.ListServersForProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	// the invite code is only handed out through Get
	for i := range servers {
		servers[i].InviteCode = ""
	}
	return servers, nil
}

func (s *ServerService) Explore(ctx context.Context) ([]models.ServerSummary, error) {
	return s.store.ListServerSummaries(ctx)
}

// Get returns the server with its channels and members. The invite code is
// only included for members allowed to rotate it.
func (s *ServerService) Get(ctx context.Context, profileID int64, serverID int64) (models.ServerDetails, error) {
	member, err := s.gate.Authorize(ctx, profileID, serverID, authz.ViewServer)
	if err != nil {
		return models.ServerDetails{}, err
	}

	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return models.ServerDetails{}, err
	}

	channels, err := s.store.ListChannels(ctx, serverID)
	if err != nil {
		return models.ServerDetails{}, err
	}

	members, err := s.store.ListMembers(ctx, serverID)
	if err != nil {
		return models.ServerDetails{}, err
	}

	if required, _ := authz.MinimumRole(authz.RotateInvite); !member.Role.AtLeast(required) {
		server.InviteCode = ""
	}

	return models.ServerDetails{
		Server:   server,
		Channels: channels,
		Members:  members,
	}, nil
}

func (s *ServerService) Update(ctx context.Context, profileID int64, serverID int64, input ServerInput) (models.Server, error) {
	if _, err := s.gate.Authorize(ctx, profileID, serverID, authz.UpdateServer); err != nil {
		return models.Server{}, err
	}
	if err := validator.ServerName(input.Name); err != nil {
		return models.Server{}, validator.Invalid("chat.UpdateServer", err)
	}

	server := models.Server{ID: serverID, Name: input.Name, ImageURL: input.ImageURL}
	if err := s.store.UpdateServer(ctx, server, profileID); err != nil {
		return models.Server{}, err
	}

	updated, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return models.Server{}, err
	}
	updated.InviteCode = ""

	emit(ctx, s.emitter, s.sugar, hub.ServerModified, models.ServerTopic(serverID), updated)
	return updated, nil
}

// Delete removes the server with everything in it. Only the owner can.
func (s *ServerService) Delete(ctx context.Context, profileID int64, serverID int64) error {
	if _, err := s.gate.Authorize(ctx, profileID, serverID, authz.DeleteServer); err != nil {
		return err
	}

	if err := s.store.DeleteServer(ctx, serverID, profileID); err != nil {
		return err
	}

	s.sugar.Infow("Server deleted", "serverID", serverID, "ownerProfileID", profileID)
	emit(ctx, s.emitter, s.sugar, hub.ServerDeleted, models.ServerTopic(serverID), ref{ID: serverID})
	return nil
}

// RotateInvite replaces the invite code. The previous code stops working
// immediately.
func (s *ServerService) RotateInvite(ctx context.Context, profileID int64, serverID int64) (models.Server, error) {
	if _, err := s.gate.Authorize(ctx, profileID, serverID, authz.RotateInvite); err != nil {
		return models.Server{}, err
	}

	code := uuid.NewString()
	if err := s.store.SetInviteCode(ctx, serverID, code, profileID); err != nil {
		return models.Server{}, err
	}

	return s.store.GetServer(ctx, serverID)
}

// JoinByInvite adds the caller as a GUEST of the server the code belongs to.
// Using a code of a server one is already in just returns that server.
func (s *ServerService) JoinByInvite(ctx context.Context, profileID int64, code string) (models.Server, error) {
	if profileID == 0 {
		return models.Server{}, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}
	if code == "" {
		return models.Server{}, apperr.Newf(apperr.Invalid, "chat.JoinByInvite", "missing invite code")
	}

	server, err := s.store.GetServerByInviteCode(ctx, code)
	if err != nil {
		return models.Server{}, err
	}
	server.InviteCode = ""

	_, err = s.join(ctx, profileID, server.ID)
	if err != nil && !apperr.Is(err, apperr.Conflict) {
		return models.Server{}, err
	}
	return server, nil
}

// Join adds the caller to a server found through the explore list. Joining a
// server twice is a Conflict.
func (s *ServerService) Join(ctx context.Context, profileID int64, serverID int64) (models.Member, error) {
	if profileID == 0 {
		return models.Member{}, apperr.Deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated)
	}

	if _, err := s.store.GetServer(ctx, serverID); err != nil {
		return models.Member{}, err
	}
	return s.join(ctx, profileID, serverID)
}

func (s *ServerService) join(ctx context.Context, profileID int64, serverID int64) (models.Member, error) {
	member := models.Member{
		ID:        snowflake.Generate(),
		ProfileID: profileID,
		ServerID:  serverID,
		Role:      models.RoleGuest,
	}
	if err := s.store.AddMember(ctx, member); err != nil {
		return models.Member{}, err
	}

	if profile, err := s.store.GetProfile(ctx, profileID); err == nil {
		emit(ctx, s.emitter, s.sugar, hub.MemberJoined, models.ServerTopic(serverID), models.MemberWithProfile{
			Member:  member,
			Profile: profile.Public(),
		})
	}
	return member, nil
}

// Leave removes the caller's membership. Owners can't leave their server.
func (s *ServerService) Leave(ctx context.Context, profileID int64, serverID int64) error {
	member, err := s.gate.Authorize(ctx, profileID, serverID, authz.LeaveServer)
	if err != nil {
		return err
	}

	if err := s.store.LeaveServer(ctx, serverID, profileID); err != nil {
		return err
	}

	emit(ctx, s.emitter, s.sugar, hub.MemberLeft, models.ServerTopic(serverID), member)
	return nil
}
