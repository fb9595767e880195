// Package authz decides whether a profile may perform an action inside a
// server. It only reads; mutating afterwards is up to the caller, which must
// never assume the check already happened somewhere else.
package authz

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/metrics"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/store"
	"context"

	"go.uber.org/zap"
)

type Action string

const (
	ViewMessages     Action = "view_messages"
	PostMessage      Action = "post_message"
	ViewServer       Action = "view_server"
	CreateChannel    Action = "create_channel"
	UpdateChannel    Action = "update_channel"
	DeleteChannel    Action = "delete_channel"
	ManageMembers    Action = "manage_members"
	DeleteAnyMessage Action = "delete_any_message"
	UpdateServer     Action = "update_server"
	RotateInvite     Action = "rotate_invite"
	ChangeMemberRole Action = "change_member_role"
	LeaveServer      Action = "leave_server"
	DeleteServer     Action = "delete_server"
)

// minimumRole is the lowest role allowed to perform each action. Leaving and
// deleting a server depend on ownership instead and are handled separately.
var minimumRole = map[Action]models.Role{
	ViewMessages:     models.RoleGuest,
	PostMessage:      models.RoleGuest,
	ViewServer:       models.RoleGuest,
	CreateChannel:    models.RoleModerator,
	UpdateChannel:    models.RoleModerator,
	DeleteChannel:    models.RoleModerator,
	ManageMembers:    models.RoleModerator,
	DeleteAnyMessage: models.RoleModerator,
	UpdateServer:     models.RoleAdmin,
	RotateInvite:     models.RoleAdmin,
	ChangeMemberRole: models.RoleAdmin,
}

// MinimumRole reports the role an action requires. The second result is false
// for actions that aren't decided by role.
func MinimumRole(action Action) (models.Role, bool) {
	role, ok := minimumRole[action]
	return role, ok
}

type Gate struct {
	store store.Store
	sugar *zap.SugaredLogger
}

func New(s store.Store, sugar *zap.SugaredLogger) *Gate {
	return &Gate{store: s, sugar: sugar}
}

// Authorize returns the caller's membership in the server when it is allowed
// to perform action there.
func (g *Gate) Authorize(ctx context.Context, profileID int64, serverID int64, action Action) (models.Member, error) {
	if profileID == 0 {
		return models.Member{}, g.deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated, profileID, serverID, action)
	}

	member, err := g.store.GetMemberByProfile(ctx, serverID, profileID)
	if apperr.Is(err, apperr.NotFound) {
		return models.Member{}, g.deny(apperr.NotMember, apperr.ReasonNotMember, profileID, serverID, action)
	}
	if err != nil {
		return models.Member{}, err
	}

	switch action {
	case DeleteServer, LeaveServer:
		server, err := g.store.GetServer(ctx, serverID)
		if err != nil {
			return models.Member{}, err
		}

		isOwner := server.OwnerProfileID == profileID
		if (action == DeleteServer && !isOwner) || (action == LeaveServer && isOwner) {
			return models.Member{}, g.deny(apperr.InsufficientRole, apperr.ReasonInsufficientRole, profileID, serverID, action)
		}
		return member, nil
	}

	required, ok := minimumRole[action]
	if !ok {
		return models.Member{}, apperr.Newf(apperr.Internal, "authz.Authorize", "unknown action %q", action)
	}

	if !member.Role.AtLeast(required) {
		return models.Member{}, g.deny(apperr.InsufficientRole, apperr.ReasonInsufficientRole, profileID, serverID, action)
	}
	return member, nil
}

// AuthorizeChannel resolves the channel's server before authorizing. Channels
// the caller can't see are reported as NOT_MEMBER whether they exist or not.
// Renaming or deleting the general channel is refused for every role.
func (g *Gate) AuthorizeChannel(ctx context.Context, profileID int64, channelID int64, action Action) (models.Member, models.Channel, error) {
	if profileID == 0 {
		return models.Member{}, models.Channel{}, g.deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated, profileID, 0, action)
	}

	channel, err := g.store.GetChannel(ctx, channelID)
	if apperr.Is(err, apperr.NotFound) {
		return models.Member{}, models.Channel{}, g.deny(apperr.NotMember, apperr.ReasonNotMember, profileID, 0, action)
	}
	if err != nil {
		return models.Member{}, models.Channel{}, err
	}

	if (action == UpdateChannel || action == DeleteChannel) && channel.IsGeneral() {
		if _, err := g.Authorize(ctx, profileID, channel.ServerID, ViewServer); err != nil {
			return models.Member{}, models.Channel{}, err
		}
		return models.Member{}, models.Channel{}, ProtectedChannelError()
	}

	member, err := g.Authorize(ctx, profileID, channel.ServerID, action)
	if err != nil {
		return models.Member{}, models.Channel{}, err
	}
	return member, channel, nil
}

// AuthorizeConversation lets only the two participants in.
func (g *Gate) AuthorizeConversation(ctx context.Context, profileID int64, conversationID int64) (models.Member, models.Conversation, error) {
	if profileID == 0 {
		return models.Member{}, models.Conversation{}, g.deny(apperr.Unauthenticated, apperr.ReasonUnauthenticated, profileID, 0, ViewMessages)
	}

	conversation, err := g.store.GetConversation(ctx, conversationID)
	if apperr.Is(err, apperr.NotFound) {
		return models.Member{}, models.Conversation{}, g.deny(apperr.NotMember, apperr.ReasonNotMember, profileID, 0, ViewMessages)
	}
	if err != nil {
		return models.Member{}, models.Conversation{}, err
	}

	for _, memberID := range []int64{conversation.MemberOneID, conversation.MemberTwoID} {
		member, err := g.store.GetMember(ctx, memberID)
		if apperr.Is(err, apperr.NotFound) {
			continue
		}
		if err != nil {
			return models.Member{}, models.Conversation{}, err
		}
		if member.ProfileID == profileID {
			return member, conversation, nil
		}
	}

	return models.Member{}, models.Conversation{}, g.deny(apperr.NotMember, apperr.ReasonNotMember, profileID, 0, ViewMessages)
}

// AuthorizeScope authorizes reading or posting in a channel or a
// conversation and returns the member the caller acts as there.
func (g *Gate) AuthorizeScope(ctx context.Context, profileID int64, scope models.Scope, action Action) (models.Member, error) {
	switch scope.Type {
	case models.ScopeChannel:
		member, _, err := g.AuthorizeChannel(ctx, profileID, scope.ID, action)
		return member, err
	case models.ScopeConversation:
		member, _, err := g.AuthorizeConversation(ctx, profileID, scope.ID)
		return member, err
	}
	return models.Member{}, apperr.Newf(apperr.Invalid, "authz.AuthorizeScope", "unknown scope type %q", scope.Type)
}

func ProtectedChannelError() error {
	return &apperr.Error{
		Kind:   apperr.Protected,
		Reason: apperr.ReasonReservedChannel,
		Op:     "authz.AuthorizeChannel",
	}
}

func (g *Gate) deny(kind apperr.Kind, reason string, profileID int64, serverID int64, action Action) error {
	metrics.AuthorizationDenials.WithLabelValues(reason).Inc()
	g.sugar.Debugw("Authorization denied",
		"reason", reason,
		"profileID", profileID,
		"serverID", serverID,
		"action", action,
	)
	return apperr.Deny(kind, reason)
}
