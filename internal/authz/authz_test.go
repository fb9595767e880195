package authz_test

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"chatcord-backend/internal/store/storetest"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	gate    *authz.Gate
	server  models.Server
	general models.Channel
	random  models.Channel
	owner   models.Profile
	admin   models.Profile
	mod     models.Profile
	guest   models.Profile
	outside models.Profile
}

func setup(t *testing.T) fixture {
	t.Helper()

	s := storetest.New(t)
	f := fixture{
		owner:   storetest.Profile(t, s, "owner"),
		admin:   storetest.Profile(t, s, "admin"),
		mod:     storetest.Profile(t, s, "mod"),
		guest:   storetest.Profile(t, s, "guest"),
		outside: storetest.Profile(t, s, "outside"),
	}
	f.server, _, f.general = storetest.Server(t, s, f.owner, "S")
	storetest.Member(t, s, f.server.ID, f.admin, models.RoleAdmin)
	storetest.Member(t, s, f.server.ID, f.mod, models.RoleModerator)
	storetest.Member(t, s, f.server.ID, f.guest, models.RoleGuest)
	f.random = storetest.Channel(t, s, f.server.ID, f.owner, "random")
	f.gate = authz.New(s, zap.NewNop().Sugar())
	return f
}

func TestRoleMatrix(t *testing.T) {
	f := setup(t)

	tests := []struct {
		action  authz.Action
		allowed []models.Profile
		denied  []models.Profile
	}{
		{authz.ViewMessages, []models.Profile{f.owner, f.admin, f.mod, f.guest}, nil},
		{authz.PostMessage, []models.Profile{f.owner, f.admin, f.mod, f.guest}, nil},
		{authz.CreateChannel, []models.Profile{f.owner, f.admin, f.mod}, []models.Profile{f.guest}},
		{authz.DeleteChannel, []models.Profile{f.owner, f.admin, f.mod}, []models.Profile{f.guest}},
		{authz.ManageMembers, []models.Profile{f.owner, f.admin, f.mod}, []models.Profile{f.guest}},
		{authz.UpdateServer, []models.Profile{f.owner, f.admin}, []models.Profile{f.mod, f.guest}},
		{authz.RotateInvite, []models.Profile{f.owner, f.admin}, []models.Profile{f.mod, f.guest}},
		{authz.ChangeMemberRole, []models.Profile{f.owner, f.admin}, []models.Profile{f.mod, f.guest}},
		{authz.LeaveServer, []models.Profile{f.admin, f.mod, f.guest}, []models.Profile{f.owner}},
		{authz.DeleteServer, []models.Profile{f.owner}, []models.Profile{f.admin, f.mod, f.guest}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			for _, p := range tt.allowed {
				member, err := f.gate.Authorize(context.Background(), p.ID, f.server.ID, tt.action)
				require.NoError(t, err, p.Username)
				assert.Equal(t, p.ID, member.ProfileID)
			}
			for _, p := range tt.denied {
				_, err := f.gate.Authorize(context.Background(), p.ID, f.server.ID, tt.action)
				assert.Equal(t, apperr.InsufficientRole, apperr.KindOf(err), p.Username)
				assert.Equal(t, apperr.ReasonInsufficientRole, apperr.ReasonOf(err))
			}
		})
	}
}

func TestUnauthenticated(t *testing.T) {
	f := setup(t)

	_, err := f.gate.Authorize(context.Background(), 0, f.server.ID, authz.ViewMessages)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonUnauthenticated, apperr.ReasonOf(err))

	_, err = f.gate.AuthorizeScope(context.Background(), 0, models.ChannelScope(f.general.ID), authz.ViewMessages)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
}

func TestNotMember(t *testing.T) {
	f := setup(t)

	_, err := f.gate.Authorize(context.Background(), f.outside.ID, f.server.ID, authz.ViewMessages)
	assert.Equal(t, apperr.NotMember, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonNotMember, apperr.ReasonOf(err))

	_, _, err = f.gate.AuthorizeChannel(context.Background(), f.outside.ID, f.general.ID, authz.ViewMessages)
	assert.Equal(t, apperr.NotMember, apperr.KindOf(err))
}

func TestUnknownChannelLooksLikeForeignChannel(t *testing.T) {
	f := setup(t)

	_, _, err := f.gate.AuthorizeChannel(context.Background(), f.guest.ID, 424242, authz.ViewMessages)
	assert.Equal(t, apperr.NotMember, apperr.KindOf(err))
}

func TestGuestCannotDeleteChannelModeratorCan(t *testing.T) {
	f := setup(t)

	_, _, err := f.gate.AuthorizeChannel(context.Background(), f.guest.ID, f.random.ID, authz.DeleteChannel)
	assert.Equal(t, apperr.InsufficientRole, apperr.KindOf(err))

	member, channel, err := f.gate.AuthorizeChannel(context.Background(), f.mod.ID, f.random.ID, authz.DeleteChannel)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, member.Role)
	assert.Equal(t, f.random.ID, channel.ID)
}

func TestGeneralIsProtectedForEveryRole(t *testing.T) {
	f := setup(t)

	for _, p := range []models.Profile{f.owner, f.admin, f.mod, f.guest} {
		for _, action := range []authz.Action{authz.DeleteChannel, authz.UpdateChannel} {
			_, _, err := f.gate.AuthorizeChannel(context.Background(), p.ID, f.general.ID, action)
			assert.Equal(t, apperr.Protected, apperr.KindOf(err), p.Username)
			assert.Equal(t, apperr.ReasonReservedChannel, apperr.ReasonOf(err))
		}
	}

	// outsiders still only learn that they aren't members
	_, _, err := f.gate.AuthorizeChannel(context.Background(), f.outside.ID, f.general.ID, authz.DeleteChannel)
	assert.Equal(t, apperr.NotMember, apperr.KindOf(err))
}

func TestAuthorizeConversation(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	bob := storetest.Profile(t, s, "bob")
	carol := storetest.Profile(t, s, "carol")
	server, a, _ := storetest.Server(t, s, alice, "S")
	b := storetest.Member(t, s, server.ID, bob, models.RoleGuest)
	storetest.Member(t, s, server.ID, carol, models.RoleAdmin)

	conv := models.Conversation{ID: snowflake.Generate(), MemberOneID: a.ID, MemberTwoID: b.ID}
	require.NoError(t, s.CreateConversation(ctx, conv))

	gate := authz.New(s, zap.NewNop().Sugar())

	member, err := gate.AuthorizeScope(ctx, bob.ID, models.ConversationScope(conv.ID), authz.PostMessage)
	require.NoError(t, err)
	assert.Equal(t, b.ID, member.ID)

	// being an admin of the server doesn't open other people's conversations
	_, err = gate.AuthorizeScope(ctx, carol.ID, models.ConversationScope(conv.ID), authz.ViewMessages)
	assert.Equal(t, apperr.NotMember, apperr.KindOf(err))
}

func TestMinimumRole(t *testing.T) {
	role, ok := authz.MinimumRole(authz.DeleteChannel)
	assert.True(t, ok)
	assert.Equal(t, models.RoleModerator, role)

	_, ok = authz.MinimumRole(authz.DeleteServer)
	assert.False(t, ok)
}
