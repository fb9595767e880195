// Package storetest gives tests a real store backed by a private in-memory
// sqlite database, plus seeding helpers for the common fixtures.
package storetest

import (
	"chatcord-backend/internal/database"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"chatcord-backend/internal/store"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func New(t testing.TB) *store.SQLStore {
	t.Helper()

	db, err := database.OpenSqlite(":memory:", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store.NewSQLStore(db)
}

func Profile(t testing.TB, s store.Store, username string) models.Profile {
	t.Helper()

	p := models.Profile{
		ID:             snowflake.Generate(),
		ExternalAuthID: "ext_" + username,
		Username:       username,
		DisplayName:    username,
		ImageURL:       fmt.Sprintf("https://img.example.com/%s.png", username),
		AccessLevel:    "user",
	}
	require.NoError(t, s.CreateProfile(context.Background(), p))
	return p
}

// Server creates a server owned by owner, along with the owner's ADMIN
// membership and the general channel.
func Server(t testing.TB, s store.Store, owner models.Profile, name string) (models.Server, models.Member, models.Channel) {
	t.Helper()

	server := models.Server{
		ID:             snowflake.Generate(),
		Name:           name,
		InviteCode:     uuid.NewString(),
		OwnerProfileID: owner.ID,
	}
	member := models.Member{
		ID:        snowflake.Generate(),
		ProfileID: owner.ID,
		ServerID:  server.ID,
		Role:      models.RoleAdmin,
	}
	general := models.Channel{
		ID:               snowflake.Generate(),
		ServerID:         server.ID,
		Name:             models.GeneralChannelName,
		Type:             models.ChannelTypeText,
		CreatorProfileID: owner.ID,
	}
	require.NoError(t, s.CreateServer(context.Background(), server, member, general))
	return server, member, general
}

func Member(t testing.TB, s store.Store, serverID int64, profile models.Profile, role models.Role) models.Member {
	t.Helper()

	m := models.Member{
		ID:        snowflake.Generate(),
		ProfileID: profile.ID,
		ServerID:  serverID,
		Role:      role,
	}
	require.NoError(t, s.AddMember(context.Background(), m))
	return m
}

func Channel(t testing.TB, s store.Store, serverID int64, creator models.Profile, name string) models.Channel {
	t.Helper()

	c := models.Channel{
		ID:               snowflake.Generate(),
		ServerID:         serverID,
		Name:             name,
		Type:             models.ChannelTypeText,
		CreatorProfileID: creator.ID,
	}
	require.NoError(t, s.CreateChannel(context.Background(), c))
	return c
}

// Message stores a message in the scope written by member. The timestamps
// come from the id like everywhere else.
func Message(t testing.TB, s store.Store, scope models.Scope, member models.Member, content string) models.Message {
	t.Helper()

	id := snowflake.Generate()
	msg := models.Message{
		ID:        id,
		MemberID:  member.ID,
		Content:   content,
		CreatedAt: snowflake.ExtractTime(id).UTC(),
		UpdatedAt: snowflake.ExtractTime(id).UTC(),
	}
	if scope.Type == models.ScopeConversation {
		msg.ConversationID = scope.ID
	} else {
		msg.ChannelID = scope.ID
	}
	require.NoError(t, s.CreateMessage(context.Background(), msg))
	return msg
}
