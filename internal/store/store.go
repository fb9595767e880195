// Package store is the persistence boundary. Everything above it talks to the
// Store interface; SQLStore implements it on MySQL or sqlite.
package store

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/models"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store interface {
	GetProfile(ctx context.Context, id int64) (models.Profile, error)
	GetProfileByExternalID(ctx context.Context, externalAuthID string) (models.Profile, error)
	CreateProfile(ctx context.Context, profile models.Profile) error
	UpdateProfile(ctx context.Context, profile models.Profile) error
	ListProfiles(ctx context.Context) ([]models.PublicProfile, error)

	// CreateServer stores the server together with its owner's membership and
	// its general channel, all or nothing.
	CreateServer(ctx context.Context, server models.Server, owner models.Member, general models.Channel) error
	GetServer(ctx context.Context, id int64) (models.Server, error)
	GetServerByInviteCode(ctx context.Context, code string) (models.Server, error)
	ListServersForProfile(ctx context.Context, profileID int64) ([]models.Server, error)
	ListServerSummaries(ctx context.Context) ([]models.ServerSummary, error)
	// UpdateServer and SetInviteCode only touch the row while actorProfileID
	// is an ADMIN member of the server.
	UpdateServer(ctx context.Context, server models.Server, actorProfileID int64) error
	SetInviteCode(ctx context.Context, serverID int64, code string, actorProfileID int64) error
	DeleteServer(ctx context.Context, serverID int64, ownerProfileID int64) error

	GetMember(ctx context.Context, id int64) (models.Member, error)
	GetMemberByProfile(ctx context.Context, serverID int64, profileID int64) (models.Member, error)
	ListMembers(ctx context.Context, serverID int64) ([]models.MemberWithProfile, error)
	AddMember(ctx context.Context, member models.Member) error
	UpdateMemberRole(ctx context.Context, serverID int64, memberID int64, role models.Role, actorProfileID int64) error
	DeleteMember(ctx context.Context, serverID int64, memberID int64, actorProfileID int64) error
	// LeaveServer removes the profile's membership unless it owns the server.
	LeaveServer(ctx context.Context, serverID int64, profileID int64) error

	CreateChannel(ctx context.Context, channel models.Channel) error
	GetChannel(ctx context.Context, id int64) (models.Channel, error)
	ListChannels(ctx context.Context, serverID int64) ([]models.Channel, error)
	// UpdateChannel and DeleteChannel never touch a channel named "general".
	UpdateChannel(ctx context.Context, channel models.Channel) error
	DeleteChannel(ctx context.Context, serverID int64, channelID int64) error

	GetConversation(ctx context.Context, id int64) (models.Conversation, error)
	FindConversation(ctx context.Context, memberOneID int64, memberTwoID int64) (models.Conversation, error)
	// CreateConversation fails with Conflict when the pair already has one.
	CreateConversation(ctx context.Context, conversation models.Conversation) error

	CreateMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, scope models.Scope, id int64) (models.Message, error)
	UpdateMessageContent(ctx context.Context, scope models.Scope, id int64, content string, updatedAt time.Time) error
	TombstoneMessage(ctx context.Context, scope models.Scope, id int64, updatedAt time.Time) error
	// ListMessages returns up to limit messages of the scope newest first,
	// ordered by (createdAt, id) descending and starting strictly after the
	// cursor message. A cursor of 0 starts from the newest message. An unknown
	// cursor is NotFound.
	ListMessages(ctx context.Context, scope models.Scope, cursor int64, limit int) ([]models.Message, error)
}

// classify turns driver errors into the apperr taxonomy so callers never see
// raw storage errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.New(apperr.NotFound, op, err)
	case isUniqueViolation(err):
		return apperr.New(apperr.Conflict, op, err)
	case isTransient(err):
		return apperr.New(apperr.Transient, op, err)
	}
	return apperr.New(apperr.Internal, op, err)
}

func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// lock wait timeout, deadlock
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
