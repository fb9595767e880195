package store

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/models"
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// execAffecting runs a write and reports NotFound when it matched no row,
// which is how conditional updates signal a failed ownership check.
func (s *SQLStore) execAffecting(ctx context.Context, op string, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.NotFound, op, "no matching row")
	}
	return nil
}

func (s *SQLStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(op, err)
	}

	return classify(op, tx.Commit())
}

func (s *SQLStore) GetProfile(ctx context.Context, id int64) (models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_auth_id, username, display_name, image_url, status, about, access_level
		FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.ExternalAuthID, &p.Username, &p.DisplayName, &p.ImageURL, &p.Status, &p.About, &p.AccessLevel)
	return p, classify("store.GetProfile", err)
}

func (s *SQLStore) GetProfileByExternalID(ctx context.Context, externalAuthID string) (models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_auth_id, username, display_name, image_url, status, about, access_level
		FROM profiles WHERE external_auth_id = ?`, externalAuthID).
		Scan(&p.ID, &p.ExternalAuthID, &p.Username, &p.DisplayName, &p.ImageURL, &p.Status, &p.About, &p.AccessLevel)
	return p, classify("store.GetProfileByExternalID", err)
}

func (s *SQLStore) CreateProfile(ctx context.Context, p models.Profile) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO profiles VALUES(?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.ExternalAuthID, p.Username, p.DisplayName, p.ImageURL, p.Status, p.About, p.AccessLevel)
	return classify("store.CreateProfile", err)
}

func (s *SQLStore) UpdateProfile(ctx context.Context, p models.Profile) error {
	return s.execAffecting(ctx, "store.UpdateProfile",
		"UPDATE profiles SET display_name = ?, image_url = ?, status = ?, about = ? WHERE id = ?",
		p.DisplayName, p.ImageURL, p.Status, p.About, p.ID)
}

func (s *SQLStore) ListProfiles(ctx context.Context) ([]models.PublicProfile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, display_name, image_url FROM profiles ORDER BY id")
	if err != nil {
		return nil, classify("store.ListProfiles", err)
	}
	defer rows.Close()

	profiles := []models.PublicProfile{}
	for rows.Next() {
		var p models.PublicProfile
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.ImageURL); err != nil {
			return nil, classify("store.ListProfiles", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, classify("store.ListProfiles", rows.Err())
}

func (s *SQLStore) CreateServer(ctx context.Context, server models.Server, owner models.Member, general models.Channel) error {
	return s.withTx(ctx, "store.CreateServer", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO servers VALUES(?, ?, ?, ?, ?)",
			server.ID, server.Name, server.ImageURL, server.InviteCode, server.OwnerProfileID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO members VALUES(?, ?, ?, ?)",
			owner.ID, owner.ProfileID, owner.ServerID, owner.Role)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO channels VALUES(?, ?, ?, ?, ?)",
			general.ID, general.ServerID, general.Name, general.Type, general.CreatorProfileID)
		return err
	})
}

const serverColumns = "s.id, s.name, s.image_url, s.invite_code, s.owner_profile_id"

func scanServer(row interface{ Scan(...any) error }, server *models.Server) error {
	return row.Scan(&server.ID, &server.Name, &server.ImageURL, &server.InviteCode, &server.OwnerProfileID)
}

func (s *SQLStore) GetServer(ctx context.Context, id int64) (models.Server, error) {
	var server models.Server
	err := scanServer(s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers s WHERE s.id = ?", id), &server)
	return server, classify("store.GetServer", err)
}

func (s *SQLStore) GetServerByInviteCode(ctx context.Context, code string) (models.Server, error) {
	var server models.Server
	err := scanServer(s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers s WHERE s.invite_code = ?", code), &server)
	return server, classify("store.GetServerByInviteCode", err)
}

func (s *SQLStore) ListServersForProfile(ctx context.Context, profileID int64) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+serverColumns+`
		FROM servers s JOIN members m ON s.id = m.server_id
		WHERE m.profile_id = ?
		ORDER BY s.id`, profileID)
	if err != nil {
		return nil, classify("store.ListServersForProfile", err)
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var server models.Server
		if err := scanServer(rows, &server); err != nil {
			return nil, classify("store.ListServersForProfile", err)
		}
		servers = append(servers, server)
	}
	return servers, classify("store.ListServersForProfile", rows.Err())
}

func (s *SQLStore) ListServerSummaries(ctx context.Context) ([]models.ServerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.image_url, s.owner_profile_id, COUNT(m.id)
		FROM servers s LEFT JOIN members m ON s.id = m.server_id
		GROUP BY s.id, s.name, s.image_url, s.owner_profile_id
		ORDER BY s.id`)
	if err != nil {
		return nil, classify("store.ListServerSummaries", err)
	}
	defer rows.Close()

	summaries := []models.ServerSummary{}
	for rows.Next() {
		var summary models.ServerSummary
		err := rows.Scan(&summary.ID, &summary.Name, &summary.ImageURL, &summary.OwnerProfileID, &summary.MemberCount)
		if err != nil {
			return nil, classify("store.ListServerSummaries", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, classify("store.ListServerSummaries", rows.Err())
}

const isAdminClause = "EXISTS (SELECT 1 FROM members WHERE server_id = ? AND profile_id = ? AND role = 'ADMIN')"

// actorRole is the role of a profile in a server, NULL when it isn't a
// member. The LIMIT keeps mysql from merging the derived table, which would
// make it refuse reading members while writing to it.
const actorRole = "(SELECT role FROM (SELECT role FROM members WHERE server_id = ? AND profile_id = ? LIMIT 1) actor)"

func (s *SQLStore) UpdateServer(ctx context.Context, server models.Server, actorProfileID int64) error {
	return s.execAffecting(ctx, "store.UpdateServer",
		"UPDATE servers SET name = ?, image_url = ? WHERE id = ? AND "+isAdminClause,
		server.Name, server.ImageURL, server.ID, server.ID, actorProfileID)
}

func (s *SQLStore) SetInviteCode(ctx context.Context, serverID int64, code string, actorProfileID int64) error {
	return s.execAffecting(ctx, "store.SetInviteCode",
		"UPDATE servers SET invite_code = ? WHERE id = ? AND "+isAdminClause,
		code, serverID, serverID, actorProfileID)
}

// DeleteServer removes the server with its members and channels. The
// conversations between its members go too, their direct messages with them.
func (s *SQLStore) DeleteServer(ctx context.Context, serverID int64, ownerProfileID int64) error {
	const op = "store.DeleteServer"

	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		// rolled back below when the caller isn't the owner
		_, err := tx.ExecContext(ctx, `
			DELETE FROM conversations
			WHERE member_one_id IN (SELECT id FROM members WHERE server_id = ?)`, serverID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM servers WHERE id = ? AND owner_profile_id = ?", serverID, ownerProfileID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Newf(apperr.NotFound, op, "no matching row")
		}
		return nil
	})
}

func (s *SQLStore) GetMember(ctx context.Context, id int64) (models.Member, error) {
	var m models.Member
	err := s.db.QueryRowContext(ctx, "SELECT id, profile_id, server_id, role FROM members WHERE id = ?", id).
		Scan(&m.ID, &m.ProfileID, &m.ServerID, &m.Role)
	return m, classify("store.GetMember", err)
}

func (s *SQLStore) GetMemberByProfile(ctx context.Context, serverID int64, profileID int64) (models.Member, error) {
	var m models.Member
	err := s.db.QueryRowContext(ctx, "SELECT id, profile_id, server_id, role FROM members WHERE server_id = ? AND profile_id = ?", serverID, profileID).
		Scan(&m.ID, &m.ProfileID, &m.ServerID, &m.Role)
	return m, classify("store.GetMemberByProfile", err)
}

func (s *SQLStore) ListMembers(ctx context.Context, serverID int64) ([]models.MemberWithProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.profile_id, m.server_id, m.role, p.id, p.username, p.display_name, p.image_url
		FROM members m JOIN profiles p ON m.profile_id = p.id
		WHERE m.server_id = ?
		ORDER BY m.id`, serverID)
	if err != nil {
		return nil, classify("store.ListMembers", err)
	}
	defer rows.Close()

	members := []models.MemberWithProfile{}
	for rows.Next() {
		var m models.MemberWithProfile
		err := rows.Scan(&m.ID, &m.ProfileID, &m.ServerID, &m.Role,
			&m.Profile.ID, &m.Profile.Username, &m.Profile.DisplayName, &m.Profile.ImageURL)
		if err != nil {
			return nil, classify("store.ListMembers", err)
		}
		members = append(members, m)
	}
	return members, classify("store.ListMembers", rows.Err())
}

func (s *SQLStore) AddMember(ctx context.Context, m models.Member) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO members VALUES(?, ?, ?, ?)", m.ID, m.ProfileID, m.ServerID, m.Role)
	return classify("store.AddMember", err)
}

// UpdateMemberRole only goes through while the actor is still an admin of
// the server. The actor never changes their own role.
func (s *SQLStore) UpdateMemberRole(ctx context.Context, serverID int64, memberID int64, role models.Role, actorProfileID int64) error {
	return s.execAffecting(ctx, "store.UpdateMemberRole", `
		UPDATE members SET role = ?
		WHERE id = ? AND server_id = ? AND profile_id <> ?
		AND profile_id <> (SELECT owner_profile_id FROM servers WHERE id = ?)
		AND `+actorRole+` = 'ADMIN'`,
		role, memberID, serverID, actorProfileID, serverID, serverID, actorProfileID)
}

// DeleteMember kicks a member. The actor must still be a moderator or admin
// and the target can't outrank them.
func (s *SQLStore) DeleteMember(ctx context.Context, serverID int64, memberID int64, actorProfileID int64) error {
	return s.execAffecting(ctx, "store.DeleteMember", `
		DELETE FROM members
		WHERE id = ? AND server_id = ? AND profile_id <> ?
		AND profile_id <> (SELECT owner_profile_id FROM servers WHERE id = ?)
		AND `+actorRole+` IN ('MODERATOR', 'ADMIN')
		AND (role <> 'ADMIN' OR `+actorRole+` = 'ADMIN')`,
		memberID, serverID, actorProfileID, serverID, serverID, actorProfileID, serverID, actorProfileID)
}

func (s *SQLStore) LeaveServer(ctx context.Context, serverID int64, profileID int64) error {
	return s.execAffecting(ctx, "store.LeaveServer", `
		DELETE FROM members
		WHERE server_id = ? AND profile_id = ?
		AND profile_id <> (SELECT owner_profile_id FROM servers WHERE id = ?)`,
		serverID, profileID, serverID)
}

func (s *SQLStore) CreateChannel(ctx context.Context, c models.Channel) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO channels VALUES(?, ?, ?, ?, ?)",
		c.ID, c.ServerID, c.Name, c.Type, c.CreatorProfileID)
	return classify("store.CreateChannel", err)
}

func (s *SQLStore) GetChannel(ctx context.Context, id int64) (models.Channel, error) {
	var c models.Channel
	err := s.db.QueryRowContext(ctx, "SELECT id, server_id, name, type, creator_profile_id FROM channels WHERE id = ?", id).
		Scan(&c.ID, &c.ServerID, &c.Name, &c.Type, &c.CreatorProfileID)
	return c, classify("store.GetChannel", err)
}

func (s *SQLStore) ListChannels(ctx context.Context, serverID int64) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, server_id, name, type, creator_profile_id FROM channels WHERE server_id = ? ORDER BY id", serverID)
	if err != nil {
		return nil, classify("store.ListChannels", err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.ServerID, &c.Name, &c.Type, &c.CreatorProfileID); err != nil {
			return nil, classify("store.ListChannels", err)
		}
		channels = append(channels, c)
	}
	return channels, classify("store.ListChannels", rows.Err())
}

func (s *SQLStore) UpdateChannel(ctx context.Context, c models.Channel) error {
	return s.execAffecting(ctx, "store.UpdateChannel",
		"UPDATE channels SET name = ?, type = ? WHERE id = ? AND server_id = ? AND name <> ?",
		c.Name, c.Type, c.ID, c.ServerID, models.GeneralChannelName)
}

func (s *SQLStore) DeleteChannel(ctx context.Context, serverID int64, channelID int64) error {
	return s.execAffecting(ctx, "store.DeleteChannel",
		"DELETE FROM channels WHERE id = ? AND server_id = ? AND name <> ?",
		channelID, serverID, models.GeneralChannelName)
}

func (s *SQLStore) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx, "SELECT id, member_one_id, member_two_id FROM conversations WHERE id = ?", id).
		Scan(&c.ID, &c.MemberOneID, &c.MemberTwoID)
	return c, classify("store.GetConversation", err)
}

func (s *SQLStore) FindConversation(ctx context.Context, memberOneID int64, memberTwoID int64) (models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx, "SELECT id, member_one_id, member_two_id FROM conversations WHERE member_one_id = ? AND member_two_id = ?", memberOneID, memberTwoID).
		Scan(&c.ID, &c.MemberOneID, &c.MemberTwoID)
	return c, classify("store.FindConversation", err)
}

func (s *SQLStore) CreateConversation(ctx context.Context, c models.Conversation) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO conversations VALUES(?, ?, ?)", c.ID, c.MemberOneID, c.MemberTwoID)
	return classify("store.CreateConversation", err)
}

// messageTable returns the table and scope column holding a scope's messages.
func messageTable(scope models.Scope) (table string, column string, err error) {
	switch scope.Type {
	case models.ScopeChannel:
		return "messages", "channel_id", nil
	case models.ScopeConversation:
		return "direct_messages", "conversation_id", nil
	}
	return "", "", apperr.Newf(apperr.Invalid, "store.messageTable", "unknown scope type %q", scope.Type)
}

func (s *SQLStore) CreateMessage(ctx context.Context, msg models.Message) error {
	scope := models.ScopeOf(msg)
	table, column, err := messageTable(scope)
	if err != nil {
		return err
	}

	// the author's profile is copied from the member so it survives a kick
	return s.execAffecting(ctx, "store.CreateMessage", fmt.Sprintf(`
		INSERT INTO %s (id, %s, member_id, author_profile_id, content, file_url, created_at, updated_at, deleted)
		SELECT ?, ?, id, profile_id, ?, ?, ?, ?, ? FROM members WHERE id = ?`, table, column),
		msg.ID, scope.ID, msg.Content, msg.FileURL, msg.CreatedAt.UnixMilli(), msg.UpdatedAt.UnixMilli(), msg.Deleted, msg.MemberID)
}

func messageSelect(table string, column string) string {
	return fmt.Sprintf(`
		SELECT msg.id, msg.%[2]s, msg.member_id, msg.content, msg.file_url, msg.created_at, msg.updated_at, msg.deleted,
			COALESCE(mb.role, ''), p.id, p.username, p.display_name, p.image_url
		FROM %[1]s msg
		LEFT JOIN members mb ON mb.id = msg.member_id
		JOIN profiles p ON p.id = msg.author_profile_id`, table, column)
}

func scanMessage(row interface{ Scan(...any) error }, scope models.Scope) (models.Message, error) {
	var msg models.Message
	var scopeID, createdAt, updatedAt int64
	err := row.Scan(&msg.ID, &scopeID, &msg.MemberID, &msg.Content, &msg.FileURL, &createdAt, &updatedAt, &msg.Deleted,
		&msg.Author.Role, &msg.Author.Profile.ID, &msg.Author.Profile.Username, &msg.Author.Profile.DisplayName, &msg.Author.Profile.ImageURL)
	if err != nil {
		return msg, err
	}

	if scope.Type == models.ScopeConversation {
		msg.ConversationID = scopeID
	} else {
		msg.ChannelID = scopeID
	}
	msg.Author.MemberID = msg.MemberID
	msg.CreatedAt = time.UnixMilli(createdAt).UTC()
	msg.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return msg, nil
}

func (s *SQLStore) GetMessage(ctx context.Context, scope models.Scope, id int64) (models.Message, error) {
	table, column, err := messageTable(scope)
	if err != nil {
		return models.Message{}, err
	}

	row := s.db.QueryRowContext(ctx, messageSelect(table, column)+fmt.Sprintf(" WHERE msg.id = ? AND msg.%s = ?", column), id, scope.ID)
	msg, err := scanMessage(row, scope)
	return msg, classify("store.GetMessage", err)
}

func (s *SQLStore) UpdateMessageContent(ctx context.Context, scope models.Scope, id int64, content string, updatedAt time.Time) error {
	table, column, err := messageTable(scope)
	if err != nil {
		return err
	}

	return s.execAffecting(ctx, "store.UpdateMessageContent",
		fmt.Sprintf("UPDATE %s SET content = ?, updated_at = ? WHERE id = ? AND %s = ? AND deleted = ?", table, column),
		content, updatedAt.UnixMilli(), id, scope.ID, false)
}

func (s *SQLStore) TombstoneMessage(ctx context.Context, scope models.Scope, id int64, updatedAt time.Time) error {
	table, column, err := messageTable(scope)
	if err != nil {
		return err
	}

	return s.execAffecting(ctx, "store.TombstoneMessage",
		fmt.Sprintf("UPDATE %s SET content = ?, file_url = '', deleted = ?, updated_at = ? WHERE id = ? AND %s = ?", table, column),
		models.DeletedMessageContent, true, updatedAt.UnixMilli(), id, scope.ID)
}

func (s *SQLStore) ListMessages(ctx context.Context, scope models.Scope, cursor int64, limit int) ([]models.Message, error) {
	const op = "store.ListMessages"

	table, column, err := messageTable(scope)
	if err != nil {
		return nil, err
	}

	query := messageSelect(table, column) + fmt.Sprintf(" WHERE msg.%s = ?", column)
	args := []any{scope.ID}

	if cursor != 0 {
		var cursorCreatedAt int64
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT created_at FROM %s WHERE id = ? AND %s = ?", table, column), cursor, scope.ID).
			Scan(&cursorCreatedAt)
		if err != nil {
			return nil, classify(op, err)
		}

		// skip past the cursor row itself
		query += " AND (msg.created_at < ? OR (msg.created_at = ? AND msg.id < ?))"
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursor)
	}

	query += " ORDER BY msg.created_at DESC, msg.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows, scope)
		if err != nil {
			return nil, classify(op, err)
		}
		messages = append(messages, msg)
	}
	return messages, classify(op, rows.Err())
}
