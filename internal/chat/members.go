package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/models"
	"context"
)

// ChangeRole sets the role of another member. The owner's role and the
// caller's own role can't be changed.
func (s *ServerService) ChangeRole(ctx context.Context, profileID int64, serverID int64, memberID int64, role models.Role) (models.Member, error) {
	const op = "chat.ChangeRole"

	if _, err := s.gate.Authorize(ctx, profileID, serverID, authz.ChangeMemberRole); err != nil {
		return models.Member{}, err
	}
	if !role.Valid() {
		return models.Member{}, apperr.Newf(apperr.Invalid, op, "unknown role %q", role)
	}

	if _, err := s.targetMember(ctx, profileID, serverID, memberID); err != nil {
		return models.Member{}, err
	}

	if err := s.store.UpdateMemberRole(ctx, serverID, memberID, role, profileID); err != nil {
		return models.Member{}, err
	}

	updated, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return models.Member{}, err
	}

	emit(ctx, s.emitter, s.sugar, hub.MemberModified, models.ServerTopic(serverID), updated)
	return updated, nil
}

// Kick removes another member. Moderators can't kick admins, nobody can kick
// the owner.
func (s *ServerService) Kick(ctx context.Context, profileID int64, serverID int64, memberID int64) error {
	actor, err := s.gate.Authorize(ctx, profileID, serverID, authz.ManageMembers)
	if err != nil {
		return err
	}

	target, err := s.targetMember(ctx, profileID, serverID, memberID)
	if err != nil {
		return err
	}
	if target.Role.Compare(actor.Role) > 0 {
		return apperr.Deny(apperr.InsufficientRole, apperr.ReasonInsufficientRole)
	}

	if err := s.store.DeleteMember(ctx, serverID, memberID, profileID); err != nil {
		return err
	}

	emit(ctx, s.emitter, s.sugar, hub.MemberLeft, models.ServerTopic(serverID), target)
	return nil
}

// targetMember loads the member an admin action is aimed at and refuses the
// caller itself and the owner.
func (s *ServerService) targetMember(ctx context.Context, profileID int64, serverID int64, memberID int64) (models.Member, error) {
	const op = "chat.targetMember"

	target, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return models.Member{}, err
	}
	if target.ServerID != serverID {
		return models.Member{}, apperr.Newf(apperr.NotFound, op, "member ID [%d] is not in server ID [%d]", memberID, serverID)
	}
	if target.ProfileID == profileID {
		return models.Member{}, apperr.Newf(apperr.Invalid, op, "can't target yourself")
	}

	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return models.Member{}, err
	}
	if target.ProfileID == server.OwnerProfileID {
		return models.Member{}, apperr.Deny(apperr.InsufficientRole, apperr.ReasonInsufficientRole)
	}
	return target, nil
}
