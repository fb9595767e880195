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
	"time"

	"go.uber.org/zap"
)

type NewMessage struct {
	Content string `json:"content" validate:"max=2000"`
	FileURL string `json:"fileUrl" validate:"omitempty,max=2048"`
}

type MessageService struct {
	store   store.Store
	gate    *authz.Gate
	emitter Emitter
	sugar   *zap.SugaredLogger
	now     func() time.Time
}

func NewMessageService(s store.Store, gate *authz.Gate, emitter Emitter, sugar *zap.SugaredLogger) *MessageService {
	return &MessageService{
		store:   s,
		gate:    gate,
		emitter: emitter,
		sugar:   sugar,
		now:     time.Now,
	}
}

// Send authorizes the author, builds the message and hands it to
// OnMessageCreated. The returned message carries the server assigned id and
// timestamps.
func (s *MessageService) Send(ctx context.Context, profileID int64, scope models.Scope, input NewMessage) (models.Message, error) {
	member, err := s.gate.AuthorizeScope(ctx, profileID, scope, authz.PostMessage)
	if err != nil {
		return models.Message{}, err
	}

	if err := validator.MessageContent(input.Content, input.FileURL); err != nil {
		return models.Message{}, validator.Invalid("chat.Send", err)
	}

	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return models.Message{}, err
	}

	id := snowflake.Generate()
	createdAt := snowflake.ExtractTime(id).UTC()

	msg := models.Message{
		ID:        id,
		MemberID:  member.ID,
		Content:   input.Content,
		FileURL:   input.FileURL,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Author: models.Author{
			MemberID: member.ID,
			Role:     member.Role,
			Profile:  profile.Public(),
		},
	}
	if scope.Type == models.ScopeConversation {
		msg.ConversationID = scope.ID
	} else {
		msg.ChannelID = scope.ID
	}

	if err := s.OnMessageCreated(ctx, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// OnMessageCreated stores msg and only then publishes it to its scope's
// topic, so anything pushed live can already be read back through history.
// Nothing is published when storing fails.
func (s *MessageService) OnMessageCreated(ctx context.Context, msg models.Message) error {
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return err
	}

	emit(ctx, s.emitter, s.sugar, hub.MessageCreated, models.ScopeOf(msg).Topic(), msg)
	return nil
}

// Edit replaces the content of a message. Only its author may edit it, and
// deleted messages stay deleted.
func (s *MessageService) Edit(ctx context.Context, profileID int64, scope models.Scope, messageID int64, content string) (models.Message, error) {
	const op = "chat.Edit"

	member, msg, err := s.authorizedMessage(ctx, profileID, scope, messageID)
	if err != nil {
		return models.Message{}, err
	}

	if msg.MemberID != member.ID {
		return models.Message{}, apperr.Deny(apperr.InsufficientRole, apperr.ReasonInsufficientRole)
	}
	if msg.Deleted {
		return models.Message{}, apperr.Newf(apperr.Invalid, op, "message was deleted")
	}
	if err := validator.MessageContent(content, msg.FileURL); err != nil {
		return models.Message{}, validator.Invalid(op, err)
	}

	if err := s.store.UpdateMessageContent(ctx, scope, messageID, content, s.now()); err != nil {
		return models.Message{}, err
	}

	updated, err := s.store.GetMessage(ctx, scope, messageID)
	if err != nil {
		return models.Message{}, err
	}

	emit(ctx, s.emitter, s.sugar, hub.MessageModified, scope.Topic(), updated)
	return updated, nil
}

// Delete tombstones a message. Authors can delete their own messages;
// moderators and admins can delete any message in a channel. Deleting twice
// is not an error.
func (s *MessageService) Delete(ctx context.Context, profileID int64, scope models.Scope, messageID int64) (models.Message, error) {
	member, msg, err := s.authorizedMessage(ctx, profileID, scope, messageID)
	if err != nil {
		return models.Message{}, err
	}

	if msg.MemberID != member.ID {
		required, _ := authz.MinimumRole(authz.DeleteAnyMessage)
		if scope.Type != models.ScopeChannel || !member.Role.AtLeast(required) {
			return models.Message{}, apperr.Deny(apperr.InsufficientRole, apperr.ReasonInsufficientRole)
		}
	}

	if msg.Deleted {
		return msg, nil
	}

	if err := s.store.TombstoneMessage(ctx, scope, messageID, s.now()); err != nil {
		return models.Message{}, err
	}

	deleted, err := s.store.GetMessage(ctx, scope, messageID)
	if err != nil {
		return models.Message{}, err
	}

	emit(ctx, s.emitter, s.sugar, hub.MessageDeleted, scope.Topic(), deleted)
	return deleted, nil
}

func (s *MessageService) authorizedMessage(ctx context.Context, profileID int64, scope models.Scope, messageID int64) (models.Member, models.Message, error) {
	member, err := s.gate.AuthorizeScope(ctx, profileID, scope, authz.PostMessage)
	if err != nil {
		return models.Member{}, models.Message{}, err
	}

	msg, err := s.store.GetMessage(ctx, scope, messageID)
	if err != nil {
		return models.Member{}, models.Message{}, err
	}
	return member, msg, nil
}
