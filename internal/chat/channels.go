package chat

import (
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"chatcord-backend/internal/validator"
	"context"
)

type ChannelInput struct {
	Name string             `json:"name" validate:"required,max=32"`
	Type models.ChannelType `json:"type" validate:"omitempty,channeltype"`
}

// checkChannelName refuses taking the reserved name with the same error as
// touching the general channel itself.
func checkChannelName(op string, name string) error {
	if name == models.GeneralChannelName {
		return authz.ProtectedChannelError()
	}
	return validator.Invalid(op, validator.ChannelName(name))
}

func (s *ServerService) CreateChannel(ctx context.Context, profileID int64, serverID int64, input ChannelInput) (models.Channel, error) {
	if _, err := s.gate.Authorize(ctx, profileID, serverID, authz.CreateChannel); err != nil {
		return models.Channel{}, err
	}
	if err := checkChannelName("chat.CreateChannel", input.Name); err != nil {
		return models.Channel{}, err
	}

	channelType := input.Type
	if channelType == "" {
		channelType = models.ChannelTypeText
	}

	channel := models.Channel{
		ID:               snowflake.Generate(),
		ServerID:         serverID,
		Name:             input.Name,
		Type:             channelType,
		CreatorProfileID: profileID,
	}
	if err := s.store.CreateChannel(ctx, channel); err != nil {
		return models.Channel{}, err
	}

	emit(ctx, s.emitter, s.sugar, hub.ChannelCreated, models.ServerTopic(serverID), channel)
	return channel, nil
}

// UpdateChannel renames a channel or changes its type. The general channel
// can't be changed and no channel can be renamed to it.
func (s *ServerService) UpdateChannel(ctx context.Context, profileID int64, channelID int64, input ChannelInput) (models.Channel, error) {
	_, channel, err := s.gate.AuthorizeChannel(ctx, profileID, channelID, authz.UpdateChannel)
	if err != nil {
		return models.Channel{}, err
	}
	if err := checkChannelName("chat.UpdateChannel", input.Name); err != nil {
		return models.Channel{}, err
	}

	channel.Name = input.Name
	if input.Type != "" {
		channel.Type = input.Type
	}
	if err := s.store.UpdateChannel(ctx, channel); err != nil {
		return models.Channel{}, err
	}

	emit(ctx, s.emitter, s.sugar, hub.ChannelModified, models.ServerTopic(channel.ServerID), channel)
	return channel, nil
}

func (s *ServerService) DeleteChannel(ctx context.Context, profileID int64, channelID int64) error {
	_, channel, err := s.gate.AuthorizeChannel(ctx, profileID, channelID, authz.DeleteChannel)
	if err != nil {
		return err
	}

	if err := s.store.DeleteChannel(ctx, channel.ServerID, channelID); err != nil {
		return err
	}

	emit(ctx, s.emitter, s.sugar, hub.ChannelDeleted, models.ServerTopic(channel.ServerID), channel)
	return nil
}
