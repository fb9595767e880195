// Package conversation finds or creates the single direct conversation
// between two members of a server.
package conversation

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"context"

	"go.uber.org/zap"
)

// Store is the part of the storage layer the resolver needs.
type Store interface {
	GetMember(ctx context.Context, id int64) (models.Member, error)
	FindConversation(ctx context.Context, memberOneID int64, memberTwoID int64) (models.Conversation, error)
	CreateConversation(ctx context.Context, conversation models.Conversation) error
}

type Resolver struct {
	store Store
	sugar *zap.SugaredLogger
}

func NewResolver(s Store, sugar *zap.SugaredLogger) *Resolver {
	return &Resolver{store: s, sugar: sugar}
}

// CanonicalPair orders two member ids so that the same pair always maps to
// the same row, whoever starts the conversation.
func CanonicalPair(a int64, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// GetOrCreate returns the conversation between the two members of serverID,
// creating it on first contact. Both sides racing to create it get the same
// row back.
func (r *Resolver) GetOrCreate(ctx context.Context, serverID int64, memberAID int64, memberBID int64) (models.Conversation, error) {
	const op = "conversation.GetOrCreate"

	if memberAID == memberBID {
		return models.Conversation{}, invalidMember(op)
	}

	for _, id := range []int64{memberAID, memberBID} {
		member, err := r.store.GetMember(ctx, id)
		if apperr.Is(err, apperr.NotFound) || (err == nil && member.ServerID != serverID) {
			return models.Conversation{}, invalidMember(op)
		}
		if err != nil {
			return models.Conversation{}, err
		}
	}

	one, two := CanonicalPair(memberAID, memberBID)

	existing, err := r.store.FindConversation(ctx, one, two)
	if err == nil {
		return existing, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return models.Conversation{}, err
	}

	created := models.Conversation{
		ID:          snowflake.Generate(),
		MemberOneID: one,
		MemberTwoID: two,
	}

	err = r.store.CreateConversation(ctx, created)
	if apperr.Is(err, apperr.Conflict) {
		// the other side won the race, use their row
		r.sugar.Debugf("Conversation between member IDs [%d] and [%d] was created concurrently", one, two)
		return r.store.FindConversation(ctx, one, two)
	}
	if err != nil {
		return models.Conversation{}, err
	}

	r.sugar.Debugf("Created conversation ID [%d] between member IDs [%d] and [%d]", created.ID, one, two)
	return created, nil
}

// Other returns the member id on the other side of the conversation.
func Other(c models.Conversation, memberID int64) int64 {
	if c.MemberOneID == memberID {
		return c.MemberTwoID
	}
	return c.MemberOneID
}

func invalidMember(op string) error {
	return &apperr.Error{Kind: apperr.Invalid, Reason: apperr.ReasonInvalidMember, Op: op}
}
