package conversation_test

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/conversation"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/store/storetest"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCanonicalPair(t *testing.T) {
	one, two := conversation.CanonicalPair(9, 3)
	assert.Equal(t, int64(3), one)
	assert.Equal(t, int64(9), two)

	one, two = conversation.CanonicalPair(3, 9)
	assert.Equal(t, int64(3), one)
	assert.Equal(t, int64(9), two)
}

func TestGetOrCreateIsSymmetric(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	bob := storetest.Profile(t, s, "bob")
	server, a, _ := storetest.Server(t, s, alice, "S")
	b := storetest.Member(t, s, server.ID, bob, models.RoleGuest)

	r := conversation.NewResolver(s, zap.NewNop().Sugar())

	first, err := r.GetOrCreate(ctx, server.ID, a.ID, b.ID)
	require.NoError(t, err)

	second, err := r.GetOrCreate(ctx, server.ID, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Less(t, first.MemberOneID, first.MemberTwoID)
	assert.Equal(t, a.ID, conversation.Other(first, b.ID))
}

func TestGetOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	bob := storetest.Profile(t, s, "bob")
	server, a, _ := storetest.Server(t, s, alice, "S")
	b := storetest.Member(t, s, server.ID, bob, models.RoleGuest)

	r := conversation.NewResolver(s, zap.NewNop().Sugar())

	const callers = 8
	ids := make([]int64, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			c, err := r.GetOrCreate(ctx, server.ID, x, y)
			ids[i], errs[i] = c.ID, err
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	one, two := conversation.CanonicalPair(a.ID, b.ID)
	found, err := s.FindConversation(ctx, one, two)
	require.NoError(t, err)
	assert.Equal(t, ids[0], found.ID)
}

func TestInvalidMembers(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	bob := storetest.Profile(t, s, "bob")
	server, a, _ := storetest.Server(t, s, alice, "S")
	_, b, _ := storetest.Server(t, s, bob, "Other")

	r := conversation.NewResolver(s, zap.NewNop().Sugar())

	tests := []struct {
		name string
		a, b int64
	}{
		{"Member of another server", a.ID, b.ID},
		{"Unknown member", a.ID, 777},
		{"Same member twice", a.ID, a.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.GetOrCreate(ctx, server.ID, tt.a, tt.b)
			assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
			assert.Equal(t, apperr.ReasonInvalidMember, apperr.ReasonOf(err))
		})
	}
}

// racingStore loses the creation race: the lookup misses, then the insert
// collides with a row created in between.
type racingStore struct {
	winner  models.Conversation
	lookups int
}

func (s *racingStore) GetMember(ctx context.Context, id int64) (models.Member, error) {
	return models.Member{ID: id, ServerID: 1}, nil
}

func (s *racingStore) FindConversation(ctx context.Context, one int64, two int64) (models.Conversation, error) {
	s.lookups++
	if s.lookups == 1 {
		return models.Conversation{}, apperr.New(apperr.NotFound, "find", errors.New("no rows"))
	}
	return s.winner, nil
}

func (s *racingStore) CreateConversation(ctx context.Context, c models.Conversation) error {
	return apperr.New(apperr.Conflict, "create", errors.New("UNIQUE constraint failed"))
}

func TestConflictReturnsExistingRow(t *testing.T) {
	s := &racingStore{winner: models.Conversation{ID: 55, MemberOneID: 10, MemberTwoID: 20}}
	r := conversation.NewResolver(s, zap.NewNop().Sugar())

	c, err := r.GetOrCreate(context.Background(), 1, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, s.winner, c)
	assert.Equal(t, 2, s.lookups)
}

type brokenStore struct {
	racingStore
}

func (s *brokenStore) CreateConversation(ctx context.Context, c models.Conversation) error {
	return apperr.New(apperr.Transient, "create", errors.New("database is locked"))
}

func TestOtherErrorsPropagate(t *testing.T) {
	r := conversation.NewResolver(&brokenStore{}, zap.NewNop().Sugar())

	_, err := r.GetOrCreate(context.Background(), 1, 20, 10)
	assert.Equal(t, apperr.Transient, apperr.KindOf(err))
}
