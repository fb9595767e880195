package pagination_test

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"chatcord-backend/internal/store/storetest"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPageSizes(t *testing.T) {
	e := pagination.New(storetest.New(t))
	assert.Equal(t, 12, e.PageSize(models.ScopeChannel))
	assert.Equal(t, 10, e.PageSize(models.ScopeConversation))
}

func TestParseCursor(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "Empty means first page", raw: "", want: 0},
		{name: "Snowflake id", raw: "7301927412736000", want: 7301927412736000},
		{name: "Not a number", raw: "abc", wantErr: true},
		{name: "Negative", raw: "-5", wantErr: true},
		{name: "Zero", raw: "0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pagination.ParseCursor(tt.raw)
			if tt.wantErr {
				assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Bob posts M1, then Alice posts M2; with a page size of one the history
// comes back as [M2] then [M1].
func TestTwoMessagesPageSizeOne(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	bob := storetest.Profile(t, s, "bob")
	server, aliceMember, general := storetest.Server(t, s, alice, "S")
	bobMember := storetest.Member(t, s, server.ID, bob, models.RoleGuest)
	scope := models.ChannelScope(general.ID)

	m1 := storetest.Message(t, s, scope, bobMember, "M1")
	m2 := storetest.Message(t, s, scope, aliceMember, "M2")

	e := pagination.New(s, pagination.WithPageSize(models.ScopeChannel, 1))

	first, err := e.FetchPage(ctx, scope, 0)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, m2.ID, first.Items[0].ID)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, strconv.FormatInt(m2.ID, 10), *first.NextCursor)

	cursor, err := pagination.ParseCursor(*first.NextCursor)
	require.NoError(t, err)

	second, err := e.FetchPage(ctx, scope, cursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, m1.ID, second.Items[0].ID)
	// a full page still carries a cursor, the next fetch comes back empty
	require.NotNil(t, second.NextCursor)

	cursor, err = pagination.ParseCursor(*second.NextCursor)
	require.NoError(t, err)
	third, err := e.FetchPage(ctx, scope, cursor)
	require.NoError(t, err)
	assert.Empty(t, third.Items)
	assert.Nil(t, third.NextCursor)
}

func TestTraversalYieldsEveryMessageOnce(t *testing.T) {
	for _, total := range []int{0, 1, 11, 12, 13, 24, 30} {
		t.Run(fmt.Sprintf("%d messages", total), func(t *testing.T) {
			ctx := context.Background()
			s := storetest.New(t)
			alice := storetest.Profile(t, s, "alice")
			_, owner, general := storetest.Server(t, s, alice, "S")
			scope := models.ChannelScope(general.ID)

			for i := range total {
				storetest.Message(t, s, scope, owner, fmt.Sprintf("message %d", i))
			}

			e := pagination.New(s)

			seen := make(map[int64]bool)
			var previous *models.Message
			var cursor int64
			fetches := 0

			for {
				page, err := e.FetchPage(ctx, scope, cursor)
				require.NoError(t, err)
				fetches++

				assert.LessOrEqual(t, len(page.Items), pagination.ChannelPageSize)
				for i := range page.Items {
					msg := page.Items[i]
					assert.False(t, seen[msg.ID], "message %d returned twice", msg.ID)
					seen[msg.ID] = true

					if previous != nil {
						assert.True(t, msg.CreatedAt.Before(previous.CreatedAt) ||
							(msg.CreatedAt.Equal(previous.CreatedAt) && msg.ID < previous.ID),
							"message %d out of order", msg.ID)
					}
					previous = &msg
				}

				if page.NextCursor == nil {
					break
				}
				cursor, err = pagination.ParseCursor(*page.NextCursor)
				require.NoError(t, err)
			}

			assert.Len(t, seen, total)
			// the last fetch is always short, so exact multiples cost one more request
			assert.Equal(t, total/pagination.ChannelPageSize+1, fetches)
		})
	}
}

func TestInsertAheadOfCursorDoesNotShiftPages(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	_, owner, general := storetest.Server(t, s, alice, "S")
	scope := models.ChannelScope(general.ID)

	for i := range 4 {
		storetest.Message(t, s, scope, owner, fmt.Sprintf("old %d", i))
	}

	e := pagination.New(s, pagination.WithPageSize(models.ScopeChannel, 2))

	first, err := e.FetchPage(ctx, scope, 0)
	require.NoError(t, err)
	require.NotNil(t, first.NextCursor)

	storetest.Message(t, s, scope, owner, "new")

	cursor, err := pagination.ParseCursor(*first.NextCursor)
	require.NoError(t, err)
	second, err := e.FetchPage(ctx, scope, cursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, "old 1", second.Items[0].Content)
	assert.Equal(t, "old 0", second.Items[1].Content)
}

func TestUnknownScopeOrCursorIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	e := pagination.New(s)

	page, err := e.FetchPage(ctx, models.ConversationScope(42), 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Nil(t, page.NextCursor)

	page, err = e.FetchPage(ctx, models.ChannelScope(42), 99)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)
}

func TestInvalidScope(t *testing.T) {
	e := pagination.New(storetest.New(t))

	_, err := e.FetchPage(context.Background(), models.Scope{Type: models.ScopeChannel}, 0)
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))

	_, err = e.FetchPage(context.Background(), models.Scope{Type: "server", ID: 1}, 0)
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
}

func TestSince(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	alice := storetest.Profile(t, s, "alice")
	_, owner, general := storetest.Server(t, s, alice, "S")
	scope := models.ChannelScope(general.ID)

	var sent []models.Message
	for i := range 7 {
		sent = append(sent, storetest.Message(t, s, scope, owner, fmt.Sprintf("m%d", i)))
	}

	e := pagination.New(s, pagination.WithPageSize(models.ScopeChannel, 3))

	items, complete, err := e.Since(ctx, scope, sent[2].ID, 100)
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, items, 4)
	assert.Equal(t, sent[3].ID, items[0].ID)
	assert.Equal(t, sent[6].ID, items[3].ID)

	_, complete, err = e.Since(ctx, scope, sent[0].ID, 3)
	require.NoError(t, err)
	assert.False(t, complete)

	items, complete, err = e.Since(ctx, scope, sent[6].ID, 100)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Empty(t, items)
}
