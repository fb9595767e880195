// Package pagination serves message history newest first, one fixed size page
// at a time, resuming after the id of the last message a client saw.
package pagination

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/metrics"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/store"
	"context"
	"strconv"
	"time"
)

const (
	ChannelPageSize      = 12
	ConversationPageSize = 10
)

type Engine struct {
	store     store.Store
	pageSizes map[models.ScopeType]int
}

type Option func(*Engine)

// WithPageSize overrides the page size of one scope type.
func WithPageSize(scopeType models.ScopeType, size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.pageSizes[scopeType] = size
		}
	}
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		pageSizes: map[models.ScopeType]int{
			models.ScopeChannel:      ChannelPageSize,
			models.ScopeConversation: ConversationPageSize,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) PageSize(scopeType models.ScopeType) int {
	return e.pageSizes[scopeType]
}

// ParseCursor reads a cursor as sent by clients. An empty string means the
// first page.
func ParseCursor(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor <= 0 {
		return 0, apperr.Newf(apperr.Invalid, "pagination.ParseCursor", "invalid cursor %q", raw)
	}
	return cursor, nil
}

// FetchPage returns the page of the scope that follows cursor. The caller is
// expected to have authorized the scope already.
//
// NextCursor is only set when the page came back full, so when the remaining
// message count is an exact multiple of the page size the client makes one
// extra request that returns nothing.
//
// A scope or cursor that doesn't exist yields an empty page rather than an
// error.
func (e *Engine) FetchPage(ctx context.Context, scope models.Scope, cursor int64) (models.Page, error) {
	const op = "pagination.FetchPage"

	if !scope.Type.Valid() || scope.ID <= 0 {
		return models.Page{}, apperr.Newf(apperr.Invalid, op, "invalid scope %s", scope)
	}

	pageSize := e.pageSizes[scope.Type]

	start := time.Now()
	items, err := e.store.ListMessages(ctx, scope, cursor, pageSize)
	metrics.PageFetchDuration.WithLabelValues(string(scope.Type)).Observe(time.Since(start).Seconds())

	if apperr.Is(err, apperr.NotFound) {
		return models.Page{Items: []models.Message{}}, nil
	}
	if err != nil {
		return models.Page{}, err
	}

	page := models.Page{Items: items}
	if page.Items == nil {
		page.Items = []models.Message{}
	}

	if len(items) == pageSize {
		next := strconv.FormatInt(items[len(items)-1].ID, 10)
		page.NextCursor = &next
	}
	return page, nil
}

// Since returns every message of the scope newer than lastID, oldest first.
// Clients use it to fill the gap after a reconnect or after lagging. It stops
// after limit messages; in that case complete is false and the client should
// drop its view and reload the first page instead.
func (e *Engine) Since(ctx context.Context, scope models.Scope, lastID int64, limit int) (items []models.Message, complete bool, err error) {
	var cursor int64
	collected := []models.Message{}

	for len(collected) < limit {
		page, err := e.FetchPage(ctx, scope, cursor)
		if err != nil {
			return nil, false, err
		}

		for _, msg := range page.Items {
			if msg.ID <= lastID {
				reverse(collected)
				return collected, true, nil
			}
			collected = append(collected, msg)
		}

		if page.NextCursor == nil {
			reverse(collected)
			return collected, true, nil
		}
		cursor = page.Items[len(page.Items)-1].ID
	}

	reverse(collected)
	return collected, false, nil
}

func reverse(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
