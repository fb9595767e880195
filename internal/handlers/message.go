package handlers

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/chat"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"net/http"
	"strconv"
)

type messageEdit struct {
	Content string `json:"content" validate:"max=2000"`
}

// scopeFrom reads the scopeId query parameter. It is the channel id for
// channel messages and the conversation id for direct messages.
func scopeFrom(r *http.Request, scopeType models.ScopeType) (models.Scope, error) {
	raw := r.URL.Query().Get("scopeId")
	if raw == "" {
		return models.Scope{}, apperr.Newf(apperr.Invalid, "handlers.scopeFrom", "missing scopeId")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return models.Scope{}, apperr.Newf(apperr.Invalid, "handlers.scopeFrom", "invalid scopeId")
	}
	return models.Scope{Type: scopeType, ID: id}, nil
}

// GetMessageList returns one page of history, newest first. The caller has to
// be allowed to see the scope before anything is read.
func GetMessageList(scopeType models.ScopeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		scope, err := scopeFrom(r, scopeType)
		if err != nil {
			writeError(w, err)
			return
		}

		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			writeError(w, err)
			return
		}

		if _, err := services.Gate.AuthorizeScope(ctx, profileIDFrom(r), scope, authz.ViewMessages); err != nil {
			writeError(w, err)
			return
		}

		page, err := services.Pages.FetchPage(ctx, scope, cursor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func CreateMessage(scopeType models.ScopeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeFrom(r, scopeType)
		if err != nil {
			writeError(w, err)
			return
		}

		var input chat.NewMessage
		if err := decodeBody(w, r, &input); err != nil {
			writeError(w, err)
			return
		}

		msg, err := services.Messages.Send(r.Context(), profileIDFrom(r), scope, input)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func EditMessage(scopeType models.ScopeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeFrom(r, scopeType)
		if err != nil {
			writeError(w, err)
			return
		}
		messageID, err := urlID(r, "messageID")
		if err != nil {
			writeError(w, err)
			return
		}

		var body messageEdit
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, err)
			return
		}

		msg, err := services.Messages.Edit(r.Context(), profileIDFrom(r), scope, messageID, body.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// DeleteMessage answers with the tombstone that replaced the message.
func DeleteMessage(scopeType models.ScopeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeFrom(r, scopeType)
		if err != nil {
			writeError(w, err)
			return
		}
		messageID, err := urlID(r, "messageID")
		if err != nil {
			writeError(w, err)
			return
		}

		msg, err := services.Messages.Delete(r.Context(), profileIDFrom(r), scope, messageID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}
