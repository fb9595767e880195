package handlers

import (
	"chatcord-backend/internal/authz"
	"net/http"
)

// OpenConversation returns the direct message conversation between the
// caller's member in the server and memberID, creating it if needed.
func OpenConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}
	memberID, err := urlID(r, "memberID")
	if err != nil {
		writeError(w, err)
		return
	}

	self, err := services.Gate.Authorize(ctx, profileIDFrom(r), serverID, authz.ViewServer)
	if err != nil {
		writeError(w, err)
		return
	}

	conversation, err := services.Conversations.GetOrCreate(ctx, serverID, self.ID, memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}
