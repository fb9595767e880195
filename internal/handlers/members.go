package handlers

import (
	"chatcord-backend/internal/models"
	"net/http"
)

type roleChange struct {
	Role models.Role `json:"role" validate:"required,role"`
}

func ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
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

	var body roleChange
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	member, err := services.Servers.ChangeRole(r.Context(), profileIDFrom(r), serverID, memberID, body.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func KickMember(w http.ResponseWriter, r *http.Request) {
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

	if err := services.Servers.Kick(r.Context(), profileIDFrom(r), serverID, memberID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
