package handlers

import (
	"chatcord-backend/internal/chat"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func CreateServer(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	var input chat.ServerInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	server, err := services.Servers.Create(r.Context(), profileID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, server)
}

// GetServerList returns the servers the caller is a member of.
func GetServerList(w http.ResponseWriter, r *http.Request) {
	servers, err := services.Servers.ListMine(r.Context(), profileIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func ExploreServers(w http.ResponseWriter, r *http.Request) {
	servers, err := services.Servers.Explore(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func GetServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	details, err := services.Servers.Get(r.Context(), profileIDFrom(r), serverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func UpdateServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	var input chat.ServerInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	server, err := services.Servers.Update(r.Context(), profileIDFrom(r), serverID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func DeleteServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := services.Servers.Delete(r.Context(), profileIDFrom(r), serverID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func RotateInviteCode(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	server, err := services.Servers.RotateInvite(r.Context(), profileIDFrom(r), serverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// JoinByInvite is also fine for existing members, it just returns the server.
func JoinByInvite(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "inviteCode")
	if code == "" {
		http.Error(w, "Missing invite code", http.StatusBadRequest)
		return
	}

	server, err := services.Servers.JoinByInvite(r.Context(), profileIDFrom(r), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func JoinServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	member, err := services.Servers.Join(r.Context(), profileIDFrom(r), serverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func LeaveServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := services.Servers.Leave(r.Context(), profileIDFrom(r), serverID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
