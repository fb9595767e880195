package handlers

import (
	"chatcord-backend/internal/chat"
	"net/http"
)

func CreateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, err := urlID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	var input chat.ChannelInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	channel, err := services.Servers.CreateChannel(r.Context(), profileIDFrom(r), serverID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, channel)
}

func UpdateChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := urlID(r, "channelID")
	if err != nil {
		writeError(w, err)
		return
	}

	var input chat.ChannelInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	channel, err := services.Servers.UpdateChannel(r.Context(), profileIDFrom(r), channelID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := urlID(r, "channelID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := services.Servers.DeleteChannel(r.Context(), profileIDFrom(r), channelID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
