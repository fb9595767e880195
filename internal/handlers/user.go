package handlers

import (
	"chatcord-backend/internal/chat"
	"net/http"
)

func GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	profile, err := services.Profiles.Own(r.Context(), profileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func UpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	var input chat.ProfileInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	profile, err := services.Profiles.UpdateOwn(r.Context(), profileID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func GetProfile(w http.ResponseWriter, r *http.Request) {
	requestedID, err := urlID(r, "profileID")
	if err != nil {
		writeError(w, err)
		return
	}

	profile, err := services.Profiles.Get(r.Context(), requestedID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := services.Profiles.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}
