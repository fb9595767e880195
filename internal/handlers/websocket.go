package handlers

import (
	"chatcord-backend/internal/hub"
	"net/http"
)

// HandleWebSocket upgrades the request and serves the connection until it
// closes. Views are opened by subscribe frames, see chat.Sessions.
func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	client, err := hub.Upgrade(w, r, profileID, services.Sessions, sugar)
	if err != nil {
		sugar.Debug(err)
		return
	}

	client.Run(r.Context())
}
