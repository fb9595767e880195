package handlers

import (
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/chat"
	"chatcord-backend/internal/conversation"
	"chatcord-backend/internal/fileHandlers"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are what the handlers call into. Every field is required.
type Services struct {
	Profiles      *chat.ProfileService
	Servers       *chat.ServerService
	Messages      *chat.MessageService
	Conversations *conversation.Resolver
	Pages         *pagination.Engine
	Gate          *authz.Gate
	Sessions      *chat.Sessions
	Uploader      *fileHandlers.Uploader
}

var sugar = zap.NewNop().Sugar()
var services Services
var uploadMaxBytes int64 = 8 << 20

// Setup builds the router. Serving it is up to the caller.
func Setup(cfg *models.ConfigFile, _sugar *zap.SugaredLogger, _services Services) http.Handler {
	sugar = _sugar
	services = _services
	if cfg.UploadMaxBytes > 0 {
		uploadMaxBytes = cfg.UploadMaxBytes
	}

	messageRateLimit := cfg.MessageRateLimit
	if messageRateLimit <= 0 {
		messageRateLimit = 30
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.BehindNginx {
		r.Use(middleware.RealIP)
	}
	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(RecordMetrics)

	r.Route("/api", func(api chi.Router) {
		// websockets live longer than this, so it stays off the root router
		api.Use(middleware.Timeout(60 * time.Second))

		api.Get("/test", Test)

		api.Group(func(api chi.Router) {
			api.Use(ProfileVerifier)

			api.Route("/profiles", func(r chi.Router) {
				r.Get("/", ListProfiles)
				r.Get("/me", GetOwnProfile)
				r.Patch("/me", UpdateOwnProfile)
				r.Get("/{profileID}", GetProfile)
			})

			api.Route("/servers", func(r chi.Router) {
				r.Post("/", CreateServer)
				r.Get("/", GetServerList)
				r.Get("/explore", ExploreServers)
				r.Post("/invite/{inviteCode}", JoinByInvite)

				r.Route("/{serverID}", func(r chi.Router) {
					r.Get("/", GetServer)
					r.Patch("/", UpdateServer)
					r.Delete("/", DeleteServer)
					r.Patch("/invite-code", RotateInviteCode)
					r.Post("/join", JoinServer)
					r.Post("/leave", LeaveServer)
					r.Post("/channels", CreateChannel)
					r.Patch("/members/{memberID}", ChangeMemberRole)
					r.Delete("/members/{memberID}", KickMember)
					r.Post("/conversations/{memberID}", OpenConversation)
				})
			})

			api.Route("/channels/{channelID}", func(r chi.Router) {
				r.Patch("/", UpdateChannel)
				r.Delete("/", DeleteChannel)
			})

			limitMessages := httprate.LimitByIP(messageRateLimit, time.Minute)
			api.Route("/messages", messageRoutes(models.ScopeChannel, limitMessages))
			api.Route("/direct-messages", messageRoutes(models.ScopeConversation, limitMessages))

			api.Post("/upload", Upload)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	var websocketPath string

	if cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir(services.Uploader.Dir()))))
	}

	r.With(ProfileVerifier).Get(websocketPath, HandleWebSocket)

	return r
}

func messageRoutes(scopeType models.ScopeType, limit func(http.Handler) http.Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", GetMessageList(scopeType))
		r.With(limit).Post("/", CreateMessage(scopeType))
		r.Patch("/{messageID}", EditMessage(scopeType))
		r.Delete("/{messageID}", DeleteMessage(scopeType))
	}
}
