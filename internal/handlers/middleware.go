package handlers

import (
	"chatcord-backend/internal/chat"
	"chatcord-backend/internal/jwt"
	"chatcord-backend/internal/keyValue"
	"chatcord-backend/internal/metrics"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ProfileIDKeyType struct{}

const profileCacheTTL = 15 * time.Minute

func profileCacheKey(externalID string) string {
	return "profile:" + externalID
}

// ProfileVerifier authenticates the request with the identity provider's
// token and puts the caller's profile id into the context. The profile is
// created on first sight.
func ProfileVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tokenString, err := jwt.FromRequest(r)
		if err != nil {
			sugar.Debug(err)
			http.Error(w, "No token was provided", http.StatusUnauthorized)
			return
		}

		identity, err := jwt.VerifyToken(tokenString)
		if err != nil {
			sugar.Debug(err)
			// stale or forged cookies are removed so the client stops sending them
			http.SetCookie(w, jwt.ExpiredCookie())
			http.Error(w, "Couldn't verify token", http.StatusUnauthorized)
			return
		}

		key := profileCacheKey(identity.Subject)

		value, err := keyValue.Get(ctx, key)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		var profileID int64
		if value != "" {
			profileID, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				sugar.Errorw("Cached profile id is malformed", "key", key, "value", value)
				profileID = 0
			} else {
				sugar.Debugf("Profile of [%s] was found in cache", identity.Subject)
			}
		}

		if profileID == 0 {
			profile, err := services.Profiles.Ensure(ctx, chat.Identity{
				ExternalID:  identity.Subject,
				Username:    identity.Username,
				DisplayName: identity.DisplayName,
				ImageURL:    identity.ImageURL,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			profileID = profile.ID

			if err := keyValue.Set(ctx, key, strconv.FormatInt(profileID, 10), profileCacheTTL); err != nil {
				sugar.Error(err)
			}
		}

		ctx = context.WithValue(ctx, ProfileIDKeyType{}, profileID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecordMetrics observes every request under its route pattern, so ids in
// paths don't explode the label set.
func RecordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status, time.Since(start))
	})
}
