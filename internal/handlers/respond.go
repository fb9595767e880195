package handlers

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/validator"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const maxBodyBytes = 64 << 10

func profileIDFrom(r *http.Request) int64 {
	return r.Context().Value(ProfileIDKeyType{}).(int64)
}

// writeError answers with the status of err's kind. Only internal errors are
// worth an error log, the rest are the caller's fault.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		sugar.Errorw("Request failed", "error", err)
	} else {
		sugar.Debug(err)
	}
	http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(kind))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		sugar.Error(err)
	}
}

// decodeBody reads a JSON body into dst and checks its validate tags.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.Invalid, "handlers.decodeBody", err)
	}
	return validator.Struct(dst)
}

// urlID parses a snowflake id path parameter.
func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.Invalid, "handlers.urlID", "invalid %s", name)
	}
	return id, nil
}
