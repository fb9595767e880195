package handlers

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/fileHandlers"
	"errors"
	"io"
	"net/http"
)

type uploadResult struct {
	URL string `json:"url"`
}

// Upload stores the multipart "file" field. ?kind=image only takes pictures,
// the default kind=attachment also takes pdfs.
func Upload(w http.ResponseWriter, r *http.Request) {
	var constraints fileHandlers.Constraints
	switch r.URL.Query().Get("kind") {
	case "image":
		constraints = fileHandlers.ImageConstraints
	case "", "attachment":
		constraints = fileHandlers.AttachmentConstraints
	default:
		http.Error(w, "Unknown upload kind", http.StatusBadRequest)
		return
	}
	constraints.MaxBytes = min(constraints.MaxBytes, uploadMaxBytes)

	// room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, constraints.MaxBytes+64<<10)

	file, _, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, apperr.Newf(apperr.Invalid, "handlers.Upload", "file_too_large"))
			return
		}
		sugar.Debug(err)
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constraints.MaxBytes+1))
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	url, err := services.Uploader.Upload(data, constraints)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResult{URL: url})
}
