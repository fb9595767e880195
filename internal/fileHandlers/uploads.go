package fileHandlers

import (
	"chatcord-backend/internal/apperr"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

// Constraints limit what an upload may be. Types are checked against the
// sniffed content, never the name or header the client sent.
type Constraints struct {
	MaxBytes     int64
	AllowedTypes []string
}

var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

var (
	ImageConstraints      = Constraints{MaxBytes: 4 << 20, AllowedTypes: imageTypes}
	AttachmentConstraints = Constraints{MaxBytes: 8 << 20, AllowedTypes: append(slices.Clone(imageTypes), "application/pdf")}
)

// Uploader stores files in a directory served under /cdn/.
type Uploader struct {
	dir       string
	publicURL string
	mutex     sync.Mutex
}

func NewUploader(dir string, publicURL string) *Uploader {
	return &Uploader{
		dir:       dir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

func (u *Uploader) Dir() string {
	return u.dir
}

// Upload stores data and returns the URL it is served at. The file name is
// the hash of the content, so the same file uploaded twice is stored once.
func (u *Uploader) Upload(data []byte, c Constraints) (string, error) {
	const op = "fileHandlers.Upload"

	if len(data) == 0 {
		return "", apperr.Newf(apperr.Invalid, op, "empty_file")
	}
	if c.MaxBytes > 0 && int64(len(data)) > c.MaxBytes {
		return "", apperr.Newf(apperr.Invalid, op, "file_too_large")
	}

	detected := mimetype.Detect(data)
	allowed := slices.ContainsFunc(c.AllowedTypes, func(t string) bool {
		return detected.Is(t)
	})
	if !allowed {
		return "", apperr.Newf(apperr.Invalid, op, "unsupported_type")
	}

	hash := blake2b.Sum256(data)
	fileName := hex.EncodeToString(hash[:]) + detected.Extension()
	fullPath := filepath.Join(u.dir, fileName)

	u.mutex.Lock()
	defer u.mutex.Unlock()

	if err := os.MkdirAll(u.dir, os.ModePerm); err != nil {
		return "", apperr.New(apperr.Internal, op, err)
	}

	// check if a file with the same hash exists already
	_, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		if err := os.WriteFile(fullPath, data, 0644); err != nil {
			return "", apperr.New(apperr.Internal, op, err)
		}
	} else if err != nil {
		return "", apperr.New(apperr.Internal, op, err)
	}

	return u.publicURL + "/cdn/" + fileName, nil
}
