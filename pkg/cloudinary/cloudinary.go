// Package cloudinary stores assessment attachments in Cloudinary.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by New when credentials are missing.
var ErrNotConfigured = errors.New("cloudinary credentials must be provided")

const defaultUploadTimeout = 30 * time.Second

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Timeout   time.Duration
}

// Uploader sends attachments to Cloudinary and returns their secure URLs.
type Uploader struct {
	client  *cloudinary.Cloudinary
	folder  string
	timeout time.Duration
	logger  zerolog.Logger
}

// New constructs an uploader.
func New(cfg Config, logger zerolog.Logger) (*Uploader, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}

	return &Uploader{
		client:  cld,
		folder:  strings.Trim(cfg.Folder, "/"),
		timeout: timeout,
		logger:  logger.With().Str("component", "attachment_uploader").Logger(),
	}, nil
}

// Upload stores the attachment under the configured folder.
func (u *Uploader) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	params := uploader.UploadParams{
		Folder:         u.folder,
		PublicID:       PublicID(name),
		ResourceType:   "auto",
		Overwrite:      api.Bool(false),
		UniqueFilename: api.Bool(false),
		Tags:           api.CldAPIArray{"assessment-attachment"},
	}

	result, err := u.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected attachment: %s", result.Error.Message)
	}

	u.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("attachment uploaded")

	return result.SecureURL, nil
}

// PublicID derives a collision-free Cloudinary id from the original file name.
func PublicID(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "attachment"
	}
	if len(base) > 64 {
		base = base[:64]
	}

	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
}
