// Package artwork resolves campaign artwork to content the vendor can print:
// merging HTML templates per recipient, producing public URLs for uploaded
// files and rendering PDF proofs.
package artwork

import (
	"context"
	"time"

	"github.com/postcard/backend/internal/domain/shared"
)

// Artwork errors
var (
	// ErrPublicURLUnavailable means storage holds the file but cannot expose
	// it to the vendor. Dispatch treats it as a setup error.
	ErrPublicURLUnavailable = shared.NewDomainError("ARTWORK_UNAVAILABLE", "Uploaded artwork cannot be reached by the mail vendor")
	ErrMissingArtwork       = shared.NewDomainError("ARTWORK_MISSING", "Campaign requires front and back artwork")
	ErrRendererDisabled     = shared.NewDomainError("RENDERER_DISABLED", "Proof rendering is not enabled")
)

// ObjectStore is the object storage used for uploaded artwork and proofs
type ObjectStore interface {
	// Upload stores data under key
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// GenerateUploadURL returns a presigned URL the client can PUT artwork to
	GenerateUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, time.Time, error)

	// DownloadURL returns a short-lived URL for viewing an object
	DownloadURL(ctx context.Context, key string) (string, error)

	// PublicURL returns a URL the vendor can fetch, or ErrPublicURLUnavailable
	PublicURL(ctx context.Context, key string) (string, error)

	// ObjectExists reports whether key has been uploaded
	ObjectExists(ctx context.Context, key string) (bool, error)
}
