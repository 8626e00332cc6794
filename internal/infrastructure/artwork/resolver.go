package artwork

import (
	"context"
	"errors"
	"fmt"

	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/fulfillment"
)

// Resolver turns campaign artwork references into fulfillment.ResolvedArtwork
type Resolver struct {
	store ObjectStore
}

// NewResolver creates a resolver. store may be nil when uploads are disabled.
func NewResolver(store ObjectStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve resolves both sides. PDF URLs pass through, HTML is kept for
// per-recipient merging, uploaded files become public storage URLs.
func (r *Resolver) Resolve(ctx context.Context, c *campaign.Campaign) (fulfillment.ResolvedArtwork, error) {
	if !c.HasArtwork() {
		return fulfillment.ResolvedArtwork{}, ErrMissingArtwork
	}

	var out fulfillment.ResolvedArtwork
	var err error
	out.FrontURL, out.FrontHTML, err = r.side(ctx, c.Front)
	if err != nil {
		return fulfillment.ResolvedArtwork{}, fmt.Errorf("front: %w", err)
	}
	out.BackURL, out.BackHTML, err = r.side(ctx, c.Back)
	if err != nil {
		return fulfillment.ResolvedArtwork{}, fmt.Errorf("back: %w", err)
	}
	return out, nil
}

func (r *Resolver) side(ctx context.Context, a campaign.Artwork) (url, html string, err error) {
	switch a.Kind {
	case campaign.ArtworkKindPDFURL:
		return a.URL, "", nil
	case campaign.ArtworkKindHTML:
		return "", a.HTML, nil
	case campaign.ArtworkKindUploaded:
		if r.store == nil {
			return "", "", ErrPublicURLUnavailable
		}
		u, err := r.store.PublicURL(ctx, a.StorageKey)
		if err != nil {
			if errors.Is(err, ErrPublicURLUnavailable) {
				return "", "", err
			}
			return "", "", fmt.Errorf("failed to resolve uploaded artwork %s: %w", a.StorageKey, err)
		}
		return u, "", nil
	}
	return "", "", fmt.Errorf("unknown artwork kind %q", a.Kind)
}
