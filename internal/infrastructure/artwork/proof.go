package artwork

import (
	"context"
	"fmt"

	"github.com/postcard/backend/internal/domain/campaign"
	"go.uber.org/zap"
)

// SideProof is the preview for one side of a postcard
type SideProof struct {
	Side campaign.Side `json:"side"`
	// StorageKey is set when the proof was rendered and uploaded
	StorageKey string `json:"storage_key,omitempty"`
	URL        string `json:"url"`
}

// Proof holds previews of both sides for one sample recipient
type Proof struct {
	Front SideProof `json:"front"`
	Back  SideProof `json:"back"`
}

// Proofer renders HTML artwork to PDF proofs and stores them
type Proofer struct {
	merger   *TemplateMerger
	renderer PDFRenderer
	store    ObjectStore
	logger   *zap.Logger
}

// NewProofer creates a proofer. renderer may be nil when rendering is disabled;
// HTML sides then fail with ErrRendererDisabled.
func NewProofer(merger *TemplateMerger, renderer PDFRenderer, store ObjectStore, logger *zap.Logger) *Proofer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proofer{merger: merger, renderer: renderer, store: store, logger: logger}
}

// Generate builds a proof of both sides using vars for HTML merging
func (p *Proofer) Generate(ctx context.Context, c *campaign.Campaign, vars map[string]string) (*Proof, error) {
	if !c.HasArtwork() {
		return nil, ErrMissingArtwork
	}
	front, err := p.side(ctx, c, campaign.SideFront, vars)
	if err != nil {
		return nil, err
	}
	back, err := p.side(ctx, c, campaign.SideBack, vars)
	if err != nil {
		return nil, err
	}
	return &Proof{Front: front, Back: back}, nil
}

func (p *Proofer) side(ctx context.Context, c *campaign.Campaign, side campaign.Side, vars map[string]string) (SideProof, error) {
	a := c.ArtworkFor(side)
	out := SideProof{Side: side}

	switch a.Kind {
	case campaign.ArtworkKindPDFURL:
		out.URL = a.URL
		return out, nil
	case campaign.ArtworkKindUploaded:
		if p.store == nil {
			return out, ErrPublicURLUnavailable
		}
		u, err := p.store.DownloadURL(ctx, a.StorageKey)
		if err != nil {
			return out, err
		}
		out.StorageKey = a.StorageKey
		out.URL = u
		return out, nil
	}

	if p.renderer == nil || p.store == nil {
		return out, ErrRendererDisabled
	}
	html, err := p.merger.Merge(a.HTML, vars)
	if err != nil {
		return out, err
	}
	w, h := PageSize(c.MailSize)
	pdf, err := p.renderer.RenderPDF(ctx, html, w, h)
	if err != nil {
		return out, err
	}

	key := ProofKey(c, side)
	if err := p.store.Upload(ctx, key, pdf, "application/pdf"); err != nil {
		return out, fmt.Errorf("failed to store proof: %w", err)
	}
	u, err := p.store.DownloadURL(ctx, key)
	if err != nil {
		return out, err
	}
	p.logger.Info("Proof generated",
		zap.String("campaign_id", c.ID.String()),
		zap.String("side", string(side)),
		zap.Int("bytes", len(pdf)))

	out.StorageKey = key
	out.URL = u
	return out, nil
}

// ProofKey is the storage key of a campaign's proof for one side
func ProofKey(c *campaign.Campaign, side campaign.Side) string {
	return fmt.Sprintf("proofs/%s/%s/%s.pdf", c.TenantID, c.ID, side)
}

// UploadPrefix is the key prefix every uploaded artwork file of a campaign shares
func UploadPrefix(c *campaign.Campaign) string {
	return fmt.Sprintf("artwork/%s/%s/", c.TenantID, c.ID)
}

// UploadKey is the storage key for a newly uploaded artwork file
func UploadKey(c *campaign.Campaign, side campaign.Side, filename string) string {
	return UploadPrefix(c) + string(side) + "-" + sanitizeFilename(filename)
}

func sanitizeFilename(name string) string {
	var b []byte
	for i := 0; i < len(name) && len(b) < 100; i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '.', ch == '-', ch == '_':
			b = append(b, ch)
		default:
			b = append(b, '_')
		}
	}
	if len(b) == 0 {
		return "artwork.pdf"
	}
	return string(b)
}
