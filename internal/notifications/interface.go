package notifications

import (
	"context"

	"github.com/signalforge/signalforge/internal/models"
)

// Notifier delivers the digest of a completed scan
type Notifier interface {
	SendDigest(ctx context.Context, digest *models.Digest) error
}
