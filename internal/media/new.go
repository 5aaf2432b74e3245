package media

import (
	"context"
	"fmt"

	"github.com/haasonsaas/callbridge/internal/config"
)

// New builds the asset store from configuration.
func New(ctx context.Context, cfg config.MediaConfig) (AssetStore, error) {
	switch cfg.Backend {
	case "dir", "":
		return NewDirStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
			Region: cfg.S3.Region,
		})
	default:
		return nil, fmt.Errorf("media: unknown backend %q", cfg.Backend)
	}
}
