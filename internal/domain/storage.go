package domain

import "context"

// Uploader ships a local file to a remote bucket under key. It makes a
// single attempt and reports failure upward.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) error
}
