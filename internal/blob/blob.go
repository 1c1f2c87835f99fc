// Package blob abstracts binary payload storage. Asset-bearing entities
// (images, audio tracks) reference their payload by a stable storage path;
// the same path keys both the local directory store and the remote bucket.
package blob

import "context"

// Store reads and writes blobs by storage path.
type Store interface {
	// Upload writes data under path, overwriting any previous content.
	Upload(ctx context.Context, path string, data []byte) error

	// Download returns the blob at path, or common.ErrNotFound.
	Download(ctx context.Context, path string) ([]byte, error)
}
