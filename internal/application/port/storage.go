package port

import "context"

// FileStorage stores uploaded bill files
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}
