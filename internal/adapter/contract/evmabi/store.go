package evmabi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrArtifactNotFound is returned by stores for a missing artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore returns the raw JSON artifact of a named contract.
type ArtifactStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// FileStore reads <dir>/<name>.json.
type FileStore struct {
	Dir string
}

func (s FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// MinioConfig locates artifacts in an S3 compatible bucket.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioStore reads <prefix><name>.json from an S3 compatible bucket.
type MinioStore struct {
	cfg    MinioConfig
	client *minio.Client
}

// NewMinioStore creates the client. The bucket is not checked until Get.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{cfg: cfg, client: client}, nil
}

// Get downloads the object prefix+name+".json".
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := s.cfg.Prefix + name + ".json"

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
