package pagesource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// MinioConfig holds object storage settings
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MinioSource reads page images stored under <bucket>/<ref>/.
type MinioSource struct {
	client *minio.Client
	bucket string
}

func NewMinioSource(cfg MinioConfig) (*MinioSource, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioSource{client: client, bucket: cfg.Bucket}, nil
}

// FetchPageImages lists the ref prefix and downloads pages in page order.
func (s *MinioSource) FetchPageImages(ctx context.Context, ref string) ([]document.PageImage, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(ref, "/") + "/"

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list pages under %s: %w", prefix, obj.Err)
		}
		if _, ok := ContentType(obj.Key); ok {
			names = append(names, obj.Key)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no page images found under %s/%s", s.bucket, prefix)
	}

	pages := make([]document.PageImage, 0, len(names))
	for _, p := range orderPages(names) {
		data, err := s.download(ctx, p.name)
		if err != nil {
			return nil, err
		}
		ct, _ := ContentType(p.name)
		pages = append(pages, document.PageImage{Number: p.number, Data: data, ContentType: ct})
	}
	return pages, nil
}

func (s *MinioSource) download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", key, err)
	}
	return data, nil
}
