package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBucket is a Bucket backed by Google Cloud Storage
type GCSBucket struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

var _ Bucket = (*GCSBucket)(nil)

// NewGCSBucket opens a client for the named bucket using application default credentials
// unless opts say otherwise
func NewGCSBucket(ctx context.Context, name string, opts ...option.ClientOption) (*GCSBucket, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSBucket{client: client, bucket: client.Bucket(name)}, nil
}

func (b *GCSBucket) Write(ctx context.Context, key string, data []byte) error {
	return b.write(ctx, b.bucket.Object(key), data)
}

// WriteIfAbsent uses the does-not-exist generation precondition
func (b *GCSBucket) WriteIfAbsent(ctx context.Context, key string, data []byte) error {
	obj := b.bucket.Object(key).If(gcs.Conditions{DoesNotExist: true})
	err := b.write(ctx, obj, data)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return ErrObjectExists
	}
	return err
}

func (b *GCSBucket) write(ctx context.Context, obj *gcs.ObjectHandle, data []byte) error {
	w := obj.NewWriter(ctx)
	w.ContentType = contentType(obj.ObjectName())
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", obj.BucketName(), obj.ObjectName(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", obj.BucketName(), obj.ObjectName(), err)
	}
	return nil
}

func (b *GCSBucket) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (b *GCSBucket) Delete(ctx context.Context, key string) error {
	err := b.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *GCSBucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	it := b.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, PDFName):
		return "application/pdf"
	case strings.HasSuffix(key, XMLName):
		return "application/xml"
	case strings.HasSuffix(key, MetadataName):
		return "application/json"
	}
	return "text/plain"
}
