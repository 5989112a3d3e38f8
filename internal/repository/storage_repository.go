package repository

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStore holds the merged CSV as a single object.
type ObjectStore interface {
	// Read returns the object's content. found is false when it does not exist.
	Read(ctx context.Context) (data string, found bool, err error)
	Write(ctx context.Context, contentType, data string) error
	MakePublic(ctx context.Context) error
}

// GCSObjectStore is an ObjectStore backed by one Google Cloud Storage object.
type GCSObjectStore struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSObjectStore uses application default credentials.
func NewGCSObjectStore(ctx context.Context, bucket, object string) (*GCSObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSObjectStore{client: client, bucket: bucket, object: object}, nil
}

func (s *GCSObjectStore) handle() *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.object)
}

func (s *GCSObjectStore) Read(ctx context.Context) (string, bool, error) {
	rc, err := s.handle().NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error opening gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", false, fmt.Errorf("error reading gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return string(raw), true, nil
}

// Write overwrites the whole object.
func (s *GCSObjectStore) Write(ctx context.Context, contentType, data string) error {
	w := s.handle().NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.WriteString(w, data); err != nil {
		w.Close()
		return fmt.Errorf("error uploading gs://%s/%s: %w", s.bucket, s.object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("error uploading gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return nil
}

// MakePublic grants read access to all users.
func (s *GCSObjectStore) MakePublic(ctx context.Context) error {
	if err := s.handle().ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return fmt.Errorf("error making gs://%s/%s public: %w", s.bucket, s.object, err)
	}
	return nil
}

func (s *GCSObjectStore) Close() error {
	return s.client.Close()
}
