package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

const photoBucket = "customer_photos"

// GridFSStore keeps customer photos in a GridFS bucket. The blob key is used
// as both the file id and the filename.
type GridFSStore struct {
	db   *mongo.Database
	name string
}

func NewGridFSStore(db *mongo.Database) *GridFSStore {
	return &GridFSStore{db: db, name: photoBucket}
}

// bucket returns a bucket whose read/write deadlines follow ctx. Buckets are
// cheap and carry per-instance deadlines, so one is built per call.
func (s *GridFSStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(s.name))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := b.SetReadDeadline(dl); err != nil {
			return nil, err
		}
		if err := b.SetWriteDeadline(dl); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Put uploads r under key. A failed upload leaves no file document behind.
func (s *GridFSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}

	opts := options.GridFSUpload().SetMetadata(bson.M{"content_type": contentType})
	if err := b.UploadFromStreamWithID(key, key, r, opts); err != nil {
		return fmt.Errorf("gridfs upload: %w", err)
	}
	return nil
}

// Open streams the blob stored under key. The returned reader must be closed.
func (s *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, *ports.BlobInfo, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return nil, nil, err
	}

	stream, err := b.OpenDownloadStream(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, domain.ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("gridfs open: %w", err)
	}

	f := stream.GetFile()
	info := &ports.BlobInfo{Size: f.Length, ModTime: f.UploadDate}
	if f.Metadata != nil {
		if ct, ok := f.Metadata.Lookup("content_type").StringValueOK(); ok {
			info.ContentType = ct
		}
	}
	return stream, info, nil
}

// Delete removes the blob and its chunks. Unknown keys are ignored.
func (s *GridFSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}
	if err := b.DeleteContext(ctx, key); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("gridfs delete: %w", err)
	}
	return nil
}
