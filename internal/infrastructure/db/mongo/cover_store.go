package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/librarium/circulation/internal/core/domain"
)

const coverBucket = "covers"

// CoverStore keeps book covers in a GridFS bucket. Each upload is a new
// revision named after the book id; older revisions are removed afterwards,
// so readers always see either the old or the new image.
type CoverStore struct {
	db *mongo.Database
}

func NewCoverStore(db *mongo.Database) *CoverStore {
	return &CoverStore{db: db}
}

type coverMetadata struct {
	ContentType string `bson:"content_type"`
}

// bucket is created per call so deadlines never leak between requests.
func (s *CoverStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(coverBucket))
	if err != nil {
		return nil, fmt.Errorf("cover bucket: %w", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	if err := b.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := b.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *CoverStore) Save(ctx context.Context, bookID, contentType string, data []byte) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}

	opts := options.GridFSUpload().SetMetadata(coverMetadata{ContentType: contentType})
	fileID, err := b.UploadFromStream(bookID, bytes.NewReader(data), opts)
	if err != nil {
		return fmt.Errorf("upload cover: %w", err)
	}

	return s.deleteRevisions(ctx, b, bson.M{"filename": bookID, "_id": bson.M{"$ne": fileID}})
}

func (s *CoverStore) Open(ctx context.Context, bookID string) (io.ReadCloser, string, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return nil, "", err
	}

	stream, err := b.OpenDownloadStreamByName(bookID)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", domain.ErrCoverNotFound
		}
		return nil, "", fmt.Errorf("open cover: %w", err)
	}

	var meta coverMetadata
	if raw := stream.GetFile().Metadata; len(raw) > 0 {
		if err := bson.Unmarshal(raw, &meta); err != nil {
			_ = stream.Close()
			return nil, "", fmt.Errorf("decode cover metadata: %w", err)
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	return stream, meta.ContentType, nil
}

func (s *CoverStore) Delete(ctx context.Context, bookID string) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}
	return s.deleteRevisions(ctx, b, bson.M{"filename": bookID})
}

func (s *CoverStore) deleteRevisions(ctx context.Context, b *gridfs.Bucket, filter bson.M) error {
	cur, err := b.FindContext(ctx, filter)
	if err != nil {
		return fmt.Errorf("find cover revisions: %w", err)
	}
	defer cur.Close(ctx)

	var files []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &files); err != nil {
		return fmt.Errorf("decode cover revisions: %w", err)
	}
	for _, f := range files {
		if err := b.DeleteContext(ctx, f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("delete cover revision: %w", err)
		}
	}
	return nil
}
