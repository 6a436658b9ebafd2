package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/librarium/circulation/internal/core/domain"
)

// AvailabilityGate implements ports.AvailabilityGate on the books collection.
//
// TryAcquire is a single conditional update: the filter only matches while
// is_available is still true, so MongoDB's per-document write atomicity
// guarantees that exactly one concurrent caller sees MatchedCount == 1.
type AvailabilityGate struct {
	col *mongo.Collection
	now func() time.Time
}

func NewAvailabilityGate(db *mongo.Database) *AvailabilityGate {
	return &AvailabilityGate{
		col: db.Collection(collectionBooks),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *AvailabilityGate) TryAcquire(ctx context.Context, bookID string) error {
	oid, err := primitive.ObjectIDFromHex(bookID)
	if err != nil {
		return domain.ErrBookNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := g.col.UpdateOne(ctx,
		bson.M{"_id": oid, "is_available": true},
		g.set(false),
	)
	if err != nil {
		return fmt.Errorf("acquire book: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// Nothing matched: either the book does not exist or someone else holds it.
	n, err := g.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("acquire book: lookup: %w", err)
	}
	if n == 0 {
		return domain.ErrBookNotFound
	}
	return domain.ErrBookUnavailable
}

func (g *AvailabilityGate) Release(ctx context.Context, bookID string) error {
	oid, err := primitive.ObjectIDFromHex(bookID)
	if err != nil {
		return domain.ErrBookNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := g.col.UpdateOne(ctx,
		bson.M{"_id": oid},
		g.set(true),
	)
	if err != nil {
		return fmt.Errorf("release book: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// ReleaseIfHeldBefore reopens a book still marked unavailable by an
// acquisition older than before. A later acquisition moves
// availability_changed_at past before, so the filter no longer matches.
func (g *AvailabilityGate) ReleaseIfHeldBefore(ctx context.Context, bookID string, before time.Time) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(bookID)
	if err != nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := g.col.UpdateOne(ctx,
		bson.M{
			"_id":                     oid,
			"is_available":            false,
			"availability_changed_at": bson.M{"$lt": before.UTC()},
		},
		g.set(true),
	)
	if err != nil {
		return false, fmt.Errorf("release book: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (g *AvailabilityGate) set(available bool) bson.M {
	now := g.now()
	return bson.M{"$set": bson.M{
		"is_available":            available,
		"availability_changed_at": now,
		"updated_at":              now,
	}}
}
