package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

const collectionBorrows = "borrows"

// BorrowRepository implements ports.BorrowRepository. The collection is
// append-mostly: documents are inserted once and only their status and
// returned_at ever change.
type BorrowRepository struct {
	col *mongo.Collection
}

func NewBorrowRepository(db *mongo.Database) *BorrowRepository {
	return &BorrowRepository{col: db.Collection(collectionBorrows)}
}

type borrowDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     primitive.ObjectID `bson:"user_id"`
	BookID     primitive.ObjectID `bson:"book_id"`
	BorrowedAt time.Time          `bson:"borrowed_at"`
	DueDate    time.Time          `bson:"due_date"`
	ReturnedAt *time.Time         `bson:"returned_at,omitempty"`
	Status     string             `bson:"status"`
}

func (d *borrowDoc) toDomain() *domain.Borrow {
	b := &domain.Borrow{
		ID:         d.ID.Hex(),
		UserID:     hexOrEmpty(d.UserID),
		BookID:     hexOrEmpty(d.BookID),
		BorrowedAt: d.BorrowedAt.UTC(),
		DueDate:    d.DueDate.UTC(),
		Status:     domain.BorrowStatus(d.Status),
	}
	if d.ReturnedAt != nil {
		t := d.ReturnedAt.UTC()
		b.ReturnedAt = &t
	}
	return b
}

// Create inserts a new borrow document and sets b.ID.
func (r *BorrowRepository) Create(ctx context.Context, b *domain.Borrow) error {
	userID, err := primitive.ObjectIDFromHex(b.UserID)
	if err != nil {
		return fmt.Errorf("insert borrow: user id: %w", domain.ErrValidation)
	}
	bookID, err := primitive.ObjectIDFromHex(b.BookID)
	if err != nil {
		return fmt.Errorf("insert borrow: book id: %w", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := borrowDoc{
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: b.BorrowedAt,
		DueDate:    b.DueDate,
		ReturnedAt: b.ReturnedAt,
		Status:     string(b.Status),
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrBookUnavailable
		}
		return fmt.Errorf("insert borrow: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		b.ID = oid.Hex()
	}
	return nil
}

func (r *BorrowRepository) FindByID(ctx context.Context, id string) (*domain.Borrow, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrBorrowNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc borrowDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrBorrowNotFound
		}
		return nil, fmt.Errorf("find borrow: %w", err)
	}
	return doc.toDomain(), nil
}

// CloseOutstanding matches on id, owner and an outstanding status in one
// query, so a wrong owner is indistinguishable from a missing record.
func (r *BorrowRepository) CloseOutstanding(ctx context.Context, id, userID string, returnedAt time.Time) (*domain.Borrow, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrBorrowNotFound
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, domain.ErrBorrowNotFound
	}
	return r.close(ctx, bson.M{"_id": oid, "user_id": uid}, returnedAt)
}

func (r *BorrowRepository) CheckIn(ctx context.Context, id string, returnedAt time.Time) (*domain.Borrow, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrBorrowNotFound
	}
	return r.close(ctx, bson.M{"_id": oid}, returnedAt)
}

func (r *BorrowRepository) close(ctx context.Context, filter bson.M, returnedAt time.Time) (*domain.Borrow, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter["status"] = bson.M{"$in": outstandingStatuses()}
	update := bson.M{"$set": bson.M{
		"status":      string(domain.BorrowReturned),
		"returned_at": returnedAt.UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc borrowDoc
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrBorrowNotFound
		}
		return nil, fmt.Errorf("close borrow: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *BorrowRepository) HasOutstanding(ctx context.Context, bookID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(bookID)
	if err != nil {
		return false, nil
	}
	return r.anyOutstanding(ctx, bson.M{"book_id": oid})
}

func (r *BorrowRepository) UserHasOutstanding(ctx context.Context, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}
	return r.anyOutstanding(ctx, bson.M{"user_id": oid})
}

func (r *BorrowRepository) anyOutstanding(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter["status"] = bson.M{"$in": outstandingStatuses()}
	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count outstanding borrows: %w", err)
	}
	return n > 0, nil
}

// List returns a page in insertion order (ascending _id).
func (r *BorrowRepository) List(ctx context.Context, f ports.ListBorrowsFilter) ([]*domain.Borrow, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count borrows: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(f.Page-1) * int64(f.Limit)).
		SetLimit(int64(f.Limit))

	borrows, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return borrows, total, nil
}

func (r *BorrowRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Borrow, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"status":   string(domain.BorrowActive),
		"due_date": bson.M{"$lt": now.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *BorrowRepository) MarkOverdue(ctx context.Context, id string, now time.Time) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id":      oid,
			"status":   bson.M{"$in": statusValues(domain.StatusesTransitioningTo(domain.BorrowOverdue))},
			"due_date": bson.M{"$lt": now.UTC()},
		},
		bson.M{"$set": bson.M{"status": string(domain.BorrowOverdue)}},
	)
	if err != nil {
		return false, fmt.Errorf("mark overdue: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// outstandingStatuses are the statuses a return may close.
func outstandingStatuses() bson.A {
	return statusValues(domain.StatusesTransitioningTo(domain.BorrowReturned))
}

func statusValues(statuses []domain.BorrowStatus) bson.A {
	out := make(bson.A, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *BorrowRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Borrow, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find borrows: %w", err)
	}
	defer cur.Close(ctx)

	var docs []borrowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode borrows: %w", err)
	}

	out := make([]*domain.Borrow, len(docs))
	for i := range docs {
		out[i] = docs[i].toDomain()
	}
	return out, nil
}

// EnsureIndexes creates the ledger indexes. The partial unique index on
// book_id backs the one-active-borrow-per-book rule at the storage level.
// An overdue borrow keeps its book unavailable, so the gate already stops a
// second loan while one is overdue.
func (r *BorrowRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "book_id", Value: 1}},
			Options: options.Index().
				SetName("one_active_borrow_per_book").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.BorrowActive)}),
		},
		{Keys: bson.D{{Key: "book_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
