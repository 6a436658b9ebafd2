package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

const collectionBooks = "books"

type BookRepository struct {
	col *mongo.Collection
}

func NewBookRepository(db *mongo.Database) *BookRepository {
	return &BookRepository{col: db.Collection(collectionBooks)}
}

type bookDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Author      string             `bson:"author"`
	ISBN        string             `bson:"isbn"`
	Category    string             `bson:"category"`
	CoverImage  string             `bson:"cover_image,omitempty"`
	IsAvailable bool               `bson:"is_available"`
	AddedBy     primitive.ObjectID `bson:"added_by,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`

	// AvailabilityChangedAt is set at creation and afterwards only by the
	// availability gate.
	AvailabilityChangedAt time.Time `bson:"availability_changed_at"`
}

func (d *bookDoc) toDomain() *domain.Book {
	return &domain.Book{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Author:      d.Author,
		ISBN:        d.ISBN,
		Category:    d.Category,
		CoverImage:  d.CoverImage,
		IsAvailable: d.IsAvailable,
		AddedBy:     hexOrEmpty(d.AddedBy),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// Create inserts a new book document and sets b.ID.
func (r *BookRepository) Create(ctx context.Context, b *domain.Book) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bookDoc{
		Title:       b.Title,
		Author:      b.Author,
		ISBN:        b.ISBN,
		Category:    b.Category,
		CoverImage:  b.CoverImage,
		IsAvailable: b.IsAvailable,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,

		AvailabilityChangedAt: b.CreatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(b.AddedBy); err == nil {
		doc.AddedBy = oid
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateISBN
		}
		return fmt.Errorf("insert book: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		b.ID = oid.Hex()
	}
	return nil
}

func (r *BookRepository) FindByID(ctx context.Context, id string) (*domain.Book, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrBookNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc bookDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("find book: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByIDs loads several books at once, keyed by id. Unknown ids are absent
// from the map.
func (r *BookRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Book, error) {
	oids := objectIDs(ids)
	out := make(map[string]*domain.Book, len(oids))
	if len(oids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bookDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	for i := range docs {
		b := docs[i].toDomain()
		out[b.ID] = b
	}
	return out, nil
}

func (r *BookRepository) List(ctx context.Context, f ports.ListBooksFilter) ([]*domain.Book, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.Title != "" {
		filter["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Title), Options: "i"}
	}
	if f.Author != "" {
		filter["author"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Author), Options: "i"}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Available != nil {
		filter["is_available"] = *f.Available
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(f.Page-1) * int64(f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find books: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bookDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode books: %w", err)
	}

	books := make([]*domain.Book, len(docs))
	for i := range docs {
		books[i] = docs[i].toDomain()
	}
	return books, total, nil
}

func (r *BookRepository) Update(ctx context.Context, b *domain.Book) (*domain.Book, error) {
	oid, err := primitive.ObjectIDFromHex(b.ID)
	if err != nil {
		return nil, domain.ErrBookNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// is_available and availability_changed_at belong to the gate.
	update := bson.M{"$set": bson.M{
		"title":       b.Title,
		"author":      b.Author,
		"isbn":        b.ISBN,
		"category":    b.Category,
		"cover_image": b.CoverImage,
		"updated_at":  b.UpdatedAt,
	}}
	return r.findOneAndUpdate(ctx, oid, update)
}

func (r *BookRepository) SetCover(ctx context.Context, id, coverURL string) (*domain.Book, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrBookNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"cover_image": coverURL,
		"updated_at":  time.Now().UTC(),
	}}
	return r.findOneAndUpdate(ctx, oid, update)
}

func (r *BookRepository) findOneAndUpdate(ctx context.Context, oid primitive.ObjectID, update bson.M) (*domain.Book, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc bookDoc
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, domain.ErrBookNotFound
		case mongo.IsDuplicateKeyError(err):
			return nil, domain.ErrDuplicateISBN
		}
		return nil, fmt.Errorf("update book: %w", err)
	}
	return doc.toDomain(), nil
}

// DeleteIfAvailable deletes only while is_available is true, so a delete
// and a concurrent TryAcquire on the same book cannot both succeed.
func (r *BookRepository) DeleteIfAvailable(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrBookNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid, "is_available": true})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if res.DeletedCount == 1 {
		return nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("delete book: lookup: %w", err)
	}
	if n == 0 {
		return domain.ErrBookNotFound
	}
	return domain.ErrBookUnavailable
}

// ListStranded finds unavailable books with no outstanding borrow in the
// borrows collection, oldest availability change first.
func (r *BookRepository) ListStranded(ctx context.Context, before time.Time, limit int) ([]*domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"is_available":            false,
			"availability_changed_at": bson.M{"$lt": before.UTC()},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "availability_changed_at", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from": collectionBorrows,
			"let":  bson.M{"bid": "$_id"},
			"pipeline": mongo.Pipeline{
				{{Key: "$match", Value: bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$book_id", "$$bid"}},
					bson.M{"$in": bson.A{"$status", outstandingStatuses()}},
				}}}}},
				{{Key: "$limit", Value: 1}},
			},
			"as": "holds",
		}}},
		{{Key: "$match", Value: bson.M{"holds": bson.M{"$size": 0}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("find stranded books: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bookDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode stranded books: %w", err)
	}

	books := make([]*domain.Book, len(docs))
	for i := range docs {
		books[i] = docs[i].toDomain()
	}
	return books, nil
}

// EnsureIndexes creates necessary indexes on the books collection.
func (r *BookRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "isbn", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "is_available", Value: 1}, {Key: "availability_changed_at", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
