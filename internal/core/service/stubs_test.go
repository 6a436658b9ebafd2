package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

// In-memory collaborators shared by the service tests.

var idSeq struct {
	sync.Mutex
	n int
}

func nextID() string {
	idSeq.Lock()
	defer idSeq.Unlock()
	idSeq.n++
	return fmt.Sprintf("%024x", idSeq.n)
}

// --- users ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *memUserRepo) add(name, email string) *domain.User {
	u, _ := r.Create(context.Background(), &domain.User{Name: name, Email: email})
	return u
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	stored := cloneUser(user)
	stored.ID = nextID()
	r.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *memUserRepo) FindByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (r *memUserRepo) List(_ context.Context, page, limit int) ([]*domain.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pageOf(all, page, limit), int64(len(all)), nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	for id, u := range r.users {
		if id != user.ID && u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	stored.Name = user.Name
	stored.Email = user.Email
	stored.PasswordHash = user.PasswordHash
	stored.UpdatedAt = user.UpdatedAt
	return cloneUser(stored), nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

// --- books ---

type memBookRepo struct {
	mu    sync.Mutex
	books map[string]*domain.Book
	order []string
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{books: make(map[string]*domain.Book)}
}

func (r *memBookRepo) add(title, author string) *domain.Book {
	b := &domain.Book{
		Title:       title,
		Author:      author,
		ISBN:        "isbn-" + title,
		Category:    domain.DefaultBookCategory,
		IsAvailable: true,
	}
	_ = r.Create(context.Background(), b)
	return b
}

func (r *memBookRepo) Create(_ context.Context, b *domain.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.books {
		if existing.ISBN == b.ISBN {
			return domain.ErrDuplicateISBN
		}
	}
	b.ID = nextID()
	stored := *b
	r.books[b.ID] = &stored
	r.order = append(r.order, b.ID)
	return nil
}

func (r *memBookRepo) FindByID(_ context.Context, id string) (*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBookRepo) FindByIDs(_ context.Context, ids []string) (map[string]*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*domain.Book, len(ids))
	for _, id := range ids {
		if b, ok := r.books[id]; ok {
			cp := *b
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *memBookRepo) List(_ context.Context, f ports.ListBooksFilter) ([]*domain.Book, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Book
	for _, id := range r.order {
		b := r.books[id]
		if f.Title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(f.Title)) {
			continue
		}
		if f.Author != "" && !strings.Contains(strings.ToLower(b.Author), strings.ToLower(f.Author)) {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if f.Available != nil && b.IsAvailable != *f.Available {
			continue
		}
		cp := *b
		matched = append(matched, &cp)
	}
	return pageOf(matched, f.Page, f.Limit), int64(len(matched)), nil
}

func (r *memBookRepo) Update(_ context.Context, b *domain.Book) (*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.books[b.ID]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	for id, existing := range r.books {
		if id != b.ID && existing.ISBN == b.ISBN {
			return nil, domain.ErrDuplicateISBN
		}
	}
	stored.Title = b.Title
	stored.Author = b.Author
	stored.ISBN = b.ISBN
	stored.Category = b.Category
	stored.CoverImage = b.CoverImage
	stored.UpdatedAt = b.UpdatedAt
	cp := *stored
	return &cp, nil
}

func (r *memBookRepo) DeleteIfAvailable(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return domain.ErrBookNotFound
	}
	if !b.IsAvailable {
		return domain.ErrBookUnavailable
	}
	delete(r.books, id)
	return nil
}

func (r *memBookRepo) SetCover(_ context.Context, id, coverURL string) (*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	b.CoverImage = coverURL
	cp := *b
	return &cp, nil
}

// ListStranded is not needed by the service tests.
func (r *memBookRepo) ListStranded(context.Context, time.Time, int) ([]*domain.Book, error) {
	return nil, nil
}

func (r *memBookRepo) exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.books[id]
	return ok
}

func (r *memBookRepo) available(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.books[id].IsAvailable
}

// --- gate ---

// memGate is a mutex-guarded availability flag over memBookRepo. releaseErr,
// when set, makes Release fail without changing state.
type memGate struct {
	books      *memBookRepo
	mu         sync.Mutex
	releaseErr error
	releases   int
}

func (g *memGate) TryAcquire(_ context.Context, bookID string) error {
	g.books.mu.Lock()
	defer g.books.mu.Unlock()
	b, ok := g.books.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	if !b.IsAvailable {
		return domain.ErrBookUnavailable
	}
	b.IsAvailable = false
	return nil
}

func (g *memGate) Release(_ context.Context, bookID string) error {
	g.mu.Lock()
	g.releases++
	err := g.releaseErr
	g.mu.Unlock()
	if err != nil {
		return err
	}

	g.books.mu.Lock()
	defer g.books.mu.Unlock()
	b, ok := g.books.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	b.IsAvailable = true
	return nil
}

func (g *memGate) ReleaseIfHeldBefore(ctx context.Context, bookID string, _ time.Time) (bool, error) {
	if err := g.Release(ctx, bookID); err != nil {
		return false, err
	}
	return true, nil
}

func (g *memGate) releaseCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releases
}

// --- borrows ---

// memBorrowRepo enforces one active borrow per book like the storage index.
type memBorrowRepo struct {
	mu        sync.Mutex
	borrows   map[string]*domain.Borrow
	order     []string
	createErr error
}

func newMemBorrowRepo() *memBorrowRepo {
	return &memBorrowRepo{borrows: make(map[string]*domain.Borrow)}
}

func cloneBorrow(b *domain.Borrow) *domain.Borrow {
	cp := *b
	if b.ReturnedAt != nil {
		t := *b.ReturnedAt
		cp.ReturnedAt = &t
	}
	return &cp
}

func (r *memBorrowRepo) Create(_ context.Context, b *domain.Borrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.borrows {
		if existing.BookID == b.BookID && existing.Status == domain.BorrowActive {
			return domain.ErrBookUnavailable
		}
	}
	b.ID = nextID()
	r.borrows[b.ID] = cloneBorrow(b)
	r.order = append(r.order, b.ID)
	return nil
}

func (r *memBorrowRepo) FindByID(_ context.Context, id string) (*domain.Borrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.borrows[id]
	if !ok {
		return nil, domain.ErrBorrowNotFound
	}
	return cloneBorrow(b), nil
}

func (r *memBorrowRepo) CloseOutstanding(_ context.Context, id, userID string, returnedAt time.Time) (*domain.Borrow, error) {
	return r.close(id, func(b *domain.Borrow) bool { return b.UserID == userID }, returnedAt)
}

func (r *memBorrowRepo) CheckIn(_ context.Context, id string, returnedAt time.Time) (*domain.Borrow, error) {
	return r.close(id, func(*domain.Borrow) bool { return true }, returnedAt)
}

func (r *memBorrowRepo) close(id string, owned func(*domain.Borrow) bool, returnedAt time.Time) (*domain.Borrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.borrows[id]
	if !ok || !owned(b) || !b.Status.Outstanding() {
		return nil, domain.ErrBorrowNotFound
	}
	t := returnedAt.UTC()
	b.Status = domain.BorrowReturned
	b.ReturnedAt = &t
	return cloneBorrow(b), nil
}

func (r *memBorrowRepo) HasOutstanding(_ context.Context, bookID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.borrows {
		if b.BookID == bookID && b.Status.Outstanding() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memBorrowRepo) UserHasOutstanding(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.borrows {
		if b.UserID == userID && b.Status.Outstanding() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memBorrowRepo) List(_ context.Context, f ports.ListBorrowsFilter) ([]*domain.Borrow, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Borrow
	for _, id := range r.order {
		b := r.borrows[id]
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		matched = append(matched, cloneBorrow(b))
	}
	return pageOf(matched, f.Page, f.Limit), int64(len(matched)), nil
}

func (r *memBorrowRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]*domain.Borrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Borrow
	for _, id := range r.order {
		if b := r.borrows[id]; b.IsOverdueAt(now) {
			out = append(out, cloneBorrow(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memBorrowRepo) MarkOverdue(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.borrows[id]
	if !ok || !b.IsOverdueAt(now) {
		return false, nil
	}
	b.Status = domain.BorrowOverdue
	return true, nil
}

func (r *memBorrowRepo) activeFor(bookID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.borrows {
		if b.BookID == bookID && b.Status == domain.BorrowActive {
			n++
		}
	}
	return n
}

// --- retrier / idempotency ---

type recordingRetrier struct {
	mu    sync.Mutex
	books []string
}

func (r *recordingRetrier) Enqueue(bookID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books = append(r.books, bookID)
}

func (r *recordingRetrier) enqueued() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.books...)
}

type memIdempotency struct {
	mu      sync.Mutex
	keys    map[string]string
	failGet bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]string)}
}

func (m *memIdempotency) Lookup(_ context.Context, userID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("redis: connection refused")
	}
	id, ok := m.keys[userID+"/"+key]
	return id, ok, nil
}

func (m *memIdempotency) Remember(_ context.Context, userID, key, borrowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[userID+"/"+key]; !ok {
		m.keys[userID+"/"+key] = borrowID
	}
	return nil
}

// --- covers ---

type memCoverStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	types   map[string]string
	saveErr error
}

func newMemCoverStore() *memCoverStore {
	return &memCoverStore{files: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memCoverStore) Save(_ context.Context, bookID, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.files[bookID] = append([]byte(nil), data...)
	m.types[bookID] = contentType
	return nil
}

func (m *memCoverStore) Open(_ context.Context, bookID string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[bookID]
	if !ok {
		return nil, "", domain.ErrCoverNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[bookID], nil
}

func (m *memCoverStore) Delete(_ context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, bookID)
	delete(m.types, bookID)
	return nil
}

func pageOf[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
