package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a book or user id has no catalog row.
var ErrNotFound = errors.New("catalog: not found")

// Reader is the read surface the recommendation engine consumes.
type Reader interface {
	GetAllBooks(ctx context.Context) ([]*Book, error)
	GetAllUsers(ctx context.Context) ([]*User, error)
	GetAllRatings(ctx context.Context) ([]*Rating, error)
	GetBookByID(ctx context.Context, id int64) (*Book, error)
	GetTopRated(ctx context.Context, k int) ([]*Book, error)
}

// Store is a SQLite-backed catalog of books, users and ratings.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}

	return store, nil
}

func (s *Store) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			description TEXT,
			genres TEXT,
			avg_rating REAL DEFAULT 0,
			ratings_count INTEGER DEFAULT 0,
			year INTEGER,
			language TEXT,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS ratings (
			user_id INTEGER NOT NULL REFERENCES users(id),
			book_id INTEGER NOT NULL REFERENCES books(id),
			rating REAL NOT NULL CHECK (rating >= 1 AND rating <= 5),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, book_id)
		);
		CREATE INDEX IF NOT EXISTS idx_ratings_book ON ratings(book_id);
		CREATE INDEX IF NOT EXISTS idx_books_avg_rating ON books(avg_rating);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddBook inserts a book and returns its assigned id.
func (s *Store) AddBook(ctx context.Context, b *Book) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO books (title, author, description, genres, avg_rating, ratings_count, year, language, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.Title, b.Author, b.Description, b.Genres, b.AvgRating, b.RatingsCount, b.Year, b.Language, b.Source, b.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("book id: %w", err)
	}
	b.ID = id
	return id, nil
}

// AddUser inserts a user and returns its assigned id.
func (s *Store) AddUser(ctx context.Context, u *User) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, created_at) VALUES (?, ?)
	`, u.Username, u.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}
	u.ID = id
	return id, nil
}

// UpsertRating records or replaces a user's rating of a book and refreshes
// the book's denormalized average.
func (s *Store) UpsertRating(ctx context.Context, r *Rating) error {
	if r.Value < 1 || r.Value > 5 {
		return fmt.Errorf("rating %.1f out of range [1,5]", r.Value)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (user_id, book_id, rating, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, book_id) DO UPDATE SET rating = excluded.rating
	`, r.UserID, r.BookID, r.Value, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE books SET
			avg_rating = (SELECT AVG(rating) FROM ratings WHERE book_id = ?),
			ratings_count = (SELECT COUNT(*) FROM ratings WHERE book_id = ?)
		WHERE id = ?
	`, r.BookID, r.BookID, r.BookID)
	if err != nil {
		return fmt.Errorf("refresh book rating stats: %w", err)
	}

	return nil
}

// DeleteBook removes a book and its ratings.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ratings WHERE book_id = ?`, id); err != nil {
		return fmt.Errorf("delete book ratings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// GetBookByID returns one book, or ErrNotFound.
func (s *Store) GetBookByID(ctx context.Context, id int64) (*Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, COALESCE(description, ''), COALESCE(genres, ''),
		       avg_rating, ratings_count, COALESCE(year, 0), COALESCE(language, ''),
		       COALESCE(source, ''), created_at
		FROM books WHERE id = ?
	`, id)

	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return b, nil
}

// GetAllBooks returns every book ordered by id. The order is what the
// rebuild pipeline indexes by, so it must be deterministic.
func (s *Store) GetAllBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, COALESCE(description, ''), COALESCE(genres, ''),
		       avg_rating, ratings_count, COALESCE(year, 0), COALESCE(language, ''),
		       COALESCE(source, ''), created_at
		FROM books ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// GetAllUsers returns every user ordered by id.
func (s *Store) GetAllUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, created_at FROM users ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetAllRatings returns every rating.
func (s *Store) GetAllRatings(ctx context.Context) ([]*Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, book_id, rating, created_at FROM ratings
	`)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var ratings []*Rating
	for rows.Next() {
		r := &Rating{}
		if err := rows.Scan(&r.UserID, &r.BookID, &r.Value, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// GetTopRated returns the k highest-rated books, the popularity fallback
// used when neither a query vector nor a reference book is available.
func (s *Store) GetTopRated(ctx context.Context, k int) ([]*Book, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, COALESCE(description, ''), COALESCE(genres, ''),
		       avg_rating, ratings_count, COALESCE(year, 0), COALESCE(language, ''),
		       COALESCE(source, ''), created_at
		FROM books ORDER BY avg_rating DESC, id ASC LIMIT ?
	`, k)
	if err != nil {
		return nil, fmt.Errorf("top rated books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*Book, error) {
	b := &Book{}
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.Genres,
		&b.AvgRating, &b.RatingsCount, &b.Year, &b.Language, &b.Source, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}
