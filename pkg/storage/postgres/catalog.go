package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Item is a flat catalog record. The catalog carries no taxonomy; Kind is a
// free-form label like "book" or "album".
type Item struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Creator   string    `json:"creator"`
	Kind      string    `json:"kind"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemStore is the catalog CRUD store.
type ItemStore struct {
	db *sql.DB
}

// NewItemStore creates a store over an open connection pool.
func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemColumns = "id, title, creator, kind, notes, created_at, updated_at"

// List returns a page of items ordered by creation time, newest first, plus
// the total item count for pagination.
func (s *ItemStore) List(ctx context.Context, limit, offset int) ([]*Item, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]*Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, total, nil
}

// Get returns an item, or (nil, nil) when the id is unknown.
func (s *ItemStore) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1", id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// Create inserts an item and fills in its id and timestamps.
func (s *ItemStore) Create(ctx context.Context, item *Item) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO items (title, creator, kind, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		item.Title, item.Creator, item.Kind, item.Notes, now).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// Update rewrites an item's mutable fields. Reports whether the id existed.
func (s *ItemStore) Update(ctx context.Context, item *Item) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET title = $2, creator = $3, kind = $4, notes = $5, updated_at = $6
		 WHERE id = $1`,
		item.ID, item.Title, item.Creator, item.Kind, item.Notes, now)
	if err != nil {
		return false, fmt.Errorf("failed to update item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	item.UpdatedAt = now
	return affected == 1, nil
}

// Delete removes an item. Reports whether the id existed.
func (s *ItemStore) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Title, &item.Creator, &item.Kind, &item.Notes,
		&item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return &item, nil
}
