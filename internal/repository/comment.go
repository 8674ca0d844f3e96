package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkaplon/foresight-backend/internal/models"
)

const maxCommentLength = 2000

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotCommentOwner = errors.New("not the comment author")
)

type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

// Create stores a new comment and returns it with its generated id.
// The author address is stored lowercased so ownership checks are
// case-insensitive.
func (r *CommentRepo) Create(ctx context.Context, marketID, author, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("comment body is empty")
	}
	if len(body) > maxCommentLength {
		return nil, fmt.Errorf("comment body exceeds %d characters", maxCommentLength)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO market_comments (id, market_id, author, body)
		 VALUES ($1, $2, $3, $4) RETURNING *`,
		uuid.NewString(), marketID, strings.ToLower(author), body,
	)
	return scanComment(row)
}

// ListByMarket returns a market's comments, newest first.
func (r *CommentRepo) ListByMarket(ctx context.Context, marketID string, limit int) ([]models.Comment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM market_comments WHERE market_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		marketID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComments(rows)
}

// Delete removes a comment if the caller authored it.
func (r *CommentRepo) Delete(ctx context.Context, id, author string) error {
	var owner string
	err := r.pool.QueryRow(ctx,
		`SELECT author FROM market_comments WHERE id = $1`, id,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCommentNotFound
	}
	if err != nil {
		return err
	}
	if owner != strings.ToLower(author) {
		return ErrNotCommentOwner
	}

	_, err = r.pool.Exec(ctx, `DELETE FROM market_comments WHERE id = $1`, id)
	return err
}

// CountByMarket is used by the market analytics route to decorate
// snapshots with social activity.
func (r *CommentRepo) CountByMarket(ctx context.Context, marketID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM market_comments WHERE market_id = $1`, marketID,
	).Scan(&n)
	return n, err
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanComment(row scannable) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.MarketID, &c.Author, &c.Body, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectComments(rows rowsIter) ([]models.Comment, error) {
	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.MarketID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
