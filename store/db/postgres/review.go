package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

func (d *DB) CreateReview(ctx context.Context, create *store.Review) (*store.Review, error) {
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}

	var rating sql.NullInt32
	if create.Rating != nil {
		rating = sql.NullInt32{Int32: *create.Rating, Valid: true}
	}

	stmt := `INSERT INTO review (user_id, movie_id, rating, content, created_ts)
		VALUES (` + placeholders(5) + `)
		RETURNING id, created_ts`

	result := *create
	if err := d.db.QueryRowContext(ctx, stmt, create.UserID, create.MovieID, rating, create.Content, createdTs).
		Scan(&result.ID, &result.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create review")
	}
	return &result, nil
}

func (d *DB) ListReviews(ctx context.Context, find *store.FindReview) ([]*store.Review, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "r.id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "r.user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.MovieID != nil {
		where, args = append(where, "r.movie_id = "+placeholder(len(args)+1)), append(args, *find.MovieID)
	}
	if find.HasContent {
		where = append(where, "r.content <> ''")
	}
	if find.HasRating {
		where = append(where, "r.rating IS NOT NULL")
	}
	if find.WithoutEmbedding {
		where = append(where, "NOT EXISTS (SELECT 1 FROM review_embedding re WHERE re.review_id = r.id)")
	}

	query := `
		SELECT r.id, r.user_id, r.movie_id, r.rating, r.content, r.created_ts
		FROM review r
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.created_ts DESC, r.id DESC`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reviews")
	}
	defer rows.Close()

	list := []*store.Review{}
	for rows.Next() {
		var review store.Review
		var rating sql.NullInt32
		if err := rows.Scan(&review.ID, &review.UserID, &review.MovieID, &rating, &review.Content, &review.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan review")
		}
		if rating.Valid {
			v := rating.Int32
			review.Rating = &v
		}
		list = append(list, &review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
