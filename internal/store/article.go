package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newsdesk/apiserver/types"
)

const articleColumns = `id, title, content, thumbnail, category_id, author_id, created_at, updated_at`

// ArticleRepository handles persistence for articles.
type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func scanArticle(row rowScanner) (types.Article, error) {
	var article types.Article
	err := row.Scan(
		&article.ID,
		&article.Title,
		&article.Content,
		&article.Thumbnail,
		&article.CategoryID,
		&article.AuthorID,
		&article.CreatedAt,
		&article.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Article{}, ErrNotFound
		}
		return types.Article{}, err
	}
	return article, nil
}

func articleWhere(filter types.ArticleFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.AuthorID > 0 {
		args = append(args, filter.AuthorID)
		conds = append(conds, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *ArticleRepository) List(ctx context.Context, filter types.ArticleFilter, offset, limit int) ([]types.Article, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where, args := articleWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM articles`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM articles%s ORDER BY created_at DESC, id DESC OFFSET $%d LIMIT $%d`,
		articleColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	articles := make([]types.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (r *ArticleRepository) Get(ctx context.Context, id int) (types.Article, error) {
	const query = `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	return scanArticle(r.db.QueryRowContext(ctx, query, id))
}

func (r *ArticleRepository) Create(ctx context.Context, article types.Article) (types.Article, error) {
	now := time.Now()
	article.CreatedAt = now
	article.UpdatedAt = now

	const query = `
		INSERT INTO articles (title, content, thumbnail, category_id, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		article.Title,
		article.Content,
		article.Thumbnail,
		article.CategoryID,
		article.AuthorID,
		article.CreatedAt,
		article.UpdatedAt,
	).Scan(&article.ID); err != nil {
		return types.Article{}, mapWriteError(err)
	}
	return article, nil
}

func (r *ArticleRepository) Update(ctx context.Context, article types.Article) (types.Article, error) {
	article.UpdatedAt = time.Now()

	const query = `
		UPDATE articles
		SET title = $1,
			content = $2,
			thumbnail = $3,
			category_id = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		article.Title,
		article.Content,
		article.Thumbnail,
		article.CategoryID,
		article.UpdatedAt,
		article.ID,
	)
	if err != nil {
		return types.Article{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Article{}, err
	}
	if affected == 0 {
		return types.Article{}, ErrNotFound
	}
	return article, nil
}

func (r *ArticleRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM articles WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
