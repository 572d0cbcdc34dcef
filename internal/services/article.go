package services

import (
	"context"
	"errors"
	"strings"

	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/types"
)

// ArticleRepository defines persistence operations for articles.
type ArticleRepository interface {
	List(ctx context.Context, filter types.ArticleFilter, offset, limit int) ([]types.Article, int, error)
	Get(ctx context.Context, id int) (types.Article, error)
	Create(ctx context.Context, article types.Article) (types.Article, error)
	Update(ctx context.Context, article types.Article) (types.Article, error)
	Delete(ctx context.Context, id int) error
}

// ArticleService encapsulates article use-cases. Writes by authors are
// gated by their permission triple and, for existing articles, ownership.
type ArticleService struct {
	repo        ArticleRepository
	categories  CategoryRepository
	permissions *PermissionsRegistry
	media       *storage.Storage
}

func NewArticleService(repo ArticleRepository, categories CategoryRepository, permissions *PermissionsRegistry, media *storage.Storage) *ArticleService {
	return &ArticleService{
		repo:        repo,
		categories:  categories,
		permissions: permissions,
		media:       media,
	}
}

// Actor is the authenticated account performing a write.
type Actor struct {
	AccountID int
	Role      types.Role
}

// ArticleInput carries the writable article fields. Nil fields are left
// unchanged on update.
type ArticleInput struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Thumbnail  *string `json:"thumbnail"`
	CategoryID *int    `json:"category_id"`
}

func (s *ArticleService) List(ctx context.Context, filter types.ArticleFilter, offset, limit int) ([]types.Article, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, filter, offset, limit)
}

func (s *ArticleService) Get(ctx context.Context, id int) (types.Article, error) {
	article, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Article{}, ErrArticleNotFound
		}
		return types.Article{}, err
	}
	return article, nil
}

func (s *ArticleService) Create(ctx context.Context, actor Actor, in ArticleInput) (types.Article, error) {
	if err := s.authorize(ctx, actor, ActionCreate, nil); err != nil {
		return types.Article{}, err
	}

	var article types.Article
	if err := s.apply(ctx, &article, in); err != nil {
		return types.Article{}, err
	}
	if article.Title == "" || article.Content == "" || article.CategoryID == 0 {
		return types.Article{}, ErrMissingFields
	}
	article.AuthorID = actor.AccountID

	created, err := s.repo.Create(ctx, article)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Article{}, ErrCategoryNotFound
		}
		return types.Article{}, err
	}
	return created, nil
}

func (s *ArticleService) Update(ctx context.Context, actor Actor, id int, in ArticleInput) (types.Article, error) {
	article, err := s.Get(ctx, id)
	if err != nil {
		return types.Article{}, err
	}
	if err := s.authorize(ctx, actor, ActionUpdate, &article); err != nil {
		return types.Article{}, err
	}
	if err := s.apply(ctx, &article, in); err != nil {
		return types.Article{}, err
	}
	if article.Title == "" || article.Content == "" {
		return types.Article{}, ErrMissingFields
	}

	updated, err := s.repo.Update(ctx, article)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.Article{}, ErrArticleNotFound
		case errors.Is(err, store.ErrConflict):
			return types.Article{}, ErrCategoryNotFound
		}
		return types.Article{}, err
	}
	return updated, nil
}

func (s *ArticleService) Delete(ctx context.Context, actor Actor, id int) error {
	article, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, ActionDelete, &article); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrArticleNotFound
		}
		return err
	}
	return nil
}

// authorize lets admins through and holds authors to their permission
// triple. An author may only touch their own articles.
func (s *ArticleService) authorize(ctx context.Context, actor Actor, action Action, article *types.Article) error {
	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleAuthor:
	default:
		return ErrInsufficientRole
	}

	if article != nil && article.AuthorID != actor.AccountID {
		return ErrInsufficientPermission
	}
	ok, err := s.permissions.Allows(ctx, actor.AccountID, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientPermission
	}
	return nil
}

func (s *ArticleService) apply(ctx context.Context, article *types.Article, in ArticleInput) error {
	if in.Title != nil {
		article.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		article.Content = strings.TrimSpace(*in.Content)
	}
	if in.CategoryID != nil {
		if _, err := s.categories.Get(ctx, *in.CategoryID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}
		article.CategoryID = *in.CategoryID
	}
	if in.Thumbnail != nil {
		thumbnail := strings.TrimSpace(*in.Thumbnail)
		if thumbnail == "" {
			article.Thumbnail = nil
			return nil
		}
		if err := s.checkMedia(ctx, thumbnail); err != nil {
			return err
		}
		article.Thumbnail = &thumbnail
	}
	return nil
}

// checkMedia accepts only thumbnails that point at an object we store.
func (s *ArticleService) checkMedia(ctx context.Context, mediaURL string) error {
	if s.media == nil {
		return nil
	}
	key, ok := s.media.KeyFromURL(mediaURL)
	if !ok {
		return ErrMediaNotFound
	}
	exists, err := s.media.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrMediaNotFound
	}
	return nil
}
