package services

import (
	"context"
	"errors"
	"strings"

	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/types"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Category, int, error)
	Get(ctx context.Context, id int) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Update(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, id int) error
}

// CategoryService encapsulates category use-cases.
type CategoryService struct {
	repo CategoryRepository
}

func NewCategoryService(repo CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context, offset, limit int) ([]types.Category, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *CategoryService) Get(ctx context.Context, id int) (types.Category, error) {
	category, err := s.repo.Get(ctx, id)
	return category, categoryError(err)
}

func (s *CategoryService) Create(ctx context.Context, category types.Category) (types.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return types.Category{}, ErrMissingFields
	}
	created, err := s.repo.Create(ctx, category)
	return created, categoryError(err)
}

// CategoryPatch carries a partial category update.
type CategoryPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *CategoryService) Update(ctx context.Context, id int, patch CategoryPatch) (types.Category, error) {
	category, err := s.Get(ctx, id)
	if err != nil {
		return types.Category{}, err
	}
	if patch.Name != nil {
		category.Name = strings.TrimSpace(*patch.Name)
		if category.Name == "" {
			return types.Category{}, ErrMissingFields
		}
	}
	if patch.Description != nil {
		category.Description = *patch.Description
	}
	updated, err := s.repo.Update(ctx, category)
	return updated, categoryError(err)
}

func (s *CategoryService) Delete(ctx context.Context, id int) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, store.ErrConflict) {
		return ErrCategoryInUse
	}
	return categoryError(err)
}

func categoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrCategoryNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrCategoryExists
	}
	return err
}
