package clients

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/printhub/backoffice/internal/shared"
)

// Store is the persistence contract used by Service.
type Store interface {
	Get(ctx context.Context, id int64) (Client, error)
	List(ctx context.Context, search string, limit, offset int) ([]Client, int, error)
	Create(ctx context.Context, in Input) (Client, error)
	Update(ctx context.Context, id int64, in Input) (Client, error)
}

// Service manages client master data.
type Service struct {
	store     Store
	validator *validator.Validate
}

// NewService constructs Service.
func NewService(store Store) *Service {
	return &Service{store: store, validator: validator.New()}
}

// Get loads a client by id.
func (s *Service) Get(ctx context.Context, id int64) (Client, error) {
	return s.store.Get(ctx, id)
}

// List pages through clients.
func (s *Service) List(ctx context.Context, search string, page, perPage int) ([]Client, shared.Pagination, error) {
	limit, offset := shared.LimitOffset(page, perPage)
	items, total, err := s.store.List(ctx, search, limit, offset)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// Create validates and stores a client.
func (s *Service) Create(ctx context.Context, in Input) (Client, error) {
	in = in.normalised()
	if err := s.validator.Struct(in); err != nil {
		return Client{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.Create(ctx, in)
}

// Update validates and replaces client fields.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Client, error) {
	in = in.normalised()
	if err := s.validator.Struct(in); err != nil {
		return Client{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.store.Update(ctx, id, in)
}
