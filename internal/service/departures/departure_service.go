package departures

import (
	"context"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/repository"
)

type DepartureUseCase interface {
	List(ctx context.Context) ([]domain.Departure, error)
	GetByID(ctx context.Context, id int64) (*domain.Departure, error)
}

type Cache interface {
	GetDepartures(ctx context.Context) ([]domain.Departure, error)
	SetDepartures(ctx context.Context, departures []domain.Departure) error
}

type DepartureService struct {
	repo  repository.DepartureRepository
	cache Cache
}

func NewDepartureService(repo repository.DepartureRepository, cache Cache) *DepartureService {
	return &DepartureService{repo: repo, cache: cache}
}

func (s *DepartureService) List(ctx context.Context) ([]domain.Departure, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetDepartures(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	departures, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetDepartures(ctx, departures)
	}
	return departures, nil
}

func (s *DepartureService) GetByID(ctx context.Context, id int64) (*domain.Departure, error) {
	return s.repo.GetByID(ctx, id)
}

var _ DepartureUseCase = (*DepartureService)(nil)
