package vehicles

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/shared"
)

const defaultPerPage = 20

// Service implements vehicle register rules and writes the audit trail.
type Service struct {
	repo     Repository
	audit    shared.Auditor
	validate *validator.Validate
}

// NewService wires a Service.
func NewService(repo Repository, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{repo: repo, audit: auditor, validate: shared.NewValidator()}
}

// List returns a page of vehicles.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Vehicle, shared.Pagination, error) {
	if filters.PerPage <= 0 {
		filters.PerPage = defaultPerPage
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	filters.Search = strings.TrimSpace(filters.Search)
	list, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get loads one vehicle.
func (s *Service) Get(ctx context.Context, id int64) (Vehicle, error) {
	if id <= 0 {
		return Vehicle{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create registers a vehicle.
func (s *Service) Create(ctx context.Context, in Input) (Vehicle, error) {
	in = normalize(in)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Vehicle{}, err
	}
	created, err := s.repo.Create(ctx, in.vehicle())
	if err != nil {
		return Vehicle{}, s.fail(ctx, "cadastrar", err)
	}
	s.audit.Record(ctx, shared.OpCreate, shared.EntityVehicle,
		fmt.Sprintf("Veículo %s cadastrado.", created.Label()), created.Snapshot())
	return created, nil
}

// Update replaces vehicle id with in.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Vehicle, error) {
	in = normalize(in)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Vehicle{}, err
	}
	before, after, err := s.repo.Update(ctx, id, in.vehicle())
	if err != nil {
		return Vehicle{}, s.fail(ctx, "atualizar", err)
	}
	s.audit.Record(ctx, shared.OpUpdate, shared.EntityVehicle,
		fmt.Sprintf("Veículo %s atualizado.", after.Label()),
		map[string]any{"antes": before.Snapshot(), "depois": after.Snapshot()})
	return after, nil
}

// Delete removes vehicle id.
func (s *Service) Delete(ctx context.Context, id int64) (Vehicle, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return Vehicle{}, s.fail(ctx, "excluir", err)
	}
	s.audit.Record(ctx, shared.OpDelete, shared.EntityVehicle,
		fmt.Sprintf("Veículo %s excluído.", deleted.Label()), deleted.Snapshot())
	return deleted, nil
}

func (s *Service) fail(ctx context.Context, verb string, err error) error {
	if !shared.IsUserFacing(err) {
		s.audit.Record(ctx, shared.OpError, shared.EntityVehicle,
			fmt.Sprintf("Erro ao %s veículo.", verb), map[string]any{"erro": err.Error()})
	}
	return err
}

func normalize(in Input) Input {
	in.Model = strings.TrimSpace(in.Model)
	in.Brand = strings.TrimSpace(in.Brand)
	in.Color = strings.TrimSpace(in.Color)
	in.Description = strings.TrimSpace(in.Description)
	in.Plate = strings.ToUpper(strings.Join(strings.Fields(in.Plate), ""))
	in.StorageLocation = strings.TrimSpace(in.StorageLocation)
	in.Status = strings.TrimSpace(in.Status)
	return in
}
