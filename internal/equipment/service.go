package equipment

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/shared"
)

// Service applies inventory rules and writes the audit trail.
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

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Item, shared.Pagination, error) {
	if filters.PerPage <= 0 {
		filters.PerPage = 20
	}
	filters.Page = max(filters.Page, 1)
	filters.Search = strings.TrimSpace(filters.Search)
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Item, error) {
	in = normalize(in)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Item{}, err
	}
	created, err := s.repo.Create(ctx, in.item())
	if err != nil {
		return Item{}, s.fail(ctx, "cadastrar", err)
	}
	s.audit.Record(ctx, shared.OpCreate, shared.EntityEquipment,
		fmt.Sprintf("Equipamento %q cadastrado.", created.Name), created.Snapshot())
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, in Input) (Item, error) {
	in = normalize(in)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Item{}, err
	}
	before, after, err := s.repo.Update(ctx, id, in.item())
	if err != nil {
		return Item{}, s.fail(ctx, "atualizar", err)
	}
	s.audit.Record(ctx, shared.OpUpdate, shared.EntityEquipment,
		fmt.Sprintf("Equipamento %q atualizado.", after.Name),
		map[string]any{"antes": before.Snapshot(), "depois": after.Snapshot()})
	return after, nil
}

func (s *Service) Delete(ctx context.Context, id int64) (Item, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return Item{}, s.fail(ctx, "excluir", err)
	}
	s.audit.Record(ctx, shared.OpDelete, shared.EntityEquipment,
		fmt.Sprintf("Equipamento %q excluído.", deleted.Name), deleted.Snapshot())
	return deleted, nil
}

func (s *Service) fail(ctx context.Context, verb string, err error) error {
	if !shared.IsUserFacing(err) {
		s.audit.Record(ctx, shared.OpError, shared.EntityEquipment,
			fmt.Sprintf("Erro ao %s equipamento.", verb), map[string]any{"erro": err.Error()})
	}
	return err
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.ExpiresOn = strings.TrimSpace(in.ExpiresOn)
	in.Description = strings.TrimSpace(in.Description)
	in.DangerLevel = strings.TrimSpace(in.DangerLevel)
	in.Status = strings.TrimSpace(in.Status)
	return in
}
