package search

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/vehicles"
)

// Service runs administrative searches and records each one.
type Service struct {
	repo  Repository
	audit shared.Auditor
	limit int
}

// NewService wires a Service.
func NewService(repo Repository, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{repo: repo, audit: auditor, limit: resultLimit}
}

// Normalize trims the filters and drops choices outside the known lists.
// An unknown kind or role is rejected.
func Normalize(q Query) (Query, error) {
	q.Term = strings.TrimSpace(q.Term)
	q.VehicleLocation = strings.TrimSpace(q.VehicleLocation)
	q.Kind = strings.TrimSpace(q.Kind)
	if q.Kind == "" {
		q.Kind = KindAll
	}
	if !slices.Contains(Kinds, q.Kind) {
		return q, shared.Invalid("Tipo de recurso inválido.")
	}
	if q.Role = strings.TrimSpace(q.Role); q.Role != "" {
		role, err := rbac.ParseRole(q.Role)
		if err != nil {
			return q, shared.Invalid("Perfil inválido informado.")
		}
		q.Role = role.String()
	}
	if !slices.Contains(vehicles.Statuses, q.VehicleStatus) {
		q.VehicleStatus = ""
	}
	if !slices.Contains(equipment.DangerLevels, q.DangerLevel) {
		q.DangerLevel = ""
	}
	return q, nil
}

// Search runs q against every selected resource. A query with no filter
// returns no results and is not recorded.
func (s *Service) Search(ctx context.Context, q Query) (Query, Results, error) {
	q, err := Normalize(q)
	if err != nil || !q.Active() {
		return q, Results{}, err
	}

	var res Results
	g, gctx := errgroup.WithContext(ctx)
	if q.includes(KindUser) {
		g.Go(func() (err error) {
			res.Users, err = s.repo.Users(gctx, q, s.limit)
			return err
		})
	}
	if q.includes(KindVehicle) {
		g.Go(func() (err error) {
			res.Vehicles, err = s.repo.Vehicles(gctx, q, s.limit)
			return err
		})
	}
	if q.includes(KindEquipment) {
		g.Go(func() (err error) {
			res.Equipment, err = s.repo.Equipment(gctx, q, s.limit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.audit.Record(ctx, shared.OpError, shared.EntitySystem, "Erro inesperado na busca administrativa.", map[string]any{"erro": err.Error()})
		return q, Results{}, err
	}

	s.audit.Record(ctx, shared.OpAdminSearch, shared.EntitySystem, "Busca administrativa realizada.", q.Snapshot())
	return q, res, nil
}
