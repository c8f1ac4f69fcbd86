// Package search implements the administrative cross-resource search.
package search

import "github.com/guardpost/guardpost/internal/rbac"

// Resource kinds accepted by the tipo filter.
const (
	KindAll       = "Todos"
	KindUser      = "Usuário"
	KindVehicle   = "Veículo"
	KindEquipment = "Equipamento"
)

// Kinds lists the resource kinds in display order.
var Kinds = []string{KindAll, KindUser, KindVehicle, KindEquipment}

const resultLimit = 100

// Query holds the search form. Empty fields do not filter.
type Query struct {
	Term            string
	Kind            string
	Role            string
	VehicleStatus   string
	VehicleLocation string
	DangerLevel     string
}

// Active reports whether any filter was filled in.
func (q Query) Active() bool {
	return q.Term != "" || (q.Kind != "" && q.Kind != KindAll) ||
		q.Role != "" || q.VehicleStatus != "" || q.VehicleLocation != "" || q.DangerLevel != ""
}

func (q Query) includes(kind string) bool {
	return q.Kind == "" || q.Kind == KindAll || q.Kind == kind
}

// Snapshot is the audit representation of the filters.
func (q Query) Snapshot() map[string]any {
	return map[string]any{
		"termo":                q.Term,
		"tipo":                 q.Kind,
		"perfil":               q.Role,
		"situacao_veiculo":     q.VehicleStatus,
		"local_veiculo":        q.VehicleLocation,
		"nivel_periculosidade": q.DangerLevel,
	}
}

// UserHit is a matching account.
type UserHit struct {
	ID    int64
	Name  string
	Email string
	Role  rbac.Role
}

// VehicleHit is a matching vehicle.
type VehicleHit struct {
	ID              int64
	Model           string
	Brand           string
	Plate           string
	StorageLocation string
	Status          string
}

// EquipmentHit is a matching equipment item.
type EquipmentHit struct {
	ID          int64
	Name        string
	Quantity    int
	DangerLevel string
	Status      string
}

// Results groups the hits per resource kind.
type Results struct {
	Users     []UserHit
	Vehicles  []VehicleHit
	Equipment []EquipmentHit
}

// Total counts every hit.
func (r Results) Total() int {
	return len(r.Users) + len(r.Vehicles) + len(r.Equipment)
}
