// Package dashboard aggregates register and audit statistics for the
// security administrator.
package dashboard

import (
	"strings"
	"time"

	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view/chart"
)

const (
	loginWindowDays = 7
	recentLimit     = 20
	tableLimit      = 50
)

// Count is one group of an aggregate.
type Count struct {
	Label string `json:"label"`
	Total int    `json:"total"`
}

// Totals are the headline counters.
type Totals struct {
	Users     int `json:"users"`
	Vehicles  int `json:"vehicles"`
	Equipment int `json:"equipment"`
}

// RecentEntry is a trimmed audit row.
type RecentEntry struct {
	At          time.Time `json:"at"`
	Actor       string    `json:"actor"`
	Role        string    `json:"role"`
	Operation   string    `json:"operation"`
	Entity      string    `json:"entity"`
	Description string    `json:"description"`
}

// Snapshot is the whole dashboard at one instant.
type Snapshot struct {
	Totals       Totals        `json:"totals"`
	DeniedToday  int           `json:"denied_today"`
	UsersByRole  []Count       `json:"users_by_role"`
	LoginsPerDay []Count       `json:"logins_per_day"`
	Operations   []Count       `json:"operations"`
	Recent       []RecentEntry `json:"recent"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// Entity selects a per-register drill-down.
type Entity string

const (
	EntityUsers     Entity = "users"
	EntityVehicles  Entity = "vehicles"
	EntityEquipment Entity = "equipment"
)

var entityAliases = map[string]Entity{
	"users":        EntityUsers,
	"usuarios":     EntityUsers,
	"vehicles":     EntityVehicles,
	"veiculos":     EntityVehicles,
	"equipment":    EntityEquipment,
	"equipamentos": EntityEquipment,
}

// ParseEntity accepts the English or Portuguese register name.
func ParseEntity(raw string) (Entity, error) {
	if e, ok := entityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return e, nil
	}
	return "", shared.Invalid("Entidade inválida.")
}

// EntityChart describes the drill-down chart.
type EntityChart struct {
	Type string `json:"type"`
	chart.Series
}

// EntityData is the drill-down payload: a grouped chart and the latest rows.
type EntityData struct {
	Entity Entity           `json:"entity"`
	Chart  EntityChart      `json:"chart"`
	Table  []map[string]any `json:"table"`
}

func series(counts []Count) chart.Series {
	s := chart.Series{Labels: make([]string, 0, len(counts)), Values: make([]float64, 0, len(counts))}
	for _, c := range counts {
		s.Labels = append(s.Labels, c.Label)
		s.Values = append(s.Values, float64(c.Total))
	}
	return s
}
