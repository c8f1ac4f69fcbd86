// Package equipment manages the security equipment inventory.
package equipment

import "time"

// Danger levels.
const (
	DangerLow    = "Baixo"
	DangerMedium = "Médio"
	DangerHigh   = "Alto"
)

// Item statuses, shared with the vehicle register.
const (
	StatusActive      = "Ativo"
	StatusMaintenance = "Manutencao"
	StatusDefective   = "Defeituoso"
)

var (
	DangerLevels = []string{DangerLow, DangerMedium, DangerHigh}
	Statuses     = []string{StatusActive, StatusMaintenance, StatusDefective}
)

const dateLayout = "2006-01-02"

// Item is one inventory line.
type Item struct {
	ID          int64
	Name        string
	Quantity    int
	ExpiresOn   *time.Time
	Description string
	DangerLevel string
	Status      string
}

// Expired reports whether the item is past its expiry date on day.
func (it Item) Expired(day time.Time) bool {
	if it.ExpiresOn == nil {
		return false
	}
	y, m, d := day.Date()
	return it.ExpiresOn.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// Snapshot is the audit representation of an item.
func (it Item) Snapshot() map[string]any {
	var expires any
	if it.ExpiresOn != nil {
		expires = it.ExpiresOn.Format(dateLayout)
	}
	return map[string]any{
		"id":                   it.ID,
		"nome":                 it.Name,
		"quantidade":           it.Quantity,
		"data_validade":        expires,
		"descricao":            it.Description,
		"nivel_periculosidade": it.DangerLevel,
		"situacao":             it.Status,
	}
}

// Input is the create/edit form. ExpiresOn is a yyyy-mm-dd date or blank.
type Input struct {
	Name        string `form:"name" label:"Nome" validate:"required,max=100"`
	Quantity    int    `form:"quantity" label:"Quantidade" validate:"gte=0,lte=1000000"`
	ExpiresOn   string `form:"expires_on" label:"Data de validade" validate:"omitempty,datetime=2006-01-02"`
	Description string `form:"description" label:"Descrição" validate:"max=2000"`
	DangerLevel string `form:"danger_level" label:"Nível de periculosidade" validate:"required,oneof=Baixo Médio Alto"`
	Status      string `form:"status" label:"Situação" validate:"required,oneof=Ativo Manutencao Defeituoso"`
}

// inputFrom renders it back into form values.
func inputFrom(it Item) Input {
	in := Input{
		Name:        it.Name,
		Quantity:    it.Quantity,
		Description: it.Description,
		DangerLevel: it.DangerLevel,
		Status:      it.Status,
	}
	if it.ExpiresOn != nil {
		in.ExpiresOn = it.ExpiresOn.Format(dateLayout)
	}
	return in
}

// item converts a validated form into an Item.
func (in Input) item() Item {
	it := Item{
		Name:        in.Name,
		Quantity:    in.Quantity,
		Description: in.Description,
		DangerLevel: in.DangerLevel,
		Status:      in.Status,
	}
	if in.ExpiresOn != "" {
		if day, err := time.Parse(dateLayout, in.ExpiresOn); err == nil {
			it.ExpiresOn = &day
		}
	}
	return it
}

// ListFilters narrows the inventory listing.
type ListFilters struct {
	Search      string
	DangerLevel string
	Page        int
	PerPage     int
}
