// Package vehicles manages the fleet register.
package vehicles

// Vehicle statuses.
const (
	StatusActive      = "Ativo"
	StatusMaintenance = "Manutencao"
	StatusDefective   = "Defeituoso"
)

// Statuses lists the accepted statuses in display order.
var Statuses = []string{StatusActive, StatusMaintenance, StatusDefective}

// Vehicle is a registered fleet vehicle.
type Vehicle struct {
	ID              int64
	Model           string
	Brand           string
	Year            int
	Color           string
	Description     string
	Plate           string
	StorageLocation string
	Status          string
}

// Snapshot is the audit representation of a vehicle.
func (v Vehicle) Snapshot() map[string]any {
	return map[string]any{
		"id":                  v.ID,
		"modelo":              v.Model,
		"marca":               v.Brand,
		"ano_fabricacao":      v.Year,
		"cor":                 v.Color,
		"descricao":           v.Description,
		"placa":               v.Plate,
		"local_armazenamento": v.StorageLocation,
		"situacao":            v.Status,
	}
}

// Label is the short human name used in messages.
func (v Vehicle) Label() string {
	return v.Brand + " " + v.Model + " (" + v.Plate + ")"
}

// Input is the create/edit form.
type Input struct {
	Model           string `form:"model" label:"Modelo" validate:"required,max=100"`
	Brand           string `form:"brand" label:"Marca" validate:"required,max=100"`
	Year            int    `form:"year" label:"Ano de fabricação" validate:"gte=1900,lte=2100"`
	Color           string `form:"color" label:"Cor" validate:"required,max=50"`
	Description     string `form:"description" label:"Descrição" validate:"max=2000"`
	Plate           string `form:"plate" label:"Placa" validate:"required,max=10"`
	StorageLocation string `form:"storage_location" label:"Local de armazenamento" validate:"required,max=100"`
	Status          string `form:"status" label:"Situação" validate:"required,oneof=Ativo Manutencao Defeituoso"`
}

func (in Input) vehicle() Vehicle {
	return Vehicle{
		Model:           in.Model,
		Brand:           in.Brand,
		Year:            in.Year,
		Color:           in.Color,
		Description:     in.Description,
		Plate:           in.Plate,
		StorageLocation: in.StorageLocation,
		Status:          in.Status,
	}
}

// ListFilters narrows the vehicle listing.
type ListFilters struct {
	Search  string
	Status  string
	Page    int
	PerPage int
}
