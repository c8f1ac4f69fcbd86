package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/internal/vehicles"
)

// VehicleCreator registers a vehicle.
type VehicleCreator interface {
	Create(ctx context.Context, in vehicles.Input) (vehicles.Vehicle, error)
}

// EquipmentCatalog registers and looks up inventory items.
type EquipmentCatalog interface {
	List(ctx context.Context, filters equipment.ListFilters) ([]equipment.Item, shared.Pagination, error)
	Create(ctx context.Context, in equipment.Input) (equipment.Item, error)
}

var demoUsers = []users.Input{
	{Name: "Administrador Demo", Email: "admin@guardpost.local", Password: "admin12345", Role: rbac.RoleSecurityAdmin.String()},
	{Name: "Gerente Demo", Email: "gerente@guardpost.local", Password: "gerente12345", Role: rbac.RoleManager.String()},
	{Name: "Funcionário Demo", Email: "funcionario@guardpost.local", Password: "funcionario12345", Role: rbac.RoleStaff.String()},
}

var demoVehicles = []vehicles.Input{
	{Model: "Hilux", Brand: "Toyota", Year: 2021, Color: "Preto", Plate: "GPA1B23", StorageLocation: "Garagem Norte", Status: vehicles.StatusActive, Description: "Viatura de patrulha."},
	{Model: "Sprinter", Brand: "Mercedes-Benz", Year: 2019, Color: "Branco", Plate: "GPB4C56", StorageLocation: "Garagem Sul", Status: vehicles.StatusMaintenance},
	{Model: "Duster", Brand: "Renault", Year: 2017, Color: "Prata", Plate: "GPC7D89", StorageLocation: "Garagem Norte", Status: vehicles.StatusDefective},
}

var demoEquipment = []equipment.Input{
	{Name: "Colete balístico", Quantity: 24, ExpiresOn: "2030-06-30", DangerLevel: equipment.DangerLow, Status: equipment.StatusActive},
	{Name: "Rádio comunicador", Quantity: 40, DangerLevel: equipment.DangerLow, Status: equipment.StatusActive},
	{Name: "Spray de pimenta", Quantity: 15, ExpiresOn: "2026-01-31", DangerLevel: equipment.DangerMedium, Status: equipment.StatusActive},
	{Name: "Granada de efeito moral", Quantity: 6, ExpiresOn: "2027-12-31", DangerLevel: equipment.DangerHigh, Status: equipment.StatusMaintenance},
}

type seedSummary struct {
	created, skipped int
}

func (s *seedSummary) add(err error) error {
	switch {
	case err == nil:
		s.created++
	case errors.Is(err, shared.ErrDuplicate):
		s.skipped++
	default:
		return describe(err)
	}
	return nil
}

func newSeedCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts, vehicles and equipment for development",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var accounts, fleet, stock seedSummary
			for _, in := range demoUsers {
				_, err := env.Accounts.Create(ctx, in)
				if err := accounts.add(err); err != nil {
					return fmt.Errorf("user %s: %w", in.Email, err)
				}
			}
			for _, in := range demoVehicles {
				_, err := env.Vehicles.Create(ctx, in)
				if err := fleet.add(err); err != nil {
					return fmt.Errorf("vehicle %s: %w", in.Plate, err)
				}
			}
			for _, in := range demoEquipment {
				exists, err := hasItem(ctx, env.Equipment, in.Name)
				if err != nil {
					return err
				}
				if exists {
					stock.skipped++
					continue
				}
				_, err = env.Equipment.Create(ctx, in)
				if err := stock.add(err); err != nil {
					return fmt.Errorf("equipment %s: %w", in.Name, err)
				}
			}

			fmt.Fprintf(out, "users: %d created, %d already present\n", accounts.created, accounts.skipped)
			fmt.Fprintf(out, "vehicles: %d created, %d already present\n", fleet.created, fleet.skipped)
			fmt.Fprintf(out, "equipment: %d created, %d already present\n", stock.created, stock.skipped)
			return nil
		}),
	}
}

// hasItem matches names exactly, ignoring case; the listing search is a
// substring match.
func hasItem(ctx context.Context, catalog EquipmentCatalog, name string) (bool, error) {
	items, _, err := catalog.List(ctx, equipment.ListFilters{Search: name, PerPage: 100})
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if strings.EqualFold(it.Name, name) {
			return true, nil
		}
	}
	return false, nil
}
