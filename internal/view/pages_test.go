package view_test

import (
	"html/template"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/dashboard"
	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/search"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/internal/vehicles"
	"github.com/guardpost/guardpost/internal/view"
	_ "github.com/guardpost/guardpost/testing"
)

func render(t *testing.T, engine *view.Engine, name string, user *view.CurrentUser, data any) string {
	t.Helper()
	rr := httptest.NewRecorder()
	td := view.TemplateData{
		Title:     "Teste",
		CSRFToken: "tok-123",
		Flash:     &shared.FlashMessage{Kind: "success", Message: "Tudo certo."},
		User:      user,
		Data:      data,
	}
	require.NoError(t, engine.Render(rr, name, td), name)
	return rr.Body.String()
}

func TestPagesRender(t *testing.T) {
	engine, err := view.NewEngine()
	require.NoError(t, err)

	admin := &view.CurrentUser{ID: 1, Name: "Ana", Role: rbac.RoleSecurityAdmin.String(), CanManage: true, IsAdmin: true}
	staff := &view.CurrentUser{ID: 3, Name: "Carol", Role: rbac.RoleStaff.String()}
	expires := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	paging := shared.NewPagination(2, 10, 35)

	cases := []struct {
		name  string
		user  *view.CurrentUser
		data  any
		wants []string
	}{
		{"pages/login.html", nil, map[string]any{"Email": ""}, []string{"<form", `action="/login"`, "tok-123"}},
		{"pages/error.html", nil, map[string]any{"Status": 500, "Message": "Falhou."}, []string{"Erro 500", "Falhou."}},
		{"pages/error.html", nil, map[string]any{"Message": "Sem status."}, []string{"Sem status."}},
		{"pages/not_found.html", nil, nil, []string{"Página não encontrada"}},
		{"pages/about.html", nil, nil, []string{"Sobre o GuardPost", `href="/contatos"`}},
		{"pages/contact.html", staff, nil, []string{"central@guardpost.local"}},
		{"pages/blocked.html", staff, nil, []string{"Sistema em bloqueio"}},
		{"pages/home.html", admin, map[string]any{"LockdownActive": true, "AppEnv": "production"}, []string{"/admin/lockdown/deactivate", "Bloqueio do sistema ativo"}},
		{"pages/home.html", staff, map[string]any{"LockdownActive": false, "AppEnv": ""}, []string{"/equipment", "/chat"}},
		{"pages/chat.html", staff, map[string]any{"Me": map[string]any{"ID": 3, "Name": "Carol"}}, []string{`data-me="3"`, "/static/js/chat.js"}},
		{"pages/users_list.html", admin, map[string]any{
			"Users":  []users.User{{ID: 1, Name: "Ana", Email: "ana@example.com", Role: rbac.RoleSecurityAdmin}, {ID: 2, Name: "Bruno", Email: "bruno@example.com", Role: rbac.RoleStaff}},
			"Paging": paging,
			"Search": "a b",
		}, []string{"bruno@example.com", "/users/2/delete", "page=1", "page=3", "Página 2 de 4"}},
		{"pages/users_form.html", admin, map[string]any{
			"ID":    int64(2),
			"Input": users.Input{Name: "Bruno", Email: "bruno@example.com", Role: rbac.RoleManager.String()},
			"Roles": rbac.Roles,
		}, []string{`action="/users/2/edit"`, `value="Gerente" selected`}},
		{"pages/vehicles_list.html", admin, map[string]any{
			"Vehicles": []vehicles.Vehicle{{ID: 4, Plate: "ABC1D23", Brand: "Fiat", Model: "Uno", Year: 2019, Status: vehicles.StatusActive}},
			"Paging":   shared.NewPagination(1, 20, 1),
			"Filters":  vehicles.ListFilters{Status: vehicles.StatusActive},
			"Statuses": vehicles.Statuses,
		}, []string{"ABC1D23", "/vehicles/4/edit"}},
		{"pages/vehicles_form.html", admin, map[string]any{
			"ID":       int64(0),
			"Input":    vehicles.Input{Status: vehicles.StatusActive},
			"Statuses": vehicles.Statuses,
		}, []string{`action="/vehicles"`, `value="Ativo" selected`}},
		{"pages/equipment_list.html", staff, map[string]any{
			"Items":        []equipment.Item{{ID: 5, Name: "Colete", Quantity: 3, ExpiresOn: &expires, DangerLevel: equipment.DangerHigh, Status: equipment.StatusActive}},
			"Paging":       shared.NewPagination(1, 20, 1),
			"Filters":      equipment.ListFilters{},
			"DangerLevels": equipment.DangerLevels,
			"Today":        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		}, []string{"Colete", "2020-01-02", `class="expired"`}},
		{"pages/equipment_form.html", admin, map[string]any{
			"ID":           int64(5),
			"Input":        equipment.Input{Name: "Colete", DangerLevel: equipment.DangerMedium, Status: equipment.StatusDefective},
			"DangerLevels": equipment.DangerLevels,
			"Statuses":     equipment.Statuses,
		}, []string{`action="/equipment/5/edit"`, `value="Defeituoso" selected`}},
		{"pages/dashboard.html", admin, map[string]any{
			"Snapshot": dashboard.Snapshot{
				Totals:      dashboard.Totals{Users: 7, Vehicles: 2, Equipment: 11},
				DeniedToday: 1,
				Recent:      []dashboard.RecentEntry{{Actor: "Ana", Operation: shared.OpLoginSuccess}},
			},
			"RoleChart":  template.HTML(`<svg id="roles"></svg>`),
			"LoginChart": template.HTML(""),
			"OpsChart":   template.HTML(""),
		}, []string{"<strong>11</strong>", `<svg id="roles"></svg>`, "LOGIN_SUCCESS"}},
		{"pages/search.html", admin, map[string]any{
			"Query":           search.Query{Term: "uno", Kind: search.KindVehicle},
			"Results":         search.Results{Vehicles: []search.VehicleHit{{ID: 4, Plate: "ABC1D23", Model: "Uno"}}},
			"Searched":        true,
			"Kinds":           search.Kinds,
			"Roles":           rbac.Roles,
			"VehicleStatuses": vehicles.Statuses,
			"DangerLevels":    equipment.DangerLevels,
		}, []string{"1 resultado(s)", "ABC1D23"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := render(t, engine, tc.name, tc.user, tc.data)
			assert.Contains(t, body, "Tudo certo.")
			for _, want := range tc.wants {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestNavHidesAdminLinksFromStaff(t *testing.T) {
	engine, err := view.NewEngine()
	require.NoError(t, err)

	body := render(t, engine, "pages/not_found.html", &view.CurrentUser{ID: 3, Name: "Carol"}, nil)

	assert.Contains(t, body, `href="/equipment"`)
	assert.NotContains(t, body, `href="/audit"`)
	assert.NotContains(t, body, `href="/users"`)
}
