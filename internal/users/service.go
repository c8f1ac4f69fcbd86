package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

const defaultPerPage = 20

// Service implements user management rules and writes the audit trail.
type Service struct {
	repo     Repository
	audit    shared.Auditor
	validate *validator.Validate
	hashCost int
}

// NewService wires a Service.
func NewService(repo Repository, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{repo: repo, audit: auditor, validate: shared.NewValidator(), hashCost: bcrypt.DefaultCost}
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, shared.Pagination, error) {
	if filters.PerPage <= 0 {
		filters.PerPage = defaultPerPage
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	filters.Search = strings.TrimSpace(filters.Search)
	users, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get loads one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create validates in, hashes the password and stores the account.
func (s *Service) Create(ctx context.Context, in Input) (User, error) {
	in = normalize(in)
	role, err := s.check(in, true)
	if err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, s.fail(ctx, "criar", err)
	}
	created, err := s.repo.Create(ctx, User{Name: in.Name, Email: in.Email, PasswordHash: string(hash), Role: role})
	if err != nil {
		return User{}, s.fail(ctx, "criar", err)
	}
	s.audit.Record(ctx, shared.OpCreate, shared.EntityUser,
		fmt.Sprintf("Usuário '%s' criado.", created.Name), created.Snapshot())
	return created, nil
}

// Update applies in to user id. A blank password keeps the current one.
func (s *Service) Update(ctx context.Context, id int64, in Input) (User, error) {
	in = normalize(in)
	role, err := s.check(in, false)
	if err != nil {
		return User{}, err
	}
	var hash string
	if in.Password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
		if err != nil {
			return User{}, s.fail(ctx, "atualizar", err)
		}
		hash = string(raw)
	}
	before, after, err := s.repo.Update(ctx, id, func(u *User) error {
		u.Name = in.Name
		u.Email = in.Email
		u.Role = role
		if hash != "" {
			u.PasswordHash = hash
		}
		return nil
	})
	if err != nil {
		return User{}, s.fail(ctx, "atualizar", err)
	}
	s.audit.Record(ctx, shared.OpUpdate, shared.EntityUser,
		fmt.Sprintf("Usuário '%s' atualizado.", after.Name),
		map[string]any{"antes": before.Snapshot(), "depois": after.Snapshot()})
	return after, nil
}

// Delete removes user id. actorID may not delete their own account.
func (s *Service) Delete(ctx context.Context, actorID, id int64) (User, error) {
	if actorID == id {
		return User{}, shared.Forbidden("Você não pode excluir o próprio usuário.")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return User{}, s.fail(ctx, "excluir", err)
	}
	s.audit.Record(ctx, shared.OpDelete, shared.EntityUser,
		fmt.Sprintf("Usuário '%s' excluído.", deleted.Name), deleted.Snapshot())
	return deleted, nil
}

func (s *Service) check(in Input, create bool) (rbac.Role, error) {
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		var fields *shared.ValidationError
		if !errors.As(err, &fields) {
			return "", err
		}
		verr = fields
	}
	if create && in.Password == "" {
		verr.Add("password", "O campo Senha é obrigatório.")
	}
	role, err := rbac.ParseRole(in.Role)
	if in.Role != "" && err != nil {
		verr.Add("role", "Perfil inválido.")
	}
	if !verr.Empty() {
		return "", verr
	}
	return role, nil
}

// fail records an ERROR entry for unexpected failures and returns err.
func (s *Service) fail(ctx context.Context, verb string, err error) error {
	if shared.IsUserFacing(err) {
		return err
	}
	s.audit.Record(ctx, shared.OpError, shared.EntityUser,
		fmt.Sprintf("Erro ao %s usuário.", verb), map[string]any{"erro": err.Error()})
	return err
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.TrimSpace(in.Role)
	return in
}
