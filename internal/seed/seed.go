// Package seed installs the permission catalog, the built-in roles and the
// bootstrap tenant with its administrator. Running it again only fills gaps.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"orgadmin/internal/config"
	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/pkg/apperror"
)

//go:embed catalog.yaml
var catalogYAML []byte

// AllPermissions in a role definition grants every catalog permission.
const AllPermissions = "*"

type Catalog struct {
	Permissions []PermissionDef `yaml:"permissions"`
	Roles       []RoleDef       `yaml:"roles"`
}

type PermissionDef struct {
	Key   string `yaml:"key"`
	Name  string `yaml:"name"`
	Group string `yaml:"group"`
}

type RoleDef struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	System      bool     `yaml:"system"`
	Permissions []string `yaml:"permissions"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	known := make(map[string]bool, len(cat.Permissions))
	for _, p := range cat.Permissions {
		if p.Key == "" || p.Name == "" {
			return nil, errors.New("catalog permission needs a key and a name")
		}
		if known[p.Key] {
			return nil, fmt.Errorf("duplicate permission %q", p.Key)
		}
		known[p.Key] = true
	}
	roles := make(map[string]bool, len(cat.Roles))
	for _, r := range cat.Roles {
		if r.Key == "" || r.Name == "" {
			return nil, errors.New("catalog role needs a key and a name")
		}
		if roles[r.Key] {
			return nil, fmt.Errorf("duplicate role %q", r.Key)
		}
		roles[r.Key] = true
		for _, k := range r.Permissions {
			if k != AllPermissions && !known[k] {
				return nil, fmt.Errorf("role %q references unknown permission %q", r.Key, k)
			}
		}
	}
	return &cat, nil
}

// Report counts what a run wrote.
type Report struct {
	PermissionsCreated  int
	PermissionsUpdated  int
	RolesCreated        int
	GrantsAdded         int
	OrganizationCreated bool
	AdminCreated        bool
}

type Seeder struct {
	tm    repository.TransactionManager
	perms repository.PermissionRepository
	roles repository.RoleRepository
	orgs  repository.OrganizationRepository
	users repository.UserRepository
	log   *logrus.Entry
}

func New(
	tm repository.TransactionManager,
	perms repository.PermissionRepository,
	roles repository.RoleRepository,
	orgs repository.OrganizationRepository,
	users repository.UserRepository,
	log *logrus.Logger,
) *Seeder {
	return &Seeder{tm: tm, perms: perms, roles: roles, orgs: orgs, users: users, log: log.WithField("component", "seed")}
}

// Run applies the catalog and the bootstrap options in one unit of work.
// Existing rows are matched by key, username or root position and left in
// place; only system roles get missing grants added back.
func (s *Seeder) Run(ctx context.Context, cat *Catalog, opts config.SeedOptions) (*Report, error) {
	rep := &Report{}
	err := s.tm.RunInTx(ctx, func(txCtx context.Context) error {
		perms, err := s.syncPermissions(txCtx, cat.Permissions, rep)
		if err != nil {
			return err
		}
		system, err := s.syncRoles(txCtx, cat, perms, rep)
		if err != nil {
			return err
		}
		org, err := s.ensureRoot(txCtx, opts, rep)
		if err != nil {
			return err
		}
		return s.ensureAdmin(txCtx, opts, org, system, rep)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"permissions_created": rep.PermissionsCreated,
		"permissions_updated": rep.PermissionsUpdated,
		"roles_created":       rep.RolesCreated,
		"grants_added":        rep.GrantsAdded,
		"org_created":         rep.OrganizationCreated,
		"admin_created":       rep.AdminCreated,
	}).Info("seed complete")
	return rep, nil
}

func (s *Seeder) syncPermissions(ctx context.Context, defs []PermissionDef, rep *Report) (map[string]*model.Permission, error) {
	out := make(map[string]*model.Permission, len(defs))
	for _, def := range defs {
		group := def.Group
		if group == "" {
			group = "general"
		}
		perm, err := s.perms.FindByKey(ctx, def.Key)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			perm = &model.Permission{Key: def.Key, Name: def.Name, Group: group}
			if err := s.perms.Create(ctx, perm); err != nil {
				return nil, err
			}
			rep.PermissionsCreated++
		case err != nil:
			return nil, err
		case perm.Name != def.Name || perm.Group != group:
			perm.Name, perm.Group = def.Name, group
			if err := s.perms.Update(ctx, perm); err != nil {
				return nil, err
			}
			rep.PermissionsUpdated++
		}
		out[def.Key] = perm
	}
	return out, nil
}

// syncRoles returns the system roles, which the bootstrap administrator holds.
func (s *Seeder) syncRoles(ctx context.Context, cat *Catalog, perms map[string]*model.Permission, rep *Report) ([]*model.Role, error) {
	var system []*model.Role
	for _, def := range cat.Roles {
		want := expand(def.Permissions, cat.Permissions, perms)

		role, err := s.roles.FindByKey(ctx, def.Key)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			role = &model.Role{Key: def.Key, Name: def.Name, Description: def.Description, IsSystem: def.System}
			if err := s.roles.Create(ctx, role); err != nil {
				return nil, err
			}
			rep.RolesCreated++
			if err := s.grant(ctx, role, want, nil, rep); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		case role.IsSystem:
			grants, err := s.roles.Grants(ctx, role.ID)
			if err != nil {
				return nil, err
			}
			if err := s.grant(ctx, role, want, grants, rep); err != nil {
				return nil, err
			}
		}
		if role.IsSystem {
			system = append(system, role)
		}
	}
	return system, nil
}

func expand(keys []string, defs []PermissionDef, perms map[string]*model.Permission) []*model.Permission {
	var out []*model.Permission
	for _, k := range keys {
		if k == AllPermissions {
			out = out[:0]
			for _, d := range defs {
				out = append(out, perms[d.Key])
			}
			return out
		}
		out = append(out, perms[k])
	}
	return out
}

func (s *Seeder) grant(ctx context.Context, role *model.Role, want []*model.Permission, existing []model.RolePermission, rep *Report) error {
	have := make(map[uuid.UUID]bool, len(existing))
	for _, g := range existing {
		have[g.PermissionID] = true
	}
	for _, p := range want {
		if have[p.ID] {
			continue
		}
		have[p.ID] = true
		if err := s.roles.AddGrant(ctx, &model.RolePermission{RoleID: role.ID, PermissionID: p.ID}); err != nil {
			return err
		}
		rep.GrantsAdded++
	}
	return nil
}

func (s *Seeder) ensureRoot(ctx context.Context, opts config.SeedOptions, rep *Report) (*model.Organization, error) {
	roots, err := s.orgs.Roots(ctx)
	if err != nil {
		return nil, err
	}
	if len(roots) > 0 {
		return &roots[0], nil
	}
	org := &model.Organization{
		FullName:  opts.RootOrgFullName,
		ShortName: opts.RootOrgShort,
		TIN:       opts.RootOrgTIN,
		Email:     opts.AdminEmail,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, err
	}
	rep.OrganizationCreated = true
	return org, nil
}

func (s *Seeder) ensureAdmin(ctx context.Context, opts config.SeedOptions, org *model.Organization, roles []*model.Role, rep *Report) error {
	_, err := s.users.GetByUsername(ctx, opts.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	if opts.AdminPassword == "" {
		return errors.New("SEED_ADMIN_PASSWORD is required to create the administrator")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := &model.User{
		OrganizationID: org.ID,
		Username:       opts.AdminUsername,
		Email:          opts.AdminEmail,
		FullName:       "Administrator",
		PasswordHash:   string(hash),
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return err
	}
	for _, role := range roles {
		if err := s.users.Assign(ctx, &model.UserRole{UserID: admin.ID, RoleID: role.ID}); err != nil {
			return err
		}
	}
	rep.AdminCreated = true
	return nil
}
