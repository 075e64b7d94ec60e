package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"orgadmin/internal/config"
	"orgadmin/internal/database"
	"orgadmin/internal/logging"
	"orgadmin/internal/repository"
	"orgadmin/internal/seed"
)

// app holds what every subcommand needs: configuration, logger and the
// database with its repositories.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB

	perms  repository.PermissionRepository
	roles  repository.RoleRepository
	orgs   repository.OrganizationRepository
	users  repository.UserRepository
	tokens repository.TokenRepository
	audit  repository.AuditRepository
}

func bootstrap(opts *rootOptions) (*app, error) {
	cfg, found, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	if !found {
		log.WithField("file", opts.envFile).Info("No env file found, using the process environment")
	}
	gin.SetMode(cfg.GinMode)

	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.WithFields(logrus.Fields{"host": cfg.Database.Host, "db": cfg.Database.Name}).Info("Connected to PostgreSQL")

	return &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		perms:  repository.NewPermissionRepository(db),
		roles:  repository.NewRoleRepository(db),
		orgs:   repository.NewOrganizationRepository(db),
		users:  repository.NewUserRepository(db),
		tokens: repository.NewTokenRepository(db),
		audit:  repository.NewAuditRepository(db),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) migrate() error {
	if err := database.Migrate(a.db); err != nil {
		return err
	}
	a.log.Info("Schema migrated")
	return nil
}

func (a *app) seed(ctx context.Context, tm repository.TransactionManager) error {
	cat, err := seed.DefaultCatalog()
	if err != nil {
		return err
	}
	_, err = seed.New(tm, a.perms, a.roles, a.orgs, a.users, a.log).Run(ctx, cat, a.cfg.Seed)
	return err
}
