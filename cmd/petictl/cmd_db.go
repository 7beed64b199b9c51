package main

import (
	"context"
	"fmt"

	"github.com/luantaraschi/petichat-definitive/migrations"
	"github.com/luantaraschi/petichat-definitive/repository"
	"github.com/luantaraschi/petichat-definitive/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func runMigrateUp(cmd *cobra.Command, args []string) error {
	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		return err
	}
	return printVersion(cmd)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	if downSteps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	if err := migrations.Down(cfg.DatabaseURL, downSteps); err != nil {
		return err
	}
	return printVersion(cmd)
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	return printVersion(cmd)
}

func printVersion(cmd *cobra.Command) error {
	version, dirty, err := migrations.Version(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("schema version %d (dirty)\n", version)
		return nil
	}
	cmd.Printf("schema version %d\n", version)
	return nil
}

// withPool opens a connection pool for the duration of fn
func withPool(ctx context.Context, fn func(db *pgxpool.Pool) error) error {
	db, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withPool(ctx, func(db *pgxpool.Pool) error {
		auth := service.NewAuthService(
			service.AuthWithStore(repository.NewAuthRepository(db)),
			service.AuthWithSecret(cfg.JWTSecret, cfg.JWTTTL),
		)
		req := service.SignupRequest{
			Email:    userEmail,
			Password: userPassword,
			Name:     userName,
			FirmName: userFirm,
		}
		if userOAB != "" {
			req.OABNumber = &userOAB
		}
		res, err := auth.Signup(ctx, req)
		if err != nil {
			return err
		}
		cmd.Printf("created user %s (%s) in tenant %s as %s\n", res.User.ID, res.User.Email, res.TenantID, res.Role)
		return nil
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withPool(ctx, func(db *pgxpool.Pool) error {
		cases := service.NewCaseService(service.WithCaseStore(repository.NewCaseRepository(db)))
		n, err := cases.ArchiveAbandonedDrafts(ctx, cfg.AbandonedDraftAge)
		if err != nil {
			return err
		}
		cmd.Printf("archived %d abandoned drafts older than %s\n", n, cfg.AbandonedDraftAge)
		return nil
	})
}
