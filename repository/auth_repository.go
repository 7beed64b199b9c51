package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

// AuthRepository handles tenants, users and memberships
type AuthRepository struct {
	db *pgxpool.Pool
}

// NewAuthRepository creates a new auth repository
func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// Signup creates the tenant, its owner and the owner membership atomically
func (r *AuthRepository) Signup(ctx context.Context, tenant *models.Tenant, user *models.User) (*models.Membership, error) {
	membership := &models.Membership{Role: models.RoleOwner}
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING id, created_at`,
			tenant.Name, tenant.Slug,
		).Scan(&tenant.ID, &tenant.CreatedAt)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, name, oab_number)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at`,
			strings.ToLower(user.Email), user.PasswordHash, user.Name, user.OABNumber,
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return err
		}

		membership.TenantID = tenant.ID
		membership.UserID = user.ID
		return tx.QueryRow(ctx, `
			INSERT INTO memberships (tenant_id, user_id, role)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			membership.TenantID, membership.UserID, membership.Role,
		).Scan(&membership.ID, &membership.CreatedAt)
	})
	if isUniqueViolation(err) {
		return nil, apperr.Validation("E-mail ou escritório já cadastrado",
			apperr.FieldError{Field: "email", Message: "já está em uso"})
	}
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// GetUserByEmail looks a user up by e-mail, case-insensitively
func (r *AuthRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, name, oab_number, created_at, updated_at
		FROM users WHERE email = $1`, strings.ToLower(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.OABNumber, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// PrimaryMembership returns the user's oldest membership
func (r *AuthRepository) PrimaryMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error) {
	m := &models.Membership{}
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, role, created_at
		FROM memberships WHERE user_id = $1
		ORDER BY created_at
		LIMIT 1`, userID,
	).Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err, "membership")
	}
	return m, nil
}
