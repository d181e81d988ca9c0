package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user := &domain.User{}
	query := `SELECT * FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "failed to find user by id")
	}
	return user, nil
}

// FindByOrganizationAndRole returns the first active user holding the role
// within the organization. Used to locate the finance-role fan-in wallet.
func (r *UserRepository) FindByOrganizationAndRole(ctx context.Context, orgID uuid.UUID, role domain.Role) (*domain.User, error) {
	user := &domain.User{}
	query := `SELECT * FROM users WHERE organization_id = $1 AND role = $2 AND is_active = true LIMIT 1`
	err := r.db.GetContext(ctx, user, query, orgID, role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "failed to find user by organization and role")
	}
	return user, nil
}

type OrganizationRepository struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	org := &domain.Organization{}
	query := `SELECT * FROM organizations WHERE id = $1`
	err := r.db.GetContext(ctx, org, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOrganizationNotFound
		}
		return nil, errors.Wrap(err, "failed to find organization by id")
	}
	return org, nil
}
