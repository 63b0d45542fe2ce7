package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reuseworks/volsched-api/internal/models"
)

// ProfileRepository manages persistence for profiles and their
// backing identity records.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileDetailColumns = `p.id, p.user_id, p.title, p.phone, p.date_of_birth, p.gender, p.proficiency, p.notes,
	p.is_volunteer, p.is_intern, p.is_teacher, p.created_at, p.updated_at,
	u.username, u.email, u.first_name, u.last_name`

// List returns profiles joined with identity fields.
func (r *ProfileRepository) List(ctx context.Context, filter models.ProfileFilter) ([]models.ProfileDetail, int, error) {
	base := "FROM profiles p JOIN users u ON u.id = p.user_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Proficiency != nil {
		conditions = append(conditions, fmt.Sprintf("p.proficiency = $%d", len(args)+1))
		args = append(args, *filter.Proficiency)
	}
	if filter.Volunteer != nil {
		conditions = append(conditions, fmt.Sprintf("p.is_volunteer = $%d", len(args)+1))
		args = append(args, *filter.Volunteer)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.username) LIKE $%d OR LOWER(u.first_name) LIKE $%d OR LOWER(u.last_name) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	column := sortColumn(filter.SortBy, map[string]string{
		"username":   "u.username",
		"last_name":  "u.last_name",
		"created_at": "p.created_at",
	}, "p.created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", profileDetailColumns, base, column, order, size, offset)
	var profiles []models.ProfileDetail
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	return profiles, total, nil
}

// FindByID fetches a profile with its identity fields.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.ProfileDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM profiles p JOIN users u ON u.id = p.user_id WHERE p.id = $1", profileDetailColumns)
	var profile models.ProfileDetail
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByUserID fetches the profile owned by the given identity.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.ProfileDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM profiles p JOIN users u ON u.id = p.user_id WHERE p.user_id = $1", profileDetailColumns)
	var profile models.ProfileDetail
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Create inserts the identity record and the profile in one
// transaction so a profile can never exist without its user.
func (r *ProfileRepository) Create(ctx context.Context, user *models.User, profile *models.Profile) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	profile.UserID = user.ID
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create profile: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const userQuery = `INSERT INTO users (id, username, email, password_hash, first_name, last_name, role, active, created_at, updated_at)
		VALUES (:id, :username, :email, :password_hash, :first_name, :last_name, :role, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, user); err != nil {
		return fmt.Errorf("create profile user: %w", err)
	}

	const profileQuery = `INSERT INTO profiles (id, user_id, title, phone, date_of_birth, gender, proficiency, notes, is_volunteer, is_intern, is_teacher, created_at, updated_at)
		VALUES (:id, :user_id, :title, :phone, :date_of_birth, :gender, :proficiency, :notes, :is_volunteer, :is_intern, :is_teacher, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, profileQuery, profile); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create profile: %w", err)
	}
	return nil
}

// Update modifies the scheduling fields of an existing profile.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE profiles SET title = :title, phone = :phone, date_of_birth = :date_of_birth, gender = :gender,
		proficiency = :proficiency, notes = :notes, is_volunteer = :is_volunteer, is_intern = :is_intern, is_teacher = :is_teacher,
		updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Delete removes a profile, releasing any appointments it holds. The
// identity record stays; only the scheduling half goes away.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete profile: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE appointments SET profile_id = NULL, updated_at = $2 WHERE profile_id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("release profile appointments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete profile: %w", err)
	}
	return nil
}
