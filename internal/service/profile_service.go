package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/reuseworks/volsched-api/internal/models"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

// phonePattern accepts digits and spaces, starting with a digit.
var phonePattern = regexp.MustCompile(`^[0-9][0-9 ]+$`)

type profileRepository interface {
	List(ctx context.Context, filter models.ProfileFilter) ([]models.ProfileDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ProfileDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.ProfileDetail, error)
	Create(ctx context.Context, user *models.User, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
}

type userChecker interface {
	ExistsByUsername(ctx context.Context, username, excludeID string) (bool, error)
}

// CreateProfileRequest creates a profile together with its identity
// record. Password is the only optional field: leaving it empty
// creates an account that exists but cannot log in.
type CreateProfileRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Password    string `json:"password" validate:"omitempty,min=8"`
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Title       string `json:"title" validate:"omitempty"`
	Phone       string `json:"phone" validate:"required,phone"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
	Gender      string `json:"gender" validate:"required"`
	Proficiency string `json:"proficiency" validate:"required"`
	Notes       string `json:"notes" validate:"required"`
	IsVolunteer bool   `json:"is_volunteer"`
	IsIntern    bool   `json:"is_intern"`
	IsTeacher   bool   `json:"is_teacher"`
}

// UpdateProfileRequest edits the scheduling attributes of a profile.
// Identity fields are not editable through this surface.
type UpdateProfileRequest struct {
	Title       *string `json:"title"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"date_of_birth"`
	Gender      *string `json:"gender"`
	Proficiency *string `json:"proficiency"`
	Notes       *string `json:"notes"`
	IsVolunteer *bool   `json:"is_volunteer"`
	IsIntern    *bool   `json:"is_intern"`
	IsTeacher   *bool   `json:"is_teacher"`
}

// ProfileService manages bookable people and their identity records.
type ProfileService struct {
	repo      profileRepository
	users     userChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs a ProfileService.
func NewProfileService(repo profileRepository, users userChecker, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &ProfileService{repo: repo, users: users, validator: v, logger: logger}
}

// List returns profiles with identity fields plus pagination data.
func (s *ProfileService) List(ctx context.Context, filter models.ProfileFilter) ([]models.ProfileDetail, *models.Pagination, error) {
	profiles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return profiles, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a profile by id.
func (s *ProfileService) Get(ctx context.Context, id string) (*models.ProfileDetail, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Create builds the identity record and the profile in one
// transaction. An empty password is stored as an empty hash, so the
// account exists without being able to authenticate.
func (s *ProfileService) Create(ctx context.Context, req CreateProfileRequest) (*models.ProfileDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	title := models.TitleNone
	if req.Title != "" {
		title = models.Title(req.Title)
		if !title.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown title")
		}
	}
	gender := models.Gender(req.Gender)
	if !gender.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown gender")
	}
	proficiency := models.ProficiencyLevel(req.Proficiency)
	if !proficiency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown proficiency level")
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_birth must be YYYY-MM-DD")
	}

	taken, err := s.users.ExistsByUsername(ctx, req.Username, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	}

	passwordHash := ""
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		passwordHash = string(hashed)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.RoleVolunteer,
		Active:       true,
	}
	phone := req.Phone
	profile := &models.Profile{
		Title:       title,
		Phone:       &phone,
		DateOfBirth: &dob,
		Gender:      gender,
		Proficiency: proficiency,
		Notes:       req.Notes,
		IsVolunteer: req.IsVolunteer,
		IsIntern:    req.IsIntern,
		IsTeacher:   req.IsTeacher,
	}
	if err := s.repo.Create(ctx, user, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}

	s.logger.Info("profile created",
		zap.String("profile_id", profile.ID),
		zap.String("username", user.Username),
		zap.Bool("can_authenticate", user.CanAuthenticate()),
	)

	return &models.ProfileDetail{
		Profile:   *profile,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// Update edits a profile's scheduling attributes.
func (s *ProfileService) Update(ctx context.Context, id string, req UpdateProfileRequest) (*models.ProfileDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := &detail.Profile

	if req.Title != nil {
		title := models.Title(*req.Title)
		if !title.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown title")
		}
		profile.Title = title
	}
	if req.Phone != nil {
		if !phonePattern.MatchString(*req.Phone) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "phone must contain only digits and spaces")
		}
		profile.Phone = req.Phone
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse("2006-01-02", *req.DateOfBirth)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_birth must be YYYY-MM-DD")
		}
		profile.DateOfBirth = &dob
	}
	if req.Gender != nil {
		gender := models.Gender(*req.Gender)
		if !gender.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown gender")
		}
		profile.Gender = gender
	}
	if req.Proficiency != nil {
		proficiency := models.ProficiencyLevel(*req.Proficiency)
		if !proficiency.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown proficiency level")
		}
		profile.Proficiency = proficiency
	}
	if req.Notes != nil {
		profile.Notes = *req.Notes
	}
	if req.IsVolunteer != nil {
		profile.IsVolunteer = *req.IsVolunteer
	}
	if req.IsIntern != nil {
		profile.IsIntern = *req.IsIntern
	}
	if req.IsTeacher != nil {
		profile.IsTeacher = *req.IsTeacher
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return detail, nil
}

// Delete removes a profile, releasing any appointments it holds. The
// identity record is kept.
func (s *ProfileService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete profile")
	}
	s.logger.Info("profile deleted", zap.String("profile_id", id))
	return nil
}
