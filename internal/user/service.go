package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"markit/internal/auth"
	"markit/internal/httpapi"
	"markit/internal/stats"
)

// Store is the persistence surface the user service needs.
type Store interface {
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
	DeleteCascade(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]User, int, error)
	Counts(ctx context.Context, id string) (subjects, lectures int, err error)
	UpdateAttendanceGoal(ctx context.Context, id string, goal int) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ListFilter narrows and pages the admin user listing.
type ListFilter struct {
	Search string
	Page   int
	Limit  int
}

// TokenConfig carries what the service needs to mint JWTs.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service owns accounts: registration, login, profile, preferences, the
// attendance goal and account deletion.
type Service struct {
	store  Store
	engine *stats.Engine
	tokens TokenConfig
	now    func() time.Time
}

// NewService wires the user service.
func NewService(store Store, engine *stats.Engine, tokens TokenConfig) *Service {
	return &Service{store: store, engine: engine, tokens: tokens, now: time.Now}
}

// RegisterInput is the signup payload.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns it with a fresh token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, auth.TokenPair, error) {
	var fields []httpapi.FieldError
	if in.Name == "" {
		fields = append(fields, httpapi.FieldError{Field: "name", Message: "Name is required"})
	} else if len(in.Name) > 50 {
		fields = append(fields, httpapi.FieldError{Field: "name", Message: "Name cannot exceed 50 characters"})
	}
	if !emailRe.MatchString(in.Email) {
		fields = append(fields, httpapi.FieldError{Field: "email", Message: "Please enter a valid email"})
	}
	if len(in.Password) < 6 {
		fields = append(fields, httpapi.FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if len(fields) > 0 {
		return nil, auth.TokenPair{}, httpapi.Validationf("Validation failed", fields...)
	}

	existing, err := s.store.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("user lookup failed", err)
	}
	if existing != nil {
		return nil, auth.TokenPair{}, httpapi.Conflictf("User with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("password hash failed", err)
	}

	now := s.now().UTC()
	u := &User{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   string(hash),
		Role:           RoleStudent,
		Preferences:    DefaultPreferences(),
		AttendanceGoal: 75,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("user insert failed", err)
	}

	pair, err := auth.Issue(u.ID, u.Role, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.AccessTTL, s.tokens.RefreshTTL)
	if err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("token issue failed", err)
	}
	return u, pair, nil
}

// Login checks credentials and returns the user with a fresh token pair.
// Unknown email, wrong password and deactivated accounts all return the same
// message.
func (s *Service) Login(ctx context.Context, email, password string) (*User, auth.TokenPair, error) {
	if email == "" || password == "" {
		return nil, auth.TokenPair{}, httpapi.Validationf("Email and password are required")
	}

	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("user lookup failed", err)
	}
	if u == nil || !u.IsActive {
		return nil, auth.TokenPair{}, httpapi.Authf("Invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, auth.TokenPair{}, httpapi.Authf("Invalid credentials")
	}

	now := s.now().UTC()
	if err := s.store.RecordLogin(ctx, u.ID, now); err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("login record failed", err)
	}
	u.LastLogin = &now
	u.LoginCount++

	pair, err := auth.Issue(u.ID, u.Role, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.AccessTTL, s.tokens.RefreshTTL)
	if err != nil {
		return nil, auth.TokenPair{}, httpapi.Storef("token issue failed", err)
	}
	return u, pair, nil
}

// Profile returns the account with its subject and lecture counts.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return nil, httpapi.NotFoundf("User not found")
	}
	subjects, lectures, err := s.store.Counts(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("user counts failed", err)
	}
	u.TotalSubjects = subjects
	u.TotalLectures = lectures
	return u, nil
}

// ProfileInput carries the self-service profile fields.
type ProfileInput struct {
	Name    *string  `json:"name"`
	Profile *Profile `json:"profile"`
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return nil, httpapi.NotFoundf("User not found")
	}

	if in.Name != nil {
		if *in.Name == "" || len(*in.Name) > 50 {
			return nil, httpapi.Validationf("Name must be between 1 and 50 characters")
		}
		u.Name = *in.Name
	}
	if in.Profile != nil {
		if len(in.Profile.Bio) > 500 {
			return nil, httpapi.Validationf("Bio cannot exceed 500 characters")
		}
		if in.Profile.Year != 0 && (in.Profile.Year < 1 || in.Profile.Year > 6) {
			return nil, httpapi.Validationf("Year must be between 1 and 6")
		}
		u.Profile = *in.Profile
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, u); err != nil {
		return nil, httpapi.Storef("user update failed", err)
	}
	return u, nil
}

// UpdatePreferences replaces the preference record.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs Preferences) (*User, error) {
	if !validTheme(prefs.Theme) {
		return nil, httpapi.Validationf("Theme must be light, dark, or system")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return nil, httpapi.NotFoundf("User not found")
	}
	u.Preferences = prefs
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, httpapi.Storef("user update failed", err)
	}
	return u, nil
}

// UpdateGoal sets the global attendance goal.
func (s *Service) UpdateGoal(ctx context.Context, userID string, goal int) (*User, error) {
	if goal < 0 || goal > 100 {
		return nil, httpapi.Validationf("Attendance goal must be a number between 0 and 100")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return nil, httpapi.NotFoundf("User not found")
	}
	if err := s.store.UpdateAttendanceGoal(ctx, userID, goal); err != nil {
		return nil, httpapi.Storef("goal update failed", err)
	}
	u.AttendanceGoal = goal
	return u, nil
}

// StatsView is the /users/stats response.
type StatsView struct {
	Overview        map[string]any        `json:"overview"`
	MonthlyActivity []stats.MonthActivity `json:"monthlyActivity"`
}

// Stats merges the subject summary, the all-time attendance rate and the
// last twelve months of activity.
func (s *Service) Stats(ctx context.Context, userID string) (*StatsView, error) {
	summary, err := s.engine.SubjectSummary(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	rangeStats, err := s.engine.RangeStats(ctx, userID,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), s.now())
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	activity, err := s.engine.MonthlyActivity(ctx, userID, 12)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}

	return &StatsView{
		Overview: map[string]any{
			"totalSubjects":     summary.TotalSubjects,
			"averageAttendance": summary.AverageAttendance,
			"totalLectures":     summary.TotalLectures,
			"totalAttended":     summary.TotalAttended,
			"present":           rangeStats.Present,
			"absent":            rangeStats.Absent,
			"late":              rangeStats.Late,
			"excused":           rangeStats.Excused,
			"attendanceRate":    rangeStats.AttendanceRate,
		},
		MonthlyActivity: activity,
	}, nil
}

// DeleteAccount removes the account and all its subjects and lectures after
// re-checking the password.
func (s *Service) DeleteAccount(ctx context.Context, userID, password string) error {
	if password == "" {
		return httpapi.Validationf("Password is required to delete account")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return httpapi.NotFoundf("User not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return httpapi.Authf("Incorrect password")
	}
	if err := s.store.DeleteCascade(ctx, userID); err != nil {
		return httpapi.Storef("account delete failed", err)
	}
	return nil
}

// List is the admin user listing.
func (s *Service) List(ctx context.Context, f ListFilter) ([]User, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	users, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, httpapi.Storef("user list failed", err)
	}
	return users, total, nil
}

// Get returns any user by id, for admins.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return nil, httpapi.NotFoundf("User not found")
	}
	return u, nil
}

// SetStatus activates or deactivates an account, for admins.
func (s *Service) SetStatus(ctx context.Context, id string, active bool) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, httpapi.Storef("user lookup failed", err)
	}
	if u == nil {
		return nil, httpapi.NotFoundf("User not found")
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return nil, httpapi.Storef("user update failed", err)
	}
	u.IsActive = active
	return u, nil
}
