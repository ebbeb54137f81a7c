package account

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"socialblog/common"
	"socialblog/follow"
	"socialblog/models"
	"socialblog/token"
)

const userCacheTTL = 5 * time.Minute

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

// Config carries the account settings taken from the process configuration.
type Config struct {
	AdminEmail     string
	ConfirmTTL     time.Duration
	ResetTTL       time.Duration
	ChangeEmailTTL time.Duration
}

// NewAccount is the registration input.
type NewAccount struct {
	Email     string `validate:"omitempty,email,max=64"`
	Username  string `validate:"required,max=64,username"`
	Password  string `validate:"required"`
	RoleName  string
	Confirmed bool
	Name      string `validate:"max=64"`
	Location  string `validate:"max=64"`
	AboutMe   string
}

// Profile holds the user-editable profile fields.
type Profile struct {
	Name     string `validate:"max=64"`
	Location string `validate:"max=64"`
	AboutMe  string
}

type Service struct {
	db       *gorm.DB
	tokens   *token.Codec
	graph    *follow.Graph
	hasher   Hasher
	cache    UserCache
	validate *validator.Validate
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, tokens *token.Codec, hasher Hasher, cfg Config, l *zap.Logger) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	return &Service{
		db:       db,
		tokens:   tokens,
		graph:    follow.NewGraph(db),
		hasher:   hasher,
		validate: v,
		cfg:      cfg,
		log:      l,
		now:      time.Now,
	}
}

// UserCache is the key/value store Lookup reads through. *cache.Client
// satisfies it, including a nil one.
type UserCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// WithCache makes Lookup read through c.
func (s *Service) WithCache(c UserCache) *Service {
	s.cache = c
	return s
}

// Graph exposes the follower graph the service writes self edges to.
func (s *Service) Graph() *follow.Graph {
	return s.graph
}

// Create registers an account. The role is RoleName when given, the
// administrator role when the email is the configured admin address, and the
// default role otherwise. The account follows itself on creation.
func (s *Service) Create(ctx context.Context, in NewAccount) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, newValidationError(err)
	}

	now := s.now().UTC()
	user := &models.User{
		Username:    in.Username,
		Confirmed:   in.Confirmed,
		Name:        in.Name,
		Location:    in.Location,
		AboutMe:     in.AboutMe,
		MemberSince: now,
		LastSeen:    now,
	}
	if in.Email != "" {
		email := in.Email
		user.Email = &email
		user.AvatarHash = AvatarHash(email)
	}
	if err := s.SetPassword(user, in.Password); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, user.Email, user.Username); err != nil {
			return err
		}

		role, err := s.initialRole(tx, in.RoleName, in.Email)
		if err != nil {
			return err
		}
		user.RoleID = &role.ID
		user.Role = role

		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return s.graph.WithTx(tx).Follow(ctx, user, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account created", zap.Uint("user_id", user.ID), zap.String("role", user.Role.Name))
	return user, nil
}

func checkUnique(tx *gorm.DB, email *string, username string) error {
	var count int64
	if email != nil {
		if err := tx.Model(&models.User{}).Where("email = ?", *email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
	}

	if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUsernameTaken
	}
	return nil
}

func (s *Service) initialRole(tx *gorm.DB, roleName, email string) (*models.Role, error) {
	var role models.Role
	var q *gorm.DB
	switch {
	case roleName != "":
		q = tx.Where("name = ?", roleName)
	case s.cfg.AdminEmail != "" && email == s.cfg.AdminEmail:
		q = tx.Where("permissions = ?", int(models.AllPermissions))
	default:
		q = tx.Where("is_default = ?", true)
	}

	if err := q.First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// SetPassword replaces the stored hash. The plaintext is never kept.
func (s *Service) SetPassword(user *models.User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

// VerifyPassword checks candidate against the stored hash.
func (s *Service) VerifyPassword(user *models.User, candidate string) bool {
	return CheckPassword(user.PasswordHash, candidate)
}

func (s *Service) GenerateConfirmationToken(user *models.User) (string, error) {
	return s.tokens.Generate(token.PurposeConfirm, user.ID, "", s.cfg.ConfirmTTL)
}

// userRow scopes a write to the users row with the given id. Associations
// loaded on the caller's copy are never saved back.
func userRow(tx *gorm.DB, id uint) *gorm.DB {
	return tx.Model(&models.User{ID: id}).Omit(clause.Associations)
}

// Confirm marks user confirmed if tok is a valid confirmation token for it.
// Confirming twice succeeds.
func (s *Service) Confirm(ctx context.Context, user *models.User, tok string) (bool, error) {
	claims, err := s.tokens.Verify(tok, token.PurposeConfirm)
	if err != nil || claims.UserID != user.ID {
		return false, nil
	}

	if err := userRow(s.db.WithContext(ctx), user.ID).Update("confirmed", true).Error; err != nil {
		return false, err
	}
	user.Confirmed = true
	s.invalidate(ctx, user.ID)
	return true, nil
}

func (s *Service) GenerateResetToken(user *models.User) (string, error) {
	return s.tokens.Generate(token.PurposeReset, user.ID, "", s.cfg.ResetTTL)
}

// ResetPassword sets a new password for the account named by tok. A token
// whose account no longer exists is treated as invalid.
func (s *Service) ResetPassword(ctx context.Context, tok, newPassword string) (bool, error) {
	claims, err := s.tokens.Verify(tok, token.PurposeReset)
	if err != nil {
		return false, nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.SetPassword(&user, newPassword); err != nil {
		return false, err
	}
	if err := userRow(s.db.WithContext(ctx), user.ID).Update("password_hash", user.PasswordHash).Error; err != nil {
		return false, err
	}
	s.invalidate(ctx, user.ID)
	return true, nil
}

func (s *Service) GenerateChangeEmailToken(user *models.User, newEmail string) (string, error) {
	return s.tokens.Generate(token.PurposeChangeEmail, user.ID, newEmail, s.cfg.ChangeEmailTTL)
}

// ChangeEmail applies the address carried by tok. It fails when the token is
// invalid, belongs to another account, carries no address, or the address is
// registered to a different account. The comparison is exact.
func (s *Service) ChangeEmail(ctx context.Context, user *models.User, tok string) (bool, error) {
	claims, err := s.tokens.Verify(tok, token.PurposeChangeEmail)
	if err != nil || claims.UserID != user.ID {
		return false, nil
	}
	newEmail := claims.NewEmail
	if newEmail == "" || s.validate.Var(newEmail, "email") != nil {
		return false, nil
	}

	taken := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).
			Where("email = ? AND id <> ?", newEmail, user.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			taken = true
			return nil
		}

		return userRow(tx, user.ID).Updates(map[string]interface{}{
			"email":       newEmail,
			"avatar_hash": AvatarHash(newEmail),
		}).Error
	})
	if err != nil {
		return false, err
	}
	if taken {
		return false, nil
	}

	user.Email = &newEmail
	user.AvatarHash = AvatarHash(newEmail)
	s.invalidate(ctx, user.ID)
	return true, nil
}

// Authenticate returns the account for email when password matches.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) storedCredentials(ctx context.Context, user *models.User) (*models.User, error) {
	var stored models.User
	if err := s.db.WithContext(ctx).Select("id", "password_hash").First(&stored, user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &stored, nil
}

// CheckCurrentPassword verifies password against the hash in the database.
// Users served from the cache carry no hash.
func (s *Service) CheckCurrentPassword(ctx context.Context, user *models.User, password string) (bool, error) {
	stored, err := s.storedCredentials(ctx, user)
	if err != nil {
		return false, err
	}
	return s.VerifyPassword(stored, password), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	stored, err := s.storedCredentials(ctx, user)
	if err != nil {
		return err
	}
	if !s.VerifyPassword(stored, oldPassword) {
		return ErrInvalidCredentials
	}

	if err := s.SetPassword(stored, newPassword); err != nil {
		return err
	}
	if err := userRow(s.db.WithContext(ctx), stored.ID).Update("password_hash", stored.PasswordHash).Error; err != nil {
		return err
	}
	user.PasswordHash = stored.PasswordHash
	s.invalidate(ctx, user.ID)
	return nil
}

// Ping records that the user was just seen.
func (s *Service) Ping(ctx context.Context, user *models.User) error {
	now := s.now().UTC()
	if err := userRow(s.db.WithContext(ctx), user.ID).Update("last_seen", now).Error; err != nil {
		return err
	}
	user.LastSeen = now
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, user *models.User, p Profile) error {
	if err := s.validate.Struct(p); err != nil {
		return newValidationError(err)
	}

	err := userRow(s.db.WithContext(ctx), user.ID).Updates(map[string]interface{}{
		"name":     p.Name,
		"location": p.Location,
		"about_me": p.AboutMe,
	}).Error
	if err != nil {
		return err
	}
	user.Name, user.Location, user.AboutMe = p.Name, p.Location, p.AboutMe
	s.invalidate(ctx, user.ID)
	return nil
}

// SetConfirmed sets the confirmation flag directly, bypassing tokens.
func (s *Service) SetConfirmed(ctx context.Context, user *models.User, confirmed bool) error {
	if err := userRow(s.db.WithContext(ctx), user.ID).Update("confirmed", confirmed).Error; err != nil {
		return err
	}
	user.Confirmed = confirmed
	s.invalidate(ctx, user.ID)
	return nil
}

// List returns accounts ordered by id, with roles loaded.
func (s *Service) List(ctx context.Context, page common.Page) ([]models.User, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		Order("id").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// SetRole moves user to the role called roleName.
func (s *Service) SetRole(ctx context.Context, user *models.User, roleName string) error {
	var role models.Role
	if err := s.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	if err := userRow(s.db.WithContext(ctx), user.ID).Update("role_id", role.ID).Error; err != nil {
		return err
	}
	user.RoleID = &role.ID
	user.Role = &role
	s.invalidate(ctx, user.ID)
	return nil
}

// Delete removes user with every follow edge it takes part in, its comments
// and its posts. It returns the ids of the posts whose pages changed: the
// deleted ones and those the user had commented on.
func (s *Service) Delete(ctx context.Context, user *models.User) ([]uint, error) {
	var touched []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("follower_id = ? OR followed_id = ?", user.ID, user.ID).
			Delete(&models.Follow{}).Error; err != nil {
			return fmt.Errorf("delete follows: %w", err)
		}

		authored := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", user.ID)
		if err := tx.Model(&models.Post{}).
			Where("author_id = ? OR id IN (?)", user.ID,
				tx.Model(&models.Comment{}).Select("post_id").Where("author_id = ?", user.ID)).
			Order("id").
			Pluck("id", &touched).Error; err != nil {
			return fmt.Errorf("collect posts: %w", err)
		}

		if err := tx.Where("author_id = ? OR post_id IN (?)", user.ID, authored).
			Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Where("author_id = ?", user.ID).Delete(&models.Post{}).Error; err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		if err := tx.Delete(&models.User{}, user.ID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, user.ID)
	s.log.Info("account deleted", zap.Uint("user_id", user.ID), zap.Int("posts_touched", len(touched)))
	return touched, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.findOne(ctx, s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, s.db.WithContext(ctx).Where("email = ?", email))
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, s.db.WithContext(ctx).Where("username = ?", username))
}

func (s *Service) findOne(ctx context.Context, q *gorm.DB) (*models.User, error) {
	var user models.User
	if err := q.Preload("Role").First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) cacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

// Lookup loads the user for a session. It reads through the cache when one
// is configured. The cached copy carries no password hash and no role: the
// role is read from the database on every call so permission changes apply
// at once.
func (s *Service) Lookup(ctx context.Context, id uint) (*models.User, error) {
	if s.cache != nil {
		if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
			var cached models.User
			if err := json.Unmarshal(data, &cached); err == nil {
				if err := s.loadRole(ctx, &cached); err != nil {
					return nil, err
				}
				return &cached, nil
			}
		}
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		entry := *user
		entry.Role = nil
		if payload, err := json.Marshal(&entry); err == nil {
			_ = s.cache.Set(ctx, s.cacheKey(id), payload, userCacheTTL)
		}
	}
	return user, nil
}

func (s *Service) loadRole(ctx context.Context, user *models.User) error {
	user.Role = nil
	if user.RoleID == nil {
		return nil
	}
	var role models.Role
	err := s.db.WithContext(ctx).First(&role, *user.RoleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	user.Role = &role
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uint) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, s.cacheKey(id))
	}
}

// AvatarHash is the Gravatar hash of an email address.
func AvatarHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Gravatar returns the avatar URL for user.
func Gravatar(user *models.User, size int, secure bool) string {
	base := "http://www.gravatar.com/avatar"
	if secure {
		base = "https://secure.gravatar.com/avatar"
	}
	hash := user.AvatarHash
	if hash == "" {
		hash = AvatarHash(user.EmailAddress())
	}
	return fmt.Sprintf("%s/%s?s=%d&d=identicon&r=g", base, hash, size)
}
