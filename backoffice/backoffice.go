package backoffice

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialblog/account"
	"socialblog/auth"
	"socialblog/cache"
	"socialblog/common"
	"socialblog/models"
)

// BackofficeModule holds the administrator-only account and cache tools.
type BackofficeModule struct {
	accounts *account.Service
	store    *cache.Store
	perPage  int
	log      *zap.Logger
}

func NewBackofficeModule(accounts *account.Service, store *cache.Store, perPage int, l *zap.Logger) *BackofficeModule {
	return &BackofficeModule{
		accounts: accounts,
		store:    store,
		perPage:  perPage,
		log:      l,
	}
}

func (b *BackofficeModule) RegisterRoutes(router *gin.Engine) {
	backofficeGroup := router.Group("/backoffice", auth.RequireLogin, auth.RequirePermission(models.PermAdministrator))
	{
		backofficeGroup.GET("/users", b.index)
		backofficeGroup.PUT("/users/:userID", b.editUser)
		backofficeGroup.POST("/users/:userID/validate", b.validateUser)
		backofficeGroup.DELETE("/users/:userID", b.deleteUser)
		backofficeGroup.POST("/clear-cache/:postID", b.clearPostCache)
		backofficeGroup.POST("/clear-cache", b.clearOldCache)
	}
}

type userRow struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Confirmed bool   `json:"confirmed"`
	LastSeen  string `json:"last_seen"`
}

type editUserRequest struct {
	Role      *string `json:"role"`
	Confirmed *bool   `json:"confirmed"`
	Name      *string `json:"name"`
	Location  *string `json:"location"`
	AboutMe   *string `json:"about_me"`
}

func (b *BackofficeModule) index(c *gin.Context) {
	page := common.ParsePage(c, b.perPage)
	users, total, err := b.accounts.List(c.Request.Context(), page)
	if err != nil {
		b.log.Error("list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load users"})
		return
	}

	rows := make([]userRow, len(users))
	for i, u := range users {
		rows[i] = userRow{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.EmailAddress(),
			Confirmed: u.Confirmed,
			LastSeen:  u.LastSeen.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if u.Role != nil {
			rows[i].Role = u.Role.Name
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"users": rows,
		"total": total,
		"page":  page.Number,
		"pages": page.MaxPage(total),
	})
}

func (b *BackofficeModule) loadUser(c *gin.Context) (*models.User, bool) {
	id, err := strconv.ParseUint(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return nil, false
	}

	user, err := b.accounts.Get(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			b.log.Error("load user", zap.Uint64("user_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		}
		return nil, false
	}
	return user, true
}

// editUser applies only the fields present in the request.
func (b *BackofficeModule) editUser(c *gin.Context) {
	user, ok := b.loadUser(c)
	if !ok {
		return
	}

	var req editUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	ctx := c.Request.Context()
	if req.Role != nil {
		if err := b.accounts.SetRole(ctx, user, *req.Role); err != nil {
			if errors.Is(err, account.ErrRoleNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			b.fail(c, "set role", err)
			return
		}
	}
	if req.Confirmed != nil {
		if err := b.accounts.SetConfirmed(ctx, user, *req.Confirmed); err != nil {
			b.fail(c, "set confirmed", err)
			return
		}
	}
	if req.Name != nil || req.Location != nil || req.AboutMe != nil {
		profile := account.Profile{Name: user.Name, Location: user.Location, AboutMe: user.AboutMe}
		if req.Name != nil {
			profile.Name = *req.Name
		}
		if req.Location != nil {
			profile.Location = *req.Location
		}
		if req.AboutMe != nil {
			profile.AboutMe = *req.AboutMe
		}
		if err := b.accounts.UpdateProfile(ctx, user, profile); err != nil {
			var verr *account.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
				return
			}
			b.fail(c, "update profile", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (b *BackofficeModule) validateUser(c *gin.Context) {
	user, ok := b.loadUser(c)
	if !ok {
		return
	}

	if err := b.accounts.SetConfirmed(c.Request.Context(), user, true); err != nil {
		b.fail(c, "validate user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"confirmed": user.Confirmed,
	})
}

func (b *BackofficeModule) deleteUser(c *gin.Context) {
	user, ok := b.loadUser(c)
	if !ok {
		return
	}

	if admin, _ := auth.CurrentUser(c); admin.ID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account here"})
		return
	}

	touched, err := b.accounts.Delete(c.Request.Context(), user)
	if err != nil {
		b.fail(c, "delete user", err)
		return
	}
	for _, postID := range touched {
		if err := b.store.ClearPost(postID); err != nil {
			b.log.Warn("clear post cache", zap.Uint("post_id", postID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// clearPostCache drops every cached page of one post
func (b *BackofficeModule) clearPostCache(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("postID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	if err := b.store.ClearPost(uint(id)); err != nil {
		b.fail(c, "clear post cache", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "cache cleared",
	})
}

func (b *BackofficeModule) clearOldCache(c *gin.Context) {
	if err := b.store.ClearOldCache(); err != nil {
		b.fail(c, "clear old cache", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (b *BackofficeModule) fail(c *gin.Context, op string, err error) {
	b.log.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}
