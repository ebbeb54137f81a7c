package auth

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialblog/account"
	"socialblog/models"
)

const (
	principalKey  = "principal"
	sessionUserID = "user_id"
)

// LoadPrincipal resolves the session to a Principal and records the visit.
// Every later handler can rely on CurrentPrincipal.
func LoadPrincipal(accounts *account.Service, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := userIDFromSession(session)
		if !ok {
			c.Set(principalKey, account.Anonymous())
			c.Next()
			return
		}

		user, err := accounts.Lookup(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				session.Delete(sessionUserID)
				_ = session.Save()
			} else {
				l.Error("load session user", zap.Uint("user_id", id), zap.Error(err))
			}
			c.Set(principalKey, account.Anonymous())
			c.Next()
			return
		}

		if err := accounts.Ping(c.Request.Context(), user); err != nil {
			l.Warn("update last seen", zap.Uint("user_id", id), zap.Error(err))
		}

		c.Set(principalKey, account.Authenticated(user))
		c.Next()
	}
}

func userIDFromSession(session sessions.Session) (uint, bool) {
	switch v := session.Get(sessionUserID).(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	}
	return 0, false
}

// CurrentPrincipal returns the principal set by LoadPrincipal, or Anonymous.
func CurrentPrincipal(c *gin.Context) account.Principal {
	if v, exists := c.Get(principalKey); exists {
		if p, ok := v.(account.Principal); ok {
			return p
		}
	}
	return account.Anonymous()
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	return CurrentPrincipal(c).User()
}

func RequireLogin(c *gin.Context) {
	if CurrentPrincipal(c).IsAnonymous() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		return
	}
	c.Next()
}

// RequireConfirmed holds back authenticated users who have not confirmed
// their account. Anonymous requests pass through.
func RequireConfirmed(c *gin.Context) {
	if user, ok := CurrentUser(c); ok && !user.Confirmed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":    "account not confirmed",
			"redirect": "/auth/unconfirmed",
		})
		return
	}
	c.Next()
}

func RequirePermission(perm models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentPrincipal(c).Can(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Route guards for the common permissions.
var (
	CanFollow   = RequirePermission(models.PermFollow)
	CanComment  = RequirePermission(models.PermComment)
	CanWrite    = RequirePermission(models.PermWriteArticles)
	CanModerate = RequirePermission(models.PermModerateComments)
)
