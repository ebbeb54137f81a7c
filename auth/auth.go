package auth

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialblog/account"
	"socialblog/email"
)

type AuthModule struct {
	accounts *account.Service
	notifier *email.Notifier
	limiter  *RateLimiter
	log      *zap.Logger
}

func NewAuthModule(accounts *account.Service, notifier *email.Notifier, limiter *RateLimiter, l *zap.Logger) *AuthModule {
	return &AuthModule{
		accounts: accounts,
		notifier: notifier,
		limiter:  limiter,
		log:      l,
	}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	limited := a.limiter.Handler()

	group := router.Group("/auth")
	{
		group.POST("/register", limited, a.register)
		group.POST("/login", limited, a.login)
		group.POST("/logout", RequireLogin, a.logout)
		group.GET("/unconfirmed", RequireLogin, a.unconfirmed)
		group.GET("/confirm/:token", RequireLogin, a.confirm)
		group.POST("/confirm", RequireLogin, limited, a.resendConfirmation)
		group.POST("/change-password", RequireLogin, a.changePassword)
		group.POST("/reset", limited, a.resetPasswordRequest)
		group.POST("/reset/:token", a.resetPassword)
		group.POST("/change-email", RequireLogin, limited, a.changeEmailRequest)
		group.GET("/change-email/:token", RequireLogin, a.changeEmail)
	}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password2" binding:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Password2   string `json:"password2" binding:"required,eqfield=Password"`
}

type resetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password2" binding:"required,eqfield=Password"`
}

type changeEmailRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (a *AuthModule) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	ctx := c.Request.Context()
	user, err := a.accounts.Create(ctx, account.NewAccount{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		a.respondError(c, err)
		return
	}

	tok, err := a.accounts.GenerateConfirmationToken(user)
	if err != nil {
		a.log.Error("generate confirmation token", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create confirmation token"})
		return
	}
	if err := a.notifier.SendConfirmation(ctx, user.EmailAddress(), user.Username, tok); err != nil {
		a.log.Error("send confirmation email", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	if err := a.notifier.SendNewUser(ctx, user.Username); err != nil {
		a.log.Warn("send new user notice", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "A confirmation email has been sent to you by email.",
		"user":    user,
	})
}

func (a *AuthModule) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	user, err := a.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserID, user.ID)
	if err := session.Save(); err != nil {
		a.log.Error("save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *AuthModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		a.log.Error("save session", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out."})
}

func (a *AuthModule) unconfirmed(c *gin.Context) {
	user, _ := CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"confirmed": user.Confirmed,
		"email":     user.EmailAddress(),
	})
}

func (a *AuthModule) confirm(c *gin.Context) {
	user, _ := CurrentUser(c)
	if user.Confirmed {
		c.JSON(http.StatusOK, gin.H{"message": "Account already confirmed."})
		return
	}

	ok, err := a.accounts.Confirm(c.Request.Context(), user, c.Param("token"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The confirmation link is invalid or has expired."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have confirmed your account. Thanks!"})
}

func (a *AuthModule) resendConfirmation(c *gin.Context) {
	user, _ := CurrentUser(c)
	if user.Confirmed {
		c.JSON(http.StatusOK, gin.H{"message": "Account already confirmed."})
		return
	}

	tok, err := a.accounts.GenerateConfirmationToken(user)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.notifier.SendConfirmation(c.Request.Context(), user.EmailAddress(), user.Username, tok); err != nil {
		a.log.Error("send confirmation email", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send email"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "A new confirmation email has been sent to you by email."})
}

func (a *AuthModule) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	user, _ := CurrentUser(c)
	if err := a.accounts.ChangePassword(c.Request.Context(), user, req.OldPassword, req.Password); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been updated."})
}

// resetPasswordRequest answers the same way whether or not the address is
// registered.
func (a *AuthModule) resetPasswordRequest(c *gin.Context) {
	if !CurrentPrincipal(c).IsAnonymous() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already logged in"})
		return
	}

	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	ctx := c.Request.Context()
	user, err := a.accounts.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		tok, err := a.accounts.GenerateResetToken(user)
		if err != nil {
			a.respondError(c, err)
			return
		}
		if err := a.notifier.SendPasswordReset(ctx, user.EmailAddress(), user.Username, tok); err != nil {
			a.log.Error("send reset email", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	case !errors.Is(err, account.ErrNotFound):
		a.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "An email with instructions to reset your password has been sent to you."})
}

func (a *AuthModule) resetPassword(c *gin.Context) {
	if !CurrentPrincipal(c).IsAnonymous() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already logged in"})
		return
	}

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	ok, err := a.accounts.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The reset link is invalid or has expired."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been updated."})
}

func (a *AuthModule) changeEmailRequest(c *gin.Context) {
	var req changeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	ctx := c.Request.Context()
	user, _ := CurrentUser(c)
	valid, err := a.accounts.CheckCurrentPassword(ctx, user, req.Password)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if !valid {
		a.respondError(c, account.ErrInvalidCredentials)
		return
	}

	tok, err := a.accounts.GenerateChangeEmailToken(user, req.Email)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.notifier.SendChangeEmail(ctx, req.Email, user.Username, tok); err != nil {
		a.log.Error("send change email", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send email"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "An email with instructions to confirm your new email address has been sent to you."})
}

func (a *AuthModule) changeEmail(c *gin.Context) {
	user, _ := CurrentUser(c)
	ok, err := a.accounts.ChangeEmail(c.Request.Context(), user, c.Param("token"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your email address has been updated.", "user": user})
}

func (a *AuthModule) respondError(c *gin.Context, err error) {
	var verr *account.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, account.ErrEmailTaken), errors.Is(err, account.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, account.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		a.log.Error("auth request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
