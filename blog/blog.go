package blog

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
	"socialblog/follow"
	"socialblog/models"
)

type BlogModule struct {
	posts    *Service
	accounts *account.Service
	graph    *follow.Graph
	store    *cache.Store
	pages    common.PaginationConfig
	log      *zap.Logger
}

func NewBlogModule(posts *Service, accounts *account.Service, store *cache.Store, pages common.PaginationConfig, l *zap.Logger) *BlogModule {
	return &BlogModule{
		posts:    posts,
		accounts: accounts,
		graph:    accounts.Graph(),
		store:    store,
		pages:    pages,
		log:      l,
	}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/", auth.RequireConfirmed)
	{
		group.GET("/", b.index)
		group.GET("/feed", auth.RequireLogin, b.feed)
		group.GET("/posts", b.listPosts)
		group.POST("/posts", auth.RequireLogin, auth.CanWrite, b.createPost)
		group.GET("/posts/:id", cache.PostMiddleware(b.store), b.post)
		group.PUT("/posts/:id", auth.RequireLogin, b.updatePost)
		group.POST("/posts/:id/comments", auth.RequireLogin, auth.CanComment, b.addComment)

		group.GET("/moderate", auth.RequireLogin, auth.CanModerate, b.moderate)
		group.POST("/moderate/:id/enable", auth.RequireLogin, auth.CanModerate, b.moderateEnable)
		group.POST("/moderate/:id/disable", auth.RequireLogin, auth.CanModerate, b.moderateDisable)

		group.GET("/users/:username", b.user)
		group.GET("/users/:username/followers", b.followers)
		group.GET("/users/:username/followed", b.followed)
		group.PUT("/profile", auth.RequireLogin, b.editProfile)
		group.POST("/follow/:username", auth.RequireLogin, auth.CanFollow, b.follow)
		group.POST("/unfollow/:username", auth.RequireLogin, auth.CanFollow, b.unfollow)
	}
}

type bodyRequest struct {
	Body string `json:"body" binding:"required"`
}

type profileRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	AboutMe  string `json:"about_me"`
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func pageBody(page common.Page, total int64) gin.H {
	return gin.H{
		"page":     page.Number,
		"per_page": page.PerPage,
		"total":    total,
		"pages":    page.MaxPage(total),
	}
}

// index shows the followed feed when a logged-in user has chosen it with the
// show_followed cookie, and every post otherwise.
func (b *BlogModule) index(c *gin.Context) {
	if _, ok := auth.CurrentUser(c); ok {
		if v, err := c.Cookie("show_followed"); err == nil && v == "1" {
			b.feed(c)
			return
		}
	}
	b.listPosts(c)
}

func (b *BlogModule) listPosts(c *gin.Context) {
	page := common.ParsePage(c, b.pages.Posts)
	posts, total, err := b.posts.ListPosts(c.Request.Context(), page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	resp := pageBody(page, total)
	resp["posts"] = newPostViews(posts)
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) feed(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	page := common.ParsePage(c, b.pages.Posts)
	posts, total, err := b.graph.FollowedPosts(c.Request.Context(), user, page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	resp := pageBody(page, total)
	resp["posts"] = newPostViews(posts)
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) createPost(c *gin.Context) {
	var req bodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	post, err := b.posts.CreatePost(c.Request.Context(), auth.CurrentPrincipal(c), req.Body)
	if err != nil {
		b.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": newPostView(post)})
}

// post renders one post with a page of its comments. The response does not
// depend on who asks, so it can be served from the page cache.
func (b *BlogModule) post(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	post, err := b.posts.GetPost(ctx, id)
	if err != nil {
		b.respondError(c, err)
		return
	}

	page := common.ParsePage(c, b.pages.Comments)
	comments, total, err := b.posts.ListComments(ctx, post.ID, page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	resp := pageBody(page, total)
	resp["post"] = newPostView(post)
	resp["comments"] = newCommentViews(comments, false)
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) updatePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req bodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	post, err := b.posts.UpdatePost(c.Request.Context(), auth.CurrentPrincipal(c), id, req.Body)
	if err != nil {
		b.respondError(c, err)
		return
	}
	b.clearPost(post.ID)
	c.JSON(http.StatusOK, gin.H{"post": newPostView(post)})
}

func (b *BlogModule) addComment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req bodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	comment, err := b.posts.AddComment(c.Request.Context(), auth.CurrentPrincipal(c), id, req.Body)
	if err != nil {
		b.respondError(c, err)
		return
	}
	b.clearPost(id)
	c.JSON(http.StatusCreated, gin.H{"comment": newCommentView(comment, true)})
}

func (b *BlogModule) moderate(c *gin.Context) {
	page := common.ParsePage(c, b.pages.Comments)
	comments, total, err := b.posts.ModerationQueue(c.Request.Context(), auth.CurrentPrincipal(c), page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	resp := pageBody(page, total)
	resp["comments"] = newCommentViews(comments, true)
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) moderateEnable(c *gin.Context) {
	b.setDisabled(c, false)
}

func (b *BlogModule) moderateDisable(c *gin.Context) {
	b.setDisabled(c, true)
}

func (b *BlogModule) setDisabled(c *gin.Context, disabled bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	comment, err := b.posts.SetCommentDisabled(c.Request.Context(), auth.CurrentPrincipal(c), id, disabled)
	if err != nil {
		b.respondError(c, err)
		return
	}
	b.clearPost(comment.PostID)
	c.JSON(http.StatusOK, gin.H{"id": comment.ID, "disabled": comment.Disabled})
}

func (b *BlogModule) lookupUser(c *gin.Context) (*models.User, bool) {
	user, err := b.accounts.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invalid user."})
		} else {
			b.respondError(c, err)
		}
		return nil, false
	}
	return user, true
}

func (b *BlogModule) user(c *gin.Context) {
	user, ok := b.lookupUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	view := profileView{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Location:    user.Location,
		AboutMe:     user.AboutMe,
		MemberSince: user.MemberSince,
		LastSeen:    user.LastSeen,
		Avatar:      account.Gravatar(user, 256, true),
	}
	if user.Role != nil {
		view.Role = user.Role.Name
	}

	var err error
	if view.Followers, err = b.graph.FollowersCount(ctx, user); err != nil {
		b.respondError(c, err)
		return
	}
	if view.Followed, err = b.graph.FollowedCount(ctx, user); err != nil {
		b.respondError(c, err)
		return
	}
	if viewer, ok := auth.CurrentUser(c); ok {
		if view.IsFollowing, err = b.graph.IsFollowing(ctx, viewer, user); err != nil {
			b.respondError(c, err)
			return
		}
		if view.IsFollowedBy, err = b.graph.IsFollowedBy(ctx, viewer, user); err != nil {
			b.respondError(c, err)
			return
		}
	}

	page := common.ParsePage(c, b.pages.Posts)
	posts, total, err := b.posts.UserPosts(ctx, user, page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	resp := pageBody(page, total)
	resp["user"] = view
	resp["posts"] = newPostViews(posts)
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) followers(c *gin.Context) {
	user, ok := b.lookupUser(c)
	if !ok {
		return
	}

	page := common.ParsePage(c, b.pages.Followers)
	edges, total, err := b.graph.Followers(c.Request.Context(), user, page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	follows := make([]followView, 0, len(edges))
	for i := range edges {
		follows = append(follows, followView{User: newAuthorView(&edges[i].Follower), Timestamp: edges[i].Timestamp})
	}
	resp := pageBody(page, total)
	resp["follows"] = follows
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) followed(c *gin.Context) {
	user, ok := b.lookupUser(c)
	if !ok {
		return
	}

	page := common.ParsePage(c, b.pages.Followers)
	edges, total, err := b.graph.Followed(c.Request.Context(), user, page)
	if err != nil {
		b.respondError(c, err)
		return
	}

	follows := make([]followView, 0, len(edges))
	for i := range edges {
		follows = append(follows, followView{User: newAuthorView(&edges[i].Followed), Timestamp: edges[i].Timestamp})
	}
	resp := pageBody(page, total)
	resp["follows"] = follows
	c.JSON(http.StatusOK, resp)
}

func (b *BlogModule) editProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	user, _ := auth.CurrentUser(c)
	err := b.accounts.UpdateProfile(c.Request.Context(), user, account.Profile{
		Name:     req.Name,
		Location: req.Location,
		AboutMe:  req.AboutMe,
	})
	if err != nil {
		b.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your profile has been updated."})
}

func (b *BlogModule) follow(c *gin.Context) {
	target, ok := b.lookupUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	user, _ := auth.CurrentUser(c)
	following, err := b.graph.IsFollowing(ctx, user, target)
	if err != nil {
		b.respondError(c, err)
		return
	}
	if following {
		c.JSON(http.StatusOK, gin.H{"message": "You are already following this user."})
		return
	}

	if err := b.graph.Follow(ctx, user, target); err != nil {
		b.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You are now following " + target.Username + "."})
}

func (b *BlogModule) unfollow(c *gin.Context) {
	target, ok := b.lookupUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	user, _ := auth.CurrentUser(c)
	following, err := b.graph.IsFollowing(ctx, user, target)
	if err != nil {
		b.respondError(c, err)
		return
	}
	if !following {
		c.JSON(http.StatusOK, gin.H{"message": "You are not following this user."})
		return
	}

	if err := b.graph.Unfollow(ctx, user, target); err != nil {
		b.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You are not following " + target.Username + " anymore."})
}

func (b *BlogModule) clearPost(id uint) {
	if err := b.store.ClearPost(id); err != nil {
		b.log.Warn("clear post cache", zap.Uint("post_id", id), zap.Error(err))
	}
}

func (b *BlogModule) respondError(c *gin.Context, err error) {
	var verr *account.ValidationError
	switch {
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound), errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEmptyBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	default:
		b.log.Error("blog request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
