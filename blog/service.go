package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"socialblog/account"
	"socialblog/common"
	"socialblog/models"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	ErrEmptyBody = errors.New("body is required")
)

// Service owns posts and comments. Permission checks happen here so every
// caller gets them, not only the HTTP handlers.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) CreatePost(ctx context.Context, p account.Principal, body string) (*models.Post, error) {
	author, ok := p.User()
	if !ok || !p.Can(models.PermWriteArticles) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	post := &models.Post{
		AuthorID:  author.ID,
		Timestamp: s.now().UTC(),
	}
	post.SetBody(body)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Author = *author
	return post, nil
}

// UpdatePost replaces the body. Only the author or an administrator may edit.
func (s *Service) UpdatePost(ctx context.Context, p account.Principal, postID uint, body string) (*models.Post, error) {
	user, ok := p.User()
	if !ok {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != user.ID && !p.IsAdministrator() {
		return nil, ErrForbidden
	}

	post.SetBody(body)
	err = s.db.WithContext(ctx).Model(post).Updates(map[string]interface{}{
		"body":      post.Body,
		"body_html": post.BodyHTML,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update post %d: %w", postID, err)
	}
	return post, nil
}

func (s *Service) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Preload("Author").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListPosts returns every post, newest first.
func (s *Service) ListPosts(ctx context.Context, page common.Page) ([]models.Post, int64, error) {
	return s.posts(ctx, s.db.WithContext(ctx).Model(&models.Post{}), page)
}

func (s *Service) UserPosts(ctx context.Context, user *models.User, page common.Page) ([]models.Post, int64, error) {
	return s.posts(ctx, s.db.WithContext(ctx).Model(&models.Post{}).Where("author_id = ?", user.ID), page)
}

func (s *Service) posts(ctx context.Context, q *gorm.DB, page common.Page) ([]models.Post, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []models.Post
	err := q.Session(&gorm.Session{}).
		Preload("Author").
		Order("timestamp DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *Service) AddComment(ctx context.Context, p account.Principal, postID uint, body string) (*models.Comment, error) {
	author, ok := p.User()
	if !ok || !p.Can(models.PermComment) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	comment := &models.Comment{
		AuthorID:  author.ID,
		PostID:    postID,
		Timestamp: s.now().UTC(),
	}
	comment.SetBody(body)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	comment.Author = *author
	return comment, nil
}

// ListComments returns the comments of a post, oldest first.
func (s *Service) ListComments(ctx context.Context, postID uint, page common.Page) ([]models.Comment, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Comment{}).Where("post_id = ?", postID)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err := q.Session(&gorm.Session{}).
		Preload("Author").
		Order("timestamp ASC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// SetCommentDisabled hides or restores a comment. Moderators only.
func (s *Service) SetCommentDisabled(ctx context.Context, p account.Principal, commentID uint, disabled bool) (*models.Comment, error) {
	if !p.Can(models.PermModerateComments) {
		return nil, ErrForbidden
	}

	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&comment).Update("disabled", disabled).Error; err != nil {
		return nil, fmt.Errorf("moderate comment %d: %w", commentID, err)
	}
	comment.Disabled = disabled
	return &comment, nil
}

// ModerationQueue lists every comment, newest first, disabled ones included.
func (s *Service) ModerationQueue(ctx context.Context, p account.Principal, page common.Page) ([]models.Comment, int64, error) {
	if !p.Can(models.PermModerateComments) {
		return nil, 0, ErrForbidden
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Comment{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").
		Order("timestamp DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}
