package follow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"socialblog/common"
	"socialblog/models"
)

// ErrNotPersisted is returned when an edge would reference an unsaved user.
var ErrNotPersisted = errors.New("follow: user has no id yet")

// Graph stores the directed follower edges between users.
type Graph struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGraph(db *gorm.DB) *Graph {
	return &Graph{db: db, now: time.Now}
}

// WithTx returns a Graph bound to tx.
func (g *Graph) WithTx(tx *gorm.DB) *Graph {
	return &Graph{db: tx, now: g.now}
}

// Follow adds the edge follower -> followed. An existing edge is left untouched.
func (g *Graph) Follow(ctx context.Context, follower, followed *models.User) error {
	if follower.ID == 0 || followed.ID == 0 {
		return ErrNotPersisted
	}

	edge := models.Follow{
		FollowerID: follower.ID,
		FollowedID: followed.ID,
		Timestamp:  g.now().UTC(),
	}
	err := g.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edge).Error
	if err != nil {
		return fmt.Errorf("follow %d -> %d: %w", follower.ID, followed.ID, err)
	}
	return nil
}

// Unfollow removes the edge follower -> followed if it exists.
func (g *Graph) Unfollow(ctx context.Context, follower, followed *models.User) error {
	if follower.ID == 0 || followed.ID == 0 {
		return nil
	}

	err := g.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", follower.ID, followed.ID).
		Delete(&models.Follow{}).Error
	if err != nil {
		return fmt.Errorf("unfollow %d -> %d: %w", follower.ID, followed.ID, err)
	}
	return nil
}

// IsFollowing reports whether user follows target.
func (g *Graph) IsFollowing(ctx context.Context, user, target *models.User) (bool, error) {
	if user.ID == 0 || target.ID == 0 {
		return false, nil
	}
	return g.exists(ctx, user.ID, target.ID)
}

// IsFollowedBy reports whether other follows user.
func (g *Graph) IsFollowedBy(ctx context.Context, user, other *models.User) (bool, error) {
	if user.ID == 0 || other.ID == 0 {
		return false, nil
	}
	return g.exists(ctx, other.ID, user.ID)
}

func (g *Graph) exists(ctx context.Context, followerID, followedID uint) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FollowersCount counts edges pointing at user, the self edge included.
func (g *Graph) FollowersCount(ctx context.Context, user *models.User) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followed_id = ?", user.ID).
		Count(&count).Error
	return count, err
}

// FollowedCount counts edges leaving user, the self edge included.
func (g *Graph) FollowedCount(ctx context.Context, user *models.User) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", user.ID).
		Count(&count).Error
	return count, err
}

// Followers lists the edges pointing at user, newest first, with Follower loaded.
func (g *Graph) Followers(ctx context.Context, user *models.User, page common.Page) ([]models.Follow, int64, error) {
	return g.edges(ctx, "followed_id", user.ID, "Follower", page)
}

// Followed lists the edges leaving user, newest first, with Followed loaded.
func (g *Graph) Followed(ctx context.Context, user *models.User, page common.Page) ([]models.Follow, int64, error) {
	return g.edges(ctx, "follower_id", user.ID, "Followed", page)
}

func (g *Graph) edges(ctx context.Context, column string, userID uint, preload string, page common.Page) ([]models.Follow, int64, error) {
	var total int64
	if err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where(column+" = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var edges []models.Follow
	err := g.db.WithContext(ctx).
		Preload(preload).
		Where(column+" = ?", userID).
		Order("timestamp DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&edges).Error
	if err != nil {
		return nil, 0, err
	}
	return edges, total, nil
}

func (g *Graph) followedPostsQuery(ctx context.Context, user *models.User) *gorm.DB {
	return g.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN follows ON follows.followed_id = posts.author_id").
		Where("follows.follower_id = ?", user.ID)
}

// FollowedPosts returns posts written by anyone user follows, newest first.
// The self edge puts the user's own posts in the feed.
func (g *Graph) FollowedPosts(ctx context.Context, user *models.User, page common.Page) ([]models.Post, int64, error) {
	var total int64
	if err := g.followedPostsQuery(ctx, user).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []models.Post
	err := g.followedPostsQuery(ctx, user).
		Preload("Author").
		Order("posts.timestamp DESC").
		Order("posts.id DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// AddSelfFollows gives every user lacking one its self edge and returns how many were added.
func (g *Graph) AddSelfFollows(ctx context.Context) (int, error) {
	var ids []uint
	err := g.db.WithContext(ctx).Model(&models.User{}).
		Where("id NOT IN (?)", g.db.Model(&models.Follow{}).
			Select("follower_id").
			Where("follower_id = followed_id")).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find users without self follow: %w", err)
	}

	for _, id := range ids {
		user := &models.User{ID: id}
		if err := g.Follow(ctx, user, user); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
