package follow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"socialblog/common"
	"socialblog/database"
	"socialblog/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.RunMigrations(db, zap.NewNop()))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{Username: username}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createPost(t *testing.T, db *gorm.DB, author *models.User, body string, ts time.Time) models.Post {
	post := models.Post{AuthorID: author.ID, Timestamp: ts}
	post.SetBody(body)
	require.NoError(t, db.Create(&post).Error)
	return post
}

func TestFollowUnfollow(t *testing.T) {
	db := setupTestDB(t)
	g := NewGraph(db)
	ctx := context.Background()
	u1 := createUser(t, db, "john")
	u2 := createUser(t, db, "susan")

	following, err := g.IsFollowing(ctx, u1, u2)
	require.NoError(t, err)
	assert.False(t, following)

	require.NoError(t, g.Follow(ctx, u1, u2))
	require.NoError(t, g.Follow(ctx, u1, u2))

	var count int64
	db.Model(&models.Follow{}).Count(&count)
	assert.Equal(t, int64(1), count, "following twice keeps one edge")

	following, _ = g.IsFollowing(ctx, u1, u2)
	assert.True(t, following)
	following, _ = g.IsFollowing(ctx, u2, u1)
	assert.False(t, following)
	followedBy, _ := g.IsFollowedBy(ctx, u2, u1)
	assert.True(t, followedBy)

	require.NoError(t, g.Unfollow(ctx, u1, u2))
	require.NoError(t, g.Unfollow(ctx, u1, u2))

	following, _ = g.IsFollowing(ctx, u1, u2)
	assert.False(t, following)
}

func TestUnsavedUsers(t *testing.T) {
	db := setupTestDB(t)
	g := NewGraph(db)
	ctx := context.Background()
	saved := createUser(t, db, "john")
	unsaved := &models.User{Username: "ghost"}

	following, err := g.IsFollowing(ctx, unsaved, saved)
	require.NoError(t, err)
	assert.False(t, following)

	followedBy, err := g.IsFollowedBy(ctx, saved, unsaved)
	require.NoError(t, err)
	assert.False(t, followedBy)

	assert.ErrorIs(t, g.Follow(ctx, saved, unsaved), ErrNotPersisted)
	assert.NoError(t, g.Unfollow(ctx, saved, unsaved))
}

func TestCountsAndLists(t *testing.T) {
	db := setupTestDB(t)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGraph(db)
	g.now = func() time.Time { return clock }
	ctx := context.Background()

	target := createUser(t, db, "target")
	require.NoError(t, g.Follow(ctx, target, target))
	for _, name := range []string{"a", "b", "c"} {
		clock = clock.Add(time.Minute)
		require.NoError(t, g.Follow(ctx, createUser(t, db, name), target))
	}

	count, err := g.FollowersCount(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	count, err = g.FollowedCount(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	edges, total, err := g.Followers(ctx, target, common.Page{Number: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, edges, 2)
	assert.Equal(t, "c", edges[0].Follower.Username)
	assert.Equal(t, "b", edges[1].Follower.Username)

	edges, _, err = g.Followers(ctx, target, common.Page{Number: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "a", edges[0].Follower.Username)
	assert.Equal(t, "target", edges[1].Follower.Username)

	edges, total, err = g.Followed(ctx, target, common.Page{Number: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, edges, 1)
	assert.Equal(t, "target", edges[0].Followed.Username)
}

func TestFollowedPosts(t *testing.T) {
	db := setupTestDB(t)
	g := NewGraph(db)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	john := createUser(t, db, "john")
	susan := createUser(t, db, "susan")
	david := createUser(t, db, "david")
	for _, u := range []*models.User{john, susan, david} {
		require.NoError(t, g.Follow(ctx, u, u))
	}
	require.NoError(t, g.Follow(ctx, john, susan))

	createPost(t, db, john, "mine", base)
	createPost(t, db, susan, "hers", base.Add(time.Hour))
	createPost(t, db, david, "his", base.Add(2*time.Hour))

	posts, total, err := g.FollowedPosts(ctx, john, common.Page{Number: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, posts, 2)
	assert.Equal(t, "hers", posts[0].Body)
	assert.Equal(t, "susan", posts[0].Author.Username)
	assert.Equal(t, "mine", posts[1].Body)

	require.NoError(t, g.Unfollow(ctx, john, susan))
	posts, total, err = g.FollowedPosts(ctx, john, common.Page{Number: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, posts, 1)
	assert.Equal(t, "mine", posts[0].Body)
}

func TestAddSelfFollows(t *testing.T) {
	db := setupTestDB(t)
	g := NewGraph(db)
	ctx := context.Background()

	john := createUser(t, db, "john")
	createUser(t, db, "susan")
	require.NoError(t, g.Follow(ctx, john, john))

	added, err := g.AddSelfFollows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = g.AddSelfFollows(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	var selfEdges int64
	db.Model(&models.Follow{}).Where("follower_id = followed_id").Count(&selfEdges)
	assert.Equal(t, int64(2), selfEdges)
}

func TestWithTx_RollsBack(t *testing.T) {
	db := setupTestDB(t)
	g := NewGraph(db)
	ctx := context.Background()
	john := createUser(t, db, "john")

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, g.WithTx(tx).Follow(ctx, john, john))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	following, err := g.IsFollowing(ctx, john, john)
	require.NoError(t, err)
	assert.False(t, following)
}
