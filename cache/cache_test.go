package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadCache(t *testing.T) {
	store := NewStore(t.TempDir(), time.Minute)

	require.NoError(t, store.WriteCache("posts", "1", "/posts/1", []byte(`{"id":1}`)))

	body, found := store.ReadCache("posts", "1", "/posts/1")
	assert.True(t, found)
	assert.Equal(t, `{"id":1}`, string(body))

	_, found = store.ReadCache("posts", "1", "/posts/1?page=2")
	assert.False(t, found)
}

func TestReadCache_Expired(t *testing.T) {
	store := NewStore(t.TempDir(), time.Minute)
	require.NoError(t, store.WriteCache("posts", "1", "/posts/1", []byte("x")))

	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(store.GetCachePath("posts", "1", "/posts/1"), old, old))

	_, found := store.ReadCache("posts", "1", "/posts/1")
	assert.False(t, found)
}

func TestClearPost_RemovesAllVariants(t *testing.T) {
	store := NewStore(t.TempDir(), time.Minute)
	require.NoError(t, store.WriteCache("posts", "7", "/posts/7", []byte("a")))
	require.NoError(t, store.WriteCache("posts", "7", "/posts/7?page=2", []byte("b")))
	require.NoError(t, store.WriteCache("posts", "70", "/posts/70", []byte("c")))

	require.NoError(t, store.ClearPost(7))

	_, found := store.ReadCache("posts", "7", "/posts/7")
	assert.False(t, found)
	_, found = store.ReadCache("posts", "7", "/posts/7?page=2")
	assert.False(t, found)
	_, found = store.ReadCache("posts", "70", "/posts/70")
	assert.True(t, found)
}

func TestClearOldCache(t *testing.T) {
	store := NewStore(t.TempDir(), time.Minute)
	require.NoError(t, store.WriteCache("posts", "1", "/posts/1", []byte("a")))
	require.NoError(t, store.WriteCache("posts", "2", "/posts/2", []byte("b")))

	stale := store.GetCachePath("posts", "1", "/posts/1")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, store.ClearOldCache())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, found := store.ReadCache("posts", "2", "/posts/2")
	assert.True(t, found)
}

func TestClearOldCache_MissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent"), time.Minute)
	assert.NoError(t, store.ClearOldCache())
}

func TestClearOldCache_KeepsSweepingPastStaleDirs(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, time.Minute)
	require.NoError(t, store.WriteCache("posts", "1", "/posts/1", []byte("a")))

	old := time.Now().Add(-time.Hour)
	nested := filepath.Join(dir, "posts", "odd.json")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.Chtimes(nested, old, old))
	stale := store.GetCachePath("posts", "1", "/posts/1")
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, store.ClearOldCache())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(nested)
	assert.NoError(t, err)
}

func TestPostMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewStore(t.TempDir(), time.Minute)

	calls := 0
	router := gin.New()
	router.GET("/posts/:id", PostMiddleware(store), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/posts/3", nil))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/posts/3", nil))
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"id":"3"}`, w.Body.String())
	assert.Equal(t, 1, calls)

	require.NoError(t, store.ClearPost(3))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/posts/3", nil))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestPostMiddleware_SkipsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewStore(t.TempDir(), time.Minute)

	router := gin.New()
	router.GET("/posts/:id", PostMiddleware(store), func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/posts/9", nil))

	_, found := store.ReadCache("posts", "9", "/posts/9")
	assert.False(t, found)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	ctx := context.Background()

	assert.Nil(t, NewClient("", "", 0))

	data, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Close())
}
