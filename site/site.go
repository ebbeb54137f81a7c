package site

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"socialblog/models"
)

// SiteModule serves crawler-facing documents.
type SiteModule struct {
	db     *gorm.DB
	domain string
	log    *zap.Logger
}

func NewSiteModule(db *gorm.DB, domain string, l *zap.Logger) *SiteModule {
	return &SiteModule{
		db:     db,
		domain: strings.TrimSuffix(domain, "/"),
		log:    l,
	}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/sitemap.xml", s.sitemap)
}

func writeURL(b *strings.Builder, loc, changefreq, priority string, lastmod time.Time) {
	b.WriteString("  <url>\n")
	b.WriteString("    <loc>" + loc + "</loc>\n")
	if !lastmod.IsZero() {
		b.WriteString("    <lastmod>" + lastmod.UTC().Format(time.RFC3339) + "</lastmod>\n")
	}
	b.WriteString("    <changefreq>" + changefreq + "</changefreq>\n")
	b.WriteString("    <priority>" + priority + "</priority>\n")
	b.WriteString("  </url>\n")
}

// sitemap lists the public index, every post and every confirmed profile.
func (s *SiteModule) sitemap(c *gin.Context) {
	ctx := c.Request.Context()

	var posts []models.Post
	if err := s.db.WithContext(ctx).Select("id", "timestamp").Order("id").Find(&posts).Error; err != nil {
		s.log.Error("sitemap posts", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "username", "last_seen").
		Where("confirmed = ?", true).Order("id").Find(&users).Error; err != nil {
		s.log.Error("sitemap users", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")

	writeURL(&sitemap, s.domain+"/", "daily", "1.0", time.Time{})
	writeURL(&sitemap, s.domain+"/posts", "daily", "0.8", time.Time{})

	for _, post := range posts {
		writeURL(&sitemap, s.domain+"/posts/"+strconv.FormatUint(uint64(post.ID), 10), "monthly", "0.6", post.Timestamp)
	}
	for _, user := range users {
		writeURL(&sitemap, s.domain+"/users/"+url.PathEscape(user.Username), "weekly", "0.5", user.LastSeen)
	}

	sitemap.WriteString("</urlset>\n")

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, sitemap.String())
}
