package models

import (
	"errors"
	"time"

	"socialblog/markup"
)

// ErrPasswordNotReadable is returned by every attempt to read a plaintext password.
var ErrPasswordNotReadable = errors.New("password is not a readable attribute")

type Role struct {
	ID          uint   `gorm:"primary_key;autoIncrement" json:"id"`
	Name        string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Default     bool   `gorm:"column:is_default;default:false;index" json:"is_default"`
	Permissions int    `json:"permissions"`
}

type User struct {
	ID           uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Email        *string   `gorm:"size:64;uniqueIndex" json:"email,omitempty"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:128" json:"-"` // json:"-" prevents the hash from being exposed in API
	RoleID       *uint     `gorm:"index" json:"role_id"`
	Role         *Role     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"role,omitempty"`
	Confirmed    bool      `gorm:"default:false" json:"confirmed"`
	Name         string    `gorm:"size:64;index" json:"name"`
	Location     string    `gorm:"size:64" json:"location"`
	AboutMe      string    `gorm:"type:text" json:"about_me"`
	MemberSince  time.Time `json:"member_since"`
	LastSeen     time.Time `json:"last_seen"`
	AvatarHash   string    `gorm:"size:32" json:"avatar_hash"`
}

// Follow is a directed edge: Follower follows Followed.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FollowedID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"followed_id"`
	Timestamp  time.Time `json:"timestamp"`
	Follower   User      `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE;" json:"-"`
	Followed   User      `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE;" json:"-"`
}

type Post struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Body      string    `gorm:"type:text" json:"body"`
	BodyHTML  string    `gorm:"type:text" json:"body_html"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"author"`
}

type Comment struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Body      string    `gorm:"type:text" json:"body"`
	BodyHTML  string    `gorm:"type:text" json:"body_html"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Disabled  bool      `gorm:"default:false" json:"disabled"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"author"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Post      Post      `gorm:"foreignKey:PostID" json:"-"`
}

// SetBody stores the raw Markdown body and recomputes the rendered HTML.
func (p *Post) SetBody(body string) {
	p.Body = body
	p.BodyHTML = markup.Render(body)
}

// SetBody stores the raw Markdown body and recomputes the rendered HTML.
func (c *Comment) SetBody(body string) {
	c.Body = body
	c.BodyHTML = markup.Render(body)
}

// Password always fails: only the hash is kept.
func (u *User) Password() (string, error) {
	return "", ErrPasswordNotReadable
}

// EmailAddress returns the email or "" when the account has none.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// Can reports whether the user's role grants every bit of perm.
func (u *User) Can(perm Permission) bool {
	return u != nil && u.Role != nil && Permission(u.Role.Permissions)&perm == perm
}

func (u *User) IsAdministrator() bool {
	return u.Can(PermAdministrator)
}
