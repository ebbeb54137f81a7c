package blog

import (
	"time"

	"socialblog/account"
	"socialblog/models"
)

const disabledCommentText = "This comment has been disabled by a moderator."

type authorView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type postView struct {
	ID        uint       `json:"id"`
	Body      string     `json:"body"`
	BodyHTML  string     `json:"body_html"`
	Timestamp time.Time  `json:"timestamp"`
	Author    authorView `json:"author"`
}

type commentView struct {
	ID        uint       `json:"id"`
	PostID    uint       `json:"post_id"`
	Body      string     `json:"body,omitempty"`
	BodyHTML  string     `json:"body_html"`
	Timestamp time.Time  `json:"timestamp"`
	Disabled  bool       `json:"disabled"`
	Author    authorView `json:"author"`
}

type profileView struct {
	ID           uint      `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	AboutMe      string    `json:"about_me"`
	MemberSince  time.Time `json:"member_since"`
	LastSeen     time.Time `json:"last_seen"`
	Avatar       string    `json:"avatar"`
	Role         string    `json:"role,omitempty"`
	Followers    int64     `json:"followers"`
	Followed     int64     `json:"followed"`
	IsFollowing  bool      `json:"is_following"`
	IsFollowedBy bool      `json:"is_followed_by"`
}

type followView struct {
	User      authorView `json:"user"`
	Timestamp time.Time  `json:"timestamp"`
}

func newAuthorView(u *models.User) authorView {
	return authorView{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   account.Gravatar(u, 40, true),
	}
}

func newPostView(p *models.Post) postView {
	return postView{
		ID:        p.ID,
		Body:      p.Body,
		BodyHTML:  p.BodyHTML,
		Timestamp: p.Timestamp,
		Author:    newAuthorView(&p.Author),
	}
}

func newPostViews(posts []models.Post) []postView {
	views := make([]postView, 0, len(posts))
	for i := range posts {
		views = append(views, newPostView(&posts[i]))
	}
	return views
}

// newCommentView hides the body of a disabled comment unless reveal is set.
func newCommentView(c *models.Comment, reveal bool) commentView {
	v := commentView{
		ID:        c.ID,
		PostID:    c.PostID,
		Body:      c.Body,
		BodyHTML:  c.BodyHTML,
		Timestamp: c.Timestamp,
		Disabled:  c.Disabled,
		Author:    newAuthorView(&c.Author),
	}
	if c.Disabled && !reveal {
		v.Body = ""
		v.BodyHTML = "<p><i>" + disabledCommentText + "</i></p>"
	}
	return v
}

func newCommentViews(comments []models.Comment, reveal bool) []commentView {
	views := make([]commentView, 0, len(comments))
	for i := range comments {
		views = append(views, newCommentView(&comments[i], reveal))
	}
	return views
}
