package models

import "strings"

type RedditAPIResponse struct {
	Data RedditAPIData `json:"data"`
}

type RedditAPIData struct {
	After    string           `json:"after"`
	Children []RedditAPIChild `json:"children"`
}

type RedditAPIChild struct {
	Data RedditAPIPost `json:"data"`
}

type RedditAPIPost struct {
	Subreddit      string  `json:"subreddit"`
	AuthorFullname string  `json:"author_fullname"`
	Title          string  `json:"title"`
	Selftext       string  `json:"selftext"`
	Ups            int     `json:"ups"`
	CreatedUTC     float64 `json:"created_utc"`
	ID             string  `json:"id"`
	Name           string  `json:"name"`
}

// Text joins the title and body into a single comment.
func (p RedditAPIPost) Text() string {
	title := strings.TrimSpace(p.Title)
	body := strings.TrimSpace(p.Selftext)
	switch {
	case body == "" || body == "[removed]" || body == "[deleted]":
		return title
	case title == "":
		return body
	default:
		return title + "\n\n" + body
	}
}
