package render

import (
	"encoding/json"
	"io"
)

type jsonOutput struct {
	Meta     jsonMeta      `json:"meta"`
	Messages []jsonMessage `json:"messages"`
}

type jsonMeta struct {
	Accounts int `json:"accounts"`
	Posts    int `json:"posts"`
}

type jsonMessage struct {
	PostID    string `json:"post_id"`
	Author    string `json:"author,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// JSONWriter prints messages as a single JSON document.
type JSONWriter struct{}

// NewJSON creates a JSON writer.
func NewJSON() *JSONWriter {
	return &JSONWriter{}
}

// Write encodes msgs as indented JSON.
func (w *JSONWriter) Write(out io.Writer, accounts int, msgs []Message) error {
	doc := jsonOutput{
		Meta:     jsonMeta{Accounts: accounts, Posts: len(msgs)},
		Messages: make([]jsonMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		jm := jsonMessage{
			PostID: m.PostID,
			Author: m.Author,
			Title:  m.Title,
			Body:   m.Body,
			URL:    m.URL,
		}
		if !m.CreatedAt.IsZero() {
			jm.CreatedAt = m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		doc.Messages = append(doc.Messages, jm)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
