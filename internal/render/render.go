// Package render formats chat messages for the terminal.
//
// Markup in sender names and content is stripped at render time with a
// bluemonday strict policy; the connection layer delivers payloads untouched.
package render

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/rickgao/roomchat/internal/model"
)

const selfLabel = "you"

// Renderer turns messages into single display lines.
type Renderer struct {
	self   string
	loc    *time.Location
	policy *bluemonday.Policy
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLocation sets the zone used for the HH:MM prefix. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		r.loc = loc
	}
}

// New creates a Renderer for the user named self.
func New(self string, opts ...Option) *Renderer {
	r := &Renderer{
		self:   self,
		loc:    time.Local,
		policy: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the display line for m, without a trailing newline.
func (r *Renderer) Format(m model.ChatMessage) string {
	clock := "--:--"
	if !m.Timestamp.IsZero() {
		clock = m.Timestamp.In(r.loc).Format("15:04")
	}

	content := r.clean(m.Content)
	if m.IsSystem() {
		return fmt.Sprintf("[%s] * %s *", clock, content)
	}

	author := m.Author()
	switch {
	case author != "" && author == r.self:
		author = selfLabel
	case author == "":
		author = "unknown"
	default:
		author = r.clean(author)
	}
	return fmt.Sprintf("[%s] %s: %s", clock, author, content)
}

// Print writes the display line for m to w.
func (r *Renderer) Print(w io.Writer, m model.ChatMessage) error {
	_, err := fmt.Fprintln(w, r.Format(m))
	return err
}

// clean strips markup and terminal control characters. Entities produced by
// the policy are decoded again since the output is plain text.
func (r *Renderer) clean(s string) string {
	s = html.UnescapeString(r.policy.Sanitize(s))
	s = strings.Map(func(c rune) rune {
		switch {
		case c == '\n' || c == '\t':
			return ' '
		case unicode.IsControl(c):
			return -1
		}
		return c
	}, s)
	return strings.TrimSpace(s)
}
