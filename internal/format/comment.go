package format

import (
	"fmt"
	"slices"
)

// AddComment anchors a comment at pos and returns its ID.
func (m *Model) AddComment(pos int, body, author string) (string, error) {
	if pos < 0 || pos > m.length {
		return "", fmt.Errorf("%w: comment at %d over text of %d", ErrInvalidRange, pos, m.length)
	}
	c := Comment{
		ID:        m.newID(),
		Position:  pos,
		Text:      body,
		Author:    author,
		Timestamp: m.now().UTC(),
	}
	m.comments = append(m.comments, c)
	m.sortComments()
	return c.ID, nil
}

// ResolveComment sets the resolved flag. It reports whether the comment exists.
func (m *Model) ResolveComment(id string, resolved bool) bool {
	for i := range m.comments {
		if m.comments[i].ID == id {
			m.comments[i].Resolved = resolved
			return true
		}
	}
	return false
}

// RemoveComment deletes a comment. Removing an unknown ID is not an error.
func (m *Model) RemoveComment(id string) {
	m.comments = slices.DeleteFunc(m.comments, func(c Comment) bool { return c.ID == id })
}

// Comments returns a copy of all comments ordered by position.
func (m *Model) Comments() []Comment {
	return slices.Clone(m.comments)
}

// Comment returns the comment with the given ID.
func (m *Model) Comment(id string) (Comment, bool) {
	for _, c := range m.comments {
		if c.ID == id {
			return c, true
		}
	}
	return Comment{}, false
}

func (m *Model) sortComments() {
	slices.SortStableFunc(m.comments, func(a, b Comment) int {
		return a.Position - b.Position
	})
}
