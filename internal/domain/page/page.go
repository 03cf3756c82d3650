// Package page resolves page descriptors into offset windows and builds
// next/previous tokens and links.
package page

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/kailas-cloud/catalogq/internal/domain"
)

// Default page size bounds.
const (
	DefaultLimit = 25
	MaxLimit     = 1000
)

// Request is a caller-supplied page descriptor: limit plus either an offset
// or an opaque cursor.
type Request struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// Window is a resolved page: a concrete limit and offset.
type Window struct {
	Limit  int
	Offset int
	// Cursor is true when the caller paged by cursor; links then carry cursors.
	Cursor bool
}

// Resolve validates req and converts it into a Window.
// A zero limit means defaultLimit; limits above maxLimit are rejected.
func (c *Codec) Resolve(req Request, defaultLimit, maxLimit int) (Window, error) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	limit := req.Limit
	switch {
	case limit == 0:
		limit = min(defaultLimit, maxLimit)
	case limit < 0:
		return Window{}, &domain.SpecificationError{Field: "limit", Reason: "must be positive"}
	case limit > maxLimit:
		return Window{}, &domain.SpecificationError{Field: "limit", Reason: fmt.Sprintf("must not exceed %d", maxLimit)}
	}
	if req.Offset < 0 {
		return Window{}, &domain.SpecificationError{Field: "offset", Reason: "must not be negative"}
	}
	if req.Cursor == "" {
		return Window{Limit: limit, Offset: req.Offset}, nil
	}
	if req.Offset != 0 {
		return Window{}, &domain.SpecificationError{Reason: "offset and cursor are mutually exclusive"}
	}
	off, err := c.Decode(req.Cursor)
	if err != nil {
		return Window{}, err
	}
	return Window{Limit: limit, Offset: off, Cursor: true}, nil
}

// Links are the page navigation tokens and, when a base URL is known, links.
type Links struct {
	Next     string
	Prev     string
	NextLink string
	PrevLink string
}

// Links builds navigation for a page of n rows fetched with w. Next is
// emitted only when the page is full, Prev only when w.Offset > 0.
// base may be nil; its query parameters other than offset/cursor/limit are preserved.
func (c *Codec) Links(base *url.URL, w Window, n int) Links {
	var l Links
	if n >= w.Limit && w.Limit > 0 {
		next := w.Offset + w.Limit
		l.Next = c.Encode(next)
		l.NextLink = link(base, w, next, l.Next)
	}
	if w.Offset > 0 {
		prev := max(0, w.Offset-w.Limit)
		l.Prev = c.Encode(prev)
		l.PrevLink = link(base, w, prev, l.Prev)
	}
	return l
}

func link(base *url.URL, w Window, offset int, token string) string {
	if base == nil {
		return ""
	}
	u := *base
	q := base.Query()
	q.Set("limit", strconv.Itoa(w.Limit))
	if w.Cursor {
		q.Set("cursor", token)
		q.Del("offset")
	} else {
		q.Set("offset", strconv.Itoa(offset))
		q.Del("cursor")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
