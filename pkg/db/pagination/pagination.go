package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidToken = errors.New("invalid page token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Size clamps PageSize to [1, MaxPageSize], defaulting to DefaultPageSize.
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor is a keyset position: rows strictly older than (CreatedAt, ID).
type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type cursorJSON struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(cursorJSON{
		ID:        c.ID.String(),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeCursor(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var raw cursorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := snowflake.ParseString(raw.ID)
	if err != nil || id == 0 {
		return Cursor{}, ErrInvalidToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}
	return Cursor{ID: id, CreatedAt: createdAt}, nil
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Page trims a limit+1 result set to size and returns the token for the
// row after the last one kept.
func Page[T any](rows []T, size int, cursorOf func(T) Cursor) ([]T, PageInfo) {
	if len(rows) <= size {
		return rows, PageInfo{}
	}
	rows = rows[:size]
	return rows, PageInfo{
		HasMore:       true,
		NextPageToken: EncodeCursor(cursorOf(rows[len(rows)-1])),
	}
}
