package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size" binding:"omitempty,gte=1,lte=250"`
}

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

var ErrInvalidPageToken = errors.New("invalid_page_token")

// Size clamps a requested page size to [1, MaxPageSize].
func Size(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// DecodeBeforeID returns the id carried by token, or 0 for an empty token.
func DecodeBeforeID(token string) (snowflake.ID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		return 0, ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
	if err != nil || id == 0 {
		return 0, ErrInvalidPageToken
	}
	return id, nil
}

// Trim cuts the extra lookahead row fetched by option.ApplyPagination and builds
// the page info from the last row kept.
func Trim[T any](items []T, pageSize int, cursorOf func(T) string) ([]T, PageInfo) {
	pageSize = Size(pageSize)
	if len(items) <= pageSize {
		return items, PageInfo{}
	}

	items = items[:pageSize]
	token, _ := EncodeCursor(Cursor{ID: cursorOf(items[len(items)-1])})
	return items, PageInfo{NextPageToken: token, HasMore: true}
}
