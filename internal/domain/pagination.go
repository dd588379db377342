package domain

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// 分页边界
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultLimit    = 20
)

// Page 偏移分页结果
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// NewPage 根据总数计算页数，items 为 nil 时返回空数组
func NewPage[T any](items []T, total int64, page, pageSize int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(total, pageSize),
	}
}

// TotalPages 返回 ceil(total / pageSize)
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// CursorPage 游标分页结果，NextCursor 为空表示没有更多记录
type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// OffsetQuery 偏移分页参数，page 从 1 开始
type OffsetQuery struct {
	Page     int
	PageSize int
}

// Normalize 填充默认值并校验边界
func (q OffsetQuery) Normalize() (OffsetQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}

	var v Violations
	if q.Page < 1 {
		v.Add("page", "must be >= 1")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		v.Add("pageSize", "must be between 1 and 100")
	}
	return q, v.Err()
}

// Offset 返回跳过的记录数
func (q OffsetQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// CursorQuery 游标分页参数
type CursorQuery struct {
	Cursor string
	Limit  int
}

// Normalize 填充默认值、校验边界并解码游标
func (q CursorQuery) Normalize() (CursorQuery, *Cursor, error) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}

	var v Violations
	if q.Limit < 1 || q.Limit > MaxPageSize {
		v.Add("limit", "must be between 1 and 100")
	}

	var after *Cursor
	if q.Cursor != "" {
		c, err := DecodeCursor(q.Cursor)
		if err != nil {
			v.Add("cursor", "is malformed")
		} else {
			after = &c
		}
	}
	return q, after, v.Err()
}

// Cursor 游标位置：上一页最后一条记录的 (createdAt, id)
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Before 判断记录是否严格排在游标之后（createdAt DESC, id DESC 顺序）
func (c Cursor) Before(createdAt time.Time, id string) bool {
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && id < c.ID
}

// Encode 编码为不透明字符串
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor 解码游标
func DecodeCursor(value string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Cursor{}, NewValidationError("cursor", "is malformed")
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return Cursor{}, NewValidationError("cursor", "is malformed")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, NewValidationError("cursor", "is malformed")
	}
	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Keyed 可以生成游标的记录
type Keyed interface {
	CursorKey() Cursor
}

// NewCursorPage 根据多取一条的结果构造游标页
//
// rows 最多包含 limit+1 条记录，第 limit+1 条存在说明还有下一页。
func NewCursorPage[T Keyed](rows []T, limit int) *CursorPage[T] {
	page := &CursorPage[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = rows[limit-1].CursorKey().Encode()
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
