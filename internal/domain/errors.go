package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 业务错误定义
var (
	ErrNotFound            = errors.New("resource not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrForbiddenRole       = errors.New("role not permitted for caller")
	ErrUnauthenticated     = errors.New("caller identity required")
)

// Violation 描述一条被违反的输入约束
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

// ValidationError 表示输入在产生任何副作用之前被拒绝
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Constraint)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError 创建只包含一条约束的校验错误
func NewValidationError(field, constraint string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Field: field, Constraint: constraint}}}
}

// Violations 收集校验结果
type Violations []Violation

// Add 追加一条违反的约束
func (v *Violations) Add(field, constraint string) {
	*v = append(*v, Violation{Field: field, Constraint: constraint})
}

// Err 没有违反时返回 nil
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: v}
}

// UpstreamError 表示依赖（数据库、邮件中继、缓存）未响应
type UpstreamError struct {
	Dependency string
	Err        error
}

// Upstream 包装依赖错误，errors.Is(err, ErrUpstreamUnavailable) 成立
func Upstream(dependency string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Dependency: dependency, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
