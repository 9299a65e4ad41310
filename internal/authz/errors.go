package authz

import (
	"errors"
	"fmt"
)

// 错误类别：调用方通过 errors.Is 判断，全部为可由调用方修正的前置条件失败
var (
	ErrNotFound    = errors.New("not found")
	ErrCycle       = errors.New("cycle")
	ErrDuplicate   = errors.New("duplicate")
	ErrProtected   = errors.New("protected")
	ErrHasChildren = errors.New("has children")
	ErrInUse       = errors.New("in use")
)

// Error 记录前置条件失败的实体与 id
type Error struct {
	Kind   error
	Entity string
	ID     int64
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %d: %v", e.Entity, e.ID, e.Kind)
	}
	return fmt.Sprintf("%s %d: %v: %s", e.Entity, e.ID, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, entity string, id int64, detail string) *Error {
	return &Error{Kind: kind, Entity: entity, ID: id, Detail: detail}
}

// KindOf 基础设施错误返回 nil
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrCycle, ErrDuplicate, ErrProtected, ErrHasChildren, ErrInUse} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
