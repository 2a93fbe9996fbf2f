package shortlink

import (
	"errors"
	"fmt"
)

// 存储层约定的哨兵错误：repo 实现必须返回（或 wrap）这两个值，领域层靠 errors.Is 判断。
var (
	ErrNotFound     = errors.New("shortlink not found")
	ErrKeywordTaken = errors.New("keyword already taken")
)

// ErrorCode 是对调用方（HTTP/CLI）稳定的机器可读错误码。
type ErrorCode string

const (
	CodeInvalidURL         ErrorCode = "invalid_url"
	CodeShortURLLoop       ErrorCode = "short_url_loop_detected"
	CodeDuplicateURL       ErrorCode = "duplicate_url"
	CodeKeywordUnavailable ErrorCode = "keyword_unavailable"
	CodeAllocationConflict ErrorCode = "allocation_conflict"
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
)

// Error 是创建/解析短链时返回给调用方的结构化错误。
//
// errors.Is 按 Code 比较，所以 errors.Is(err, ErrKeywordUnavailable) 对任意 message 都成立。
type Error struct {
	Code    ErrorCode
	Message string
	// Existing 只在 CodeDuplicateURL 时有值：已经存在的那条映射。
	Existing *ShortLink
	Err      error
}

var (
	ErrInvalidURL         = &Error{Code: CodeInvalidURL, Message: "invalid url"}
	ErrShortURLLoop       = &Error{Code: CodeShortURLLoop, Message: "url is a short url of this site"}
	ErrDuplicateURL       = &Error{Code: CodeDuplicateURL, Message: "url already shortened"}
	ErrKeywordUnavailable = &Error{Code: CodeKeywordUnavailable, Message: "keyword is reserved or already taken"}
	ErrAllocationConflict = &Error{Code: CodeAllocationConflict, Message: "could not allocate a free keyword"}
	ErrStorageUnavailable = &Error{Code: CodeStorageUnavailable, Message: "storage unavailable"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func storageError(op string, err error) *Error {
	return newError(CodeStorageUnavailable, op+" failed", err)
}

// CodeOf 取出错误码；不是 *Error 时返回空串。
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
