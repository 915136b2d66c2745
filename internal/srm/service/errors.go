package service

import "errors"

// ErrInvalidRequest 请求参数不合法（与评分/流程错误区分）
var ErrInvalidRequest = errors.New("invalid request")
