// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors 提供统一错误辅助与错误分类，不依赖 internal
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// Kind 错误类别，写入失败描述符与指标标签
type Kind string

const (
	KindInvalidArguments  Kind = "invalid_arguments"
	KindUnknownTool       Kind = "unknown_tool"
	KindTimeout           Kind = "timeout"
	KindRateLimited       Kind = "rate_limited"
	KindTransport         Kind = "transport"
	KindUpstream          Kind = "upstream"
	KindMalformedResponse Kind = "malformed_response"
	KindCanceled          Kind = "canceled"
	KindBudgetExceeded    Kind = "budget_exceeded"
	KindInternal          Kind = "internal"
)

// Kinded 由携带类别的错误实现
type Kinded interface {
	Kind() Kind
}

// KindOf 推断错误类别：优先取链上第一个 Kinded，其次识别 context 与网络超时
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}
	if errors.Is(err, ErrInvalidArg) {
		return KindInvalidArguments
	}
	return KindInternal
}

// WithKind 为错误附加类别
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Kind() Kind    { return e.kind }

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is / As / New 透传标准库，调用方无需同时导入两个 errors 包
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
