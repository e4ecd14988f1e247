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

package tool

import (
	"fmt"
	"strings"

	perrors "search-agent/pkg/errors"
)

// DuplicateToolError 重复注册同名工具
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

// UnknownToolError 工具不存在（或未在本次运行中启用）
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown tool %q: no tools are available", e.Name)
	}
	return fmt.Sprintf("unknown tool %q: available tools are %s", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownToolError) Kind() perrors.Kind { return perrors.KindUnknownTool }

// InvalidArgumentsError 参数校验失败，列出全部违反项
type InvalidArgumentsError struct {
	Tool       string
	Violations []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Violations, "; "))
}

func (e *InvalidArgumentsError) Kind() perrors.Kind { return perrors.KindInvalidArguments }

// ExecutionError 工具执行失败；Transient 决定 Invoker 是否重试
type ExecutionError struct {
	Tool  string
	kind  perrors.Kind
	trans bool
	Err   error
}

// NewExecutionError 构造执行错误
func NewExecutionError(tool string, kind perrors.Kind, transient bool, err error) *ExecutionError {
	return &ExecutionError{Tool: tool, kind: kind, trans: transient, Err: err}
}

// Terminal 不可重试的执行错误（参数被上游拒绝、解码失败、缺少密钥等）
func Terminal(tool string, kind perrors.Kind, format string, args ...any) *ExecutionError {
	return NewExecutionError(tool, kind, false, fmt.Errorf(format, args...))
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error      { return e.Err }
func (e *ExecutionError) Kind() perrors.Kind { return e.kind }
func (e *ExecutionError) Transient() bool    { return e.trans }
