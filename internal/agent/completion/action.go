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

// Package completion 把补全服务的原始响应转换为 Reason / Act / Finish 三种动作。
// 适配器自身不做纠正性重试，那属于控制器。
package completion

import (
	"context"
	"fmt"

	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
)

// Action 模型动作：Reason、Act、Finish 之一
type Action interface {
	isAction()
}

// Reason 推理文本，不调用工具
type Reason struct {
	Text string
}

// Act 请求调用工具
type Act struct {
	Tool      string
	Args      map[string]any
	Rationale string
}

// Finish 给出最终答案
type Finish struct {
	Answer string
}

func (Reason) isAction() {}
func (Act) isAction()    {}
func (Finish) isAction() {}

// Request 单次推进的参数
type Request struct {
	// Tools 向模型公布的工具（已按能力过滤）；为空表示不可用工具
	Tools []tool.Spec
	// FinishOnly 强制收尾：只接受 Finish
	FinishOnly bool
}

// Adapter 补全适配器
type Adapter interface {
	Advance(ctx context.Context, t *trajectory.Trajectory, req Request) (Action, error)
}

// MalformedResponseError 响应无法解析为任何动作
type MalformedResponseError struct {
	Raw    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %s", e.Reason)
}

func (e *MalformedResponseError) Kind() perrors.Kind { return perrors.KindMalformedResponse }

// FatalAdapterError 补全服务在自身重试预算内仍不可用
type FatalAdapterError struct {
	Attempts int
	Cause    error
}

func (e *FatalAdapterError) Error() string {
	return fmt.Sprintf("completion failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *FatalAdapterError) Unwrap() error { return e.Cause }

func malformed(raw, format string, args ...any) *MalformedResponseError {
	return &MalformedResponseError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
}
