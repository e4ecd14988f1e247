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

package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"search-agent/internal/tool"
)

type entry struct {
	tool     tool.Tool
	spec     tool.Spec
	compiled *jsonschema.Schema
}

// Registry 工具注册表：注册、解析、参数校验、供 LLM 使用的 Schema 列表。
// 注册在进程启动阶段完成，运行期只读。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
	order []string
}

// New 创建新的 Registry
func New() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register 注册工具；同名返回 DuplicateToolError，Schema 无法编译时返回错误
func (r *Registry) Register(t tool.Tool) error {
	spec := t.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool spec without name")
	}
	compiled, err := compileSchema(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[spec.Name]; ok {
		return &tool.DuplicateToolError{Name: spec.Name}
	}
	r.tools[spec.Name] = &entry{tool: t, spec: spec, compiled: compiled}
	r.order = append(r.order, spec.Name)
	return nil
}

// Resolve 按名称获取工具，不存在返回 UnknownToolError
func (r *Registry) Resolve(name string) (tool.Tool, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.tool, nil
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, &tool.UnknownToolError{Name: name, Available: append([]string(nil), r.order...)}
	}
	return e, nil
}

// Validate 按声明的 Schema 校验参数，失败时 InvalidArgumentsError 列出全部违反项
func (r *Registry) Validate(name string, args map[string]any) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	violations := checkArgs(e.spec.Schema, args)
	if len(violations) == 0 && e.compiled != nil {
		violations = schemaViolations(e.compiled, args)
	}
	if len(violations) > 0 {
		return &tool.InvalidArgumentsError{Tool: name, Violations: violations}
	}
	return nil
}

// Specs 按注册顺序返回全部工具规格
func (r *Registry) Specs() []tool.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tool.Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].spec)
	}
	return out
}

// Names 按注册顺序返回工具名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len 已注册工具数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Filter 返回只包含指定能力工具的新注册表；caps 为空时返回空注册表
func (r *Registry) Filter(caps []tool.Capability) *Registry {
	enabled := make(map[tool.Capability]bool, len(caps))
	for _, c := range caps {
		enabled[c] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := New()
	for _, name := range r.order {
		e := r.tools[name]
		if enabled[e.spec.Capability] {
			out.tools[name] = e
			out.order = append(out.order, name)
		}
	}
	return out
}

// MissingCapabilities 返回没有任何已注册工具提供的能力
func (r *Registry) MissingCapabilities(caps []tool.Capability) []tool.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	have := make(map[tool.Capability]bool)
	for _, e := range r.tools {
		have[e.spec.Capability] = true
	}
	var missing []tool.Capability
	for _, c := range caps {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// ToolSchemaForLLM 单个工具供 LLM 使用的描述（name, description, parameters）
type ToolSchemaForLLM struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  tool.Schema `json:"parameters"`
}

// SchemasForLLM 返回所有工具的 Schema 列表（JSON）
func (r *Registry) SchemasForLLM() ([]byte, error) {
	specs := r.Specs()
	list := make([]ToolSchemaForLLM, 0, len(specs))
	for _, s := range specs {
		list = append(list, ToolSchemaForLLM{Name: s.Name, Description: s.Description, Parameters: s.Schema})
	}
	return json.Marshal(list)
}

func compileSchema(spec tool.Spec) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(spec.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema of %s: %w", spec.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema of %s: %w", spec.Name, err)
	}
	url := spec.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", spec.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema of %s: %w", spec.Name, err)
	}
	return compiled, nil
}

// schemaViolations 用编译后的 JSON Schema 做二次校验，把错误消息拆成逐条违反项
func schemaViolations(s *jsonschema.Schema, args map[string]any) []string {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return []string{fmt.Sprintf("arguments are not JSON-serializable: %v", err)}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}
	if err := s.Validate(inst); err != nil {
		var out []string
		for _, line := range strings.Split(err.Error(), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "- ") {
				out = append(out, strings.TrimPrefix(line, "- "))
			}
		}
		if len(out) == 0 {
			out = append(out, err.Error())
		}
		sort.Strings(out)
		return out
	}
	return nil
}
