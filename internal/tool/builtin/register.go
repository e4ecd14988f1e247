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

package builtin

import (
	"fmt"

	"search-agent/internal/tool"
	"search-agent/internal/tool/registry"
	"search-agent/pkg/config"
)

// NewTools 按配置构造全部内置工具；Serper 类工具共享同一个客户端
func NewTools(cfg config.ToolsConfig) []tool.Tool {
	serper := NewSerperClient(SerperConfig{
		BaseURL: cfg.Serper.BaseURL,
		APIKey:  cfg.Serper.APIKey,
		GL:      cfg.Serper.GL,
		HL:      cfg.Serper.HL,
	})
	return []tool.Tool{
		NewSearchTool(serper),
		NewBrowseTool(BrowseConfig{MaxBytes: cfg.Browse.MaxBytes, MaxDownloadBytes: cfg.Browse.MaxDownloadBytes, UserAgent: cfg.Browse.UserAgent}),
		NewShoppingTool(serper),
		NewMapsTool(serper),
		NewRecommendTool(serper),
		NewScholarTool(serper),
	}
}

// RegisterAll 构造并注册全部内置工具到 reg
func RegisterAll(reg *registry.Registry, cfg config.ToolsConfig) error {
	for _, t := range NewTools(cfg) {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Spec().Name, err)
		}
	}
	return nil
}
