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

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// 工具能力名称
const (
	CapabilitySearch   = "search"
	CapabilityBrowse   = "browse"
	CapabilityShopping = "shopping"
	CapabilityMaps     = "maps"
	CapabilityScholar  = "scholar"
)

// KnownCapabilities 可启用的全部能力
var KnownCapabilities = []string{CapabilitySearch, CapabilityBrowse, CapabilityShopping, CapabilityMaps, CapabilityScholar}

// 预置运行模式
const (
	SettingNoSearch = "nosearch"
	SettingSearch   = "search"
	SettingBrowsing = "browsing"
	SettingFull     = "full"
)

// Default 返回带文档化默认值的配置
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Capabilities:        []string{CapabilitySearch, CapabilityBrowse},
			MaxSteps:            10,
			MaxToolCalls:        8,
			MaxMalformedRetries: 3,
			Workers:             4,
			FinalizeOnBudget:    true,
		},
		Tools: ToolsConfig{
			Serper: SerperConfig{
				BaseURL: "https://google.serper.dev",
				APIKey:  "${SERPER_API_KEY}",
				GL:      "hk",
			},
			Browse: BrowseConfig{
				MaxBytes:  64 * 1024,
				UserAgent: "Mozilla/5.0 (compatible; search-agent/1.0)",
			},
			Classes: map[string]ToolClassConfig{
				CapabilitySearch:   {Timeout: 15 * time.Second, MaxRetries: 2},
				CapabilityShopping: {Timeout: 15 * time.Second, MaxRetries: 2},
				CapabilityMaps:     {Timeout: 15 * time.Second, MaxRetries: 2},
				CapabilityBrowse:   {Timeout: 30 * time.Second, MaxRetries: 2},
				CapabilityScholar:  {Timeout: 30 * time.Second, MaxRetries: 2},
			},
			Backoff: BackoffConfig{
				Initial:    500 * time.Millisecond,
				Max:        5 * time.Second,
				Multiplier: 2.0,
				Jitter:     0.1,
			},
		},
		Model: ModelConfig{
			Provider:    "eino",
			BaseURL:     "https://api.deepseek.com/v1",
			APIKey:      "${DEEPSEEK_API_KEY}",
			Model:       "deepseek-chat",
			Temperature: 0,
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		Cache: CacheConfig{Type: "memory", TTL: time.Hour},
		Output: OutputConfig{
			Predictions:  "predictions.jsonl",
			Trajectories: "trajectories.jsonl",
			Table:        "agent_trajectories",
		},
		Secrets: SecretsConfig{Provider: "env"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Monitoring: MonitoringConfig{
			Prometheus: PrometheusConfig{Enable: true},
			Tracing:    TracingConfig{ServiceName: "search-agent"},
			HTTP:       HTTPConfig{Addr: ":9464"},
		},
	}
}

// ApplySetting 应用预置运行模式：nosearch 不暴露任何工具且只允许一步
func (r *RunConfig) ApplySetting(name string) error {
	switch name {
	case SettingNoSearch:
		r.Capabilities = nil
		r.MaxSteps = 1
		r.MaxToolCalls = 0
	case SettingSearch:
		r.Capabilities = []string{CapabilitySearch}
		r.MaxSteps = 10
	case SettingBrowsing:
		r.Capabilities = []string{CapabilitySearch, CapabilityBrowse}
		r.MaxSteps = 10
	case SettingFull:
		r.Capabilities = append([]string(nil), KnownCapabilities...)
		r.MaxSteps = 10
	default:
		return &ConfigError{Problems: []string{fmt.Sprintf("unknown setting %q", name)}}
	}
	r.Setting = name
	return nil
}

// ClassConfig 返回工具类别的预算，未配置时退回 search 类默认值
func (t ToolsConfig) ClassConfig(class string) ToolClassConfig {
	if c, ok := t.Classes[class]; ok && c.Timeout > 0 {
		return c
	}
	return ToolClassConfig{Timeout: 15 * time.Second, MaxRetries: 2}
}

// ConfigError 进程级配置错误，唯一允许中止整批运行的错误
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate 校验配置并一次性列出全部问题
func (c *Config) Validate() error {
	var problems []string
	if c.Run.MaxSteps < 1 {
		problems = append(problems, "run.max_steps must be >= 1")
	}
	if c.Run.MaxToolCalls < 0 {
		problems = append(problems, "run.max_tool_calls must be >= 0")
	}
	if c.Run.MaxMalformedRetries < 0 {
		problems = append(problems, "run.max_malformed_retries must be >= 0")
	}
	if c.Run.Workers < 1 {
		problems = append(problems, "run.workers must be >= 1")
	}
	if c.Run.RunTimeout < 0 || c.Run.TrajectoryTimeout < 0 {
		problems = append(problems, "run timeouts must not be negative")
	}
	known := make(map[string]bool, len(KnownCapabilities))
	for _, k := range KnownCapabilities {
		known[k] = true
	}
	seen := make(map[string]bool)
	for _, cap := range c.Run.Capabilities {
		if !known[cap] {
			problems = append(problems, fmt.Sprintf("unknown capability %q", cap))
		}
		if seen[cap] {
			problems = append(problems, fmt.Sprintf("duplicate capability %q", cap))
		}
		seen[cap] = true
	}
	switch c.Model.Provider {
	case "eino", "text":
	default:
		problems = append(problems, fmt.Sprintf("model.provider %q not in [eino text]", c.Model.Provider))
	}
	if c.Model.Model == "" {
		problems = append(problems, "model.model is required")
	}
	if c.Model.MaxAttempts < 1 {
		problems = append(problems, "model.max_attempts must be >= 1")
	}
	switch c.Cache.Type {
	case "", "none", "memory":
	case "redis":
		if c.Cache.Addr == "" {
			problems = append(problems, "cache.addr is required for redis cache")
		}
	default:
		problems = append(problems, fmt.Sprintf("cache.type %q not in [none memory redis]", c.Cache.Type))
	}
	if c.Tools.Backoff.Multiplier < 1 {
		problems = append(problems, "tools.backoff.multiplier must be >= 1")
	}
	classes := make([]string, 0, len(c.Tools.Classes))
	for name := range c.Tools.Classes {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	for _, name := range classes {
		cc := c.Tools.Classes[name]
		if cc.MaxRetries < 0 {
			problems = append(problems, fmt.Sprintf("tools.classes.%s.max_retries must be >= 0", name))
		}
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// Masked 返回隐藏密钥后的副本，供 config 子命令打印
func (c *Config) Masked() Config {
	out := *c
	out.Model.APIKey = mask(c.Model.APIKey)
	out.Tools.Serper.APIKey = mask(c.Tools.Serper.APIKey)
	out.Cache.Password = mask(c.Cache.Password)
	out.Output.PostgresDSN = mask(c.Output.PostgresDSN)
	if len(c.Secrets.Config) > 0 {
		out.Secrets.Config = make(map[string]string, len(c.Secrets.Config))
		for k, v := range c.Secrets.Config {
			if strings.Contains(strings.ToLower(k), "token") {
				v = mask(v)
			}
			out.Secrets.Config[k] = v
		}
	}
	return out
}

func mask(s string) string {
	if s == "" || strings.HasPrefix(s, "${") {
		return s
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
