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
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	Run        RunConfig        `mapstructure:"run" yaml:"run"`
	Tools      ToolsConfig      `mapstructure:"tools" yaml:"tools"`
	Model      ModelConfig      `mapstructure:"model" yaml:"model"`
	Prompt     PromptConfig     `mapstructure:"prompt" yaml:"prompt"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Secrets    SecretsConfig    `mapstructure:"secrets" yaml:"secrets"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits" yaml:"rate_limits"`
}

// RunConfig 单次批量运行的配置，运行期间只读
type RunConfig struct {
	Setting             string        `mapstructure:"setting" yaml:"setting"`           // nosearch | search | browsing | full，非空时覆盖 capabilities
	Capabilities        []string      `mapstructure:"capabilities" yaml:"capabilities"` // search / browse / shopping / maps / scholar 的子集
	MaxSteps            int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxToolCalls        int           `mapstructure:"max_tool_calls" yaml:"max_tool_calls"`
	MaxMalformedRetries int           `mapstructure:"max_malformed_retries" yaml:"max_malformed_retries"`
	Workers             int           `mapstructure:"workers" yaml:"workers"`
	RunTimeout          time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`               // 0 表示无全局截止
	TrajectoryTimeout   time.Duration `mapstructure:"trajectory_timeout" yaml:"trajectory_timeout"` // 单题超时，0 表示不限制
	FinalizeOnBudget    bool          `mapstructure:"finalize_on_budget" yaml:"finalize_on_budget"` // 预算耗尽时是否发起一次仅允许 Finish 的收尾调用
	Limit               int           `mapstructure:"limit" yaml:"limit"`                           // 只处理前 N 道题，0 表示全部
}

// ToolsConfig 检索工具配置
type ToolsConfig struct {
	Serper  SerperConfig               `mapstructure:"serper" yaml:"serper"`
	Browse  BrowseConfig               `mapstructure:"browse" yaml:"browse"`
	Classes map[string]ToolClassConfig `mapstructure:"classes" yaml:"classes"` // 按工具类别（search/browse/shopping/maps/scholar）配置超时与重试
	Backoff BackoffConfig              `mapstructure:"backoff" yaml:"backoff"`
}

// SerperConfig google.serper.dev 接入配置
type SerperConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	GL      string `mapstructure:"gl" yaml:"gl"`
	HL      string `mapstructure:"hl" yaml:"hl"`
}

// BrowseConfig 网页抓取配置
type BrowseConfig struct {
	MaxBytes int `mapstructure:"max_bytes" yaml:"max_bytes"`
	// MaxDownloadBytes 响应体读取上限，0 表示 max_bytes 的 16 倍
	MaxDownloadBytes int    `mapstructure:"max_download_bytes" yaml:"max_download_bytes"`
	UserAgent        string `mapstructure:"user_agent" yaml:"user_agent"`
}

// ToolClassConfig 单个工具类别的调用预算
type ToolClassConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// BackoffConfig 指数退避参数
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial" yaml:"initial"`
	Max        time.Duration `mapstructure:"max" yaml:"max"`
	Multiplier float64       `mapstructure:"multiplier" yaml:"multiplier"`
	Jitter     float64       `mapstructure:"jitter" yaml:"jitter"`
}

// ModelConfig 补全服务配置
type ModelConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"` // eino | text
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// PromptConfig 系统提示词配置
type PromptConfig struct {
	ReferenceDate string `mapstructure:"reference_date" yaml:"reference_date"` // 非空时提示模型数据集为历史数据
}

// CacheConfig 工具结果缓存配置
type CacheConfig struct {
	Type     string        `mapstructure:"type" yaml:"type"` // none | memory | redis
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Password string        `mapstructure:"password" yaml:"password"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// OutputConfig 产物输出配置
type OutputConfig struct {
	Predictions  string `mapstructure:"predictions" yaml:"predictions"`
	Trajectories string `mapstructure:"trajectories" yaml:"trajectories"`
	PostgresDSN  string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"` // 非空时额外写入 Postgres
	Table        string `mapstructure:"table" yaml:"table"`
}

// SecretsConfig 密钥存储配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider" yaml:"provider"` // env | memory | vault
	Config   map[string]string `mapstructure:"config" yaml:"config"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable" yaml:"enable"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint" yaml:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure" yaml:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable" yaml:"enable"`
}

// HTTPConfig 运行监控 HTTP 服务
type HTTPConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Addr   string `mapstructure:"addr" yaml:"addr"`
}

// RateLimitsConfig 限流配置（Tool + LLM）
type RateLimitsConfig struct {
	Tools map[string]ToolRateLimitConfig `mapstructure:"tools" yaml:"tools"`
	LLM   LLMRateLimitConfig             `mapstructure:"llm" yaml:"llm"`
}

// ToolRateLimitConfig 单个 Tool 的限流配置
type ToolRateLimitConfig struct {
	QPS           float64 `mapstructure:"qps" yaml:"qps"`
	MaxConcurrent int     `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
}

// LLMRateLimitConfig 补全服务限流配置
type LLMRateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	config := Default()
	// 切片按下标覆盖，文件中给出时先清空默认值
	if v.IsSet("run.capabilities") {
		config.Run.Capabilities = nil
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(config)

	if config.Run.Setting != "" {
		if err := config.Run.ApplySetting(config.Run.Setting); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// setDefaults 注册标量默认值，使 AutomaticEnv 能覆盖未出现在文件中的键
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("run.max_steps", d.Run.MaxSteps)
	v.SetDefault("run.max_tool_calls", d.Run.MaxToolCalls)
	v.SetDefault("run.max_malformed_retries", d.Run.MaxMalformedRetries)
	v.SetDefault("run.workers", d.Run.Workers)
	v.SetDefault("run.finalize_on_budget", d.Run.FinalizeOnBudget)
	v.SetDefault("run.setting", d.Run.Setting)
	v.SetDefault("tools.serper.base_url", d.Tools.Serper.BaseURL)
	v.SetDefault("tools.serper.api_key", d.Tools.Serper.APIKey)
	v.SetDefault("tools.serper.gl", d.Tools.Serper.GL)
	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.base_url", d.Model.BaseURL)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.model", d.Model.Model)
	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("secrets.provider", d.Secrets.Provider)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// replaceEnvVars 替换配置中 ${VAR} 形式的密钥引用
func replaceEnvVars(config *Config) {
	config.Model.APIKey = expandEnv(config.Model.APIKey)
	config.Tools.Serper.APIKey = expandEnv(config.Tools.Serper.APIKey)
	config.Cache.Password = expandEnv(config.Cache.Password)
	config.Output.PostgresDSN = expandEnv(config.Output.PostgresDSN)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}
