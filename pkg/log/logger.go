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

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 简单封装，供 internal 使用
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config 日志配置（与 config 包对接）
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ParseLevel 将配置字符串转为 slog.Level，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 根据配置创建 Logger，cfg 可为 nil 使用默认
func NewLogger(cfg *Config) (*Logger, error) {
	var out io.Writer = os.Stdout
	if cfg != nil && cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		out = f
	}
	return NewWithWriter(cfg, out), nil
}

// NewWithWriter 输出到指定 writer，测试与 CLI 使用
func NewWithWriter(cfg *Config, w io.Writer) *Logger {
	lv := new(slog.LevelVar)
	if cfg != nil {
		lv.Set(ParseLevel(cfg.Level))
	}
	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg != nil && cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h), level: lv}
}

// Nop 丢弃所有输出
func Nop() *Logger {
	return NewWithWriter(&Config{Level: "error"}, io.Discard)
}

// Level 当前日志级别（hertz 日志桥接共享同一 LevelVar）
func (l *Logger) Level() *slog.LevelVar {
	return l.level
}

// With 返回携带额外属性的子 Logger
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}
