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

package http

import (
	"context"
	"io"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"

	"search-agent/pkg/log"
)

// Router 运行监控路由
type Router struct {
	handler *Handler
}

// NewRouter 创建路由器
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Build 创建 Hertz 实例并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/run/progress", r.handler.RunProgress)
	h.GET("/metrics", r.handler.Metrics)
	return h
}

// Server 后台运行的监控服务
type Server struct {
	hertz  *server.Hertz
	logger *log.Logger
	done   chan struct{}
}

// SetLogger 让 Hertz 日志复用应用日志级别；file 为空时输出到 stderr
func SetLogger(logger *log.Logger, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	if logger == nil {
		hlog.SetLogger(hertzslog.NewLogger(hertzslog.WithOutput(out)))
		return
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(out),
		hertzslog.WithLevel(logger.Level()),
	))
}

// Start 在后台启动监控服务
func Start(addr string, handler *Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{hertz: NewRouter(handler).Build(addr), logger: logger, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := s.hertz.Run(); err != nil {
			logger.Error("监控服务退出", "error", err)
		}
	}()
	logger.Info("监控服务已启动", "addr", addr)
	return s
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.hertz.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}
