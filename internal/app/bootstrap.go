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

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"search-agent/internal/agent/completion"
	"search-agent/internal/agent/controller"
	"search-agent/internal/storage/cache"
	"search-agent/internal/tool"
	"search-agent/internal/tool/builtin"
	"search-agent/internal/tool/invoker"
	"search-agent/internal/tool/registry"
	"search-agent/pkg/config"
	"search-agent/pkg/log"
	"search-agent/pkg/retry"
	"search-agent/pkg/secrets"
	"search-agent/pkg/tracing"
)

// Bootstrap 统一初始化：run / ask / tools 子命令复用同一套组件
type Bootstrap struct {
	Config *config.Config
	Logger *log.Logger
	// Registry 全部内置工具；Tools 为按启用能力过滤后的只读视图
	Registry   *registry.Registry
	Tools      *registry.Registry
	Cache      cache.Store
	Invoker    *invoker.Invoker
	Adapter    completion.Adapter
	Controller *controller.Controller

	closers []func() error
}

// Options 测试或嵌入时替换外部依赖
type Options struct {
	// Adapter 非 nil 时不创建补全后端
	Adapter completion.Adapter
	// Tools 非空时替代内置工具
	Tools []tool.Tool
	// SkipAdapter 只需要工具清单时（tools 子命令）不创建补全后端
	SkipAdapter bool
}

// NewLogger 按配置创建日志
func NewLogger(cfg *config.Config) (*log.Logger, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return logger, nil
}

// NewBootstrap 校验配置、解析密钥并装配工具、缓存、Invoker、补全适配器与控制器。
// 返回的错误都是进程级配置问题，调用方应中止运行。
func NewBootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (b *Bootstrap, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	b = &Bootstrap{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}

	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 tracing 失败: %w", err)
		}
		b.closers = append(b.closers, func() error { return tp.Shutdown(context.Background()) })
	}

	b.Registry = registry.New()
	if len(opts.Tools) > 0 {
		for _, t := range opts.Tools {
			if err := b.Registry.Register(t); err != nil {
				return nil, err
			}
		}
	} else if err := builtin.RegisterAll(b.Registry, cfg.Tools); err != nil {
		return nil, err
	}

	caps := capabilities(cfg.Run.Capabilities)
	if missing := b.Registry.MissingCapabilities(caps); len(missing) > 0 {
		problems := make([]string, 0, len(missing))
		for _, c := range missing {
			problems = append(problems, fmt.Sprintf("no tool registered for enabled capability %q", c))
		}
		return nil, &config.ConfigError{Problems: problems}
	}
	b.Tools = b.Registry.Filter(caps)
	if b.Tools.Len() > 0 && cfg.Tools.Serper.APIKey == "" && len(opts.Tools) == 0 {
		logger.Warn("未配置 Serper API key，检索工具调用将失败")
	}

	b.Cache, err = cache.NewCache(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化工具缓存失败: %w", err)
	}
	if b.Cache != nil {
		b.closers = append(b.closers, b.Cache.Close)
	}

	b.Invoker = invoker.New(b.Tools, invokerOptions(cfg, b.Cache, logger))

	switch {
	case opts.Adapter != nil:
		b.Adapter = opts.Adapter
	case opts.SkipAdapter:
	default:
		if cfg.Model.APIKey == "" {
			return nil, &config.ConfigError{Problems: []string{"model.api_key is required"}}
		}
		b.Adapter, err = completion.NewFromConfig(ctx, cfg, cfg.Model.APIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化补全适配器失败: %w", err)
		}
	}

	if b.Adapter != nil {
		b.Controller = controller.New(b.Adapter, b.Tools, b.Invoker, controllerConfig(cfg.Run), logger)
	}
	logger.Info("组件初始化完成",
		"setting", cfg.Run.Setting,
		"tools", b.Tools.Names(),
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Model,
		"cache", cfg.Cache.Type,
	)
	return b, nil
}

// Close 逆序释放资源
func (b *Bootstrap) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// resolveSecrets 把 "secret:" 引用替换为实际值
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	store, err := secrets.NewStore(ctx, secrets.Config{Provider: cfg.Secrets.Provider, Config: cfg.Secrets.Config})
	if err != nil {
		return fmt.Errorf("初始化 secret store 失败: %w", err)
	}
	fields := []struct {
		name string
		ptr  *string
	}{
		{"model.api_key", &cfg.Model.APIKey},
		{"tools.serper.api_key", &cfg.Tools.Serper.APIKey},
		{"cache.password", &cfg.Cache.Password},
		{"output.postgres_dsn", &cfg.Output.PostgresDSN},
	}
	for _, f := range fields {
		v, err := secrets.Resolve(ctx, store, *f.ptr)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.name, err)
		}
		*f.ptr = v
	}
	return nil
}

func capabilities(names []string) []tool.Capability {
	caps := make([]tool.Capability, 0, len(names))
	for _, n := range names {
		caps = append(caps, tool.Capability(n))
	}
	return caps
}

func invokerOptions(cfg *config.Config, store cache.Store, logger *log.Logger) invoker.Options {
	classes := make(map[tool.Capability]invoker.ClassPolicy, len(cfg.Tools.Classes))
	names := make([]string, 0, len(cfg.Tools.Classes))
	for name := range cfg.Tools.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cc := cfg.Tools.ClassConfig(name)
		classes[tool.Capability(name)] = invoker.ClassPolicy{Timeout: cc.Timeout, MaxRetries: cc.MaxRetries}
	}
	limits := make(map[string]invoker.LimitConfig, len(cfg.RateLimits.Tools))
	for name, l := range cfg.RateLimits.Tools {
		limits[name] = invoker.LimitConfig{QPS: l.QPS, MaxConcurrent: l.MaxConcurrent, Burst: l.Burst}
	}
	bo := cfg.Tools.Backoff
	return invoker.Options{
		Classes: classes,
		Backoff: retry.Policy{
			Initial:    bo.Initial,
			Max:        bo.Max,
			Multiplier: bo.Multiplier,
			Jitter:     bo.Jitter,
		},
		Limiter:  invoker.NewRateLimiter(limits, invoker.LimitConfig{}),
		Cache:    store,
		CacheTTL: cfg.Cache.TTL,
		Logger:   logger,
	}
}

func controllerConfig(r config.RunConfig) controller.Config {
	return controller.Config{
		MaxSteps:            r.MaxSteps,
		MaxToolCalls:        r.MaxToolCalls,
		MaxMalformedRetries: r.MaxMalformedRetries,
		FinalizeOnBudget:    r.FinalizeOnBudget,
		TrajectoryTimeout:   r.TrajectoryTimeout,
	}
}
