package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Runner 与监控服务注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		TrajectoryTotal, TrajectoryDuration, TrajectorySteps,
		ToolCallTotal, ToolDuration, ToolRetryTotal, ToolRateLimitWait,
		CompletionTotal, CompletionDuration, CompletionRateLimitWait, CorrectiveRetryTotal,
		CacheTotal, WorkerBusy,
	)
}

// TrajectoryTotal 轨迹总数（按终态）
var TrajectoryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_trajectory_total",
		Help: "轨迹总数（按终态）",
	},
	[]string{"status"}, // succeeded | budget_exceeded | failed
)

// TrajectoryDuration 单条轨迹耗时（秒）
var TrajectoryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_trajectory_duration_seconds",
		Help:    "单条轨迹耗时（秒）",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	},
	[]string{"status"},
)

// TrajectorySteps 每条轨迹的推理步数
var TrajectorySteps = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "search_agent_trajectory_steps",
		Help:    "每条轨迹的推理步数",
		Buckets: prometheus.LinearBuckets(0, 1, 16),
	},
)

// ToolCallTotal 工具调用次数（按工具与结果）
var ToolCallTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_tool_call_total",
		Help: "工具调用次数",
	},
	[]string{"tool", "outcome"}, // outcome: ok | 错误类别
)

// ToolDuration 工具调用耗时（秒，含重试）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// ToolRetryTotal 工具瞬时失败后的重试次数
var ToolRetryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_tool_retry_total",
		Help: "工具重试次数",
	},
	[]string{"tool"},
)

// ToolRateLimitWait 限流等待耗时（秒）
var ToolRateLimitWait = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_tool_ratelimit_wait_seconds",
		Help:    "工具限流等待耗时（秒）",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	},
	[]string{"tool"},
)

// CompletionTotal 补全调用次数（按解析结果）
var CompletionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_completion_total",
		Help: "补全调用次数",
	},
	[]string{"outcome"}, // reason | act | finish | malformed | fatal
)

// CompletionDuration 单次补全调用耗时（含重试）
var CompletionDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "search_agent_completion_duration_seconds",
		Help:    "补全调用耗时（秒）",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	},
)

// CompletionRateLimitWait 补全限流等待耗时
var CompletionRateLimitWait = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_completion_ratelimit_wait_seconds",
		Help:    "补全限流等待耗时（秒）",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	},
	[]string{"provider"},
)

// CorrectiveRetryTotal 纠正性重试次数
var CorrectiveRetryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_corrective_retry_total",
		Help: "纠正性重试次数",
	},
	[]string{"reason"}, // malformed_response | invalid_arguments | unknown_tool
)

// CacheTotal 工具结果缓存命中情况
var CacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_tool_cache_total",
		Help: "工具结果缓存命中情况",
	},
	[]string{"result"}, // hit | miss
)

// WorkerBusy 当前正在处理轨迹的 worker 数
var WorkerBusy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "search_agent_worker_busy",
		Help: "当前正在处理轨迹的 worker 数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
