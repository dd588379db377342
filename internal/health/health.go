package health

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status 整体或单项状态
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusUp    = "up"
	StatusDown  = "down"
)

// ErrTimeout 指标检查超时
var ErrTimeout = errors.New("health indicator timed out")

// CheckFunc 执行一次检查，返回附加详情；返回错误表示不健康
type CheckFunc func(ctx context.Context) (map[string]any, error)

// Indicator 健康指标
type Indicator struct {
	Key   string
	Check CheckFunc
}

// Result 单个指标的检查结果
type Result struct {
	Key       string         `json:"key"`
	IsHealthy bool           `json:"isHealthy"`
	Details   map[string]any `json:"details"`
}

// Entry 报告中单个指标的条目：{status: up|down, ...details}
type Entry map[string]any

// Report 聚合报告
//
// info 只包含健康的指标，error 只包含不健康的指标，details 包含全部。
type Report struct {
	Status  string           `json:"status"`
	Info    map[string]Entry `json:"info"`
	Error   map[string]Entry `json:"error"`
	Details map[string]Entry `json:"details"`
}

// Healthy 报告是否整体健康
func (r Report) Healthy() bool {
	return r.Status == StatusOK
}

// Aggregator 并发执行所有指标并汇总
type Aggregator struct {
	mu         sync.RWMutex
	indicators []Indicator
	timeout    time.Duration
	log        *zap.Logger
	observe    func(key string, up bool)
}

// NewAggregator 创建聚合器
func NewAggregator(timeout time.Duration, log *zap.Logger, indicators ...Indicator) *Aggregator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		indicators: indicators,
		timeout:    timeout,
		log:        log,
	}
}

// Register 添加指标
func (a *Aggregator) Register(indicators ...Indicator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indicators = append(a.indicators, indicators...)
}

// Observe 注册每个指标结果的回调（用于指标上报）
func (a *Aggregator) Observe(fn func(key string, up bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observe = fn
}

// Indicators 返回已注册的指标
func (a *Aggregator) Indicators() []Indicator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Indicator, len(a.indicators))
	copy(out, a.indicators)
	return out
}

// Timeout 单个指标的超时时间
func (a *Aggregator) Timeout() time.Duration {
	return a.timeout
}

// Check 并发执行所有指标，超时或 panic 的指标计为不健康
func (a *Aggregator) Check(ctx context.Context) Report {
	a.mu.RLock()
	indicators := make([]Indicator, len(a.indicators))
	copy(indicators, a.indicators)
	observe := a.observe
	a.mu.RUnlock()

	results := make([]Result, len(indicators))
	var g errgroup.Group
	for i, ind := range indicators {
		g.Go(func() error {
			results[i] = a.run(ctx, ind)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:  StatusOK,
		Info:    make(map[string]Entry),
		Error:   make(map[string]Entry),
		Details: make(map[string]Entry, len(results)),
	}
	for _, res := range results {
		entry := Entry{}
		maps.Copy(entry, res.Details)
		if res.IsHealthy {
			entry["status"] = StatusUp
			report.Info[res.Key] = entry
		} else {
			entry["status"] = StatusDown
			report.Error[res.Key] = entry
			report.Status = StatusError
		}
		report.Details[res.Key] = entry

		if observe != nil {
			observe(res.Key, res.IsHealthy)
		}
	}
	return report
}

// run 在独立的超时上下文中执行单个指标
func (a *Aggregator) run(ctx context.Context, ind Indicator) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		details map[string]any
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("indicator panicked: %v", r)}
			}
		}()
		details, err := ind.Check(ctx)
		done <- outcome{details: details, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ErrTimeout}
	}

	result := Result{Key: ind.Key, IsHealthy: out.err == nil, Details: map[string]any{}}
	maps.Copy(result.Details, out.details)
	if out.err != nil {
		result.Details["message"] = out.err.Error()
		a.log.Warn("health indicator down",
			zap.String("indicator", ind.Key),
			zap.Error(out.err),
		)
	}
	return result
}
