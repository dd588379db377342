package health

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/heptiolabs/healthcheck"
)

// goroutineThreshold 存活检查的协程数上限
const goroutineThreshold = 10000

// NewCheckHandler 创建存活与就绪检查
//
// 存活只检查协程数；就绪在每次请求时执行聚合器当前注册的全部指标。
func NewCheckHandler(agg *Aggregator) healthcheck.Handler {
	handler := healthcheck.NewHandler()
	handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
	handler.AddReadinessCheck("indicators", readinessCheck(agg))
	return handler
}

func readinessCheck(agg *Aggregator) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), agg.Timeout())
		defer cancel()

		report := agg.Check(ctx)
		if report.Healthy() {
			return nil
		}
		down := make([]string, 0, len(report.Error))
		for key := range report.Error {
			down = append(down, key)
		}
		slices.Sort(down)
		return fmt.Errorf("indicators down: %s", strings.Join(down, ", "))
	}
}
