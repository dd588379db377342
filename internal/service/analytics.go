package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"freightflow/backend/internal/cache"
	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/storage"
)

const topRoutesLimit = 5

// AnalyticsService 按角色计算看板快照
//
// 每次计算只读取分组计数与窗口内有限行数的运单，调用频率高也不会全表扫描。
type AnalyticsService struct {
	repo    storage.AnalyticsRepository
	cfg     config.DashboardConfig
	cache   *cache.DashboardCache
	metrics *monitoring.Metrics
	now     func() time.Time
	log     *zap.Logger
}

// NewAnalyticsService 创建看板服务，dashCache 可为 nil
func NewAnalyticsService(repo storage.AnalyticsRepository, cfg config.DashboardConfig, dashCache *cache.DashboardCache, metrics *monitoring.Metrics, log *zap.Logger) *AnalyticsService {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = 5000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsService{
		repo:    repo,
		cfg:     cfg,
		cache:   dashCache,
		metrics: metrics,
		now:     time.Now,
		log:     log,
	}
}

// dashboardInput 各角色变体共用的查询结果
type dashboardInput struct {
	scope      domain.Scope
	now        time.Time
	monthStart time.Time
	statuses   []domain.StatusCount
	shipments  []domain.Shipment // 窗口内创建的运单，最新的在前
}

func (in *dashboardInput) countStatus(match func(domain.ShipmentStatus) bool) int64 {
	var n int64
	for _, sc := range in.statuses {
		if match(sc.Status) {
			n += sc.Count
		}
	}
	return n
}

// Dashboard 计算调用者角色对应的看板
func (s *AnalyticsService) Dashboard(ctx context.Context, scope domain.Scope) (*domain.DashboardAnalytics, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(ctx, scope); ok {
		s.metrics.RecordDashboardCache(true)
		return cached, nil
	}
	if s.cache.Enabled() {
		s.metrics.RecordDashboardCache(false)
	}

	start := time.Now()
	analytics, err := s.compute(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDashboardCompute(string(scope.Role), time.Since(start))

	s.cache.Put(ctx, scope, analytics)
	return analytics, nil
}

func (s *AnalyticsService) compute(ctx context.Context, scope domain.Scope) (*domain.DashboardAnalytics, error) {
	now := s.now().UTC()
	in := &dashboardInput{
		scope:      scope,
		now:        now,
		monthStart: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
	windowStart := now.AddDate(0, 0, -s.cfg.WindowDays)
	since := windowStart
	if in.monthStart.Before(since) {
		since = in.monthStart
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.statuses, err = s.repo.CountShipmentsByStatus(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		in.shipments, err = s.repo.ListShipmentsSince(gctx, scope, since, s.cfg.RowLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(in.shipments) >= s.cfg.RowLimit {
		// 窗口内的运单被截断，本月与窗口内的求和指标会偏低
		s.log.Warn("dashboard window truncated by row limit",
			zap.String("tenant_id", scope.TenantID),
			zap.String("role", string(scope.Role)),
			zap.Int("row_limit", s.cfg.RowLimit),
			zap.Time("since", since),
		)
	}

	var variant func(context.Context, *dashboardInput, time.Time) (domain.KPISet, domain.Charts, error)
	switch scope.Role {
	case domain.RoleShipper:
		variant = s.shipperDashboard
	case domain.RoleCarrier:
		variant = s.carrierDashboard
	case domain.RoleDispatcher:
		variant = s.dispatcherDashboard
	default:
		return nil, domain.NewValidationError("role", "must be one of SHIPPER, CARRIER, DISPATCHER")
	}

	metrics, charts, err := variant(ctx, in, windowStart)
	if err != nil {
		return nil, err
	}
	return &domain.DashboardAnalytics{
		Role:        scope.Role,
		GeneratedAt: now,
		Metrics:     metrics,
		Charts:      charts,
	}, nil
}

// shipperDashboard 货主：在途、待发、本月支出、准时率；支出曲线
func (s *AnalyticsService) shipperDashboard(_ context.Context, in *dashboardInput, windowStart time.Time) (domain.KPISet, domain.Charts, error) {
	kpis := domain.ShipperKPIs{
		ActiveShipments:   in.countStatus(domain.ShipmentStatus.IsActive),
		PendingDeliveries: in.countStatus(isPending),
		TotalSpentMTD:     sumPrice(in.shipments, in.monthStart, isBillable),
		OnTimeRate:        onTimeRate(in.shipments, windowStart),
	}

	charts := domain.EmptyCharts()
	charts.ShipmentStatusDistribution = statusDistribution(in.statuses)
	charts.RevenueOrCostOverTime = amountSeries(in.shipments, windowStart, isBillable)
	charts.DeliveryPerformance = performanceSeries(in.shipments, windowStart)
	charts.TopRoutes = topRoutes(in.shipments, windowStart)
	return kpis, charts, nil
}

// carrierDashboard 承运商：在途任务、可接任务、本月收入、平均评分；收入曲线
func (s *AnalyticsService) carrierDashboard(ctx context.Context, in *dashboardInput, windowStart time.Time) (domain.KPISet, domain.Charts, error) {
	available, err := s.repo.CountOpenJobs(ctx, in.scope.TenantID)
	if err != nil {
		return nil, domain.Charts{}, err
	}

	kpis := domain.CarrierKPIs{
		ActiveJobs:    in.countStatus(domain.ShipmentStatus.IsActive),
		AvailableJobs: available,
		RevenueMTD:    sumPrice(in.shipments, in.monthStart, domain.ShipmentStatus.IsFinished),
		AverageRating: averageRating(in.shipments, windowStart),
	}

	charts := domain.EmptyCharts()
	charts.ShipmentStatusDistribution = statusDistribution(in.statuses)
	charts.RevenueOrCostOverTime = amountSeries(in.shipments, windowStart, domain.ShipmentStatus.IsFinished)
	charts.DeliveryPerformance = performanceSeries(in.shipments, windowStart)
	return kpis, charts, nil
}

// dispatcherDashboard 调度员：全租户在途、在线承运商、问题上报、准时率
func (s *AnalyticsService) dispatcherDashboard(ctx context.Context, in *dashboardInput, windowStart time.Time) (domain.KPISet, domain.Charts, error) {
	var carriers, issues int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		carriers, err = s.repo.CountDistinctCarriers(gctx, in.scope.TenantID, domain.ActiveStatuses())
		return err
	})
	g.Go(func() error {
		var err error
		issues, err = s.repo.CountActivities(gctx, in.scope, domain.ActivityIssueReported, windowStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.Charts{}, err
	}

	kpis := domain.DispatcherKPIs{
		TotalActiveShipments: in.countStatus(domain.ShipmentStatus.IsActive),
		CarriersOnline:       carriers,
		IssuesReported:       issues,
		OnTimeRate:           onTimeRate(in.shipments, windowStart),
	}

	charts := domain.EmptyCharts()
	charts.ShipmentStatusDistribution = statusDistribution(in.statuses)
	charts.RevenueOrCostOverTime = amountSeries(in.shipments, windowStart, isBillable)
	charts.DeliveryPerformance = performanceSeries(in.shipments, windowStart)
	charts.TopRoutes = topRoutes(in.shipments, windowStart)
	return kpis, charts, nil
}

func isPending(s domain.ShipmentStatus) bool {
	return s == domain.ShipmentPending
}

// isBillable 取消的运单不计费
func isBillable(s domain.ShipmentStatus) bool {
	return s != domain.ShipmentCancelled
}

func statusDistribution(counts []domain.StatusCount) []domain.StatusCount {
	out := make([]domain.StatusCount, 0, len(counts))
	for _, c := range counts {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.StatusCount) int {
		return cmp.Compare(a.Status, b.Status)
	})
	return out
}

// sumPrice 汇总 since 之后创建且状态满足条件的运单金额
func sumPrice(shipments []domain.Shipment, since time.Time, include func(domain.ShipmentStatus) bool) float64 {
	var total float64
	for i := range shipments {
		sh := &shipments[i]
		if !sh.CreatedAt.Before(since) && include(sh.Status) {
			total += sh.Price
		}
	}
	return domain.Round2(total)
}

// onTimeRate 窗口内已送达运单中准时送达的比例
func onTimeRate(shipments []domain.Shipment, since time.Time) float64 {
	var finished, onTime int64
	for i := range shipments {
		sh := &shipments[i]
		if sh.CreatedAt.Before(since) || !sh.Status.IsFinished() {
			continue
		}
		finished++
		if sh.OnTime() {
			onTime++
		}
	}
	return domain.Percent(onTime, finished)
}

func averageRating(shipments []domain.Shipment, since time.Time) float64 {
	var sum float64
	var n int
	for i := range shipments {
		sh := &shipments[i]
		if sh.CreatedAt.Before(since) || sh.Rating <= 0 {
			continue
		}
		sum += sh.Rating
		n++
	}
	if n == 0 {
		return 0
	}
	return domain.Round2(sum / float64(n))
}

// amountSeries 按创建日（UTC）汇总金额，日期升序
func amountSeries(shipments []domain.Shipment, since time.Time, include func(domain.ShipmentStatus) bool) []domain.AmountPoint {
	byDay := make(map[string]float64)
	for i := range shipments {
		sh := &shipments[i]
		if sh.CreatedAt.Before(since) || !include(sh.Status) {
			continue
		}
		byDay[domain.DayKey(sh.CreatedAt)] += sh.Price
	}

	out := make([]domain.AmountPoint, 0, len(byDay))
	for day, amount := range byDay {
		out = append(out, domain.AmountPoint{Date: day, Amount: domain.Round2(amount)})
	}
	slices.SortFunc(out, func(a, b domain.AmountPoint) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return out
}

// performanceSeries 按送达日（UTC）统计准时率与延误率
func performanceSeries(shipments []domain.Shipment, since time.Time) []domain.PerformancePoint {
	type bucket struct{ finished, onTime int64 }
	byDay := make(map[string]*bucket)
	for i := range shipments {
		sh := &shipments[i]
		if !sh.Status.IsFinished() || sh.DeliveredAt == nil || sh.DeliveredAt.Before(since) {
			continue
		}
		day := domain.DayKey(*sh.DeliveredAt)
		b, ok := byDay[day]
		if !ok {
			b = &bucket{}
			byDay[day] = b
		}
		b.finished++
		if sh.OnTime() {
			b.onTime++
		}
	}

	out := make([]domain.PerformancePoint, 0, len(byDay))
	for day, b := range byDay {
		out = append(out, domain.PerformancePoint{
			Date:        day,
			OnTimeRate:  domain.Percent(b.onTime, b.finished),
			DelayedRate: domain.Percent(b.finished-b.onTime, b.finished),
		})
	}
	slices.SortFunc(out, func(a, b domain.PerformancePoint) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return out
}

// topRoutes 窗口内运单最多的线路，数量降序、线路名升序
func topRoutes(shipments []domain.Shipment, since time.Time) []domain.RouteCount {
	counts := make(map[string]int64)
	for i := range shipments {
		sh := &shipments[i]
		if sh.CreatedAt.Before(since) || sh.Origin == "" || sh.Destination == "" {
			continue
		}
		counts[sh.Route()]++
	}

	out := make([]domain.RouteCount, 0, len(counts))
	for route, n := range counts {
		out = append(out, domain.RouteCount{Route: route, Shipments: n})
	}
	slices.SortFunc(out, func(a, b domain.RouteCount) int {
		if c := cmp.Compare(b.Shipments, a.Shipments); c != 0 {
			return c
		}
		return cmp.Compare(a.Route, b.Route)
	})
	if len(out) > topRoutesLimit {
		out = out[:topRoutesLimit]
	}
	return out
}
