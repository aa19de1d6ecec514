package pipeline

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/broadcast"
	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/features"
	"MarketPulse/internal/forecast"
	"MarketPulse/internal/marketdata"
	"MarketPulse/internal/portfolio"
	"MarketPulse/internal/signal"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

// Deps are the collaborators the orchestrator drives each cycle.
type Deps struct {
	Source      *marketdata.Source
	Minute      *forecast.Model
	Long        *forecast.Model
	Engine      *signal.Engine
	Simulator   *portfolio.Simulator
	Broadcaster *broadcast.Broadcaster
	Metrics     *metrics.Recorder
	Log         *logger.Logger
	Settings    models.Settings
}

// cycleState is everything the last full refresh produced that the
// cheaper price-only refresh reuses.
type cycleState struct {
	bars          []models.Bar
	minuteRows    []models.FeatureRow
	longRows      []models.FeatureRow
	livePrice     float64
	nextMinute    float64
	nextHour      float64
	minuteMetrics models.HorizonMetrics
	hourMetrics   models.HorizonMetrics
	series        models.Series
	fetchOK       bool
	errMsg        string
	ranOnce       bool
}

// Orchestrator owns the refresh loop. Fetching and training run off the
// state mutex; the mutex serializes portfolio mutation, signal
// evaluation and snapshot assembly so manual trades never split across
// a refresh tick.
type Orchestrator struct {
	source *marketdata.Source
	minute *forecast.Model
	long   *forecast.Model
	engine *signal.Engine
	sim    *portfolio.Simulator
	bcast  *broadcast.Broadcaster
	rec    *metrics.Recorder
	log    *logger.Logger

	mu       sync.Mutex
	settings models.Settings
	state    cycleState

	retrainPending atomic.Bool
	wake           chan struct{}
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		source:   d.Source,
		minute:   d.Minute,
		long:     d.Long,
		engine:   d.Engine,
		sim:      d.Simulator,
		bcast:    d.Broadcaster,
		rec:      d.Metrics,
		log:      d.Log,
		settings: d.Settings,
		wake:     make(chan struct{}, 1),
	}
}

// Run drives the refresh loop until ctx is cancelled. A full refresh
// runs on the model cadence; between full refreshes the cheaper
// price-only refresh re-marks the portfolio and re-evaluates signals.
func (o *Orchestrator) Run(ctx context.Context) {
	o.publishInitializing()
	o.loadArtifacts(ctx)
	o.fullRefresh(ctx)

	for {
		priceEvery, modelEvery := o.cadences()
		lastFull := time.Now()

		ticker := time.NewTicker(priceEvery)
	inner:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-o.wake:
				ticker.Stop()
				o.fullRefresh(ctx)
				break inner
			case <-ticker.C:
				if time.Since(lastFull) >= modelEvery {
					o.fullRefresh(ctx)
					lastFull = time.Now()
				} else {
					o.priceRefresh(ctx)
				}
				if p, m := o.cadences(); p != priceEvery || m != modelEvery {
					ticker.Stop()
					break inner
				}
			}
		}
	}
}

func (o *Orchestrator) cadences() (price, model time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return time.Duration(o.settings.PriceRefreshSeconds) * time.Second,
		time.Duration(o.settings.ModelRefreshSeconds) * time.Second
}

// Settings returns a copy of the current runtime settings.
func (o *Orchestrator) Settings() models.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// UpdateSettings applies a partial settings change. Changing the ticker
// or either horizon invalidates the trained models, so those changes
// force a retrain; every accepted change triggers an immediate full
// refresh.
func (o *Orchestrator) UpdateSettings(u models.SettingsUpdate) (models.Settings, error) {
	o.mu.Lock()
	next, err := o.settings.Apply(u)
	if err != nil {
		o.mu.Unlock()
		return o.settings, err
	}
	prev := o.settings
	o.settings = next
	o.engine.SetMultipliers(next.BuyMultiplier, next.SellMultiplier)
	o.sim.SetMaxProfitPoints(next.ChartPoints)
	if next.Ticker != prev.Ticker {
		// Stale forecasts for another symbol must not leak into the
		// first snapshot after the switch.
		o.state = cycleState{ranOnce: o.state.ranOnce}
	}
	o.mu.Unlock()

	if next.Ticker != prev.Ticker ||
		next.MinuteHorizon != prev.MinuteHorizon ||
		next.LongHorizonSteps != prev.LongHorizonSteps {
		o.retrainPending.Store(true)
	}
	o.nudge()
	return next, nil
}

// RequestRetrain flags a retrain for the next cycle. Concurrent requests
// collapse into a single retrain.
func (o *Orchestrator) RequestRetrain() {
	o.retrainPending.Store(true)
	o.nudge()
}

func (o *Orchestrator) nudge() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Buy opens a position at the current live price. An amount of zero
// means the configured invest amount.
func (o *Orchestrator) Buy(amount float64) (models.TradeEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if amount == 0 {
		amount = o.settings.InvestAmount
	}
	price := o.state.livePrice
	ev, err := o.sim.Buy(amount, price)
	if err != nil {
		return models.TradeEvent{}, err
	}
	o.rec.RecordTrade(string(models.TradeBuy))
	o.publishLocked()
	return ev, nil
}

// Sell closes the open position at the current live price.
func (o *Orchestrator) Sell() (models.TradeEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ev, err := o.sim.Sell(o.state.livePrice)
	if err != nil {
		return models.TradeEvent{}, err
	}
	o.rec.RecordTrade(string(models.TradeSell))
	o.publishLocked()
	return ev, nil
}

func (o *Orchestrator) publishInitializing() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishLocked()
}

func (o *Orchestrator) loadArtifacts(ctx context.Context) {
	ticker := o.Settings().Ticker
	for _, m := range []*forecast.Model{o.minute, o.long} {
		a, err := m.Load(ctx, ticker)
		if err != nil {
			o.log.Warn("artifact load failed",
				logger.String("horizon", m.Horizon().ID),
				logger.Error(err))
			continue
		}
		if a != nil {
			m.Swap(a)
			o.log.Info("artifact restored",
				logger.String("horizon", m.Horizon().ID),
				logger.String("ticker", ticker))
		}
	}
}

// fullRefresh runs the whole cycle: fetch, features, train-or-reuse,
// predict, evaluate, mark, publish. Heavy work happens before the mutex
// is taken; only the final state swap and snapshot assembly hold it.
func (o *Orchestrator) fullRefresh(ctx context.Context) {
	started := time.Now()
	s := o.Settings()
	retrain := o.retrainPending.Swap(false)

	fetchStart := time.Now()
	intraday, err := o.source.Fetch(ctx, s.Ticker, "1m", s.IntradayDays, s.MaxPoints)
	o.rec.RecordRefresh("fetch", time.Since(fetchStart).Seconds())
	if err != nil {
		o.rec.RecordError("fetch")
		o.log.Error("market data fetch failed", logger.String("ticker", s.Ticker), logger.Error(err))
		if retrain {
			// Carry the request over to the next cycle instead of
			// silently dropping it.
			o.retrainPending.Store(true)
		}
		o.publishDegraded(err)
		return
	}

	contextBars, err := o.source.FetchContext(ctx, s.Ticker)
	if err != nil {
		o.log.Warn("context fetch failed, long horizon uses intraday only",
			logger.String("ticker", s.Ticker), logger.Error(err))
	}
	merged := marketdata.Merge(contextBars, intraday)

	minuteRows := features.Build(intraday, s.MinuteHorizon, o.minute.Horizon().GridInterval)
	longRows := features.Build(merged, s.LongHorizonSteps, o.long.Horizon().GridInterval)

	next := cycleState{
		bars:       intraday,
		minuteRows: minuteRows,
		longRows:   longRows,
		fetchOK:    true,
		ranOnce:    true,
	}
	if len(intraday) > 0 {
		next.livePrice = intraday[len(intraday)-1].Close
	}

	o.ensureArtifact(ctx, o.minute, s, minuteRows, retrain)
	o.ensureArtifact(ctx, o.long, s, longRows, retrain)

	next.nextMinute = o.forecastLive(o.minute, minuteRows)
	next.nextHour = o.forecastLive(o.long, longRows)
	next.minuteMetrics = o.minute.TailMetrics(o.minute.Current(), minuteRows)
	next.hourMetrics = o.long.TailMetrics(o.long.Current(), longRows)
	next.series = o.buildSeries(s, next)

	o.rec.RecordLastPrice(s.Ticker, next.livePrice)
	if !math.IsNaN(next.minuteMetrics.MAE) {
		o.rec.RecordTailMAE(s.Ticker, o.minute.Horizon().ID, next.minuteMetrics.MAE)
	}
	if !math.IsNaN(next.hourMetrics.MAE) {
		o.rec.RecordTailMAE(s.Ticker, o.long.Horizon().ID, next.hourMetrics.MAE)
	}

	o.mu.Lock()
	if o.settings.Ticker != s.Ticker {
		// Settings changed under us mid-cycle; discard this cycle's
		// results rather than publishing another symbol's state.
		o.mu.Unlock()
		return
	}
	o.state = next
	o.sim.Mark(next.livePrice, time.Now().UTC())
	o.autoTradeLocked()
	o.publishLocked()
	o.mu.Unlock()

	o.rec.RecordRefresh("cycle", time.Since(started).Seconds())
}

// priceRefresh updates the live price from the exchange without
// rebuilding features or touching models.
func (o *Orchestrator) priceRefresh(ctx context.Context) {
	s := o.Settings()
	if !o.hasRun() {
		return
	}

	bars, err := o.source.Fetch(ctx, s.Ticker, "1m", 1, 500)
	if err != nil {
		o.rec.RecordError("fetch")
		o.publishDegraded(err)
		return
	}
	if len(bars) == 0 {
		return
	}
	price := bars[len(bars)-1].Close
	o.rec.RecordLastPrice(s.Ticker, price)

	o.mu.Lock()
	if o.settings.Ticker != s.Ticker {
		o.mu.Unlock()
		return
	}
	o.state.livePrice = price
	o.state.fetchOK = true
	o.state.errMsg = ""
	o.sim.Mark(price, time.Now().UTC())
	o.autoTradeLocked()
	o.publishLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) hasRun() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.ranOnce
}

// ensureArtifact trains a new model when a retrain was requested or no
// artifact exists yet; otherwise the loaded artifact is reused. A
// training failure on one horizon leaves its previous artifact in place
// and never blocks the other horizon.
func (o *Orchestrator) ensureArtifact(ctx context.Context, m *forecast.Model, s models.Settings, rows []models.FeatureRow, retrain bool) {
	if !retrain && m.Current() != nil {
		return
	}

	trainRows := rows
	if s.TrainWindow > 0 && len(trainRows) > s.TrainWindow {
		trainRows = trainRows[len(trainRows)-s.TrainWindow:]
	}

	trainStart := time.Now()
	artifact, err := m.Train(trainRows)
	o.rec.RecordRefresh("train", time.Since(trainStart).Seconds())
	if err != nil {
		o.rec.RecordError("train")
		o.log.Error("training failed",
			logger.String("horizon", m.Horizon().ID),
			logger.String("ticker", s.Ticker),
			logger.Error(err))
		return
	}

	if err := m.Save(ctx, s.Ticker, artifact); err != nil {
		o.log.Warn("artifact save failed",
			logger.String("horizon", m.Horizon().ID),
			logger.Error(err))
	}
	m.Swap(artifact)
	o.log.Info("model trained",
		logger.String("horizon", m.Horizon().ID),
		logger.String("ticker", s.Ticker),
		logger.Float64("validation_mae", artifact.ValidationMAE),
		logger.Duration("took", time.Since(trainStart)))
}

// forecastLive predicts on the most recent unlabeled row.
func (o *Orchestrator) forecastLive(m *forecast.Model, rows []models.FeatureRow) float64 {
	a := m.Current()
	if a == nil || len(rows) == 0 {
		return math.NaN()
	}
	last := rows[len(rows)-1]
	if last.HasTarget {
		return math.NaN()
	}
	pred, err := m.Predict(a, last.Features)
	if err != nil {
		return math.NaN()
	}
	return pred
}

// buildSeries assembles the charting series. Actual prices come from the
// intraday bars; predicted validation/test come from re-predicting the
// 80-90% and 90-100% segments of the labeled minute rows; the forecast
// series carries the two live predictions placed at their horizon
// offsets.
func (o *Orchestrator) buildSeries(s models.Settings, st cycleState) models.Series {
	var series models.Series

	bars := st.bars
	if len(bars) > s.ChartPoints {
		bars = bars[len(bars)-s.ChartPoints:]
	}
	series.Actual = make([]models.SeriesPoint, 0, len(bars))
	for _, b := range bars {
		series.Actual = append(series.Actual, models.SeriesPoint{Timestamp: b.Timestamp, Value: b.Close})
	}

	labeled := make([]models.FeatureRow, 0, len(st.minuteRows))
	for _, row := range st.minuteRows {
		if row.HasTarget {
			labeled = append(labeled, row)
		}
	}
	if a := o.minute.Current(); a != nil && len(labeled) > 0 {
		n := len(labeled)
		valStart, testStart := n*8/10, n*9/10
		series.PredictedValidation = capPoints(o.minute.PredictSeries(a, labeled[valStart:testStart]), s.ChartPoints)
		series.PredictedTest = capPoints(o.minute.PredictSeries(a, labeled[testStart:]), s.ChartPoints)
	}

	if len(st.bars) > 0 {
		lastTS := st.bars[len(st.bars)-1].Timestamp
		if !math.IsNaN(st.nextMinute) {
			series.Forecast = append(series.Forecast, models.SeriesPoint{
				Timestamp: lastTS.Add(time.Duration(s.MinuteHorizon) * o.minute.Horizon().GridInterval),
				Value:     st.nextMinute,
				Label:     "Next minute",
			})
		}
		if !math.IsNaN(st.nextHour) {
			series.Forecast = append(series.Forecast, models.SeriesPoint{
				Timestamp: lastTS.Add(time.Duration(s.LongHorizonSteps) * o.long.Horizon().GridInterval),
				Value:     st.nextHour,
				Label:     "Long horizon",
			})
		}
	}
	return series
}

func capPoints(points []models.SeriesPoint, max int) []models.SeriesPoint {
	if max > 0 && len(points) > max {
		return points[len(points)-max:]
	}
	return points
}

// autoTradeLocked executes signal-driven trades inside the critical
// section so they serialize with manual trades and marks.
func (o *Orchestrator) autoTradeLocked() {
	sig := o.evaluateLocked()
	if !o.settings.AutoTrade {
		return
	}
	holding := o.sim.State().Holding()
	switch {
	case sig.Buy && !holding:
		if _, err := o.sim.Buy(o.settings.InvestAmount, o.state.livePrice); err == nil {
			o.rec.RecordTrade(string(models.TradeBuy))
			o.log.Info("auto trade executed", logger.String("kind", "buy"),
				logger.Float64("price", o.state.livePrice))
		}
	case sig.Sell && holding:
		if _, err := o.sim.Sell(o.state.livePrice); err == nil {
			o.rec.RecordTrade(string(models.TradeSell))
			o.log.Info("auto trade executed", logger.String("kind", "sell"),
				logger.Float64("price", o.state.livePrice))
		}
	}
}

func (o *Orchestrator) evaluateLocked() models.Signals {
	ps := o.sim.State()
	return o.engine.Evaluate(signal.Inputs{
		LastPrice:       o.state.livePrice,
		NextMinutePrice: o.state.nextMinute,
		NextHourPrice:   o.state.nextHour,
		MinuteMAE:       o.state.minuteMetrics.MAE,
		HourMAE:         o.state.hourMetrics.MAE,
		Holding:         ps.Holding(),
		LastBuyPrice:    ps.LastBuyPrice,
	})
}

func (o *Orchestrator) publishDegraded(cause error) {
	o.mu.Lock()
	o.state.fetchOK = false
	o.state.errMsg = cause.Error()
	o.state.ranOnce = true
	o.publishLocked()
	o.mu.Unlock()
}

// publishLocked assembles and publishes a snapshot from current state.
// Caller holds o.mu.
func (o *Orchestrator) publishLocked() {
	st := o.state
	status := models.StatusOK
	switch {
	case !st.ranOnce:
		status = models.StatusInitializing
	case !st.fetchOK:
		status = models.StatusStale
	}

	// NaN marks "no value yet" internally but is not representable in
	// JSON, so it turns into zero on the wire.
	snap := &models.Snapshot{
		Status:          status,
		Error:           st.errMsg,
		Ticker:          o.settings.Ticker,
		LatestPrice:     st.livePrice,
		NextMinutePrice: jsonSafe(st.nextMinute),
		NextHourPrice:   jsonSafe(st.nextHour),
		MinuteMAE:       jsonSafe(st.minuteMetrics.MAE),
		HourMAE:         jsonSafe(st.hourMetrics.MAE),
		MinuteMetrics:   safeMetrics(st.minuteMetrics),
		HourMetrics:     safeMetrics(st.hourMetrics),
		Signals:         o.evaluateLocked(),
		Portfolio:       o.sim.State(),
		Series:          st.series,
		UpdatedAt:       time.Now().UTC(),
	}
	o.bcast.Publish(context.Background(), snap)
}

func jsonSafe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func safeMetrics(m models.HorizonMetrics) models.HorizonMetrics {
	return models.HorizonMetrics{
		MAE:  jsonSafe(m.MAE),
		MSE:  jsonSafe(m.MSE),
		RMSE: jsonSafe(m.RMSE),
	}
}

// Snapshot returns the latest published snapshot.
func (o *Orchestrator) Snapshot() *models.Snapshot {
	if snap := o.bcast.Pull(); snap != nil {
		return snap
	}
	// Before Run's first publish.
	return &models.Snapshot{
		Status:    models.StatusInitializing,
		Ticker:    o.Settings().Ticker,
		UpdatedAt: time.Now().UTC(),
	}
}
