package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devblac/bridge-indexer/internal/model"
)

// Metrics holds the indexer's Prometheus collectors. It implements
// source.Observer; a nil *Metrics records nothing.
type Metrics struct {
	polls         *prometheus.CounterVec
	records       *prometheus.CounterVec
	parseFailures *prometheus.CounterVec
	retries       *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	cursorBlock   *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init registers the metrics with the default registry (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// New builds and registers a fresh set of collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_indexer_polls_total",
			Help: "Cursor polls by network and outcome",
		}, []string{"network", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_indexer_records_total",
			Help: "Bridge records produced by network and transaction type",
		}, []string{"network", "txn_type"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_indexer_parse_failures_total",
			Help: "Items dropped by a parser",
		}, []string{"network"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_indexer_retries_total",
			Help: "Connector retries",
		}, []string{"network"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_indexer_deliveries_total",
			Help: "Sink deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_indexer_deliveries_dropped_total",
			Help: "Deliveries skipped by dedupe or rate limit",
		}, []string{"reason"}),
		cursorBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_indexer_cursor_block",
			Help: "Last committed block, round, slot or timestamp per cursor",
		}, []string{"cursor"}),
	}
	reg.MustRegister(m.polls, m.records, m.parseFailures, m.retries, m.deliveries, m.dropped, m.cursorBlock)
	return m
}

// ObservePoll counts one poll of a cursor.
func (m *Metrics) ObservePoll(network string, _ int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.polls.WithLabelValues(network, outcome).Inc()
}

// ObserveParseFailure counts an item a parser dropped.
func (m *Metrics) ObserveParseFailure(network string) {
	if m != nil {
		m.parseFailures.WithLabelValues(network).Inc()
	}
}

// ObserveRetry counts a connector retry.
func (m *Metrics) ObserveRetry(network string) {
	if m != nil {
		m.retries.WithLabelValues(network).Inc()
	}
}

// Records counts produced records by type.
func (m *Metrics) Records(recs []model.PartialBridgeTxn) {
	if m == nil {
		return
	}
	for _, r := range recs {
		m.records.WithLabelValues(r.Network, string(r.TxnType)).Inc()
	}
}

// Delivered counts a sink delivery.
func (m *Metrics) Delivered(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveries.WithLabelValues(sink, outcome).Inc()
}

// Dropped counts a delivery skipped for reason ("dedupe", "rate_limit").
func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

// CursorAt records the committed position of a cursor.
func (m *Metrics) CursorAt(key string, block uint64) {
	if m != nil {
		m.cursorBlock.WithLabelValues(key).Set(float64(block))
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
