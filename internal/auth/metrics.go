package auth

import "github.com/prometheus/client_golang/prometheus"

const outcomeOK = "ok"

// Metrics は認証ルートの処理結果を集計します。
type Metrics struct {
	Requests *prometheus.CounterVec
}

// NewMetrics はメトリクスを作成して reg に登録します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_requests_total",
				Help: "Authentication requests by route and outcome",
			},
			[]string{"route", "outcome"},
		),
	}
	reg.MustRegister(m.Requests)
	return m
}

func (m *Metrics) observe(route string, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = string(Classify(err))
	}
	m.Requests.WithLabelValues(route, outcome).Inc()
}
