// Registers:
//
//	#FundingFlow_fetch_success_total
//	#FundingFlow_fetch_errors_total
//	#FundingFlow_rates_collected_total
//	#FundingFlow_opportunities_found
//	#go_* and process_* system metrics
//
// Exposes them on the configured listen address using the Prometheus HTTP
// handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once          sync.Once
	fetchSuccess  *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	ratesRead     *prometheus.CounterVec
	opportunities prometheus.Gauge
)

func Init(listen string) {
	once.Do(func() {
		fetchSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "FundingFlow_fetch_success_total",
				Help: "Number of successful exchange funding fetches",
			},
			[]string{"exchange"},
		)

		fetchErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "FundingFlow_fetch_errors_total",
				Help: "Number of failed exchange funding fetches",
			},
			[]string{"exchange"},
		)

		ratesRead = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "FundingFlow_rates_collected_total",
				Help: "Number of funding rate records collected",
			},
			[]string{"exchange"},
		)

		opportunities = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "FundingFlow_opportunities_found",
				Help: "Number of arbitrage opportunities in the latest run",
			},
		)

		_ = prometheus.Register(fetchSuccess)
		_ = prometheus.Register(fetchErrors)
		_ = prometheus.Register(ratesRead)
		_ = prometheus.Register(opportunities)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if listen == "" {
			listen = ":2112"
		}

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(listen, nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementFetchSuccess increases the success counter for an exchange.
func IncrementFetchSuccess(exchange string) {
	if fetchSuccess != nil {
		fetchSuccess.WithLabelValues(exchange).Inc()
	}
}

// IncrementFetchError increases the error counter for an exchange.
func IncrementFetchError(exchange string) {
	if fetchErrors != nil {
		fetchErrors.WithLabelValues(exchange).Inc()
	}
}

// AddRatesCollected adds the number of records read from an exchange.
func AddRatesCollected(exchange string, count int) {
	if ratesRead != nil {
		ratesRead.WithLabelValues(exchange).Add(float64(count))
	}
}

// SetOpportunities records the opportunity count of the latest run.
func SetOpportunities(count int) {
	if opportunities != nil {
		opportunities.Set(float64(count))
	}
}
