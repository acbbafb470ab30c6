package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// WalletInitTotal counts wallet initialisation attempts by outcome.
	WalletInitTotal *prometheus.CounterVec
	// WalletSettlementTotal counts settlement outcomes per wallet.
	WalletSettlementTotal *prometheus.CounterVec
	// WalletSettlementStepLatency records per-step settlement latency in milliseconds.
	WalletSettlementStepLatency *prometheus.HistogramVec
	// SdkScriptLoadTotal counts external SDK script load outcomes.
	SdkScriptLoadTotal *prometheus.CounterVec
	// PaySessionTransitions counts payment session state machine transitions.
	PaySessionTransitions *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		WalletInitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_init_total",
			Help:      "Count of wallet initialisation outcomes.",
		}, []string{"wallet", "result"})
		WalletSettlementTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_settlement_total",
			Help:      "Count of settlement outcomes per wallet.",
		}, []string{"wallet", "result"})
		WalletSettlementStepLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wallet_settlement_step_duration_ms",
			Help:      "Latency of individual settlement steps in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"step", "result"})
		SdkScriptLoadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sdk_script_load_total",
			Help:      "Count of external SDK script load outcomes.",
		}, []string{"result"})
		PaySessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pay_session_transitions_total",
			Help:      "Count of payment session state transitions.",
		}, []string{"from_state", "to_state"})

		mustRegisterCollector(reg, WalletInitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WalletInitTotal = v
			}
		})
		mustRegisterCollector(reg, WalletSettlementTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WalletSettlementTotal = v
			}
		})
		mustRegisterCollector(reg, WalletSettlementStepLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WalletSettlementStepLatency = v
			}
		})
		mustRegisterCollector(reg, SdkScriptLoadTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SdkScriptLoadTotal = v
			}
		})
		mustRegisterCollector(reg, PaySessionTransitions, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaySessionTransitions = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
