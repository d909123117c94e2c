// Package metrics exports stake pool operation outcomes and pool state to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

const namespace = "stakepool"

// Recorder implements stakepool.Recorder on a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	version    prometheus.Gauge
	epoch      prometheus.Gauge
	rate       prometheus.Gauge
	totalStake prometheus.Gauge
	supply     prometheus.Gauge
	reserve    prometheus.Gauge
	validators prometheus.Gauge
	transient  *prometheus.GaugeVec
	active     *prometheus.GaugeVec
}

// NewRecorder creates a recorder. When withProcess is set the registry also
// carries the Go runtime and process collectors.
func NewRecorder(withProcess bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pool operations by kind and outcome.",
		}, []string{"op", "outcome", "code"}),
		version: gauge("version", "Committed pool version."),
		epoch:   gauge("last_update_epoch", "Epoch of the last updater pass."),
		rate:    gauge("exchange_rate", "Lamports per pool token."),
		totalStake: gauge("total_stake_lamports",
			"Lamports under pool management."),
		supply:     gauge("pool_token_supply", "Outstanding pool tokens."),
		reserve:    gauge("reserve_lamports", "Undelegated reserve lamports."),
		validators: gauge("validators", "Validators in the registry."),
		transient: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transient_lamports",
			Help:      "Transient stake in flight by direction.",
		}, []string{"direction"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_active_lamports",
			Help:      "Active stake per validator.",
		}, []string{"vote"}),
	}
	r.registry.MustRegister(r.operations, r.version, r.epoch, r.rate, r.totalStake,
		r.supply, r.reserve, r.validators, r.transient, r.active)
	if withProcess {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// ObserveOperation implements stakepool.Recorder.
func (r *Recorder) ObserveOperation(op stakepool.Operation, code stakepool.ErrorCode) {
	outcome := "ok"
	if code != 0 {
		outcome = "rejected"
	}
	r.operations.WithLabelValues(op.String(), outcome, strconv.FormatUint(uint64(code), 10)).Inc()
}

// ObservePool implements stakepool.Recorder.
func (r *Recorder) ObservePool(p *stakepool.Pool) {
	r.version.Set(float64(p.Version))
	r.epoch.Set(float64(p.LastUpdateEpoch))
	r.rate.Set(p.ExchangeRate())
	r.totalStake.Set(float64(p.TotalStakeLamports))
	r.supply.Set(float64(p.TotalPoolTokens))
	r.reserve.Set(float64(p.Reserve.Lamports))
	r.validators.Set(float64(len(p.Validators)))

	var activating, deactivating uint64
	r.active.Reset()
	for _, v := range p.Validators {
		r.active.WithLabelValues(v.VoteAccount.String()).Set(float64(v.ActiveStakeLamports))
		switch v.TransientDirection {
		case stakepool.TransientActivating:
			activating += v.TransientStakeLamports
		case stakepool.TransientDeactivating:
			deactivating += v.TransientStakeLamports
		}
	}
	r.transient.WithLabelValues("activating").Set(float64(activating))
	r.transient.WithLabelValues("deactivating").Set(float64(deactivating))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
