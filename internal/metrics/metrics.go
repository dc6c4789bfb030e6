// Package metrics define los collectors de Prometheus del coordinador de sesión.
// Viven en un paquete aparte para que signin/reauth/listener no dependan del host HTTP.
package metrics

import (
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FlowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_flow_total",
		Help: "Flujos de autenticación terminados por resultado",
	}, []string{"flow", "outcome"}) // outcome: ok | <kind de autherr>

	FlowDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "session_flow_duration_seconds",
		Help:    "Duración de los flujos de autenticación",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"flow"})

	StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_state_transitions_total",
		Help: "Transiciones efectivas de la máquina de estados por estado destino",
	}, []string{"state"})

	ListenerStreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_listener_stream_errors_total",
		Help: "Errores reportados por el stream de cambios de sesión del provider",
	})

	ListenerResubscribes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_listener_resubscribes_total",
		Help: "Re-suscripciones al stream de cambios de sesión",
	})

	ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "session_provider_call_duration_seconds",
		Help:    "Latencia de las llamadas al identity provider",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"op", "result"})
)

// Register registra los collectors en reg (o en el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		FlowTotal, FlowDuration, StateTransitions,
		ListenerStreamErrors, ListenerResubscribes, ProviderCallDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// ObserveFlow registra el resultado y la duración de un flujo.
func ObserveFlow(flow string, start time.Time, err error) {
	FlowTotal.WithLabelValues(flow, Outcome(err)).Inc()
	FlowDuration.WithLabelValues(flow).Observe(time.Since(start).Seconds())
}

// ObserveProviderCall registra la latencia de una llamada al provider.
func ObserveProviderCall(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderCallDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// Outcome traduce un error al label outcome.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(autherr.KindOf(err))
}
