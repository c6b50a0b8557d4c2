// Package metrics publishes meter readings as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
	"github.com/NotCoffee418/iec62056_exporter/pkg/interpreter"
	"github.com/NotCoffee418/iec62056_exporter/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Sink struct {
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge

	meterInfo   *prometheus.GaugeVec
	handshakes  *prometheus.CounterVec
	sessionBaud prometheus.Gauge
}

var _ session.Sink = (*Sink)(nil)
var _ session.IdentitySink = (*Sink)(nil)
var _ session.HandshakeObserver = (*Sink)(nil)
var _ session.SessionEndObserver = (*Sink)(nil)

func NewSink() *Sink {
	powerFailures := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "power_failures",
		Help: "Number of power failures",
	}, []string{"line"})

	s := &Sink{
		registry: prometheus.NewRegistry(),
		meterInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "power_meter_info",
			Help: "Serial and version of power meter",
		}, []string{"serial", "version", "manufacturer", "model"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_handshakes_total",
			Help: "Handshake attempts by result",
		}, []string{"result"}),
		sessionBaud: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meter_session_baud",
			Help: "Baud rate negotiated for the current session",
		}),
	}

	powerConsumption := newGauge("power_consumption", "Power consumption in kWh")
	heatEnergy := newGauge("heat_energy", "Heat energy in MWh")
	heatVolume := newGauge("heat_flow_volume", "Heat flow volume in m3")
	powerOnHours := newGauge("power_on_hours", "Hours the meter has been powered")
	heatFlowHours := newGauge("heat_flow_hours", "Hours with heat flow")

	s.gauges = map[string]prometheus.Gauge{
		interpreter.CodeEnergyKWh:       powerConsumption,
		interpreter.CodePhaseFailuresL1: powerFailures.WithLabelValues("L1"),
		interpreter.CodePhaseFailuresL2: powerFailures.WithLabelValues("L2"),
		interpreter.CodePhaseFailuresL3: powerFailures.WithLabelValues("L3"),
		interpreter.CodeHeatEnergyMWh:   heatEnergy,
		interpreter.CodeHeatVolumeM3:    heatVolume,
		interpreter.CodePowerOnHours:    powerOnHours,
		interpreter.CodeHeatFlowHours:   heatFlowHours,
	}

	s.registry.MustRegister(
		powerConsumption, powerFailures, heatEnergy, heatVolume, powerOnHours, heatFlowHours,
		s.meterInfo, s.handshakes, s.sessionBaud,
	)
	return s
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Sink) Observe(code, content string) {
	gauge, ok := s.gauges[code]
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(content, 64)
	if err != nil {
		log.WithFields(log.Fields{"code": code, "content": content}).Debug("Ignoring non-numeric value")
		return
	}
	gauge.Set(value)
}

// ObserveIdentity replaces the info series so only the current identity is
// exported.
func (s *Sink) ObserveIdentity(id session.Identity) {
	s.meterInfo.Reset()
	s.meterInfo.WithLabelValues(id.SerialNumber, id.FirmwareVersion, id.Manufacturer, id.Model).Set(1)
}

func (s *Sink) ObserveHandshake(sess *iec62056.Session, err error) {
	if err != nil {
		s.handshakes.WithLabelValues("failure").Inc()
		return
	}
	s.handshakes.WithLabelValues("success").Inc()
	s.sessionBaud.Set(float64(sess.NegotiatedBaud))
}

// ObserveSessionEnd drops the identity series and the session baud so a
// replaced meter is never exported under the old labels.
func (s *Sink) ObserveSessionEnd() {
	s.meterInfo.Reset()
	s.sessionBaud.Set(0)
}
