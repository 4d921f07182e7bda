package telemetry

import (
	"sync"
	"time"

	"github.com/db-tech/conbee2panel/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the last panel snapshot seen on the event stream as
// Prometheus gauges.
type Collector struct {
	mu           sync.RWMutex
	telemetry    domain.Telemetry
	lastData     time.Time
	monitoring   bool
	connected    bool
	status       domain.InitStatus
	subscription *eventstream.Subscription
	eventStream  *eventstream.EventStream

	housePower     *prometheus.Desc
	pvPower        *prometheus.Desc
	overproduction *prometheus.Desc
	plugOn         *prometheus.Desc
	monitoringOn   *prometheus.Desc
	connectedDesc  *prometheus.Desc
	statusDesc     *prometheus.Desc
	lastDataDesc   *prometheus.Desc
}

func NewCollector(eventStream *eventstream.EventStream) *Collector {
	c := &Collector{
		eventStream: eventStream,
		status:      domain.StatusOk,
		housePower: prometheus.NewDesc(
			"conbee2panel_house_power_watts",
			"House power consumption in watts",
			nil, nil,
		),
		pvPower: prometheus.NewDesc(
			"conbee2panel_pv_power_watts",
			"PV power generated in watts",
			nil, nil,
		),
		overproduction: prometheus.NewDesc(
			"conbee2panel_overproduction_watts",
			"Power exported to the grid in watts, negative when importing",
			nil, nil,
		),
		plugOn: prometheus.NewDesc(
			"conbee2panel_plug_on",
			"Monitored plug is switched on (1=yes, 0=no)",
			nil, nil,
		),
		monitoringOn: prometheus.NewDesc(
			"conbee2panel_monitoring_enabled",
			"Controller monitoring is enabled (1=yes, 0=no)",
			nil, nil,
		),
		connectedDesc: prometheus.NewDesc(
			"conbee2panel_controller_connected",
			"Connection to the controller is open (1=yes, 0=no)",
			nil, nil,
		),
		statusDesc: prometheus.NewDesc(
			"conbee2panel_router_status",
			"Current router status, 1 for the active one",
			[]string{"status"}, nil,
		),
		lastDataDesc: prometheus.NewDesc(
			"conbee2panel_last_data_timestamp_seconds",
			"Unix time of the last data push",
			nil, nil,
		),
	}
	c.subscription = eventStream.Subscribe(c.onEvent)
	return c
}

// Close stops following the event stream.
func (c *Collector) Close() {
	c.eventStream.Unsubscribe(c.subscription)
}

func (c *Collector) onEvent(evt interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := evt.(type) {
	case domain.TelemetryUpdatedEvent:
		c.telemetry = e.Telemetry
		c.lastData = time.Now()
	case domain.MonitoringUpdatedEvent:
		c.monitoring = e.Enabled
	case domain.ConnectionUpdatedEvent:
		c.connected = e.Connected
	case domain.StatusUpdatedEvent:
		c.status = e.Response.Status
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.housePower
	ch <- c.pvPower
	ch <- c.overproduction
	ch <- c.plugOn
	ch <- c.monitoringOn
	ch <- c.connectedDesc
	ch <- c.statusDesc
	ch <- c.lastDataDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, boolValue(c.connected))
	ch <- prometheus.MustNewConstMetric(c.monitoringOn, prometheus.GaugeValue, boolValue(c.monitoring))
	for s := domain.StatusOk; s <= domain.StatusLogin; s++ {
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, boolValue(s == c.status), s.String())
	}

	// no data push yet, nothing to report
	if c.lastData.IsZero() {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.housePower, prometheus.GaugeValue, c.telemetry.HousePowerConsumption)
	ch <- prometheus.MustNewConstMetric(c.pvPower, prometheus.GaugeValue, c.telemetry.PVPowerGenerated)
	ch <- prometheus.MustNewConstMetric(c.overproduction, prometheus.GaugeValue, c.telemetry.GridOut)
	ch <- prometheus.MustNewConstMetric(c.plugOn, prometheus.GaugeValue, boolValue(c.telemetry.SocketState))
	ch <- prometheus.MustNewConstMetric(c.lastDataDesc, prometheus.GaugeValue, float64(c.lastData.Unix()))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
