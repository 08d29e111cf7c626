package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/models"
)

// CountsSource provides the admin figures exported as gauges
type CountsSource interface {
	AdminCounts(ctx context.Context, since time.Time) (*models.AdminCounts, error)
}

// Collector exports entity counts read from the store at scrape time
type Collector struct {
	source  CountsSource
	logger  *logging.Logger
	timeout time.Duration

	entities *prometheus.Desc
	up       *prometheus.Desc
}

// NewCollector creates a store-backed collector. Register it with prometheus.MustRegister.
func NewCollector(source CountsSource, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Collector{
		source:  source,
		logger:  logger.WithComponent("metrics"),
		timeout: 5 * time.Second,
		entities: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "entities"),
			"Number of stored entities by kind",
			[]string{"kind"}, nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "up"),
			"Whether the last store scrape succeeded",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entities
	ch <- c.up
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	counts, err := c.source.AdminCounts(ctx, day)
	if err != nil {
		c.logger.Warn("Failed to collect store metrics", map[string]interface{}{"error": err})
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	gauges := map[string]int{
		"customers":           counts.Customers,
		"customers_active":    counts.ActiveCustomers,
		"customers_suspended": counts.SuspendedCustomers,
		"carriers":            counts.Carriers,
		"rate_cards":          counts.RateCards,
		"routes":              counts.Routes,
		"dids":                counts.DIDsTotal,
		"dids_assigned":       counts.DIDsAssigned,
		"kyc_pending":         counts.PendingKYC,
		"trash_items":         counts.TrashItems,
		"cdrs_today":          counts.CDRsToday,
	}
	for kind, n := range gauges {
		ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(n), kind)
	}
}
