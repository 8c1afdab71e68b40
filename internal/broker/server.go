package broker

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"wgmesh/internal/exchange"
	"wgmesh/internal/logging"
)

// Publisher sends an accepted peer announcement to the workers.
type Publisher interface {
	Publish(event exchange.PeerEvent) error
}

// Metrics holds Prometheus metrics for the API.
type Metrics struct {
	Exchanges *prometheus.CounterVec // labels: domain, status
}

// API handles the key-exchange HTTP surface.
type API struct {
	publisher Publisher
	domains   []string
	logger    logging.Logger
	metrics   *Metrics
}

// NewAPI returns an API publishing to the given publisher for the
// configured domains.
func NewAPI(publisher Publisher, domains []string, logger logging.Logger, metrics *Metrics) *API {
	return &API{
		publisher: publisher,
		domains:   domains,
		logger:    logger,
		metrics:   metrics,
	}
}

// RegisterRoutes mounts the key-exchange endpoints on the router.
func (a *API) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/wg/key/exchange", a.handleKeyExchange)
	}
}

func (a *API) handleKeyExchange(c *gin.Context) {
	var event exchange.PeerEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		a.count(event.Domain, "rejected")
		return
	}

	if err := event.Validate(a.domains); err != nil {
		a.logger.WithError(err).Warn("Rejected key exchange request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		a.count(event.Domain, "rejected")
		return
	}

	if err := a.publisher.Publish(event); err != nil {
		a.logger.WithError(err).WithFields(logging.Fields{
			"domain":     event.Domain,
			"public_key": event.PublicKey,
		}).Error("Failed to publish peer announcement")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to publish key"})
		a.count(event.Domain, "failed")
		return
	}

	a.count(event.Domain, "published")
	a.logger.WithFields(logging.Fields{
		"domain":     event.Domain,
		"public_key": event.PublicKey,
		"remove":     event.Remove,
	}).Info("Published peer announcement")
	c.JSON(http.StatusOK, gin.H{"message": "OK"})
}

func (a *API) count(domain, status string) {
	if a.metrics == nil || a.metrics.Exchanges == nil {
		return
	}
	if domain == "" {
		domain = "unknown"
	}
	a.metrics.Exchanges.WithLabelValues(domain, status).Inc()
}
