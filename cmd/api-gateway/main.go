package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/config"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/discovery"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/logging"
)

// Gateway proxies client traffic to whichever service instances Consul
// currently reports healthy. It never participates in the saga; events flow
// only over the bus.
type Gateway struct {
	consul   *discovery.ConsulClient
	log      *zap.SugaredLogger
	proxies  map[string]*httputil.ReverseProxy
	mutex    sync.RWMutex
	services map[string]string
}

func NewGateway(log *zap.SugaredLogger, consul *discovery.ConsulClient) *Gateway {
	g := &Gateway{
		consul:   consul,
		log:      log,
		proxies:  make(map[string]*httputil.ReverseProxy),
		services: make(map[string]string),
	}

	g.discoverServices()
	go g.watchServices()

	return g
}

func (g *Gateway) discoverServices() {
	services := map[string]string{
		"product-service": "http://product-service:8081",
		"order-service":   "http://order-service:8082",
	}

	for svc, fallback := range services {
		serviceURL, err := g.consul.GetServiceURL(svc)
		if err != nil {
			g.log.Warnf("⚠️ Service %s not found, using DNS fallback: %v", svc, err)
			serviceURL = fallback
		}
		g.updateProxy(svc, serviceURL)
	}
}

func (g *Gateway) updateProxy(serviceName, serviceURL string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	target, err := url.Parse(serviceURL)
	if err != nil {
		g.log.Errorf("❌ Invalid URL for %s: %v", serviceName, err)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.log.Errorf("❌ Proxy error for %s: %v", serviceName, err)
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "service unavailable"}`)
	}

	g.proxies[serviceName] = proxy
	g.services[serviceName] = serviceURL
	g.log.Infof("✅ Updated route: %s → %s", serviceName, serviceURL)
}

func (g *Gateway) watchServices() {
	ticker := time.NewTicker(10 * time.Second)
	for range ticker.C {
		g.discoverServices()
	}
}

func (g *Gateway) proxyTo(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		g.mutex.RLock()
		proxy := g.proxies[serviceName]
		g.mutex.RUnlock()

		if proxy == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": serviceName + " unavailable"})
			return
		}
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

func (g *Gateway) HealthCheck(c *gin.Context) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	statuses := make(map[string]string)
	allHealthy := true

	client := &http.Client{Timeout: 2 * time.Second}

	for name, serviceURL := range g.services {
		resp, err := client.Get(serviceURL + "/health")
		if err != nil || resp.StatusCode != http.StatusOK {
			statuses[name] = "unhealthy"
			allHealthy = false
		} else {
			statuses[name] = "healthy"
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

func main() {
	cfg := config.Load()

	logger, err := logging.New("api-gateway", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	consul, err := discovery.NewConsulClient(logger, cfg.ConsulHost, cfg.ConsulPort)
	if err != nil {
		logger.Fatalf("Failed to connect to Consul: %v", err)
	}

	gateway := NewGateway(logger, consul)

	router := gin.Default()

	router.GET("/health", gateway.HealthCheck)

	router.Any("/products", gateway.proxyTo("product-service"))
	router.Any("/products/*path", gateway.proxyTo("product-service"))
	router.Any("/orders", gateway.proxyTo("order-service"))
	router.Any("/orders/*path", gateway.proxyTo("order-service"))

	logger.Infof("🚀 API Gateway starting on port %d", cfg.GatewayPort)
	if err := router.Run(fmt.Sprintf(":%d", cfg.GatewayPort)); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}
