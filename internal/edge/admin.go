package edge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/initiative-app/offline-edge/internal/store"
)

var startTime = time.Now()

// adminHandler builds the admin API: health, status, metrics and cache
// introspection/purge.
func (s *Server) adminHandler() http.Handler {
	router := httprouter.New()

	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", s.handleMetrics)
	router.GET("/cache/stats", s.handleCacheStats)
	router.GET("/cache/keys/:namespace", s.handleCacheKeys)
	router.POST("/cache/purge", s.handleCachePurge)

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")

	// The edge is healthy even when the upstream is down; serving from
	// cache while offline is the whole point. Reachability is reported,
	// not gated on.
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":             "ok",
		"timestamp":          time.Now().Format(time.RFC3339),
		"uptime":             time.Since(startTime).String(),
		"upstream_reachable": s.probe.Reachable(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	staticName, dataName := s.controller.StoreNames()
	static, data := s.controller.Stores()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"upstream":           s.cfg.Upstream.Origin,
		"upstream_reachable": s.probe.Reachable(),
		"backend":            s.cfg.Cache.Backend,
		"stores": map[string]store.Stats{
			staticName: static.Stats(),
			dataName:   data.Stats(),
		},
		"metrics": s.collector.Snapshot(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.collector.WritePrometheus(w)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	staticName, dataName := s.controller.StoreNames()
	static, data := s.controller.Stores()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		staticName: map[string]interface{}{
			"entries": static.Len(),
			"stats":   static.Stats(),
		},
		dataName: map[string]interface{}{
			"entries": data.Len(),
			"stats":   data.Stats(),
		},
	})
}

func (s *Server) handleCacheKeys(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	namespace := ps.ByName("namespace")
	staticName, dataName := s.controller.StoreNames()
	static, data := s.controller.Stores()

	var target store.Store
	switch namespace {
	case staticName:
		target = static
	case dataName:
		target = data
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"namespace": namespace,
		"keys":      target.Keys(),
	})
}

// handleCachePurge empties one store (?store=static|data) or both.
func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	static, data := s.controller.Stores()

	purged := []string{}
	staticName, dataName := s.controller.StoreNames()
	switch r.URL.Query().Get("store") {
	case "static":
		static.Purge()
		purged = append(purged, staticName)
	case "data":
		data.Purge()
		purged = append(purged, dataName)
	case "":
		static.Purge()
		data.Purge()
		purged = append(purged, staticName, dataName)
	default:
		http.Error(w, "unknown store", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"purged": purged})
}
