package web

import (
	"net/http"
	"sort"
)

// handleAPIStats returns pool statistics for every cluster.
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Stats())
}

// handleAPIClusterStats returns pool statistics for one cluster.
func (s *Server) handleAPIClusterStats(w http.ResponseWriter, r *http.Request) {
	cluster := r.PathValue("cluster")
	stats, ok := s.source.Stats()[cluster]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown cluster: "+cluster)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// healthResponse is the body of /api/health.
type healthResponse struct {
	Status       string   `json:"status"`
	Clusters     []string `json:"clusters"`
	OpenCircuits []string `json:"open_circuits,omitempty"`
	Waiting      int      `json:"waiting"`
}

// handleAPIHealth reports "ok", or "degraded" when some endpoint's dial
// breaker is open. It always answers 200 so the body can be inspected.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Clusters: s.source.IDs(),
	}

	for _, st := range s.source.Stats() {
		for _, ps := range st.All() {
			resp.Waiting += ps.NumWaiting
		}
	}

	if s.openCircuits != nil {
		resp.OpenCircuits = s.openCircuits()
		sort.Strings(resp.OpenCircuits)
	}
	if len(resp.OpenCircuits) > 0 {
		resp.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleLiveness answers as long as the process serves HTTP.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness is ready once at least one cluster is initialized.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if len(s.source.IDs()) == 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
