package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ReleaseServer mimics the releases endpoint: GET /latest returns JSON
// metadata and GET /latest/download/<file> serves registered archives.
// Every request is counted by path.
type ReleaseServer struct {
	*httptest.Server

	mu     sync.Mutex
	assets map[string][]byte
	latest string
	hits   map[string]int
}

// NewReleaseServer starts a ReleaseServer closed at test cleanup.
func NewReleaseServer(t *testing.T) *ReleaseServer {
	t.Helper()

	s := &ReleaseServer{
		assets: make(map[string][]byte),
		hits:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddAsset serves body at /latest/download/<filename>.
func (s *ReleaseServer) AddAsset(filename string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[AssetPath(filename)] = body
}

// SetLatest sets the tag_name reported by /latest. Empty means 404.
func (s *ReleaseServer) SetLatest(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = tag
}

// Hits returns how many requests reached path.
func (s *ReleaseServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Requests returns the total number of requests served.
func (s *ReleaseServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// AssetPath is the request path of a release archive.
func AssetPath(filename string) string {
	return "/latest/download/" + filename
}

func (s *ReleaseServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	latest := s.latest
	body, ok := s.assets[r.URL.Path]
	s.mu.Unlock()

	if r.URL.Path == "/latest" {
		if latest == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"tag_name": latest})
		return
	}

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	w.Write(body)
}
