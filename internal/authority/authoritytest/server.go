// Package authoritytest provides an in-process fake of the relation
// authority, backed by an in-memory social graph, for tests.
package authoritytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/kith/internal/core"
)

// RecordedRequest stores request details for verification.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Time    time.Time
}

// Failure is a canned error response.
type Failure struct {
	Status  int
	Code    string
	Message string
	// Raw, when set, is written verbatim instead of the error envelope.
	Raw string
}

// Server wraps httptest.Server with a mutable social graph.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*RecordedRequest
	token    string
	me       string
	delay    time.Duration
	failures []Failure

	posts       []*core.Post
	liked       map[string]bool
	users       []core.SearchResult
	connections map[string]core.Status
}

// New starts a server. Close it when done.
func New() *Server {
	s := &Server{
		liked:       make(map[string]bool),
		connections: make(map[string]core.Status),
	}

	routes := map[string]http.HandlerFunc{
		"GET /api/feed":                       s.handleFeed,
		"GET /api/posts/{id}/like":            s.handleGetLike,
		"POST /api/posts/{id}/like":           s.handleLike,
		"DELETE /api/posts/{id}/like":         s.handleUnlike,
		"GET /api/users/search":               s.handleSearch,
		"GET /api/connections/{user}":         s.handleGetConnection,
		"POST /api/connections/{user}":        s.handleConnect,
		"DELETE /api/connections/{user}":      s.handleDisconnect,
		"POST /api/connections/{user}/accept": s.handleAccept,
	}

	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, s.recordingWrapper(handler))
	}

	s.Server = httptest.NewServer(mux)
	return s
}

// recordingWrapper records the request, then applies auth, delay and
// injected failures before the handler runs.
func (s *Server) recordingWrapper(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, &RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header.Clone(),
			Time:    time.Now(),
		})
		token := s.token
		delay := s.delay
		var failure *Failure
		if len(s.failures) > 0 {
			f := s.failures[0]
			s.failures = s.failures[1:]
			failure = &f
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}

		if failure != nil {
			if failure.Raw != "" {
				w.WriteHeader(failure.Status)
				w.Write([]byte(failure.Raw))
				return
			}
			writeError(w, failure.Status, failure.Code, failure.Message)
			return
		}

		h(w, r)
	}
}

// SetToken requires a bearer token on every request.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetMe sets the username of the current user.
func (s *Server) SetMe(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.me = username
}

// SetDelay delays every response.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// FailNext makes the next request answer with f, whatever its route.
func (s *Server) FailNext(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

// AddPost adds a post to the feed.
func (s *Server) AddPost(id, author, body string, likes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, &core.Post{ID: id, Author: author, Body: body, Likes: likes})
}

// RemovePost drops a post from the feed.
func (s *Server) RemovePost(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.posts {
		if p.ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			return
		}
	}
}

// SetLiked marks a post as liked by the current user without touching its
// counter.
func (s *Server) SetLiked(id string, liked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liked[id] = liked
}

// AddUser adds a searchable user with an initial status.
func (s *Server) AddUser(id, username, displayName string, status core.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, core.SearchResult{ID: id, Username: username, DisplayName: displayName})
	s.connections[username] = status
}

// Likes returns the like counter of a post.
func (s *Server) Likes(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.post(id); p != nil {
		return p.Likes
	}
	return 0
}

// IsLiked reports whether the current user likes a post.
func (s *Server) IsLiked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liked[id]
}

// Status returns the connection status with a user.
func (s *Server) Status(username string) core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusOf(username)
}

// Requests returns all recorded requests.
func (s *Server) Requests() []*RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// RequestCount returns the number of recorded requests matching method and
// path. Empty arguments match anything.
func (s *Server) RequestCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if (method == "" || r.Method == method) && (path == "" || r.Path == path) {
			n++
		}
	}
	return n
}

// LastRequest returns the last recorded request.
func (s *Server) LastRequest() *RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

// ClearRequests clears recorded requests.
func (s *Server) ClearRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = s.requests[:0]
}

func (s *Server) post(id string) *core.Post {
	for _, p := range s.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Server) statusOf(username string) core.Status {
	if username == s.me && s.me != "" {
		return core.StatusSelf
	}
	if st, ok := s.connections[username]; ok && st != core.StatusUnknown {
		return st
	}
	return core.StatusNone
}

func (s *Server) known(username string) bool {
	if username == s.me {
		return true
	}
	for _, u := range s.users {
		if u.Username == username {
			return true
		}
	}
	return false
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	posts := make([]core.Post, 0, len(s.posts))
	for _, p := range s.posts {
		cp := *p
		cp.Liked = core.Bool(s.liked[p.ID])
		posts = append(posts, cp)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

func (s *Server) handleGetLike(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.post(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liked": s.liked[p.ID], "likes": p.Likes})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.post(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	if s.liked[p.ID] {
		writeError(w, http.StatusConflict, "already_liked", "post already liked")
		return
	}
	s.liked[p.ID] = true
	p.Likes++
	writeJSON(w, http.StatusOK, map[string]interface{}{"liked": true, "likes": p.Likes})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.post(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	if !s.liked[p.ID] {
		writeError(w, http.StatusConflict, "not_liked", "post not liked")
		return
	}
	s.liked[p.ID] = false
	if p.Likes > 0 {
		p.Likes--
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liked": false, "likes": p.Likes})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	s.mu.Lock()
	results := make([]core.SearchResult, 0)
	for _, u := range s.users {
		if q == "" || strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.DisplayName), q) {
			u.Status = s.statusOf(u.Username)
			results = append(results, u)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Username < results[j].Username
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := r.PathValue("user")
	if !s.known(user) {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(s.statusOf(user))})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := r.PathValue("user")
	if !s.known(user) {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}

	switch s.statusOf(user) {
	case core.StatusSelf:
		writeError(w, http.StatusBadRequest, "self_target", "You cannot connect with yourself")
	case core.StatusPending:
		writeError(w, http.StatusConflict, "already_requested", "Request already sent")
	case core.StatusConnected:
		writeError(w, http.StatusConflict, "already_connected", "Already connected")
	case core.StatusIncoming:
		// Requesting someone who already asked completes the connection.
		s.connections[user] = core.StatusConnected
		writeJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusConnected)})
	default:
		s.connections[user] = core.StatusPending
		writeJSON(w, http.StatusCreated, map[string]string{"status": string(core.StatusPending)})
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := r.PathValue("user")
	switch s.statusOf(user) {
	case core.StatusSelf:
		writeError(w, http.StatusBadRequest, "self_target", "You cannot disconnect from yourself")
	case core.StatusNone:
		writeError(w, http.StatusConflict, "not_connected", "Not connected")
	default:
		s.connections[user] = core.StatusNone
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := r.PathValue("user")
	switch s.statusOf(user) {
	case core.StatusIncoming:
		s.connections[user] = core.StatusConnected
		writeJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusConnected)})
	case core.StatusConnected:
		writeError(w, http.StatusConflict, "already_connected", "Already connected")
	default:
		writeError(w, http.StatusNotFound, "no_request", "No pending request from this user")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
