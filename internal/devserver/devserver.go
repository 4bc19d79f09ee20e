// Package devserver is an in-memory stand-in for the field service backend,
// used by the engine tests and the `fieldsync devserver` command. It speaks
// the same delta-pull/delta-push protocol the real server does: cursor
// filtering on pull, per-item verdicts on push, server-assigned ids for
// created answers.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// record is one server-side row: raw JSON plus the cursor the delta feed
// orders on.
type record struct {
	ID        string
	UpdatedAt string
	Data      map[string]interface{}
}

// Server holds the fake backend's state. Safe for concurrent requests.
type Server struct {
	mu       sync.Mutex
	entities map[string][]record
	uploads  []map[string]interface{}
	now      func() time.Time

	// RejectNext, when set for an entity, rejects the next push for it
	// with a 422. Tests use it to exercise the failed-mutation path.
	rejectNext map[string]string
}

// New builds an empty dev server.
func New() *Server {
	return &Server{
		entities:   make(map[string][]record),
		rejectNext: make(map[string]string),
		now:        time.Now,
	}
}

// Seed inserts a record for an entity with the given cursor value.
func (s *Server) Seed(entity, id, updatedAt string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == nil {
		data = map[string]interface{}{}
	}
	data["id"] = id
	data["updatedAt"] = updatedAt
	s.upsertLocked(entity, record{ID: id, UpdatedAt: updatedAt, Data: data})
}

// RejectNextPush makes the next push for entity fail permanently with the
// given message.
func (s *Server) RejectNextPush(entity, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext[entity] = message
}

// Records returns a copy of an entity's stored records, cursor order.
func (s *Server) Records(entity string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(s.entities[entity]))
	for _, r := range s.entities[entity] {
		out = append(out, r.Data)
	}
	return out
}

// Uploads returns the attachment upload bodies received so far.
func (s *Server) Uploads() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.uploads...)
}

// Handler returns the gin handler, ready for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/api/sync/:entity", s.handlePull)
	router.POST("/api/sync/:entity", s.handlePush)
	router.POST("/api/attachments/upload", s.handleUpload)

	return router
}

// Start serves the fake backend until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, port int, out io.Writer) error {
	if port <= 0 {
		port = 8090
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if out != nil {
		fmt.Fprintf(out, "Dev server running at http://localhost:%d\n", port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}

func (s *Server) handlePull(c *gin.Context) {
	entity := c.Param("entity")
	since := c.Query("since")

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]interface{}
	for _, r := range s.entities[entity] {
		if since == "" || r.UpdatedAt > since {
			out = append(out, r.Data)
		}
	}
	if out == nil {
		out = []map[string]interface{}{}
	}
	c.JSON(http.StatusOK, out)
}

type pushItem struct {
	Op       string          `json:"op"`
	EntityID string          `json:"entityId"`
	LocalID  string          `json:"localId"`
	Data     json.RawMessage `json:"data"`
}

func (s *Server) handlePush(c *gin.Context) {
	entity := c.Param("entity")

	var items []pushItem
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.rejectNext[entity]; ok {
		delete(s.rejectNext, entity)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg})
		return
	}

	results := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		results = append(results, s.applyLocked(entity, item))
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) applyLocked(entity string, item pushItem) map[string]interface{} {
	res := map[string]interface{}{"success": true}
	if item.LocalID != "" {
		res["localId"] = item.LocalID
	}

	switch item.Op {
	case "delete":
		kept := s.entities[entity][:0]
		found := false
		for _, r := range s.entities[entity] {
			if r.ID == item.EntityID {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		s.entities[entity] = kept
		if !found {
			res["skipped"] = true
		}
		return res

	case "create", "update":
		var data map[string]interface{}
		if err := json.Unmarshal(item.Data, &data); err != nil {
			return map[string]interface{}{"success": false, "error": "malformed payload"}
		}
		id := item.EntityID
		// Created answers get a server-assigned id, exercising the
		// client's id reconciliation.
		if item.Op == "create" && entity == "checklist_answers" {
			id = uuid.NewString()
			res["id"] = id
		}
		data["id"] = id
		cursor := s.now().UTC().Format(time.RFC3339Nano)
		data["updatedAt"] = cursor
		s.upsertLocked(entity, record{ID: id, UpdatedAt: cursor, Data: data})
		return res

	default:
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("unknown op %q", item.Op)}
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.rejectNext["checklist_attachments"]; ok {
		delete(s.rejectNext, "checklist_attachments")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg})
		return
	}

	s.uploads = append(s.uploads, body)

	name, _ := body["fileName"].(string)
	localID, _ := body["localId"].(string)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"localId": localID,
		"path":    fmt.Sprintf("uploads/%s/%s", localID, name),
	})
}

func (s *Server) upsertLocked(entity string, r record) {
	rows := s.entities[entity]
	for i := range rows {
		if rows[i].ID == r.ID {
			rows[i] = r
			s.sortLocked(entity)
			return
		}
	}
	s.entities[entity] = append(rows, r)
	s.sortLocked(entity)
}

func (s *Server) sortLocked(entity string) {
	rows := s.entities[entity]
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].UpdatedAt < rows[j].UpdatedAt })
}
