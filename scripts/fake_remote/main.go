// fake_remote is a development stand-in for the programme's mutation API.
// It accepts the agent's pushes and can inject conflicts and transient
// failures on demand so retry, backoff and conflict resolution can be
// exercised without a real upstream.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type options struct {
	addr          string
	conflictEvery int
	failEvery     int
	latency       time.Duration
	serveState    bool
}

type fakeRemote struct {
	opts options

	mu       sync.Mutex
	pushes   int
	accepted map[string]json.RawMessage
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", ":8080", "listen address")
	flag.IntVar(&opts.conflictEvery, "conflict-every", 0, "reject every Nth push with a 409 (0 disables)")
	flag.IntVar(&opts.failEvery, "fail-every", 0, "fail every Nth push with a 503 (0 disables)")
	flag.DurationVar(&opts.latency, "latency", 0, "artificial latency per request")
	flag.BoolVar(&opts.serveState, "serve-state", true, "include a serverState snapshot in 409 bodies")
	flag.Parse()

	remote := &fakeRemote{opts: opts, accepted: make(map[string]json.RawMessage)}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		if opts.latency > 0 {
			time.Sleep(opts.latency)
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1/field-sync")
	{
		api.GET("/reviews/:id/checklist", remote.checklist)
		for _, segment := range []string{"checklist-items", "field-evidence", "draft-findings"} {
			api.POST("/"+segment, remote.push)
			api.PUT("/"+segment+"/:id", remote.push)
			api.DELETE("/"+segment+"/:id", remote.push)
		}
	}

	log.Printf("fake remote listening on %s (conflict-every=%d fail-every=%d)",
		opts.addr, opts.conflictEvery, opts.failEvery)
	if err := r.Run(opts.addr); err != nil {
		log.Fatalf("fake remote failed: %v", err)
	}
}

// checklist serves a small fixed checklist so review initialization works
// against the stub.
func (f *fakeRemote) checklist(c *gin.Context) {
	reviewID := c.Param("id")
	now := time.Now().UTC().Format(time.RFC3339)
	items := []gin.H{
		{"id": reviewID + "-ci-1", "reviewId": reviewID, "title": "Ramp inspection", "isCompleted": false, "updatedAt": now},
		{"id": reviewID + "-ci-2", "reviewId": reviewID, "title": "Records check", "isCompleted": false, "updatedAt": now},
		{"id": reviewID + "-ci-3", "reviewId": reviewID, "title": "Crew interviews", "isCompleted": false, "updatedAt": now},
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (f *fakeRemote) push(c *gin.Context) {
	f.mu.Lock()
	f.pushes++
	n := f.pushes
	f.mu.Unlock()

	if f.opts.failEvery > 0 && n%f.opts.failEvery == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "UNAVAILABLE", "message": "injected transient failure"}})
		return
	}

	body, _ := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	key := c.Request.Method + " " + c.Request.URL.Path

	if f.opts.conflictEvery > 0 && n%f.opts.conflictEvery == 0 {
		resp := gin.H{"error": gin.H{"code": "VERSION_CONFLICT", "message": "injected version mismatch"}}
		if f.opts.serveState {
			resp["serverState"] = f.serverStateFor(c, body)
		}
		c.JSON(http.StatusConflict, resp)
		return
	}

	f.mu.Lock()
	f.accepted[key] = body
	f.mu.Unlock()

	if c.Request.Method == http.MethodDelete {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"accepted": true, "sequence": n}})
}

// serverStateFor fabricates a plausible server snapshot for the entity being
// pushed, echoing the ID so the resolver can apply it.
func (f *fakeRemote) serverStateFor(c *gin.Context, body []byte) json.RawMessage {
	id := c.Param("id")
	var payload map[string]interface{}
	_ = json.Unmarshal(body, &payload)
	if id == "" {
		if v, ok := payload["id"].(string); ok {
			id = v
		}
	}

	state := map[string]interface{}{
		"id":         id,
		"updatedAt":  time.Now().UTC().Format(time.RFC3339),
		"syncStatus": "synced",
	}
	if title, ok := payload["title"].(string); ok {
		state["title"] = fmt.Sprintf("%s (server edit)", title)
	}
	if notes, ok := payload["notes"].(string); ok && notes != "" {
		state["notes"] = "server reviewer note"
	}
	if annotations, ok := payload["annotations"].(string); ok && annotations != "" {
		state["annotations"] = "server annotation overlay"
	}

	raw, _ := json.Marshal(state)
	return raw
}
