package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	core "taskmarket-backend/core/marketplace"
	storage "taskmarket-backend/storage/marketplace"
	"taskmarket-backend/token"
)

func newTaskHandlerEnv(t *testing.T) (*TaskHandler, *core.Engine, core.Address) {
	t.Helper()
	engine := core.NewEngine(storage.NewMemoryStore(), token.NewVault(), nil)
	client := core.DeriveAddress("handler_test", []byte("client"))
	return NewTaskHandler(engine), engine, client
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleUpdateTask(t *testing.T) {
	handler, engine, client := newTaskHandlerEnv(t)
	ctx := context.Background()

	task, err := engine.PostTask(ctx, client, core.PostTaskParams{
		Title:       "Build site",
		Description: "Initial scope",
		Budget:      100,
		Milestones:  []core.MilestoneSpec{{Description: "All work", Amount: 100}},
		Deadline:    time.Now().Unix() + 3_600,
	})
	if err != nil {
		t.Fatalf("PostTask: %v", err)
	}

	t.Run("updates description", func(t *testing.T) {
		rec := postJSON(t, handler.HandleUpdateTask, "/api/tasks/update", map[string]interface{}{
			"caller":      client,
			"task":        task.Addr,
			"description": "Revised scope",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200 but got %d: %s", rec.Code, rec.Body.String())
		}
		current, err := engine.Task(ctx, task.Addr)
		if err != nil {
			t.Fatalf("Task: %v", err)
		}
		if current.Description != "Revised scope" {
			t.Errorf("Expected updated description but got %q", current.Description)
		}
	})

	t.Run("title is fixed at creation", func(t *testing.T) {
		rec := postJSON(t, handler.HandleUpdateTask, "/api/tasks/update", map[string]interface{}{
			"caller": client,
			"task":   task.Addr,
			"title":  "Renamed",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200 but got %d: %s", rec.Code, rec.Body.String())
		}
		current, err := engine.Task(ctx, task.Addr)
		if err != nil {
			t.Fatalf("Task: %v", err)
		}
		if current.Title != "Build site" {
			t.Errorf("Expected title to stay %q but got %q", "Build site", current.Title)
		}
	})
}
