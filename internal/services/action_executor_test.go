package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/models"
)

type failingGenerator struct{}

func (failingGenerator) CreateDraft(ctx context.Context, params, triggerData map[string]interface{}) (string, error) {
	return "", errors.New("generator unavailable")
}

func TestExecuteAllIsolatesFailures(t *testing.T) {
	db := setupTestDB(t)
	executor := NewActionExecutor(db, testLogger(), time.Second, failingGenerator{})

	actions := []ActionConfig{
		{Type: ActionSendNotification, Params: map[string]interface{}{"message": "hello {count}"}},
		{Type: ActionCreateDraft, Params: map[string]interface{}{}},
		{Type: ActionSendNotification, Params: map[string]interface{}{"message": "bye"}},
	}
	results := executor.ExecuteAll(context.Background(), "auto-1", "run-1", actions, map[string]interface{}{"count": 3})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Status != ActionStatusSuccess {
		t.Errorf("first action: %+v, want success", results[0])
	}
	if results[0].Message != "hello 3" {
		t.Errorf("interpolated message = %q, want %q", results[0].Message, "hello 3")
	}
	if results[1].Status != ActionStatusFailed {
		t.Errorf("second action: %+v, want failed", results[1])
	}
	// The failing draft must not stop the following action.
	if results[2].Status != ActionStatusSuccess {
		t.Errorf("third action: %+v, want success", results[2])
	}
}

func TestSendNotificationMissingTemplateKey(t *testing.T) {
	db := setupTestDB(t)
	executor := NewActionExecutor(db, testLogger(), time.Second, nil)

	result := executor.ExecuteAll(context.Background(), "a", "r", []ActionConfig{
		{Type: ActionSendNotification, Params: map[string]interface{}{"message": "count is {count}"}},
	}, map[string]interface{}{})[0]

	if result.Status != ActionStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Error == "" {
		t.Error("expected an error message for the missing key")
	}
}

func TestWebhookDeliveredStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"ok", http.StatusOK},
		{"server error counts as delivered", http.StatusInternalServerError},
		{"not found counts as delivered", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("content type = %s", ct)
				}
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			db := setupTestDB(t)
			executor := NewActionExecutor(db, testLogger(), time.Second, nil)
			result := executor.ExecuteAll(context.Background(), "auto-1", "run-1", []ActionConfig{
				{Type: ActionWebhook, Params: map[string]interface{}{"url": srv.URL}},
			}, map[string]interface{}{"count": 1})[0]

			if result.Status != ActionStatusSuccess {
				t.Fatalf("status = %s, want success", result.Status)
			}
			if result.ResponseCode != tt.code {
				t.Errorf("response code = %d, want %d", result.ResponseCode, tt.code)
			}
		})
	}
}

func TestWebhookTransportFailure(t *testing.T) {
	db := setupTestDB(t)
	executor := NewActionExecutor(db, testLogger(), time.Second, nil)

	// Nothing listens here.
	result := executor.ExecuteAll(context.Background(), "a", "r", []ActionConfig{
		{Type: ActionWebhook, Params: map[string]interface{}{"url": "http://127.0.0.1:1/hook"}},
	}, nil)[0]

	if result.Status != ActionStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
}

func TestWebhookMissingURL(t *testing.T) {
	db := setupTestDB(t)
	executor := NewActionExecutor(db, testLogger(), time.Second, nil)

	result := executor.ExecuteAll(context.Background(), "a", "r", []ActionConfig{
		{Type: ActionWebhook, Params: map[string]interface{}{}},
	}, nil)[0]

	if result.Status != ActionStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
}

func TestRequestApprovalCreatesPendingRecord(t *testing.T) {
	db := setupTestDB(t)
	executor := NewActionExecutor(db, testLogger(), time.Second, nil)

	result := executor.ExecuteAll(context.Background(), "auto-1", "run-1", []ActionConfig{
		{Type: ActionRequestApproval, Params: map[string]interface{}{"reason": "big spend"}},
	}, nil)[0]

	if result.Status != ActionStatusPending {
		t.Fatalf("status = %s, want pending", result.Status)
	}

	var approval models.ApprovalRequest
	if err := db.First(&approval, "run_id = ?", "run-1").Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}
	if approval.Status != "pending" {
		t.Errorf("approval status = %s, want pending", approval.Status)
	}
	if approval.AutomationID != "auto-1" {
		t.Errorf("automation id = %s", approval.AutomationID)
	}
}

func TestUnknownActionType(t *testing.T) {
	db := setupTestDB(t)
	executor := NewActionExecutor(db, testLogger(), time.Second, nil)

	result := executor.ExecuteAll(context.Background(), "a", "r", []ActionConfig{
		{Type: "teleport", Params: nil},
	}, nil)[0]

	if result.Status != ActionStatusUnknown {
		t.Fatalf("status = %s, want unknown", result.Status)
	}
}
