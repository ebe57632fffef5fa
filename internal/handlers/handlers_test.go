package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/cache"
	"github.com/Lorenzozero/social-automation-hub/internal/models"
	"github.com/Lorenzozero/social-automation-hub/internal/platform"
	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.SocialAccount{}, &models.OAuthToken{}, &models.MetricsSnapshot{}, &models.FollowerChange{},
		&models.Automation{}, &models.AutomationRun{}, &models.Consent{}, &models.ApprovalRequest{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	evaluator := services.NewTriggerEvaluator(db, logger)
	executor := services.NewActionExecutor(db, logger, time.Second, nil)
	automationService := services.NewAutomationService(db, logger, evaluator, executor)
	mem := cache.NewMemoryCache(100, time.Hour)
	creds, _ := services.NewDBCredentialStore(db, "")
	fetcher := platform.NewXClient("http://127.0.0.1:1", time.Second, logger)
	syncService := services.NewFollowerSyncService(db, logger, mem, creds, fetcher, 1, 10)
	metricsService := services.NewMetricsService(db, logger)

	r := gin.New()
	RegisterHealthRoutes(r, NewHealthHandler(db, logger))
	api := r.Group("/api")
	RegisterAutomationRoutes(api, NewAutomationHandler(automationService, logger))
	RegisterFollowerRoutes(api, NewFollowerHandler(syncService, logger))
	RegisterMetricsRoutes(api, NewMetricsHandler(metricsService, logger))
	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestAutomationCRUD(t *testing.T) {
	r, _ := setupRouter(t)

	create := map[string]interface{}{
		"name":    "welcome new followers",
		"trigger": map[string]interface{}{"type": "new_follower_threshold", "params": map[string]interface{}{"account_id": "a1", "threshold": 5}},
		"actions": []map[string]interface{}{{"type": "send_notification", "params": map[string]interface{}{"message": "hi"}}},
	}
	w := doJSON(t, r, http.MethodPost, "/api/automations", create)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var automation models.Automation
	if err := json.Unmarshal(w.Body.Bytes(), &automation); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if automation.Enabled {
		t.Error("automations must default to disabled")
	}

	// Get
	w = doJSON(t, r, http.MethodGet, "/api/automations/"+automation.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	// Enable
	w = doJSON(t, r, http.MethodPut, "/api/automations/"+automation.ID+"/enabled", map[string]interface{}{"enabled": true})
	if w.Code != http.StatusOK {
		t.Fatalf("enable status = %d: %s", w.Code, w.Body.String())
	}

	// List
	w = doJSON(t, r, http.MethodGet, "/api/automations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}

	// Delete
	w = doJSON(t, r, http.MethodDelete, "/api/automations/"+automation.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/automations/"+automation.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", w.Code)
	}
}

func TestCreateAutomationRejectsBadTrigger(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/automations", map[string]interface{}{
		"name":    "bad",
		"trigger": map[string]interface{}{"type": "fortune_cookie"},
		"actions": []map[string]interface{}{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestConsentEndpoints(t *testing.T) {
	r, db := setupRouter(t)

	account := &models.SocialAccount{Platform: models.PlatformX, Status: models.AccountStatusActive}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	automation := &models.Automation{Name: "gated", Trigger: `{"type":"schedule","params":{}}`, Actions: `[]`, ConsentRequired: true}
	if err := db.Create(automation).Error; err != nil {
		t.Fatalf("create automation: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/automations/"+automation.ID+"/consents",
		map[string]interface{}{"social_account_id": account.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("grant status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, "/api/automations/"+automation.ID+"/consents?social_account_id="+account.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d: %s", w.Code, w.Body.String())
	}

	// Revoking again: nothing active.
	w = doJSON(t, r, http.MethodDelete, "/api/automations/"+automation.ID+"/consents?social_account_id="+account.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second revoke status = %d", w.Code)
	}
}

func TestListRunsEndpoint(t *testing.T) {
	r, db := setupRouter(t)

	automation := &models.Automation{Name: "a", Trigger: `{"type":"schedule","params":{}}`, Actions: `[]`}
	if err := db.Create(automation).Error; err != nil {
		t.Fatalf("create automation: %v", err)
	}
	for _, status := range []string{models.RunStatusSuccess, models.RunStatusFailed} {
		if err := db.Create(&models.AutomationRun{AutomationID: automation.ID, Status: status}).Error; err != nil {
			t.Fatalf("create run: %v", err)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/api/automation-runs?automation_id="+automation.ID+"&status=failed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body PaginatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Fatalf("total = %d, want 1", body.Total)
	}
}

func TestFollowerChangesEndpoint(t *testing.T) {
	r, db := setupRouter(t)

	account := &models.SocialAccount{Platform: models.PlatformX, Status: models.AccountStatusActive}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	change := &models.FollowerChange{
		SocialAccountID: account.ID,
		ChangeType:      models.ChangeTypeNewFollower,
		UserID:          "u1",
		EventKey:        account.ID + ":new_follower:u1:20260831",
		Timestamp:       time.Now().UTC(),
	}
	if err := db.Create(change).Error; err != nil {
		t.Fatalf("create change: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/follower-changes?account_id="+account.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body PaginatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Fatalf("total = %d, want 1", body.Total)
	}
}

func TestSyncAccountEndpointErrors(t *testing.T) {
	r, db := setupRouter(t)

	// Unknown account.
	w := doJSON(t, r, http.MethodPost, "/api/accounts/nope/sync-followers", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	// Account without credentials: 422.
	account := &models.SocialAccount{Platform: models.PlatformX, Status: models.AccountStatusActive}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	w = doJSON(t, r, http.MethodPost, "/api/accounts/"+account.ID+"/sync-followers", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", w.Code, w.Body.String())
	}
}

func TestMetricsIngestEndpoint(t *testing.T) {
	r, db := setupRouter(t)

	// Unknown account rejected.
	w := doJSON(t, r, http.MethodPost, "/api/metrics/snapshots", map[string]interface{}{
		"social_account_id": "missing", "reach": 10,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	account := &models.SocialAccount{Platform: models.PlatformInstagram, Status: models.AccountStatusActive}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/api/metrics/snapshots", map[string]interface{}{
		"social_account_id": account.ID,
		"followers_count":   1200,
		"reach":             300,
		"extra_data":        map[string]interface{}{"story_views": 55},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var snapshot models.MetricsSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.FollowersCount != 1200 || snapshot.Reach != 300 {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	// Readable back through the listing endpoint.
	w = doJSON(t, r, http.MethodGet, "/api/accounts/"+account.ID+"/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
}
