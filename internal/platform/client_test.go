package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestFollowersPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/12345/followers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
			t.Errorf("authorization = %q", auth)
		}
		q := r.URL.Query()
		if q.Get("max_results") != "2" {
			t.Errorf("max_results = %s", q.Get("max_results"))
		}
		if q.Get("user.fields") == "" {
			t.Error("user.fields missing")
		}

		w.Header().Set("Content-Type", "application/json")
		if q.Get("pagination_token") == "" {
			w.Write([]byte(`{"data":[{"id":"u1","username":"alice","verified":true,"public_metrics":{"followers_count":10}},{"id":"u2","username":"bob"}],"meta":{"next_token":"page2"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"id":"u3","username":"carol"}],"meta":{}}`))
	}))
	defer srv.Close()

	client := NewXClient(srv.URL, time.Second, testLogger())
	ctx := context.Background()

	page, err := client.FollowersPage(ctx, "12345", "tok-1", "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page.Users) != 2 || page.NextToken != "page2" {
		t.Fatalf("page = %+v", page)
	}
	u := page.Users[0]
	if u.ID != "u1" || u.Username != "alice" || !u.Verified {
		t.Errorf("user = %+v", u)
	}
	if u.PublicMetrics == nil || u.PublicMetrics.FollowersCount != 10 {
		t.Errorf("public metrics = %+v", u.PublicMetrics)
	}

	page, err = client.FollowersPage(ctx, "12345", "tok-1", page.NextToken, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page.Users) != 1 || page.NextToken != "" {
		t.Fatalf("last page = %+v", page)
	}
}

func TestFollowersPageRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewXClient(srv.URL, time.Second, testLogger())
	_, err := client.FollowersPage(context.Background(), "1", "t", "", 10)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestFollowersPageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"title":"Forbidden"}`))
	}))
	defer srv.Close()

	client := NewXClient(srv.URL, time.Second, testLogger())
	_, err := client.FollowersPage(context.Background(), "1", "t", "", 10)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.StatusCode)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("403 must not match ErrRateLimited")
	}
}

func TestFollowersPageBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	client := NewXClient(srv.URL, time.Second, testLogger())
	if _, err := client.FollowersPage(context.Background(), "1", "t", "", 10); err == nil {
		t.Fatal("expected decode error")
	}
}
