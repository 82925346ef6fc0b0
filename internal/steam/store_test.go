package steam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestStoreClient(t *testing.T, h http.HandlerFunc) *StoreClient {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	return NewStoreClient(server.Client(), newTestLogger(&buf), StoreConfig{
		BaseURL: server.URL,
		Timeout: time.Second,
	})
}

const appDetailsJSON = `{"620": {"success": true, "data": {
	"type": "game", "name": "Portal 2", "steam_appid": 620,
	"short_description": "The sequel", "header_image": "https://cdn/620.jpg",
	"genres": [{"id": "1", "description": "Action"}, {"id": "25", "description": "Adventure"}],
	"categories": [{"id": 2, "description": "Single-player"}, {"id": 9, "description": "Co-op"}],
	"release_date": {"coming_soon": false, "date": "18 Apr, 2011"},
	"metacritic": {"score": 95}
}}}`

func TestGetAppDetails_Success(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appdetails" {
			t.Errorf("path = %s, want /api/appdetails", r.URL.Path)
		}
		if got := r.URL.Query().Get("appids"); got != "620" {
			t.Errorf("appids = %s, want 620", got)
		}
		fmt.Fprint(w, appDetailsJSON)
	})

	details, err := c.GetAppDetails(context.Background(), 620)
	if err != nil {
		t.Fatalf("GetAppDetails がエラーを返した: %v", err)
	}
	if details == nil || details.Data.Name != "Portal 2" {
		t.Fatalf("details = %+v", details)
	}

	m := ExtractMetadata(details)
	want := &Metadata{
		Type:        model.AppTypeGame,
		Name:        "Portal 2",
		Genres:      []string{"Action", "Adventure"},
		Categories:  []string{"Single-player", "Co-op"},
		Description: "The sequel",
		ReleaseDate: "18 Apr, 2011",
		HeaderImage: "https://cdn/620.jpg",
	}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("ExtractMetadata = %+v, want %+v", m, want)
	}
}

func TestGetAppDetails_SuccessFalse(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"999": {"success": false}}`)
	})

	details, err := c.GetAppDetails(context.Background(), 999)
	if err != nil || details != nil {
		t.Errorf("GetAppDetails = %v, %v; want nil, nil", details, err)
	}
}

func TestGetAppDetails_NonOKStatus(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	details, err := c.GetAppDetails(context.Background(), 1)
	if err != nil || details != nil {
		t.Errorf("GetAppDetails = %v, %v; want nil, nil", details, err)
	}
}

func TestGetAppDetails_TooManyRequests(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetAppDetails(context.Background(), 1)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestGetAppDetails_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewStoreClient(server.Client(), newTestLogger(&buf), StoreConfig{
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	})

	_, err := c.GetAppDetails(context.Background(), 1)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUpstreamTimeout {
		t.Errorf("err = %v, want UPSTREAM_TIMEOUT", err)
	}
}

func TestExtractMetadata_MissingOptionalFields(t *testing.T) {
	m := ExtractMetadata(&AppDetails{Success: true, Data: &AppData{Type: "dlc", Name: "Pack"}})
	if m == nil {
		t.Fatal("ExtractMetadata は nil を返してはならない")
	}
	if m.Type != model.AppTypeDLC {
		t.Errorf("Type = %s, want dlc", m.Type)
	}
	if m.Genres == nil || len(m.Genres) != 0 {
		t.Errorf("Genres = %#v, want empty slice", m.Genres)
	}
	if m.Categories == nil || len(m.Categories) != 0 {
		t.Errorf("Categories = %#v, want empty slice", m.Categories)
	}
	if m.ReleaseDate != "" {
		t.Errorf("ReleaseDate = %q, want empty", m.ReleaseDate)
	}

	if ExtractMetadata(&AppDetails{Success: false}) != nil {
		t.Error("success:false は nil を返すべき")
	}
	if ExtractMetadata(nil) != nil {
		t.Error("nil は nil を返すべき")
	}
}

func TestGetReviewData(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/appreviews/620" {
			t.Errorf("path = %s, want /appreviews/620", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("json") != "1" || q.Get("num_per_page") != "0" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"success": 1, "query_summary": {"total_positive": 987, "total_reviews": 1000}}`)
	})

	data, err := c.GetReviewData(context.Background(), 620)
	if err != nil {
		t.Fatalf("GetReviewData がエラーを返した: %v", err)
	}
	if data == nil || data.Score != 99 || data.Count != 1000 {
		t.Errorf("GetReviewData = %+v, want {99 1000}", data)
	}
}

func TestGetReviewData_ZeroReviews(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": 1, "query_summary": {"total_positive": 0, "total_reviews": 0}}`)
	})

	data, err := c.GetReviewData(context.Background(), 1)
	if err != nil || data != nil {
		t.Errorf("GetReviewData = %v, %v; want nil, nil", data, err)
	}
}

func TestGetReviewData_FailedQuery(t *testing.T) {
	c := newTestStoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": 2}`)
	})

	data, err := c.GetReviewData(context.Background(), 1)
	if err != nil || data != nil {
		t.Errorf("GetReviewData = %v, %v; want nil, nil", data, err)
	}
}

func TestStoreClient_PacesRequests(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"1": {"success": false}}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewStoreClient(server.Client(), newTestLogger(&buf), StoreConfig{
		BaseURL: server.URL,
		RPS:     1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := c.GetAppDetails(ctx, 1); err != nil {
		t.Fatalf("1回目はバースト内で成功すべき: %v", err)
	}
	if _, err := c.GetAppDetails(ctx, 1); err == nil {
		t.Error("2回目はレート制御の待機でコンテキスト期限を超えるべき")
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}
