package ipintel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solatis/tidegate/internal/types"
)

func TestIPAPIFetcher_Fetch(t *testing.T) {
	var gotPath, gotFields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","country":"Germany","countryCode":"DE","org":"Hetzner Online GmbH","isp":"Hetzner","hosting":true,"query":"198.51.100.7"}`))
	}))
	defer srv.Close()

	f := NewIPAPIFetcher(srv.URL+"/json", 0, srv.Client())
	rec, err := f.Fetch(context.Background(), "198.51.100.7")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotPath != "/json/198.51.100.7" {
		t.Errorf("path = %q", gotPath)
	}
	if gotFields != "66846719" {
		t.Errorf("fields = %q, want default mask", gotFields)
	}
	if !rec.Succeeded() || rec.CountryCode != "DE" || !rec.Hosting || rec.Org != "Hetzner Online GmbH" {
		t.Errorf("record = %+v", rec)
	}
}

func TestIPAPIFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewIPAPIFetcher(srv.URL+"/", 0, srv.Client()).Fetch(context.Background(), "198.51.100.7")
			if !errors.Is(err, types.ErrIPLookupFailed) {
				t.Errorf("err = %v, want ErrIPLookupFailed", err)
			}
		})
	}
}

func TestIPAPIFetcher_UnsuccessfulRecordIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range","query":"10.0.0.1"}`))
	}))
	defer srv.Close()

	rec, err := NewIPAPIFetcher(srv.URL, 0, srv.Client()).Fetch(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if rec.Succeeded() || rec.Message != "private range" {
		t.Errorf("record = %+v", rec)
	}
}
