package graphclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/basket/goclaw-bridge/internal/graphclient"
)

func TestNextExpectedOffsetFreshSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"nextExpectedRanges": []string{"0-"}})
	}))
	defer srv.Close()

	sess := graphclient.NewSession(srv.Client(), srv.URL)
	offset, err := sess.NextExpectedOffset(context.Background())
	if err != nil {
		t.Fatalf("next expected offset: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected offset 0, got %d", offset)
	}
}

func TestNextExpectedOffsetResumePoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"nextExpectedRanges": []string{"1048576-"}})
	}))
	defer srv.Close()

	sess := graphclient.NewSession(srv.Client(), srv.URL)
	offset, err := sess.NextExpectedOffset(context.Background())
	if err != nil {
		t.Fatalf("next expected offset: %v", err)
	}
	if offset != 1048576 {
		t.Fatalf("expected resume offset 1048576, got %d", offset)
	}
}

func TestUploadPartIntermediateReturnsNilItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Range") != "bytes 0-99/1000" {
			t.Errorf("unexpected Content-Range: %q", r.Header.Get("Content-Range"))
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sess := graphclient.NewSession(srv.Client(), srv.URL)
	item, err := sess.UploadPart(context.Background(), make([]byte, 100), 0, 1000)
	if err != nil {
		t.Fatalf("upload part: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item for an intermediate part, got %+v", item)
	}
}

func TestUploadPartFinalReturnsDriveItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"name": "video (1).mp4", "size": 1000})
	}))
	defer srv.Close()

	sess := graphclient.NewSession(srv.Client(), srv.URL)
	item, err := sess.UploadPart(context.Background(), make([]byte, 1000), 0, 1000)
	if err != nil {
		t.Fatalf("upload final part: %v", err)
	}
	if item == nil || item.Name != "video (1).mp4" {
		t.Fatalf("unexpected drive item: %+v", item)
	}
}

func TestCreateSessionRejectsMissingUploadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	if _, err := graphclient.CreateSession(context.Background(), srv.Client(), srv.URL, "token"); err == nil {
		t.Fatal("expected error when uploadUrl is missing")
	}
}
