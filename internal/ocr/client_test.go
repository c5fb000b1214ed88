package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/violation.report/internal/httputil"
	"github.com/banshee-data/violation.report/internal/traffic"
)

func TestReadPlate(t *testing.T) {
	var gotPath string
	var gotReq map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":       "MH12AB1234",
			"confidence": 0.91,
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithStreamID("cam-1"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, conf, err := client.ReadPlate(context.Background(), 42, traffic.BBox{X: 10, Y: 20, W: 120, H: 40})
	if err != nil {
		t.Fatalf("ReadPlate failed: %v", err)
	}
	if text != "MH12AB1234" || conf != 0.91 {
		t.Errorf("got (%q, %v), want (MH12AB1234, 0.91)", text, conf)
	}
	if gotPath != "/ocr/read" {
		t.Errorf("request path = %q, want /ocr/read", gotPath)
	}
	if gotReq["frame_index"].(float64) != 42 {
		t.Errorf("frame_index = %v, want 42", gotReq["frame_index"])
	}
	if gotReq["stream_id"] != "cam-1" {
		t.Errorf("stream_id = %v, want cam-1", gotReq["stream_id"])
	}
}

func TestReadPlateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, _, err := client.ReadPlate(context.Background(), 1, traffic.BBox{W: 10, H: 10}); err == nil {
		t.Error("ReadPlate should fail on a 503 response")
	}
}

func TestReadPlateCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := client.ReadPlate(ctx, 1, traffic.BBox{W: 10, H: 10}); err == nil {
		t.Error("ReadPlate should fail when the context is cancelled")
	}
}

func TestReadPlateTransportFailure(t *testing.T) {
	replay := httputil.NewReplayClient().QueueError(errors.New("connection refused"))
	client, err := NewClient("http://ocr.internal", WithHTTPClient(replay))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, _, err := client.ReadPlate(context.Background(), 3, traffic.BBox{W: 10, H: 10}); err == nil {
		t.Error("ReadPlate should surface transport failures")
	}
	if replay.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", replay.RequestCount())
	}
	if req := replay.Request(0); req == nil || req.URL.Path != "/ocr/read" {
		t.Errorf("recorded request = %+v, want POST /ocr/read", req)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("NewClient with empty URL should fail")
	}
}

func TestFuncAdapter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "KA01AB1234", "confidence": 0.8})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	var fn traffic.OCRFunc = client.Func()
	text, _, err := fn(context.Background(), 7, traffic.BBox{W: 5, H: 5})
	if err != nil || text != "KA01AB1234" {
		t.Errorf("OCRFunc adapter got (%q, %v)", text, err)
	}
}
