package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderdesk_backend/platform/logger"
)

type testConfig struct {
	url string
}

func (c testConfig) GetWhatsAppURL() string       { return c.url }
func (c testConfig) GetWhatsAppKey() string       { return "user:pass" }
func (c testConfig) GetWhatsAppDeviceID() string  { return "device-1" }
func (c testConfig) GetWhatsAppSendRate() float64 { return 100 }

func TestSendText_UnconfiguredIsNoOp(t *testing.T) {
	client := NewClient(testConfig{url: ""}, logger.New("development"))
	if client != nil {
		t.Fatal("expected nil client without a gateway URL")
	}

	res := client.SendText(context.Background(), "+212612345678", "bonjour")
	if res.Configured {
		t.Fatal("unconfigured send must report Configured=false")
	}
	if res.Err != nil {
		t.Fatalf("unconfigured send must not error: %v", res.Err)
	}
}

func TestSendText_PostsPayload(t *testing.T) {
	var gotPath, gotAuth, gotDevice string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotDevice = r.Header.Get("X-Device-Id")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "MSG-1"})
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	res := client.SendText(context.Background(), "0612345678", "bonjour")

	if !res.Configured || !res.OK || res.ID != "MSG-1" {
		t.Fatalf("result = %+v", res)
	}
	if gotPath != "/send/message" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["phone"] != "212612345678" {
		t.Fatalf("phone = %v (must be E.164 without the plus)", gotBody["phone"])
	}
	if gotBody["message"] != "bonjour" {
		t.Fatalf("message = %v", gotBody["message"])
	}
	if gotAuth == "" || gotDevice != "device-1" {
		t.Fatalf("auth = %q, device = %q", gotAuth, gotDevice)
	}
}

func TestSendChoices_PostsButtons(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "MSG-2"})
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	res := client.SendChoices(context.Background(), "0612345678", "Votre commande", []string{"Confirmer", "Annuler", "Plus d'infos"})

	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if gotPath != "/send/button" {
		t.Fatalf("path = %q", gotPath)
	}
	buttons, ok := gotBody["buttons"].([]any)
	if !ok || len(buttons) != 3 {
		t.Fatalf("buttons = %v", gotBody["buttons"])
	}
}

func TestSendText_GatewayErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device not connected", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, logger.New("development"))
	res := client.SendText(context.Background(), "0612345678", "bonjour")

	if !res.Configured || res.OK {
		t.Fatalf("result = %+v", res)
	}
	if res.Err == nil {
		t.Fatal("expected error from gateway failure")
	}
}

func TestFormatAuthHeader(t *testing.T) {
	if got := formatAuthHeader("Basic abc123"); got != "Basic abc123" {
		t.Fatalf("pre-encoded header rewritten: %q", got)
	}
	if got := formatAuthHeader("user:pass"); got != "Basic dXNlcjpwYXNz" {
		t.Fatalf("encoded header = %q", got)
	}
}
