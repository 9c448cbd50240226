package db

import (
	"encoding/json"
	"testing"
)

func TestHealthResponse_OmitsEmptyFields(t *testing.T) {
	body, err := json.Marshal(HealthResponse{Status: "ok", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["error"]; ok {
		t.Error("expected error to be omitted when empty")
	}
	if _, ok := m["pool"]; ok {
		t.Error("expected pool to be omitted when nil")
	}
	if m["status"] != "ok" || m["version"] != "1.0.0" {
		t.Errorf("unexpected body: %s", body)
	}
}
