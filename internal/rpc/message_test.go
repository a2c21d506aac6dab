package rpc

import (
	"encoding/json"
	"testing"
)

func TestRequestIsNotification(t *testing.T) {
	withID := request{JSONRPC: jsonrpcVersion, ID: json.RawMessage(`1`), Method: "ping"}
	if withID.isNotification() {
		t.Error("request with an id must not be a notification")
	}

	withoutID := request{JSONRPC: jsonrpcVersion, Method: "ping"}
	if !withoutID.isNotification() {
		t.Error("request without an id must be a notification")
	}
}

func TestNewResultRoundTrips(t *testing.T) {
	resp := newResult(json.RawMessage(`7`), pingResult{Status: "ok", Version: "dev"})

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["jsonrpc"] != jsonrpcVersion {
		t.Errorf("jsonrpc = %v, want %v", decoded["jsonrpc"], jsonrpcVersion)
	}

	if _, hasErr := decoded["error"]; hasErr {
		t.Error("a successful result must not carry an error field")
	}
}

func TestNewErrorCarriesApplicationKindInData(t *testing.T) {
	resp := newError(json.RawMessage(`3`), codeApplicationError, "queue is full", map[string]string{"code": "QUEUE_FULL"})

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Error struct {
			Code int               `json:"code"`
			Data map[string]string `json:"data"`
		} `json:"error"`
	}

	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Error.Code != codeApplicationError {
		t.Errorf("code = %d, want %d", decoded.Error.Code, codeApplicationError)
	}

	if decoded.Error.Data["code"] != "QUEUE_FULL" {
		t.Errorf("data.code = %q, want QUEUE_FULL", decoded.Error.Data["code"])
	}
}

func TestNewNotifyHasNoID(t *testing.T) {
	n := newNotify("generation_progress", progressParams{TrackID: "abc", Percent: 50})

	raw, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if _, hasID := decoded["id"]; hasID {
		t.Error("a notification must never carry an id field")
	}
}
