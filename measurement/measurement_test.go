package measurement

import (
	"encoding/json"
	"testing"
)

const telegramRecord = `{
	"measurement_uid": "",
	"report_id": "20220101T000000Z_telegram_US_1234_n1_abc",
	"input": null,
	"measurement_start_time": "2022-01-01 00:00:00.123456",
	"probe_asn": "AS1234",
	"probe_cc": "US",
	"resolver_ip": "8.8.8.8",
	"software_name": "ooniprobe",
	"software_version": "3.18.0",
	"test_name": "telegram",
	"test_version": "0.2.0",
	"test_runtime": 1.5,
	"test_keys": {
		"queries": [{"hostname": "web.telegram.org", "query_type": "A", "answers": [{"answer_type": "A", "ipv4": "1.2.3.4"}]}],
		"telegram_http_blocking": false,
		"telegram_tcp_blocking": true,
		"telegram_web_status": "ok"
	}
}`

func TestDecode_Telegram(t *testing.T) {
	m, err := Decode(json.RawMessage(telegramRecord), "filename-uid-123")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if m.TestName != "telegram" {
		t.Errorf("TestName = %q, want telegram", m.TestName)
	}
	if m.MeasurementUID != "filename-uid-123" {
		t.Errorf("MeasurementUID = %q, want filename-uid-123", m.MeasurementUID)
	}
	keys, ok := m.TestKeys.(TelegramKeys)
	if !ok {
		t.Fatalf("TestKeys type = %T, want TelegramKeys", m.TestKeys)
	}
	if len(keys.Queries) != 1 || keys.Queries[0].Hostname != "web.telegram.org" {
		t.Errorf("Queries = %+v", keys.Queries)
	}
	if keys.TelegramTCPBlocking == nil || !*keys.TelegramTCPBlocking {
		t.Errorf("TelegramTCPBlocking = %v, want true", keys.TelegramTCPBlocking)
	}
}

func TestDecode_UnknownTestNameFallsBackToBase(t *testing.T) {
	raw := json.RawMessage(`{"test_name": "some_future_test", "test_keys": {"queries": []}}`)
	m, err := Decode(raw, "uid-1")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if _, ok := m.TestKeys.(BaseMeasurementKeys); !ok {
		t.Fatalf("TestKeys type = %T, want BaseMeasurementKeys", m.TestKeys)
	}
}

func TestDecode_CanonicalizesTestName(t *testing.T) {
	raw := json.RawMessage(`{"test_name": "Web_Connectivity", "test_keys": {}}`)
	m, err := Decode(raw, "uid-1")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if m.TestName != "webconnectivity" {
		t.Errorf("TestName = %q, want webconnectivity", m.TestName)
	}
	if _, ok := m.TestKeys.(WebConnectivityKeys); !ok {
		t.Fatalf("TestKeys type = %T, want WebConnectivityKeys", m.TestKeys)
	}
}

func TestStableUID_DeterministicAndOrderInsensitive(t *testing.T) {
	a := json.RawMessage(`{"a": 1, "b": 2}`)
	b := json.RawMessage(`{"b": 2, "a": 1}`)

	uidA, err := StableUID(a)
	if err != nil {
		t.Fatalf("StableUID(a) error: %v", err)
	}
	uidB, err := StableUID(b)
	if err != nil {
		t.Fatalf("StableUID(b) error: %v", err)
	}
	if uidA != uidB {
		t.Errorf("StableUID differs on key-order permutation: %s != %s", uidA, uidB)
	}

	uidA2, err := StableUID(a)
	if err != nil {
		t.Fatalf("StableUID(a) second call error: %v", err)
	}
	if uidA != uidA2 {
		t.Errorf("StableUID not deterministic across calls: %s != %s", uidA, uidA2)
	}
}

func TestDecode_UsesStableUIDWhenFilenameUIDEmpty(t *testing.T) {
	raw := json.RawMessage(`{"test_name": "tor", "test_keys": {}}`)
	m, err := Decode(raw, "")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if m.MeasurementUID == "" {
		t.Error("expected non-empty derived MeasurementUID")
	}
}
