// Package measurement decodes raw archive records into typed Measurement
// variants keyed by test name.
package measurement

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// MaybeBinaryData decodes OONI's maybe_binary_data wire format: a body that
// is valid UTF-8 is carried as a plain JSON string, while a body that isn't
// is wrapped as {"data": "<base64>", "format": "base64"} instead. Its
// underlying type is the decoded bytes either way.
type MaybeBinaryData []byte

// UnmarshalJSON implements json.Unmarshaler for MaybeBinaryData.
func (m *MaybeBinaryData) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*m = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*m = MaybeBinaryData(s)
		return nil
	}

	var wrapped struct {
		Data   string `json:"data"`
		Format string `json:"format"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return fmt.Errorf("measurement: maybe_binary_data: %w", err)
	}
	if wrapped.Format != "base64" {
		return fmt.Errorf("measurement: maybe_binary_data: unknown format %q", wrapped.Format)
	}
	decoded, err := base64.StdEncoding.DecodeString(wrapped.Data)
	if err != nil {
		return fmt.Errorf("measurement: maybe_binary_data: %w", err)
	}
	*m = MaybeBinaryData(decoded)
	return nil
}

// DNSQuery is one resolver query/answer pair recorded by a measurement.
type DNSQuery struct {
	Hostname   string      `json:"hostname"`
	QueryType  string      `json:"query_type"`
	ResolverIP string      `json:"resolver_hostname"`
	Failure    *string     `json:"failure"`
	Answers    []DNSAnswer `json:"answers"`
	T          float64     `json:"t"`
}

// DNSAnswer is a single answer entry within a DNSQuery.
type DNSAnswer struct {
	AnswerType string `json:"answer_type"`
	IPv4       string `json:"ipv4"`
	IPv6       string `json:"ipv6"`
	Hostname   string `json:"hostname"` // CNAME target, when AnswerType == "CNAME"
	TTL        *int64 `json:"ttl"`
}

// TCPConnect is one attempted TCP connection.
type TCPConnect struct {
	IP     string           `json:"ip"`
	Port   int              `json:"port"`
	Status TCPConnectStatus `json:"status"`
	T      float64          `json:"t"`
}

// TCPConnectStatus carries the outcome of a TCPConnect attempt.
type TCPConnectStatus struct {
	Success bool    `json:"success"`
	Failure *string `json:"failure"`
}

// TLSHandshake is one TLS handshake attempt, optionally preceded by a TCP
// connect to the same (ip, port).
type TLSHandshake struct {
	IP                 string   `json:"ip"`
	Port               int      `json:"port"`
	CipherSuite        string   `json:"cipher_suite"`
	NegotiatedProtocol string   `json:"negotiated_protocol"`
	TLSVersion         string   `json:"tls_version"`
	ServerName         string   `json:"server_name"`
	Failure            *string  `json:"failure"`
	PeerCertificates   []string `json:"peer_certificates"` // base64 DER, leaf first
	NoTLSVerify        bool     `json:"no_tls_verify"`
	T                  float64  `json:"t"`
}

// NetworkEvent is one low-level socket event (connect, read, write, ...)
// used to correlate byte counters with a TLSHandshake by timestamp window.
type NetworkEvent struct {
	Operation string  `json:"operation"`
	T         float64 `json:"t"`
	Address   string  `json:"address"`
	NumBytes  int64   `json:"num_bytes"`
	Failure   *string `json:"failure"`
}

// HTTPTransaction is one HTTP request/response pair.
type HTTPTransaction struct {
	Request  HTTPRequest  `json:"request"`
	Response HTTPResponse `json:"response"`
	Failure  *string      `json:"failure"`
	T        float64      `json:"t"`
}

// HTTPRequest is the request half of an HTTPTransaction.
type HTTPRequest struct {
	URL         string              `json:"url"`
	Method      string              `json:"method"`
	HeadersList map[string][]string `json:"headers_list"`
	Body        MaybeBinaryData     `json:"body"`
}

// HTTPResponse is the response half of an HTTPTransaction.
type HTTPResponse struct {
	Code        int                 `json:"code"`
	HeadersList map[string][]string `json:"headers_list"`
	Body        MaybeBinaryData     `json:"body"`
}

// NetworkTuple identifies a (domain, ip, port) path, the common grain
// transformers join DNS/TCP/TLS/HTTP sub-events on.
type NetworkTuple struct {
	Domain string
	IP     string
	Port   int
}

// BaseTestKeys is embedded by every per-test TestKeys variant and carries
// the sub-event lists shared across the whole web-measurement family. A nil
// slice means "not populated by this test", not "observed empty".
type BaseTestKeys struct {
	Queries       []DNSQuery        `json:"queries"`
	TCPConnect    []TCPConnect      `json:"tcp_connect"`
	TLSHandshakes []TLSHandshake    `json:"tls_handshakes"`
	NetworkEvents []NetworkEvent    `json:"network_events"`
	Requests      []HTTPTransaction `json:"requests"`
}

// StartTimeLayout is the measurement_start_time wire format: space-separated,
// UTC, fractional seconds optional.
const StartTimeLayout = "2006-01-02 15:04:05.999999999"

// ParseStartTime parses a measurement_start_time string as the archive
// writes it.
func ParseStartTime(s string) (time.Time, error) {
	return time.Parse(StartTimeLayout, s)
}
