package measurement

import "encoding/json"

// WebConnectivityControl is the control-measurement echo web_connectivity
// carries alongside its own probe-side observations.
type WebConnectivityControl struct {
	DNS  WebConnectivityControlDNS            `json:"dns"`
	TCP  map[string]WebConnectivityControlTCP `json:"tcp_connect"`
	HTTP WebConnectivityControlHTTP           `json:"http_request"`
}

type WebConnectivityControlDNS struct {
	Failure *string  `json:"failure"`
	Addrs   []string `json:"addrs"`
}

type WebConnectivityControlTCP struct {
	Status  bool    `json:"status"`
	Failure *string `json:"failure"`
}

type WebConnectivityControlHTTP struct {
	Failure      *string `json:"failure"`
	StatusCode   int     `json:"status_code"`
	BodyLength   int64   `json:"body_length"`
}

// WebConnectivityKeys is the test_keys payload for web_connectivity.
type WebConnectivityKeys struct {
	BaseTestKeys

	Control       *WebConnectivityControl
	ControlFailure *string

	DNSConsistency   *string
	BodyLengthMatch  *bool
	HeadersMatch     *bool
	StatusCodeMatch  *bool
	Accessible       *bool
	Blocking         interface{} // bool, string, or null per the original's loose typing
}

func (WebConnectivityKeys) isTestKeys() {}

type webConnectivityWire struct {
	BaseTestKeys
	Control         *WebConnectivityControl `json:"control"`
	ControlFailure  *string                 `json:"control_failure"`
	DNSConsistency  *string                 `json:"dns_consistency"`
	BodyLengthMatch *bool                   `json:"body_length_match"`
	HeadersMatch    *bool                   `json:"headers_match"`
	StatusCodeMatch *bool                   `json:"status_code_match"`
	Accessible      *bool                   `json:"accessible"`
	Blocking        interface{}             `json:"blocking"`
}

func decodeWebConnectivityKeys(raw json.RawMessage) (TestKeys, error) {
	var w webConnectivityWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return WebConnectivityKeys{
		BaseTestKeys:    w.BaseTestKeys,
		Control:         w.Control,
		ControlFailure:  w.ControlFailure,
		DNSConsistency:  w.DNSConsistency,
		BodyLengthMatch: w.BodyLengthMatch,
		HeadersMatch:    w.HeadersMatch,
		StatusCodeMatch: w.StatusCodeMatch,
		Accessible:      w.Accessible,
		Blocking:        w.Blocking,
	}, nil
}

// DNSCheckKeys is the test_keys payload for dnscheck.
type DNSCheckKeys struct {
	BaseTestKeys
	Bootstrap *DNSCheckSubResult
	Lookups   map[string]DNSCheckSubResult
}

type DNSCheckSubResult struct {
	Failure *string    `json:"failure"`
	Queries []DNSQuery `json:"queries"`
}

func (DNSCheckKeys) isTestKeys() {}

type dnsCheckWire struct {
	BaseTestKeys
	Bootstrap *DNSCheckSubResult           `json:"bootstrap"`
	Lookups   map[string]DNSCheckSubResult `json:"lookups"`
}

func decodeDNSCheckKeys(raw json.RawMessage) (TestKeys, error) {
	var w dnsCheckWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return DNSCheckKeys{BaseTestKeys: w.BaseTestKeys, Bootstrap: w.Bootstrap, Lookups: w.Lookups}, nil
}

// SignalKeys is the test_keys payload for signal.
type SignalKeys struct {
	BaseTestKeys
	Failure         *string
	FailedOperation *string
	SignalBackendStatus *string
}

func (SignalKeys) isTestKeys() {}

type signalWire struct {
	BaseTestKeys
	Failure             *string `json:"failure"`
	FailedOperation     *string `json:"failed_operation"`
	SignalBackendStatus *string `json:"signal_backend_status"`
}

func decodeSignalKeys(raw json.RawMessage) (TestKeys, error) {
	var w signalWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return SignalKeys{
		BaseTestKeys:        w.BaseTestKeys,
		Failure:             w.Failure,
		FailedOperation:     w.FailedOperation,
		SignalBackendStatus: w.SignalBackendStatus,
	}, nil
}

// TelegramKeys is the test_keys payload for telegram.
// Grounded on original_source/oonidata/models/nettests/telegram.py.
type TelegramKeys struct {
	BaseTestKeys
	Failure              *string
	FailedOperation      *string
	TelegramHTTPBlocking *bool
	TelegramTCPBlocking  *bool
	TelegramWebFailure   *string
	TelegramWebStatus    *string
}

func (TelegramKeys) isTestKeys() {}

type telegramWire struct {
	BaseTestKeys
	Failure              *string `json:"failure"`
	FailedOperation      *string `json:"failed_operation"`
	TelegramHTTPBlocking *bool   `json:"telegram_http_blocking"`
	TelegramTCPBlocking  *bool   `json:"telegram_tcp_blocking"`
	TelegramWebFailure   *string `json:"telegram_web_failure"`
	TelegramWebStatus    *string `json:"telegram_web_status"`
}

func decodeTelegramKeys(raw json.RawMessage) (TestKeys, error) {
	var w telegramWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return TelegramKeys{
		BaseTestKeys:         w.BaseTestKeys,
		Failure:              w.Failure,
		FailedOperation:      w.FailedOperation,
		TelegramHTTPBlocking: w.TelegramHTTPBlocking,
		TelegramTCPBlocking:  w.TelegramTCPBlocking,
		TelegramWebFailure:   w.TelegramWebFailure,
		TelegramWebStatus:    w.TelegramWebStatus,
	}, nil
}

// TorKeys is the test_keys payload for tor.
type TorKeys struct {
	BaseTestKeys
	DirPort   map[string]interface{}
	ORPort    map[string]interface{}
	OBFS4     map[string]interface{}
}

func (TorKeys) isTestKeys() {}

type torWire struct {
	BaseTestKeys
	DirPort map[string]interface{} `json:"dir_port"`
	ORPort  map[string]interface{} `json:"or_port"`
	OBFS4   map[string]interface{} `json:"obfs4"`
}

func decodeTorKeys(raw json.RawMessage) (TestKeys, error) {
	var w torWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return TorKeys{BaseTestKeys: w.BaseTestKeys, DirPort: w.DirPort, ORPort: w.ORPort, OBFS4: w.OBFS4}, nil
}

// StunReachabilityKeys is the test_keys payload for stun_reachability.
// Grounded on original_source/oonidata/transforms/nettests/stun_reachability.py:
// this test only ever populates DNS and HTTP sub-events, never TCP/TLS.
type StunReachabilityKeys struct {
	Queries  []DNSQuery
	Requests []HTTPTransaction
	Failure  *string
	Endpoint string
}

func (StunReachabilityKeys) isTestKeys() {}

type stunReachabilityWire struct {
	Queries  []DNSQuery        `json:"queries"`
	Requests []HTTPTransaction `json:"requests"`
	Failure  *string           `json:"failure"`
	Endpoint string            `json:"endpoint"`
}

func decodeStunReachabilityKeys(raw json.RawMessage) (TestKeys, error) {
	var w stunReachabilityWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return StunReachabilityKeys{
		Queries:  w.Queries,
		Requests: w.Requests,
		Failure:  w.Failure,
		Endpoint: w.Endpoint,
	}, nil
}

// WhatsappKeys is the test_keys payload for whatsapp.
type WhatsappKeys struct {
	BaseTestKeys
	RegistrationServerStatus *string
	WhatsappWebStatus        *string
	WhatsappEndpointsStatus  *string
	WhatsappEndpointsBlocked []string
	WhatsappEndpointsDNSInconsistent []string
}

func (WhatsappKeys) isTestKeys() {}

type whatsappWire struct {
	BaseTestKeys
	RegistrationServerStatus        *string  `json:"registration_server_status"`
	WhatsappWebStatus               *string  `json:"whatsapp_web_status"`
	WhatsappEndpointsStatus         *string  `json:"whatsapp_endpoints_status"`
	WhatsappEndpointsBlocked        []string `json:"whatsapp_endpoints_blocked"`
	WhatsappEndpointsDNSInconsistent []string `json:"whatsapp_endpoints_dns_inconsistent"`
}

func decodeWhatsappKeys(raw json.RawMessage) (TestKeys, error) {
	var w whatsappWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return WhatsappKeys{
		BaseTestKeys:                     w.BaseTestKeys,
		RegistrationServerStatus:         w.RegistrationServerStatus,
		WhatsappWebStatus:                w.WhatsappWebStatus,
		WhatsappEndpointsStatus:          w.WhatsappEndpointsStatus,
		WhatsappEndpointsBlocked:         w.WhatsappEndpointsBlocked,
		WhatsappEndpointsDNSInconsistent: w.WhatsappEndpointsDNSInconsistent,
	}, nil
}

// HTTPInvalidRequestLineKeys is the test_keys payload for
// http_invalid_request_line: a middlebox-tampering probe that sends a
// deliberately malformed request line and compares sent vs received bytes.
type HTTPInvalidRequestLineKeys struct {
	Sent     []string
	Received []string
	Failure  *string
}

func (HTTPInvalidRequestLineKeys) isTestKeys() {}

type httpInvalidRequestLineWire struct {
	Sent     []string `json:"sent"`
	Received []string `json:"received"`
	Failure  *string  `json:"failure"`
}

func decodeHTTPInvalidRequestLineKeys(raw json.RawMessage) (TestKeys, error) {
	var w httpInvalidRequestLineWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return HTTPInvalidRequestLineKeys{Sent: w.Sent, Received: w.Received, Failure: w.Failure}, nil
}

// HTTPHeaderFieldManipulationKeys is the test_keys payload for
// http_header_field_manipulation: compares a set of header field
// name/value/order tampering signals between sent and received requests.
type HTTPHeaderFieldManipulationKeys struct {
	Tampering map[string]bool
	Requests  []HTTPTransaction
}

func (HTTPHeaderFieldManipulationKeys) isTestKeys() {}

type httpHeaderFieldManipulationWire struct {
	Tampering map[string]bool   `json:"tampering"`
	Requests  []HTTPTransaction `json:"requests"`
}

func decodeHTTPHeaderFieldManipulationKeys(raw json.RawMessage) (TestKeys, error) {
	var w httpHeaderFieldManipulationWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return HTTPHeaderFieldManipulationKeys{Tampering: w.Tampering, Requests: w.Requests}, nil
}

// BaseMeasurementKeys is the fallback variant for test names with no
// registered decoder: it preserves the sub-event lists every web
// measurement shares and otherwise degrades gracefully rather than failing
// the whole record.
type BaseMeasurementKeys struct {
	BaseTestKeys
}

func (BaseMeasurementKeys) isTestKeys() {}

func decodeBaseMeasurementKeys(raw json.RawMessage) (TestKeys, error) {
	var w BaseTestKeys
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
	}
	return BaseMeasurementKeys{BaseTestKeys: w}, nil
}
