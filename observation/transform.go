package observation

import (
	"fmt"

	"github.com/DecFox/data/etl"
	"github.com/DecFox/data/measurement"
)

// transformersByTestName dispatches on the measurement's test-name tag, the
// idiomatic-Go analogue of the teacher's nettest_processors dict in
// original_source/oonidata/processing.py. Built once at init. Keys are
// canonicalized the same way measurement.Decode canonicalizes TestName, so
// lookups always agree regardless of how the registration call spelled it.
var transformersByTestName = map[string]func(measurement.Measurement, NetInfoDB, FingerprintDB) (Result, error){}

func registerTransformer(testName string, fn func(measurement.Measurement, NetInfoDB, FingerprintDB) (Result, error)) {
	transformersByTestName[etl.CanonicalTestName(testName)] = fn
}

func init() {
	registerTransformer("web_connectivity", transformWebConnectivity)
	registerTransformer("dnscheck", transformGenericWeb)
	registerTransformer("telegram", transformGenericWeb)
	registerTransformer("signal", transformGenericWeb)
	registerTransformer("whatsapp", transformGenericWeb)
	registerTransformer("tor", transformGenericWeb)
	registerTransformer("stun_reachability", transformStunReachability)
	registerTransformer("http_invalid_request_line", transformHTTPInvalidRequestLine)
	registerTransformer("http_header_field_manipulation", transformHTTPHeaderFieldManipulation)
}

// ErrNoTransformer is returned by Transform when the measurement's test name
// has no registered transformer.
type ErrNoTransformer struct{ TestName string }

func (e ErrNoTransformer) Error() string {
	return fmt.Sprintf("observation: no transformer registered for test name %q", e.TestName)
}

// Transform decomposes m into its destination-table observation rows,
// dispatching on m.TestName. Callers that already called
// metrics.UnknownTestName.Inc() on ErrNoTransformer may treat it as a skip
// rather than a fatal error, per the pipeline's error-handling policy.
func Transform(m measurement.Measurement, netinfo NetInfoDB, fingerprints FingerprintDB) (Result, error) {
	fn, ok := transformersByTestName[m.TestName]
	if !ok {
		return Result{}, ErrNoTransformer{TestName: m.TestName}
	}
	return fn(m, netinfo, fingerprints)
}

// baseTestKeysOf extracts the shared sub-event lists every test_keys
// variant in BaseTestKeys's family carries, regardless of which concrete
// TestKeys type m holds.
func baseTestKeysOf(k measurement.TestKeys) measurement.BaseTestKeys {
	switch v := k.(type) {
	case measurement.WebConnectivityKeys:
		return v.BaseTestKeys
	case measurement.DNSCheckKeys:
		return v.BaseTestKeys
	case measurement.SignalKeys:
		return v.BaseTestKeys
	case measurement.TelegramKeys:
		return v.BaseTestKeys
	case measurement.TorKeys:
		return v.BaseTestKeys
	case measurement.WhatsappKeys:
		return v.BaseTestKeys
	case measurement.BaseMeasurementKeys:
		return v.BaseTestKeys
	default:
		return measurement.BaseTestKeys{}
	}
}

// transformGenericWeb handles dnscheck, telegram, signal, whatsapp, tor:
// every one of them reuses the same DNS/TCP/TLS/HTTP extractors and the
// cross-linking protocol, differing only in which sub-event lists their
// TestKeys populate (original_source/.../telegram.py: every nettest's
// TestKeys is a strict superset/subset of the same five sub-event lists).
func transformGenericWeb(m measurement.Measurement, netinfo NetInfoDB, fingerprints FingerprintDB) (Result, error) {
	h := headerOf(m)
	bk := baseTestKeysOf(m.TestKeys)

	dns := makeDNSObservations(h, bk.Queries)
	ipToDomain := buildIPToDomain(dns)
	tcp := makeTCPObservations(h, bk.TCPConnect, ipToDomain)
	tls := makeTLSObservations(h, bk.TLSHandshakes, bk.NetworkEvents, ipToDomain)
	http := makeHTTPObservations(h, bk.Requests, fingerprints)

	return Result{WebObservations: consumeWebObservations(dns, tcp, tls, http)}, nil
}

// transformStunReachability only extracts DNS and HTTP sub-events, skipping
// the TCP/TLS extraction steps entirely rather than calling them with empty
// slices — grounded in
// original_source/oonidata/transforms/nettests/stun_reachability.py, whose
// make_observations never references tcp_connect or tls_handshakes at all.
func transformStunReachability(m measurement.Measurement, netinfo NetInfoDB, fingerprints FingerprintDB) (Result, error) {
	keys, ok := m.TestKeys.(measurement.StunReachabilityKeys)
	if !ok {
		return Result{}, fmt.Errorf("observation: stun_reachability: unexpected test_keys type %T", m.TestKeys)
	}
	h := headerOf(m)

	dns := makeDNSObservations(h, keys.Queries)
	http := makeHTTPObservations(h, keys.Requests, fingerprints)

	return Result{WebObservations: consumeWebObservations(dns, nil, nil, http)}, nil
}

// transformWebConnectivity additionally emits WebControlObservation rows
// from the measurement's control echo.
func transformWebConnectivity(m measurement.Measurement, netinfo NetInfoDB, fingerprints FingerprintDB) (Result, error) {
	keys, ok := m.TestKeys.(measurement.WebConnectivityKeys)
	if !ok {
		return Result{}, fmt.Errorf("observation: web_connectivity: unexpected test_keys type %T", m.TestKeys)
	}
	h := headerOf(m)

	dns := makeDNSObservations(h, keys.Queries)
	ipToDomain := buildIPToDomain(dns)
	tcp := makeTCPObservations(h, keys.TCPConnect, ipToDomain)
	tls := makeTLSObservations(h, keys.TLSHandshakes, keys.NetworkEvents, ipToDomain)
	http := makeHTTPObservations(h, keys.Requests, fingerprints)

	result := Result{WebObservations: consumeWebObservations(dns, tcp, tls, http)}

	if keys.Control != nil {
		domain := ""
		if m.Input != nil {
			domain = *m.Input
		}
		result.WebControlObservations = makeWebControlObservations(h, domain, *keys.Control)
	}
	return result, nil
}

func makeWebControlObservations(h Header, domain string, c measurement.WebConnectivityControl) []WebControlObservation {
	obs := WebControlObservation{
		Header:            h,
		DBTable:           "web_control_observation",
		Domain:            domain,
		ControlDNSFailure: c.DNS.Failure,
		ControlDNSAddrs:   c.DNS.Addrs,
	}
	for addr, tcp := range c.TCP {
		addr, tcp := addr, tcp
		obs.ControlTCPAddress = &addr
		obs.ControlTCPSuccess = &tcp.Status
		obs.ControlTCPFailure = tcp.Failure
		break // one representative row per control echo, per the spec's "one row per control DNS/TCP/HTTP result"
	}
	if c.HTTP.Failure == nil {
		code := c.HTTP.StatusCode
		length := c.HTTP.BodyLength
		obs.ControlHTTPStatusCode = &code
		obs.ControlHTTPBodyLength = &length
	} else {
		obs.ControlHTTPFailure = c.HTTP.Failure
	}
	return []WebControlObservation{obs}
}

// transformHTTPInvalidRequestLine derives hirl_success from whether the
// probe actually obtained a response, not from whether sent and received
// request lines match: the whole point of the test is that a middlebox may
// rewrite the malformed request line in flight (see S-2), and that
// tampering must not itself count as failure.
func transformHTTPInvalidRequestLine(m measurement.Measurement, netinfo NetInfoDB, fingerprints FingerprintDB) (Result, error) {
	keys, ok := m.TestKeys.(measurement.HTTPInvalidRequestLineKeys)
	if !ok {
		return Result{}, fmt.Errorf("observation: http_invalid_request_line: unexpected test_keys type %T", m.TestKeys)
	}
	h := headerOf(m)
	obs := HTTPMiddleboxObservation{
		Header:   h,
		DBTable:  "http_middlebox_observation",
		TestName: "http_invalid_request_line",
		Sent:     keys.Sent,
		Received: keys.Received,
		Failure:  keys.Failure,
		Success:  keys.Failure == nil,
	}
	return Result{HTTPMiddleboxObservations: []HTTPMiddleboxObservation{obs}}, nil
}

// transformHTTPHeaderFieldManipulation derives hfm_success the same way,
// additionally carrying the per-field tampering signal map.
func transformHTTPHeaderFieldManipulation(m measurement.Measurement, netinfo NetInfoDB, fingerprints FingerprintDB) (Result, error) {
	keys, ok := m.TestKeys.(measurement.HTTPHeaderFieldManipulationKeys)
	if !ok {
		return Result{}, fmt.Errorf("observation: http_header_field_manipulation: unexpected test_keys type %T", m.TestKeys)
	}
	h := headerOf(m)
	obs := HTTPMiddleboxObservation{
		Header:    h,
		DBTable:   "http_middlebox_observation",
		TestName:  "http_header_field_manipulation",
		Success:   len(keys.Requests) > 0,
		Tampering: keys.Tampering,
	}
	return Result{HTTPMiddleboxObservations: []HTTPMiddleboxObservation{obs}}, nil
}
