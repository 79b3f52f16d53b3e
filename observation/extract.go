package observation

import (
	"strconv"

	"github.com/DecFox/data/measurement"
)

const webObservationTable = "web_observation"

// makeDNSObservations emits one observation per resolved answer, or one
// failure observation for a query that failed outright.
func makeDNSObservations(h Header, queries []measurement.DNSQuery) []WebObservation {
	var out []WebObservation
	for _, q := range queries {
		q := q
		hostname := q.Hostname
		t := q.T
		if q.Failure != nil {
			out = append(out, WebObservation{
				Header:     h,
				DBTable:    webObservationTable,
				Category:   "dns",
				T:          &t,
				DomainName: &hostname,
				QueryType:  strPtr(q.QueryType),
				DNSFailure: q.Failure,
			})
			continue
		}
		for _, a := range q.Answers {
			a := a
			answer := dnsAnswerValue(a)
			out = append(out, WebObservation{
				Header:     h,
				DBTable:    webObservationTable,
				Category:   "dns",
				T:          &t,
				DomainName: &hostname,
				QueryType:  strPtr(q.QueryType),
				Answer:     &answer,
			})
		}
	}
	return out
}

func dnsAnswerValue(a measurement.DNSAnswer) string {
	switch a.AnswerType {
	case "A":
		return a.IPv4
	case "AAAA":
		return a.IPv6
	case "CNAME":
		return a.Hostname
	default:
		if a.IPv4 != "" {
			return a.IPv4
		}
		if a.IPv6 != "" {
			return a.IPv6
		}
		return a.Hostname
	}
}

// makeTCPObservations emits one observation per attempted (ip, port) tuple.
// ipToDomain back-annotates which domain led to this IP; absence yields a
// nil DomainName, not an error.
func makeTCPObservations(h Header, connects []measurement.TCPConnect, ipToDomain map[string]string) []WebObservation {
	var out []WebObservation
	for _, c := range connects {
		c := c
		ip := c.IP
		port := c.Port
		t := c.T
		success := c.Status.Success
		obs := WebObservation{
			Header:     h,
			DBTable:    webObservationTable,
			Category:   "tcp",
			T:          &t,
			IP:         &ip,
			Port:       &port,
			TCPSuccess: &success,
			TCPFailure: c.Status.Failure,
		}
		if domain, ok := ipToDomain[ip]; ok {
			obs.DomainName = &domain
		}
		out = append(out, obs)
	}
	return out
}

// makeTLSObservations emits one observation per handshake, associating
// network-event byte counters to the handshake by matching the event's
// Address to the handshake's (ip, port) when the event carries an address,
// and by timestamp window otherwise.
func makeTLSObservations(h Header, handshakes []measurement.TLSHandshake, events []measurement.NetworkEvent, ipToDomain map[string]string) []WebObservation {
	var out []WebObservation
	for _, hs := range handshakes {
		hs := hs
		ip := hs.IP
		port := hs.Port
		t := hs.T
		var certValid *bool
		if hs.Failure == nil {
			v := true
			certValid = &v
		} else {
			v := false
			certValid = &v
		}

		bytesIn, bytesOut := sumNetworkEventBytes(events, ip, port, t)

		obs := WebObservation{
			Header:                h,
			DBTable:               webObservationTable,
			Category:              "tls",
			T:                     &t,
			IP:                    &ip,
			Port:                  &port,
			TLSServerName:         strPtr(hs.ServerName),
			TLSCipherSuite:        strPtr(hs.CipherSuite),
			TLSVersion:            strPtr(hs.TLSVersion),
			TLSIsCertificateValid: certValid,
			TLSFailure:            hs.Failure,
			NetworkEventsBytesIn:  &bytesIn,
			NetworkEventsBytesOut: &bytesOut,
		}
		if domain, ok := ipToDomain[ip]; ok {
			obs.DomainName = &domain
		}
		out = append(out, obs)
	}
	return out
}

// sumNetworkEventBytes totals "read"/"write" byte counters for events
// addressed to (ip, port), or, when an event carries no address, for events
// within a five-second window starting at the handshake's own timestamp.
func sumNetworkEventBytes(events []measurement.NetworkEvent, ip string, port int, handshakeT float64) (bytesIn, bytesOut int64) {
	const window = 5.0
	addr := ip + ":" + strconv.Itoa(port)
	for _, ev := range events {
		matches := ev.Address == addr
		if ev.Address == "" {
			matches = ev.T >= handshakeT && ev.T < handshakeT+window
		}
		if !matches {
			continue
		}
		switch ev.Operation {
		case "read":
			bytesIn += ev.NumBytes
		case "write":
			bytesOut += ev.NumBytes
		}
	}
	return bytesIn, bytesOut
}

// makeHTTPObservations emits one observation per request/response pair,
// including a response-body-length and a fingerprint-match flag.
func makeHTTPObservations(h Header, requests []measurement.HTTPTransaction, fingerprints FingerprintDB) []WebObservation {
	var out []WebObservation
	for _, r := range requests {
		r := r
		t := r.T
		url := r.Request.URL
		obs := WebObservation{
			Header:      h,
			DBTable:     webObservationTable,
			Category:    "http",
			T:           &t,
			RequestURL:  &url,
			HTTPFailure: r.Failure,
		}
		if r.Failure == nil {
			code := r.Response.Code
			bodyLen := int64(len(r.Response.Body))
			obs.ResponseStatusCode = &code
			obs.ResponseBodyLength = &bodyLen
			if fingerprints != nil {
				if name, ok := fingerprints.MatchHTTP(r.Response.Body, r.Response.HeadersList); ok {
					obs.MatchedFingerprint = &name
				}
			}
		}
		out = append(out, obs)
	}
	return out
}

func strPtr(s string) *string { return &s }
