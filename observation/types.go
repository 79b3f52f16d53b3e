// Package observation decomposes a typed measurement into flat observation
// rows, cross-linking DNS, TCP, TLS and HTTP sub-events of the same web
// measurement.
package observation

import (
	"fmt"

	"github.com/DecFox/data/db"
	"github.com/DecFox/data/measurement"
)

// Header carries the measurement-identifying fields every observation row
// inherits, so a row can be attributed back to its source measurement
// without a join.
type Header struct {
	MeasurementUID       string
	ReportID             string
	Input                *string
	MeasurementStartTime string
	ProbeASN             string
	ProbeCC              string
	ResolverIP           string
	SoftwareName         string
	SoftwareVersion      string
}

// headerRow flattens Header alone, for observations (like
// HTTPMiddleboxObservation) that build the rest of their row by hand instead
// of delegating the whole struct to db.RowOf.
func headerRow(h Header) map[string]interface{} {
	return db.RowOf(h)
}

func headerOf(m measurement.Measurement) Header {
	return Header{
		MeasurementUID:       m.MeasurementUID,
		ReportID:             m.ReportID,
		Input:                m.Input,
		MeasurementStartTime: m.MeasurementStartTime,
		ProbeASN:             m.ProbeASN,
		ProbeCC:              m.ProbeCC,
		ResolverIP:           m.ResolverIP,
		SoftwareName:         m.SoftwareName,
		SoftwareVersion:      m.SoftwareVersion,
	}
}

// WebObservation is one correlated DNS/TCP/TLS/HTTP sub-event of a single
// URL attempt. Category names which sub-event produced the row; fields
// outside that category's concern are left nil rather than zero-valued, so
// a reader can tell "not applicable" from "observed empty".
type WebObservation struct {
	Header
	DBTable string

	Category string // "dns", "tcp", "tls", or "http"
	T        *float64

	// Populated by the cross-linking protocol for tcp/tls rows from the
	// ipToDomain map, and backfilled onto dns rows by the tls-validity pass.
	DomainName *string

	// dns
	QueryType  *string
	Answer     *string
	DNSFailure *string
	// IsTLSConsistent mirrors the original transform's quirk of keying the
	// domain->validity map by domain but looking it up by DNS answer value,
	// which only actually resolves for CNAME-type answers.
	IsTLSConsistent *bool

	// tcp
	IP         *string
	Port       *int
	TCPSuccess *bool
	TCPFailure *string

	// tls
	TLSServerName         *string
	TLSCipherSuite        *string
	TLSVersion            *string
	TLSIsCertificateValid *bool
	TLSFailure            *string
	NetworkEventsBytesIn  *int64
	NetworkEventsBytesOut *int64

	// http
	RequestURL         *string
	HTTPFailure        *string
	ResponseStatusCode *int
	ResponseBodyLength *int64
	MatchedFingerprint *string
}

// WebControlObservation is the control-measurement echo web_connectivity
// carries for a DNS/TCP/HTTP result obtained from the OONI control service.
type WebControlObservation struct {
	Header
	DBTable string

	Domain string

	ControlDNSFailure *string
	ControlDNSAddrs   []string

	ControlTCPAddress *string
	ControlTCPSuccess *bool
	ControlTCPFailure *string

	ControlHTTPFailure    *string
	ControlHTTPStatusCode *int
	ControlHTTPBodyLength *int64
}

// HTTPMiddleboxObservation carries the raw sent/received request-line
// snapshots and derived success flag for the two middlebox-tampering probes
// (http_invalid_request_line, http_header_field_manipulation). The two
// probes share this one table, but their original dataset columns carry a
// test-specific prefix (hirl_/hfm_) rather than a generic name, so Row below
// builds the column map directly instead of going through db.RowOf.
type HTTPMiddleboxObservation struct {
	Header
	DBTable string

	// TestName is "http_invalid_request_line" or
	// "http_header_field_manipulation"; it picks the hirl_/hfm_ column
	// prefix and is not itself emitted as a column.
	TestName string

	// Sent and Received are the per-attempt request-line snapshots
	// http_invalid_request_line compares; indexed into hirl_sent_N /
	// hirl_received_N columns. Unused by http_header_field_manipulation.
	Sent     []string
	Received []string
	Failure  *string

	Success bool

	// Tampering is only populated for http_header_field_manipulation.
	Tampering map[string]bool
}

// columnPrefix returns the per-test column prefix (hirl_ or hfm_) the
// original dataset uses for this observation's success/sent/received
// columns.
func (o HTTPMiddleboxObservation) columnPrefix() string {
	switch o.TestName {
	case "http_invalid_request_line":
		return "hirl"
	case "http_header_field_manipulation":
		return "hfm"
	default:
		return o.TestName
	}
}

// Row flattens the observation into its destination columns. It unrolls
// Sent/Received into indexed <prefix>_sent_N/<prefix>_received_N columns
// (mirroring the original dataset's hirl_sent_0/hirl_received_0 naming)
// rather than storing them as opaque array columns, so it builds the row
// map directly instead of delegating to db.RowOf.
func (o HTTPMiddleboxObservation) Row() map[string]interface{} {
	row := make(map[string]interface{})
	for k, v := range headerRow(o.Header) {
		row[k] = v
	}

	prefix := o.columnPrefix()
	row[prefix+"_success"] = o.Success
	if o.Failure != nil {
		row[prefix+"_failure"] = *o.Failure
	} else {
		row[prefix+"_failure"] = nil
	}
	for i, s := range o.Sent {
		row[fmt.Sprintf("%s_sent_%d", prefix, i)] = s
	}
	for i, s := range o.Received {
		row[fmt.Sprintf("%s_received_%d", prefix, i)] = s
	}
	if o.Tampering != nil {
		row["tampering"] = o.Tampering
	}
	return row
}

// Result bundles the observation rows a single Transform call produced, one
// slice per destination table.
type Result struct {
	WebObservations           []WebObservation
	WebControlObservations    []WebControlObservation
	HTTPMiddleboxObservations []HTTPMiddleboxObservation
}
