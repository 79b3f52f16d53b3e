package measurement

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/DecFox/data/etl"
)

// TestKeys is implemented by every per-test-name payload variant. It exists
// so Measurement.TestKeys can hold any of them while still giving
// transformers typed access via a switch on Measurement.TestName.
type TestKeys interface {
	isTestKeys()
}

// Measurement is the common envelope every test produces: header fields
// shared across all test names, plus a TestKeys payload whose concrete type
// is determined by TestName.
type Measurement struct {
	MeasurementUID       string
	ReportID             string
	Input                *string
	MeasurementStartTime string
	ProbeASN             string
	ProbeCC              string
	ResolverIP           string
	SoftwareName         string
	SoftwareVersion      string
	TestName             string
	TestVersion          string
	TestRuntime          float64

	TestKeys TestKeys
}

// header mirrors the JSON shape of Measurement's non-TestKeys fields; it is
// decoded once and then re-marshaled per test-specific TestKeys type.
type header struct {
	MeasurementUID       string          `json:"measurement_uid"`
	ReportID             string          `json:"report_id"`
	Input                *string         `json:"input"`
	MeasurementStartTime string          `json:"measurement_start_time"`
	ProbeASN             string          `json:"probe_asn"`
	ProbeCC              string          `json:"probe_cc"`
	ResolverIP           string          `json:"resolver_ip"`
	SoftwareName         string          `json:"software_name"`
	SoftwareVersion      string          `json:"software_version"`
	TestName             string          `json:"test_name"`
	TestVersion          string          `json:"test_version"`
	TestRuntime          float64         `json:"test_runtime"`
	TestKeys             json.RawMessage `json:"test_keys"`
}

// ErrUnknownTestName is returned by Decode when no decoder is registered for
// the record's test_name.
var ErrUnknownTestName = errors.New("measurement: unknown test name")

// decodersByTestName dispatches on the canonicalized test_name tag to the
// function that unmarshals the test-specific TestKeys payload. Built once
// at init, the idiomatic-Go analogue of the teacher's NETTEST_MODELS
// class-attribute dispatch dict.
var decodersByTestName = map[string]func(json.RawMessage) (TestKeys, error){}

func registerDecoder(testName string, fn func(json.RawMessage) (TestKeys, error)) {
	decodersByTestName[etl.CanonicalTestName(testName)] = fn
}

func init() {
	registerDecoder("web_connectivity", decodeWebConnectivityKeys)
	registerDecoder("dnscheck", decodeDNSCheckKeys)
	registerDecoder("signal", decodeSignalKeys)
	registerDecoder("telegram", decodeTelegramKeys)
	registerDecoder("tor", decodeTorKeys)
	registerDecoder("stun_reachability", decodeStunReachabilityKeys)
	registerDecoder("whatsapp", decodeWhatsappKeys)
	registerDecoder("http_invalid_request_line", decodeHTTPInvalidRequestLineKeys)
	registerDecoder("http_header_field_manipulation", decodeHTTPHeaderFieldManipulationKeys)
}

// Decode parses one raw JSON record into a Measurement. uid, when non-empty,
// overrides the hash-derived UID (new-format containers carry the UID in
// their filename; legacy records do not and fall back to StableUID).
// Measurements whose test_name has no registered decoder fall back to the
// generic BaseMeasurementKeys variant rather than failing, so that unknown
// or future test names still produce header rows.
func Decode(raw json.RawMessage, uid string) (Measurement, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Measurement{}, fmt.Errorf("measurement: decode header: %w", err)
	}

	canonical := etl.CanonicalTestName(h.TestName)
	decode, ok := decodersByTestName[canonical]
	if !ok {
		decode = decodeBaseMeasurementKeys
	}
	keys, err := decode(h.TestKeys)
	if err != nil {
		return Measurement{}, fmt.Errorf("measurement: decode test_keys for %q: %w", h.TestName, err)
	}

	if uid == "" {
		uid, err = StableUID(raw)
		if err != nil {
			return Measurement{}, err
		}
	}

	return Measurement{
		MeasurementUID:       uid,
		ReportID:             h.ReportID,
		Input:                h.Input,
		MeasurementStartTime: h.MeasurementStartTime,
		ProbeASN:             h.ProbeASN,
		ProbeCC:              h.ProbeCC,
		ResolverIP:           h.ResolverIP,
		SoftwareName:         h.SoftwareName,
		SoftwareVersion:      h.SoftwareVersion,
		TestName:             canonical,
		TestVersion:          h.TestVersion,
		TestRuntime:          h.TestRuntime,
		TestKeys:             keys,
	}, nil
}

// StableUID derives a measurement UID from the canonical JSON bytes of a
// record via murmur3/128, for legacy records that carry no UID in their
// enclosing filename. Matching inputs always yield matching UIDs: json.Marshal
// of the parsed-and-reserialized record is used so that immaterial
// whitespace/key-order differences in the source bytes don't change the hash.
func StableUID(raw json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("measurement: stable uid: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("measurement: stable uid: %w", err)
	}
	hi, lo := murmur3.Sum128(canonical)
	return fmt.Sprintf("%016x%016x", hi, lo), nil
}
