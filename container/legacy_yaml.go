package container

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// NormalizeLegacyYAML reads a YAML stream of legacy measurement documents
// and emits each as normalized JSON. Grounded in the original's
// iter_yaml_msmt_normalized: legacy YAML records predate report_id/
// measurement_uid entirely, so the normalizer backfills report_filename
// (bucket_tstamp/report_filename, the same value s3feeder.py threads
// through as rfn) onto every document that lacks it, and converts any
// map[interface{}]interface{} nodes (maps with non-string keys) to the
// string-keyed maps encoding/json requires.
func NormalizeLegacyYAML(r io.Reader, bucketTstamp, reportFilename string) (<-chan json.RawMessage, <-chan error) {
	out := make(chan json.RawMessage)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		dec := yaml.NewDecoder(r)
		for {
			var doc map[string]interface{}
			err := dec.Decode(&doc)
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("container: normalize legacy yaml: %w", err)
				return
			}
			if doc == nil {
				continue
			}

			normalized := normalizeYAMLValue(doc).(map[string]interface{})
			if _, ok := normalized["report_filename"]; !ok {
				normalized["report_filename"] = reportFilename
			}
			if _, ok := normalized["bucket_tstamp"]; !ok {
				normalized["bucket_tstamp"] = bucketTstamp
			}

			body, err := json.Marshal(normalized)
			if err != nil {
				errs <- fmt.Errorf("container: normalize legacy yaml: marshal: %w", err)
				return
			}
			out <- body
		}
	}()

	return out, errs
}

// normalizeYAMLValue recursively converts map[interface{}]interface{} (what
// gopkg.in/yaml.v3 produces for maps whose keys are not all strings) into
// map[string]interface{}, so the result round-trips through encoding/json.
func normalizeYAMLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			out[k] = normalizeYAMLValue(sub)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(sub)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, sub := range val {
			out[i] = normalizeYAMLValue(sub)
		}
		return out
	default:
		return val
	}
}
