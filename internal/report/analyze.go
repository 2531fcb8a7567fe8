// Copyright 2025 James Ross
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/xeipuuv/gojsonschema"
)

// analysisSchema is the JSON Schema every loaded `*_analysis.json` file
// must validate against before it is unmarshaled, guarding analyze/export
// against hand-edited or truncated artifacts.
const analysisSchema = `{
  "type": "object",
  "required": ["run_id", "strategy", "timestamp", "avg_throughput_mbps", "avg_latency_ms", "loss_rate"],
  "properties": {
    "run_id": {"type": "string"},
    "strategy": {"type": "string"},
    "timestamp": {"type": "number"},
    "avg_throughput_mbps": {"type": "number"},
    "avg_latency_ms": {"type": "number"},
    "loss_rate": {"type": "number", "minimum": 0, "maximum": 1},
    "peak_queue_length": {"type": "number"},
    "avg_queue_length": {"type": "number"},
    "jitter_ms": {"type": "number"}
  }
}`

// ScanAnalyses walks dir for files matching the doublestar glob pattern
// (default "*_analysis.json" when pattern is empty), validates each
// against analysisSchema, and returns the parsed Analysis records in
// directory-walk order. A file that fails schema validation is skipped
// with its error returned alongside, never silently dropped.
func ScanAnalyses(dir, pattern string) ([]*Analysis, []error) {
	if pattern == "" {
		pattern = "*_analysis.json"
	}

	var results []*Analysis
	var errs []error

	schemaLoader := gojsonschema.NewStringLoader(analysisSchema)

	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		ok, _ := doublestar.PathMatch(pattern, rel)
		if !ok {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			errs = append(errs, fmt.Errorf("report: read %s: %w", path, readErr))
			return nil
		}

		documentLoader := gojsonschema.NewBytesLoader(data)
		result, valErr := gojsonschema.Validate(schemaLoader, documentLoader)
		if valErr != nil {
			errs = append(errs, fmt.Errorf("report: validate %s: %w", path, valErr))
			return nil
		}
		if !result.Valid() {
			var reasons []string
			for _, e := range result.Errors() {
				reasons = append(reasons, e.String())
			}
			errs = append(errs, fmt.Errorf("report: %s failed schema validation: %s", path, strings.Join(reasons, "; ")))
			return nil
		}

		var a Analysis
		if err := json.Unmarshal(data, &a); err != nil {
			errs = append(errs, fmt.Errorf("report: unmarshal %s: %w", path, err))
			return nil
		}
		results = append(results, &a)
		return nil
	})

	return results, errs
}

// ExtractField runs a JSONPath expression against an Analysis record,
// re-marshaled to a generic map so arbitrary paths (including ones beyond
// the struct's named fields) resolve the way export --field expects.
func ExtractField(a *Analysis, path string) (interface{}, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("report: marshal for field extraction: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("report: unmarshal for field extraction: %w", err)
	}
	return jsonpath.Get(path, generic)
}
