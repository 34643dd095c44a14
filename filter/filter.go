// Package filter compiles filter documents into a tree of anchored regular
// expressions that decides, level by level, which instances, jobs, PEs,
// operators, ports, metrics, and log levels a source attaches to.
//
// A document is a JSON array of instance filters:
//
//	[{"instanceIdPatterns": "prod.*",
//	  "jobs": [{"jobNamePatterns": "ingest::.*",
//	    "pes": [{"peIdPatterns": ".*",
//	      "operators": [{"operatorNamePatterns": "Parse.*",
//	        "metricNamePatterns": "nTuples.*",
//	        "inputPorts": [{"portIndexes": "0"}]}]}]}],
//	  "logs": [{"levelPatterns": "error|warn"}]}]
//
// Every list holds alternatives. A value is selected when some chain of
// alternatives from the instance down to its level matches it and all of its
// ancestors. Absent patterns and absent lists select everything.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"

	"github.com/markheger/streamsx.metrics/errors"
)

// PortKind selects input or output ports.
type PortKind int

const (
	InputPort PortKind = iota
	OutputPort
)

func (k PortKind) String() string {
	if k == OutputPort {
		return "outputPort"
	}
	return "inputPort"
}

type matcher struct {
	re *regexp.Regexp
}

func compilePattern(p, field string) (matcher, error) {
	if p == "" {
		return matcher{}, nil
	}
	re, err := regexp.Compile("^(?:" + p + ")$")
	if err != nil {
		return matcher{}, fmt.Errorf("%w: %s %q: %v", errors.ErrFilterParse, field, p, err)
	}
	return matcher{re: re}, nil
}

func (m matcher) match(s string) bool {
	return m.re == nil || m.re.MatchString(s)
}

type instanceNode struct {
	id   matcher
	jobs []*jobNode
	logs []matcher
}

type jobNode struct {
	name matcher
	pes  []*peNode
}

type peNode struct {
	id        matcher
	metrics   matcher
	operators []*operatorNode
}

type operatorNode struct {
	name    matcher
	metrics matcher
	ports   [2][]*portNode
}

type portNode struct {
	index   matcher
	metrics matcher
}

// Filter is a compiled filter document. It is immutable and safe for
// concurrent use.
type Filter struct {
	docs      []instanceDoc
	instances []*instanceNode
}

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Parse compiles a JSON filter document. Comments and trailing commas are
// accepted; a single instance object is treated as a one-element list.
func Parse(data []byte) (*Filter, error) {
	clean := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(clean) == 0 {
		return nil, errors.WrapFatal(fmt.Errorf("%w: empty document", errors.ErrFilterParse), "filter", "Parse", "read document")
	}
	if clean[0] == '{' {
		clean = append(append([]byte{'['}, clean...), ']')
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(clean))
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrFilterParse, err), "filter", "Parse", "decode JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrFilterParse, strings.Join(msgs, "; ")),
			"filter", "Parse", "validate document")
	}

	var docs []instanceDoc
	if err := json.Unmarshal(clean, &docs); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrFilterParse, err), "filter", "Parse", "decode JSON")
	}
	return compile(docs)
}

// ParseString compiles a document held in a string.
func ParseString(s string) (*Filter, error) {
	return Parse([]byte(s))
}

// ParseConfigValue compiles a document delivered as an application
// configuration value. Literal `\t` sequences are stripped first.
func ParseConfigValue(s string) (*Filter, error) {
	return Parse([]byte(StripTabs(s)))
}

// StripTabs removes literal backslash-t sequences.
func StripTabs(s string) string {
	return strings.ReplaceAll(s, `\t`, "")
}

// Load compiles a document from a file when pathOrJSON names an existing
// file (relative paths are resolved against baseDir), and otherwise parses
// pathOrJSON as the document itself, with literal `\t` sequences stripped.
func Load(pathOrJSON, baseDir string) (*Filter, error) {
	path := pathOrJSON
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrFilterParse, err), "filter", "Load", "read file")
		}
		return Parse(data)
	}
	return ParseConfigValue(pathOrJSON)
}

// Default returns the document that selects one instance and everything in
// it. An empty instanceID selects every instance.
func Default(instanceID string) *Filter {
	pattern := ".*"
	if instanceID != "" {
		pattern = regexp.QuoteMeta(instanceID)
	}
	f, err := compile([]instanceDoc{{InstanceIDPatterns: pattern}})
	if err != nil {
		panic(fmt.Sprintf("filter: default document: %v", err))
	}
	return f
}

func compile(docs []instanceDoc) (*Filter, error) {
	f := &Filter{docs: docs}
	for _, d := range docs {
		n, err := compileInstance(d)
		if err != nil {
			return nil, errors.WrapFatal(err, "filter", "Parse", "compile patterns")
		}
		f.instances = append(f.instances, n)
	}
	return f, nil
}

func compileInstance(d instanceDoc) (*instanceNode, error) {
	id, err := compilePattern(d.InstanceIDPatterns, "instanceIdPatterns")
	if err != nil {
		return nil, err
	}
	n := &instanceNode{id: id}
	jobs := d.Jobs
	if len(jobs) == 0 {
		jobs = []jobDoc{{}}
	}
	for _, jd := range jobs {
		j, err := compileJob(jd)
		if err != nil {
			return nil, err
		}
		n.jobs = append(n.jobs, j)
	}
	logs := d.Logs
	if len(logs) == 0 {
		logs = []logDoc{{}}
	}
	for _, ld := range logs {
		m, err := compilePattern(ld.LevelPatterns, "levelPatterns")
		if err != nil {
			return nil, err
		}
		n.logs = append(n.logs, m)
	}
	return n, nil
}

func compileJob(d jobDoc) (*jobNode, error) {
	name, err := compilePattern(d.JobNamePatterns, "jobNamePatterns")
	if err != nil {
		return nil, err
	}
	n := &jobNode{name: name}
	pes := d.PEs
	if len(pes) == 0 {
		pes = []peDoc{{}}
	}
	for _, pd := range pes {
		p, err := compilePE(pd)
		if err != nil {
			return nil, err
		}
		n.pes = append(n.pes, p)
	}
	return n, nil
}

func compilePE(d peDoc) (*peNode, error) {
	id, err := compilePattern(d.PEIDPatterns, "peIdPatterns")
	if err != nil {
		return nil, err
	}
	metrics, err := compilePattern(d.MetricNamePatterns, "metricNamePatterns")
	if err != nil {
		return nil, err
	}
	n := &peNode{id: id, metrics: metrics}
	ops := d.Operators
	if len(ops) == 0 {
		ops = []operatorDoc{{}}
	}
	for _, od := range ops {
		o, err := compileOperator(od)
		if err != nil {
			return nil, err
		}
		n.operators = append(n.operators, o)
	}
	return n, nil
}

func compileOperator(d operatorDoc) (*operatorNode, error) {
	name, err := compilePattern(d.OperatorNamePatterns, "operatorNamePatterns")
	if err != nil {
		return nil, err
	}
	metrics, err := compilePattern(d.MetricNamePatterns, "metricNamePatterns")
	if err != nil {
		return nil, err
	}
	n := &operatorNode{name: name, metrics: metrics}
	for kind, ports := range [2][]portDoc{d.InputPorts, d.OutputPorts} {
		if len(ports) == 0 {
			ports = []portDoc{{}}
		}
		for _, pd := range ports {
			idx, err := compilePattern(pd.PortIndexes, "portIndexes")
			if err != nil {
				return nil, err
			}
			m, err := compilePattern(pd.MetricNamePatterns, "metricNamePatterns")
			if err != nil {
				return nil, err
			}
			n.ports[kind] = append(n.ports[kind], &portNode{index: idx, metrics: m})
		}
	}
	return n, nil
}

// Serialize renders the document in canonical JSON. Parsing the result
// yields a filter with identical matching behavior.
func (f *Filter) Serialize() []byte {
	docs := f.docs
	if docs == nil {
		docs = []instanceDoc{}
	}
	out, err := json.Marshal(docs)
	if err != nil {
		panic(fmt.Sprintf("filter: serialize: %v", err))
	}
	return out
}

// String returns the canonical JSON form.
func (f *Filter) String() string {
	return string(f.Serialize())
}

// Validate fails with ErrFilterMismatch when no instance filter selects
// instanceID.
func (f *Filter) Validate(instanceID string) error {
	if f.MatchesInstanceID(instanceID) {
		return nil
	}
	return errors.WrapFatal(
		fmt.Errorf("%w: instance %q is not matched by instanceIdPatterns", errors.ErrFilterMismatch, instanceID),
		"filter", "Validate", "match instance")
}

// LogsOnly returns a copy holding only instance and log filters. Log sources
// use it; job, operator, and metric filters do not apply to them.
func (f *Filter) LogsOnly() *Filter {
	docs := make([]instanceDoc, len(f.docs))
	for i, d := range f.docs {
		docs[i] = instanceDoc{InstanceIDPatterns: d.InstanceIDPatterns, Logs: d.Logs}
	}
	out, _ := compile(docs)
	return out
}

// WithoutLogs returns a copy with log filters removed. Metric sources use it.
func (f *Filter) WithoutLogs() *Filter {
	docs := make([]instanceDoc, len(f.docs))
	for i, d := range f.docs {
		docs[i] = instanceDoc{InstanceIDPatterns: d.InstanceIDPatterns, Jobs: d.Jobs}
	}
	out, _ := compile(docs)
	return out
}
