package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/errors"
)

const sampleDocument = `
// production monitoring
[{
  "instanceIdPatterns": "prod.*",
  "jobs": [{
    "jobNamePatterns": "ingest::.*",
    "pes": [{
      "peIdPatterns": "1|2",
      "metricNamePatterns": "nTuples.*",
      "operators": [{
        "operatorNamePatterns": "Parse.*",
        "metricNamePatterns": "queueSize",
        "inputPorts": [{"portIndexes": "0", "metricNamePatterns": "nTuplesProcessed"}],
        "outputPorts": [{"portIndexes": "1"}],
      }],
    }],
  }],
  "logs": [{"levelPatterns": "error|warn"}],
}]`

func mustParse(t *testing.T, doc string) *Filter {
	t.Helper()
	f, err := ParseString(doc)
	require.NoError(t, err)
	return f
}

func TestParse_LevelQueries(t *testing.T) {
	f := mustParse(t, sampleDocument)

	assert.True(t, f.MatchesInstanceID("prod1"))
	assert.False(t, f.MatchesInstanceID("xprod1"), "patterns are anchored")

	assert.True(t, f.MatchesJob("prod1", "ingest::Main"))
	assert.False(t, f.MatchesJob("prod1", "other::Main"))
	assert.False(t, f.MatchesJob("test", "ingest::Main"), "ancestor must match")

	assert.True(t, f.MatchesPE("prod1", "ingest::Main", "2"))
	assert.False(t, f.MatchesPE("prod1", "ingest::Main", "12"))

	assert.True(t, f.MatchesOperator("prod1", "ingest::Main", "1", "ParseCSV"))
	assert.False(t, f.MatchesOperator("prod1", "ingest::Main", "3", "ParseCSV"))

	assert.True(t, f.MatchesPort("prod1", "ingest::Main", "1", "ParseCSV", InputPort, "0"))
	assert.False(t, f.MatchesPort("prod1", "ingest::Main", "1", "ParseCSV", InputPort, "1"))
	assert.True(t, f.MatchesPort("prod1", "ingest::Main", "1", "ParseCSV", OutputPort, "1"))

	assert.True(t, f.MatchesPEMetric("prod1", "ingest::Main", "1", "nTuplesSubmitted"))
	assert.False(t, f.MatchesPEMetric("prod1", "ingest::Main", "1", "nCpuMilliseconds"))
	assert.True(t, f.MatchesOperatorMetric("prod1", "ingest::Main", "1", "ParseCSV", "queueSize"))
	assert.False(t, f.MatchesOperatorMetric("prod1", "ingest::Main", "1", "ParseCSV", "nExceptions"))
	assert.True(t, f.MatchesPortMetric("prod1", "ingest::Main", "1", "ParseCSV", InputPort, "0", "nTuplesProcessed"))
	assert.False(t, f.MatchesPortMetric("prod1", "ingest::Main", "1", "ParseCSV", InputPort, "0", "nTuplesDropped"))
	assert.True(t, f.MatchesPortMetric("prod1", "ingest::Main", "1", "ParseCSV", OutputPort, "1", "anything"),
		"absent metric patterns select every metric")

	assert.True(t, f.MatchesLog("prod1", "error"))
	assert.False(t, f.MatchesLog("prod1", "info"))
}

func TestParse_AbsentChildrenMatchEverything(t *testing.T) {
	f := mustParse(t, `{"instanceIdPatterns": "i0"}`)

	assert.True(t, f.MatchesJob("i0", "any"))
	assert.True(t, f.MatchesPort("i0", "any", "7", "Op", OutputPort, "3"))
	assert.True(t, f.MatchesOperatorMetric("i0", "any", "7", "Op", "m"))
	assert.True(t, f.MatchesLog("i0", "trace"))
	assert.False(t, f.MatchesJob("i1", "any"))
}

func TestParse_AlternativesAreIndependentChains(t *testing.T) {
	f := mustParse(t, `[
	  {"instanceIdPatterns": "a", "jobs": [{"jobNamePatterns": "x"}]},
	  {"instanceIdPatterns": "b", "jobs": [{"jobNamePatterns": "y"}]}
	]`)

	assert.True(t, f.MatchesJob("a", "x"))
	assert.True(t, f.MatchesJob("b", "y"))
	assert.False(t, f.MatchesJob("a", "y"), "children are evaluated only below the matched parent")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed JSON", `[{"instanceIdPatterns": `},
		{"unknown level key", `[{"instanceIdPatterns": ".*", "domains": []}]`},
		{"unknown nested key", `[{"jobs": [{"jobNamePatterns": ".*", "operators": []}]}]`},
		{"wrong type", `[{"instanceIdPatterns": 3}]`},
		{"bad regex", `[{"instanceIdPatterns": "("}]`},
		{"empty", `  `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrFilterParse)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestValidate(t *testing.T) {
	f := mustParse(t, sampleDocument)

	assert.NoError(t, f.Validate("prod7"))
	err := f.Validate("dev")
	assert.ErrorIs(t, err, errors.ErrFilterMismatch)
	assert.Contains(t, err.Error(), `"dev"`)
}

func TestDefault(t *testing.T) {
	f := Default("streams.i0")
	assert.True(t, f.MatchesInstanceID("streams.i0"))
	assert.False(t, f.MatchesInstanceID("streamsXi0"), "instance id is quoted")
	assert.True(t, f.MatchesOperatorMetric("streams.i0", "j", "1", "op", "m"))

	all := Default("")
	assert.True(t, all.MatchesInstanceID("whatever"))
}

func TestSerialize_RoundTrip(t *testing.T) {
	f := mustParse(t, sampleDocument)
	again, err := Parse(f.Serialize())
	require.NoError(t, err)

	assert.JSONEq(t, string(f.Serialize()), string(again.Serialize()))
	assert.Equal(t,
		f.MatchesPortMetric("prod1", "ingest::Main", "1", "ParseCSV", InputPort, "0", "nTuplesProcessed"),
		again.MatchesPortMetric("prod1", "ingest::Main", "1", "ParseCSV", InputPort, "0", "nTuplesProcessed"))
	assert.Equal(t, f.MatchesLog("prod1", "info"), again.MatchesLog("prod1", "info"))
}

func TestRoleViews(t *testing.T) {
	f := mustParse(t, sampleDocument)

	logs := f.LogsOnly()
	assert.NotContains(t, logs.String(), "jobs")
	assert.True(t, logs.MatchesLog("prod1", "warn"))
	assert.False(t, logs.MatchesLog("prod1", "debug"))

	metrics := f.WithoutLogs()
	assert.NotContains(t, metrics.String(), "levelPatterns")
	assert.True(t, metrics.MatchesLog("prod1", "debug"))
	assert.False(t, metrics.MatchesJob("prod1", "other::Main"))
}

func TestParseConfigValue_StripsTabs(t *testing.T) {
	f, err := ParseConfigValue(`[{\t"instanceIdPatterns":\t"i0"}]`)
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("i0"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filter.json"), []byte(`[{"instanceIdPatterns": "fromfile"}]`), 0o600))

	f, err := Load("filter.json", dir)
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("fromfile"))

	f, err = Load(filepath.Join(dir, "filter.json"), "")
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("fromfile"))

	f, err = Load(`[{"instanceIdPatterns": "inline"}]`, dir)
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("inline"))

	_, err = Load("missing.json", dir)
	assert.ErrorIs(t, err, errors.ErrFilterParse)
}
