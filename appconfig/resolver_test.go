package appconfig

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/errors"
)

const appFilter = `[{"instanceIdPatterns": "i0", "jobs": [{"jobNamePatterns": "A.*"}]}]`

var distributed = HostInfo{InstanceID: "i0", DomainID: "d0"}

func TestResolve_Precedence(t *testing.T) {
	store := NewMapStore(map[string]map[string]string{
		"monitoring": {
			KeyUser:           "appuser",
			KeyPassword:       "apppass",
			KeySSLOption:      "TLSv1.2",
			KeyFilterDocument: appFilter,
		},
	})
	params := Params{
		ConnectionURL:                "service:jmx:jmxmp://h1:9975",
		User:                         "paramuser",
		Password:                     "parampass",
		ApplicationConfigurationName: "monitoring",
	}

	res, err := NewResolver(params, distributed, store, nil).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "service:jmx:jmxmp://h1:9975", res.ConnectionURL, "parameter kept when app config is silent")
	assert.Equal(t, "appuser", res.User)
	assert.Equal(t, "apppass", res.Password)
	assert.Equal(t, "TLSv1.2", res.SSLOption)
	assert.Equal(t, "i0", res.InstanceID, "host instance by default")
	assert.True(t, res.LocalInstance)
	assert.True(t, res.FilterFromAppConfig)
	assert.Equal(t, appFilter, res.FilterDocument)
	assert.Equal(t, "d0", res.DomainID)
}

func TestResolve_AppConfigInstanceOverridesHost(t *testing.T) {
	store := NewMapStore(map[string]map[string]string{"m": {KeyInstanceID: "remote"}})
	res, err := NewResolver(Params{User: "u", Password: "p", ApplicationConfigurationName: "m"}, distributed, store, nil).
		Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote", res.InstanceID)
	assert.False(t, res.LocalInstance)
	assert.Equal(t, "i0", res.DefaultFilterInstance)
}

func TestResolve_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		missing string
	}{
		{"no user", Params{Password: "p"}, "user"},
		{"no password", Params{User: "u"}, "password"},
		{"unknown app config", Params{ApplicationConfigurationName: "absent"}, "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.params, distributed, NewMapStore(nil), nil).Resolve(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMissingConfig)
			assert.True(t, errors.IsFatal(err))
			assert.Contains(t, err.Error(),
				"must be specified as parameter or in the application configuration: "+tt.missing)
		})
	}
}

func TestResolve_EmptyAppConfigValueOverridesParameter(t *testing.T) {
	store := NewMapStore(map[string]map[string]string{
		"m": {KeySSLOption: "", KeyConnectionURL: ""},
	})
	params := Params{
		ConnectionURL:                "service:jmx:jmxmp://h1:9975",
		User:                         "u",
		Password:                     "p",
		SSLOption:                    "TLSv1.2",
		ApplicationConfigurationName: "m",
	}
	res, err := NewResolver(params, distributed, store, nil).Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.SSLOption)
	assert.Empty(t, res.ConnectionURL, "an empty URL falls back to discovery")

	store.Set("m", KeyUser, "")
	_, err = NewResolver(params, distributed, store, nil).Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestResolve_EmptyAppConfigFilterIsRejected(t *testing.T) {
	store := NewMapStore(map[string]map[string]string{"m": {KeyFilterDocument: ""}})
	r := NewResolver(Params{User: "u", Password: "p", FilterDocument: "filters.json", ApplicationConfigurationName: "m"},
		distributed, store, nil)
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.FilterFromAppConfig)
	assert.Empty(t, res.FilterDocument)

	_, err = r.CompileFilter(res, t.TempDir())
	assert.ErrorIs(t, err, errors.ErrFilterParse)
	_, active := r.Active()
	assert.False(t, active)
}

func TestResolve_Standalone(t *testing.T) {
	standalone := HostInfo{Standalone: true}
	store := NewMapStore(map[string]map[string]string{"m": {KeyUser: "u", KeyPassword: "p", KeyInstanceID: "i0"}})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	_, err := NewResolver(Params{ApplicationConfigurationName: "m"}, standalone, store, logger).Resolve(context.Background())
	require.Error(t, err, "app config is ignored in standalone mode")
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.Contains(t, logs.String(), "distributed mode only")

	_, err = NewResolver(Params{User: "u", Password: "p"}, standalone, nil, nil).Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instanceId")

	res, err := NewResolver(Params{User: "u", Password: "p", InstanceID: "i0"}, standalone, nil, nil).Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, res.LocalInstance)
	assert.Empty(t, res.DefaultFilterInstance)
}

func TestResolved_LogValueHidesPassword(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("resolved", "config", Resolved{User: "u", Password: "secret", InstanceID: "i0"})
	assert.NotContains(t, buf.String(), "secret")
	assert.Contains(t, buf.String(), `"instance_id":"i0"`)
}

func TestCompileFilter(t *testing.T) {
	r := NewResolver(Params{User: "u", Password: "p"}, distributed, nil, nil)

	f, err := r.CompileFilter(Resolved{DefaultFilterInstance: "i0"}, "")
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("i0"))
	assert.False(t, f.MatchesInstanceID("i1"))

	f, err = r.CompileFilter(Resolved{FilterDocument: `{"instanceIdPatterns": "i.*"}`}, "")
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("i1"))
	_, active := r.Active()
	assert.False(t, active, "parameter documents are not tracked for drift")

	_, err = r.CompileFilter(Resolved{FilterDocument: `{"bogus": 1}`, FilterFromAppConfig: true}, "")
	require.ErrorIs(t, err, errors.ErrFilterParse)
	_, active = r.Active()
	assert.False(t, active, "invalid documents are not accepted")

	f, err = r.CompileFilter(Resolved{FilterDocument: `[{\t"instanceIdPatterns": "i0"}]`, FilterFromAppConfig: true}, "")
	require.NoError(t, err)
	assert.True(t, f.MatchesInstanceID("i0"))
	doc, active := r.Active()
	assert.True(t, active)
	assert.Equal(t, `[{\t"instanceIdPatterns": "i0"}]`, doc, "the raw value is remembered")
}

func TestDrifted(t *testing.T) {
	store := NewMapStore(map[string]map[string]string{"m": {KeyUser: "u", KeyPassword: "p"}})
	r := NewResolver(Params{ApplicationConfigurationName: "m"}, distributed, store, nil)
	ctx := context.Background()

	_, changed, err := r.Drifted(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "no filter in app config")

	store.Set("m", KeyFilterDocument, appFilter)
	doc, changed, err := r.Drifted(ctx)
	require.NoError(t, err)
	assert.True(t, changed, "first observation counts as a change")
	assert.Equal(t, appFilter, doc)

	r.Accept(doc)
	_, changed, _ = r.Drifted(ctx)
	assert.False(t, changed)

	store.Set("m", KeyFilterDocument, appFilter+" ")
	_, changed, _ = r.Drifted(ctx)
	assert.True(t, changed, "compared by string equality")

	store.Set("m", KeyFilterDocument, "")
	doc, changed, _ = r.Drifted(ctx)
	assert.True(t, changed, "an emptied document is a change")
	assert.Empty(t, doc)

	store.Delete("m", KeyFilterDocument)
	_, changed, _ = r.Drifted(ctx)
	assert.False(t, changed, "removal keeps the active filter")
}

func TestDrifted_WithoutAppConfig(t *testing.T) {
	r := NewResolver(Params{User: "u", Password: "p"}, distributed, NewMapStore(nil), nil)
	_, changed, err := r.Drifted(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (map[string]string, error) { return nil, f.err }

func TestResolve_StoreFailure(t *testing.T) {
	r := NewResolver(Params{ApplicationConfigurationName: "m"}, distributed, failingStore{errors.ErrNoConnection}, nil)
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, errors.ErrNoConnection)
}

func TestMapStore_ReturnsCopies(t *testing.T) {
	s := NewMapStore(map[string]map[string]string{"m": {"a": "1"}})
	props, err := s.Get(context.Background(), "m")
	require.NoError(t, err)
	props["a"] = "changed"

	again, _ := s.Get(context.Background(), "m")
	assert.Equal(t, "1", again["a"])

	empty, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
