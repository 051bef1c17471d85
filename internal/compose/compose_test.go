package compose

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var envKeys = []string{"SECRET_KEY", "DEBUG", "DB_ENGINE", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT"}

func defaultParams() Params {
	return Params{
		AppService: "web",
		DBService:  "db",
		DBImage:    "postgres:15",
		DBVolume:   "postgres_data",
		Port:       8000,
		AppEnv:     envKeys,
		DBEnv:      DefaultDBEnv(),
	}
}

func TestNew_Services(t *testing.T) {
	f := New(defaultParams())

	require.Contains(t, f.Services, "db")
	require.Contains(t, f.Services, "web")

	web := f.Services["web"]
	assert.Equal(t, ".", web.Build)
	assert.Equal(t, []string{"8000:8000"}, web.Ports)
	assert.Equal(t, []string{"db"}, web.DependsOn)
	assert.Equal(t, "${DB_PASSWORD}", web.Environment["DB_PASSWORD"])

	db := f.Services["db"]
	assert.Equal(t, "postgres:15", db.Image)
	assert.Equal(t, []string{"postgres_data:/var/lib/postgresql/data"}, db.Volumes)
	assert.Equal(t, "${DB_NAME}", db.Environment["POSTGRES_DB"])
	assert.Contains(t, f.Volumes, "postgres_data")

	require.NoError(t, f.Validate(defaultParams()))
}

func TestRender_RoundTripsAndIsDeterministic(t *testing.T) {
	f := New(defaultParams())

	first, err := f.Render()
	require.NoError(t, err)
	second, err := New(defaultParams()).Render()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	var parsed File
	require.NoError(t, yaml.Unmarshal(first, &parsed))
	if diff := cmp.Diff(f, &parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	text := string(first)
	assert.True(t, strings.HasPrefix(text, "services:\n"))
	assert.Less(t, strings.Index(text, "  db:"), strings.Index(text, "  web:"))
	assert.Contains(t, text, "depends_on:\n      - db\n")
}

func TestVarRefs(t *testing.T) {
	refs := New(defaultParams()).VarRefs()
	assert.Equal(t, []string{"DB_ENGINE", "DB_HOST", "DB_NAME", "DB_PASSWORD", "DB_PORT", "DB_USER", "DEBUG", "SECRET_KEY"}, refs)

	f := &File{Services: map[string]Service{
		"x": {Image: "${REGISTRY:-docker.io}/app:${TAG}", Ports: []string{"${PORT}:80"}},
	}}
	assert.Equal(t, []string{"PORT", "REGISTRY", "TAG"}, f.VarRefs())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *File)
		want   string
	}{
		{"missing app", func(f *File) { delete(f.Services, "web") }, `service "web" missing`},
		{"missing db", func(f *File) { delete(f.Services, "db") }, `service "db" missing`},
		{"bad port spec", func(f *File) {
			web := f.Services["web"]
			web.Ports = []string{"80:abc"}
			f.Services["web"] = web
		}, "invalid port"},
		{"wrong container port", func(f *File) {
			web := f.Services["web"]
			web.Ports = []string{"8000:9000"}
			f.Services["web"] = web
		}, "does not publish container port 8000"},
		{"no depends_on", func(f *File) {
			web := f.Services["web"]
			web.DependsOn = nil
			f.Services["web"] = web
		}, "must depend on"},
		{"undeclared volume", func(f *File) { f.Volumes = nil }, `volume "postgres_data"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(defaultParams())
			tt.mutate(f)
			err := f.Validate(defaultParams())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_HostPortRange(t *testing.T) {
	f := New(defaultParams())
	web := f.Services["web"]
	web.Ports = []string{"127.0.0.1:18000:8000/tcp"}
	f.Services["web"] = web
	assert.NoError(t, f.Validate(defaultParams()))
}
