package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
)

func TestGetPath(t *testing.T) {
	cfg := validConfig()
	cfg.Workflow.Token = "workflow-token"
	cfg.API.Auth.Tokens = []APIToken{{Token: "t1", Scopes: []string{"inspections:ro"}}}
	cfg.Analysis.Rules = []analysis.Rule{{Tag: "313-LI-1234", Analyses: []analysis.Type{analysis.ConstantLevelOiler}}}

	got, err := cfg.GetPath("workflow.base_url")
	require.NoError(t, err)
	assert.Equal(t, "http://workflows.local", got)

	got, err = cfg.GetPath("workflow.token")
	require.NoError(t, err)
	assert.Equal(t, redacted, got)

	got, err = cfg.GetPath("timeseries.dsn")
	require.NoError(t, err)
	assert.Equal(t, redacted, got)

	got, err = cfg.GetPath("api.auth.tokens.0.token")
	require.NoError(t, err)
	assert.Equal(t, redacted, got)

	got, err = cfg.GetPath("analysis.rules.0.tag")
	require.NoError(t, err)
	assert.Equal(t, "313-LI-1234", got)

	got, err = cfg.GetPath("dispatch.handler_timeout")
	require.NoError(t, err)
	assert.Equal(t, (30 * time.Second).String(), got)

	_, err = cfg.GetPath("workflow.missing")
	assert.Error(t, err)
	_, err = cfg.GetPath("analysis.rules.7")
	assert.Error(t, err)
	_, err = cfg.GetPath("workflow.base_url.deeper")
	assert.Error(t, err)
}

func TestRedactedOmitsSourcePath(t *testing.T) {
	cfg := validConfig()
	cfg.SourcePath = "/etc/plantdata/config.yaml"

	tree, err := cfg.Redacted()
	require.NoError(t, err)
	assert.NotContains(t, tree, "SourcePath")
	assert.Contains(t, tree, "workflow")
}
