package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/steveyegge/mergeq/internal/executor"
	"github.com/steveyegge/mergeq/internal/lookup"
)

func TestLookupsJSON(t *testing.T) {
	outcomes := map[string]lookupOutcome{
		"/m/0a": {result: lookup.Result{Title: "A", Description: "first"}},
		"/m/0b": {err: errors.New("upstream down")},
	}
	stats := executor.Stats{Submitted: 6, Executed: 2, Merged: 4}

	doc, err := lookupsJSON([]string{"/m/0a", "/m/0b"}, outcomes, stats)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(doc))

	assert.Equal(t, int64(2), gjson.GetBytes(doc, "results.#").Int())
	assert.Equal(t, "/m/0a", gjson.GetBytes(doc, "results.0.id").String())
	assert.Equal(t, "A", gjson.GetBytes(doc, "results.0.result.title").String())
	assert.Equal(t, "first", gjson.GetBytes(doc, "results.0.result.description").String())
	assert.False(t, gjson.GetBytes(doc, "results.0.error").Exists())
	assert.Equal(t, "upstream down", gjson.GetBytes(doc, "results.1.error").String())
	assert.Equal(t, int64(2), gjson.GetBytes(doc, "stats.fetches").Int())
	assert.Equal(t, int64(4), gjson.GetBytes(doc, "stats.merged").Int())
}
