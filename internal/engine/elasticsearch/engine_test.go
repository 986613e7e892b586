package elasticsearch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannguyendd/ChangeCapture/internal/domain"
)

func TestDocID(t *testing.T) {
	assert.Equal(t, "42", docID(42))
	assert.Equal(t, "1", docID(1))
	assert.Equal(t, "9223372036854775807", docID(9223372036854775807))
}

func TestBuildSearchQuery_WithTerm(t *testing.T) {
	q := buildSearchQuery(&domain.SearchQuery{Term: "iphone", Page: 2, PageSize: 10})

	assert.Equal(t, 10, q["from"])
	assert.Equal(t, 10, q["size"])
	assert.Equal(t, true, q["track_total_hits"])

	query, ok := q["query"].(map[string]interface{})
	require.True(t, ok)
	mm, ok := query["multi_match"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "iphone", mm["query"])
	assert.Equal(t, []string{"name^2", "description"}, mm["fields"])
	assert.Equal(t, "best_fields", mm["type"])
	assert.Equal(t, "AUTO", mm["fuzziness"])

	sort, ok := q["sort"].([]interface{})
	require.True(t, ok)
	require.Len(t, sort, 2)
	assert.Equal(t, map[string]interface{}{"_score": "desc"}, sort[0])
	assert.Equal(t, map[string]interface{}{"name.keyword": "asc"}, sort[1])
}

func TestBuildSearchQuery_EmptyTermMatchesAll(t *testing.T) {
	for _, term := range []string{"", "   ", "\t"} {
		q := buildSearchQuery(&domain.SearchQuery{Term: term, Page: 1, PageSize: 10})

		query, ok := q["query"].(map[string]interface{})
		require.True(t, ok)
		_, hasMatchAll := query["match_all"]
		assert.True(t, hasMatchAll, "term %q should produce match_all", term)
	}
}

func TestBuildGetAllQuery(t *testing.T) {
	q := buildGetAllQuery(&domain.SearchQuery{Page: 3, PageSize: 20})

	assert.Equal(t, 40, q["from"])
	assert.Equal(t, 20, q["size"])

	query, ok := q["query"].(map[string]interface{})
	require.True(t, ok)
	_, hasMatchAll := query["match_all"]
	assert.True(t, hasMatchAll)

	sort, ok := q["sort"].([]interface{})
	require.True(t, ok)
	require.Len(t, sort, 1)
	assert.Equal(t, map[string]interface{}{"name.keyword": "asc"}, sort[0])
}

func TestBuildIndexMapping_IsValidJSON(t *testing.T) {
	var mapping map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(buildIndexMapping()), &mapping))

	settings, ok := mapping["settings"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), settings["number_of_shards"])
	assert.Equal(t, float64(0), settings["number_of_replicas"])

	mappings, ok := mapping["mappings"].(map[string]interface{})
	require.True(t, ok)
	props, ok := mappings["properties"].(map[string]interface{})
	require.True(t, ok)

	for _, field := range []string{"id", "name", "description", "price"} {
		assert.Contains(t, props, field)
	}

	name, ok := props["name"].(map[string]interface{})
	require.True(t, ok)
	fields, ok := name["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "keyword")
	assert.Contains(t, fields, "autocomplete")
}

func TestProductDocument_VersionNotSerialized(t *testing.T) {
	doc := domain.ProductDocument{ID: 1, Name: "laptop", Price: 10, Version: 5}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "version", "version travels as document metadata, not source")
}
