package monitor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSongView(t *testing.T) {
	view := (&Song{ID: "s1", Title: "7 Seconds", ISRC: "GBAYE6900001"}).View()
	data, err := json.Marshal(view)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "GBAYE6900001", got["isrc"])
	assert.Equal(t, "GB-AYE-69-00001", got["isrc_display"])
	assert.Equal(t, "GB", got["isrc_country"])
	assert.EqualValues(t, 1969, got["isrc_year"])

	bare := (&Song{ID: "s2", Title: "Demo"}).View()
	assert.Empty(t, bare.ISRCDisplay)
	assert.Zero(t, bare.ISRCYear)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0))
	assert.Equal(t, DefaultPageSize, PageSize(-3))
	assert.Equal(t, 10, PageSize(10))
	assert.Equal(t, MaxPageSize, PageSize(MaxPageSize+1))
}

func TestKindsAndSources(t *testing.T) {
	assert.True(t, ChannelRadio.Valid())
	assert.False(t, ChannelKind("satellite").Valid())
	assert.True(t, SourceAudD.Valid())
	assert.False(t, Source("").Valid())
}
