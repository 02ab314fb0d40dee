package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

func sampleRecords() []*Record {
	return []*Record{
		{ID: "evt-1", OccurredAt: fixedTime, Method: auth.MethodBearer, Success: true, UserID: "u-1"},
		{ID: "evt-2", OccurredAt: fixedTime, Method: auth.MethodAPIKey, Kind: "unauthenticated", Reason: "key, expired"},
	}
}

func TestExport_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleRecords(), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"evt-1", "2024-03-01T09:30:00Z", "bearer", "true", "", "u-1", "", "", "", ""}, rows[1])
	assert.Equal(t, "key, expired", rows[2][7])
}

func TestExport_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleRecords(), FormatNDJSON))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "evt-2", rec.ID)
	assert.Equal(t, auth.MethodAPIKey, rec.Method)
}

func TestExport_JSONDefault(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, nil, "xml"))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestContentType(t *testing.T) {
	ct, ext := ContentType(FormatCSV)
	assert.Equal(t, "text/csv", ct)
	assert.Equal(t, "csv", ext)

	ct, ext = ContentType("")
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, "json", ext)
}
