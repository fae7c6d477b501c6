package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/flowzz-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against mock with args appended to the mock flags.
func run(t *testing.T, mock *testutil.MockFlowzz, args ...string) (int, string, string) {
	t.Helper()
	t.Chdir(t.TempDir())

	base := []string{
		"--base-url", mock.URL(),
		"--cms-url", mock.URL(),
		"--vendor-url", mock.VendorURL(),
		"--delay", "1ms",
		"--log-level", "warn",
	}
	var stdout, stderr bytes.Buffer
	code := ExecuteContext(context.Background(), append(args, base...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCatalog_JSONTop(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	code, stdout, stderr := run(t, mock, "catalog", "--top", "2", "--format", "json")
	require.Equal(t, 0, code, stderr)

	var records []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Link string `json:"link"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Strain 03", records[0].Name)
	assert.Equal(t, "Strain 02", records[1].Name)
	assert.Equal(t, mock.URL()+"/product/strain-3", records[0].Link)
}

func TestCatalog_TableAndExport(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	out := filepath.Join(t.TempDir(), "catalog.csv")
	code, stdout, stderr := run(t, mock, "catalog", "--rank", "price", "--output", out)
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "Strain 01")
	assert.Contains(t, stdout, "3 records")
	assert.Less(t, strings.Index(stdout, "Strain 01"), strings.Index(stdout, "Strain 03"), "cheapest first")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Strain 01")
}

func TestCatalog_InvalidArguments(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(1)...)
	defer mock.Close()

	tests := map[string][]string{
		"unknown rank key": {"catalog", "--rank", "smell"},
		"bad order":        {"catalog", "--order", "sideways"},
		"negative top":     {"catalog", "--top", "-1"},
		"bad export":       {"catalog", "--output", "catalog.xml"},
		"bad page size":    {"catalog", "--page-size", "0"},
		"bad filter":       {"catalog", "--min-thc", "strong"},
		"inverted filter":  {"catalog", "--min-likes", "10", "--max-likes", "5"},
		"blank slug":       {"catalog", "--slug", " "},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			code, _, stderr := run(t, mock, args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
	assert.Zero(t, mock.RequestCount(), "invalid arguments must not reach flowzz")
}

func TestCatalog_Filtered(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(4)...)
	defer mock.Close()

	code, stdout, stderr := run(t, mock, "catalog", "--min-thc", "19", "--max-likes", "15", "--name", "strain", "--format", "json")
	require.Equal(t, 0, code, stderr)

	var records []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Strain 03", records[0].Name)
	assert.Equal(t, "Strain 02", records[1].Name)
}

func TestCatalog_BySlugSkipsListing(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(4)...)
	defer mock.Close()

	code, stdout, stderr := run(t, mock, "catalog", "--slug", "strain-2", "--slug", "strain-4", "--rank", "likes", "--format", "json")
	require.Equal(t, 0, code, stderr)

	var records []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Likes int    `json:"num_likes"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Strain 04", records[0].Name)
	assert.Equal(t, int64(4), records[0].ID)
	assert.Equal(t, 20, records[0].Likes)
	assert.Equal(t, "Strain 02", records[1].Name)
	assert.Zero(t, mock.PathCount("/api/v1/views/flowers"))
}

func TestVendors_ByName(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	code, stdout, stderr := run(t, mock, "vendors", "strain 01", "STRAIN 02", "--format", "csv")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "vendor,price_Strain 01,price_Strain 02,total,website", lines[0])
	assert.Equal(t, "Apotheke Nord,8.00,9.00,17.00,https://nord.example", lines[1])
	assert.Equal(t, "Bloomwell,9.50,10.50,20.00,", lines[2])
}

func TestVendors_ByIDSkipsCatalog(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	code, stdout, stderr := run(t, mock, "vendors", "3")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "Apotheke Nord")
	assert.Contains(t, stdout, "item_3")
	assert.NotContains(t, stdout, "Closed Pharmacy")
	assert.Zero(t, mock.PathCount("/api/v1/views/flowers"))
}

func TestVendors_UnknownNameSuggests(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	code, _, stderr := run(t, mock, "vendors", "Strain 0")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Strain 01")
}

func TestVendors_ArgumentCount(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	defer mock.Close()

	code, _, _ := run(t, mock, "vendors")
	assert.Equal(t, 1, code)

	code, _, _ = run(t, mock, "vendors", "1", "2", "3", "4")
	assert.Equal(t, 1, code)
}
