package snapshot_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/monitor"
	"clearancewatch/internal/snapshot"
)

func sampleStates() []monitor.LatestState {
	at := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	return []monitor.LatestState{
		{
			Retailer:   "lowes",
			StoreID:    "0595",
			StoreName:  "Atlanta, GA",
			Zip:        "30301",
			SKU:        "5001844889",
			Title:      "Cordless Drill",
			Category:   "Tools",
			Price:      7499,
			PriceWas:   9999,
			PctOff:     0.25,
			ProductURL: "https://www.lowes.com/pd/Cordless-Drill/5001844889",
			Clearance:  true,
			ObservedAt: at,
		},
		{
			Retailer:   "lowes",
			StoreID:    "0112",
			StoreName:  "Marietta, GA",
			Zip:        "30060",
			SKU:        "1000123456",
			Title:      "Shop Vac",
			Category:   "Tools",
			Price:      4500,
			ProductURL: "https://www.lowes.com/pd/Shop-Vac/1000123456",
			ObservedAt: at,
		},
	}
}

func TestPublishWritesSortedCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "latest.csv")
	pub, err := snapshot.New(snapshot.Config{Path: path}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), sampleStates()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, []string{
		"ts_utc", "retailer", "store_id", "store_name", "zip", "sku", "title",
		"category", "price", "price_was", "pct_off", "availability",
		"product_url", "image_url", "state",
	}, rows[0])

	// Sorted by (store_id, sku): store 0112 first.
	require.Equal(t, "0112", rows[1][2])
	require.Equal(t, "45.00", rows[1][8])
	require.Empty(t, rows[1][9], "no was-price leaves price_was empty")
	require.Empty(t, rows[1][10])

	require.Equal(t, "0595", rows[2][2])
	require.Equal(t, "2026-08-30T14:30:00Z", rows[2][0])
	require.Equal(t, "74.99", rows[2][8])
	require.Equal(t, "99.99", rows[2][9])
	require.Equal(t, "0.2500", rows[2][10])
	require.Equal(t, "GA", rows[2][14])
}

func TestPublishReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "latest.csv")
	require.NoError(t, os.WriteFile(path, []byte("old contents"), 0o644))

	pub, err := snapshot.New(snapshot.Config{Path: path}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), sampleStates()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "old contents")
	require.True(t, strings.HasPrefix(string(data), "ts_utc,"))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPublishEmptyViewStillWritesHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "latest.csv")
	pub, err := snapshot.New(snapshot.Config{Path: path}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ts_utc,retailer,store_id,store_name,zip,sku,title,category,price,price_was,pct_off,availability,product_url,image_url,state\n", string(data))
}

type fakeBlob struct {
	path        string
	contentType string
	data        []byte
	err         error
}

func (b *fakeBlob) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	b.path = path
	b.contentType = contentType
	b.data = data
	if b.err != nil {
		return "", b.err
	}
	return "gs://bucket/" + path, nil
}

func TestPublishMirrorsToBlobStore(t *testing.T) {
	t.Parallel()

	blob := &fakeBlob{}
	path := filepath.Join(t.TempDir(), "latest.csv")
	pub, err := snapshot.New(snapshot.Config{Path: path, ObjectPath: "snapshots/latest.csv"}, blob, nil)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), sampleStates()))
	require.Equal(t, "snapshots/latest.csv", blob.path)
	require.Equal(t, "text/csv", blob.contentType)
	require.NotEmpty(t, blob.data)
}

func TestMirrorFailureDoesNotFailPublish(t *testing.T) {
	t.Parallel()

	blob := &fakeBlob{err: errors.New("bucket gone")}
	path := filepath.Join(t.TempDir(), "latest.csv")
	pub, err := snapshot.New(snapshot.Config{Path: path}, blob, nil)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), sampleStates()))
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestPublishFailureWrapsPublishError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// The target's parent is a file, so MkdirAll fails.
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	pub, err := snapshot.New(snapshot.Config{Path: filepath.Join(blocker, "latest.csv")}, nil, nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), sampleStates())
	var publishErr *monitor.PublishError
	require.ErrorAs(t, err, &publishErr)
}
