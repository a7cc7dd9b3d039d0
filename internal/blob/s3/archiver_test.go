package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultline/suisync/internal/domain"
)

type fakeBlobWriter struct {
	path        string
	contentType string
	data        []byte
	multipart   bool
	err         error
}

func (f *fakeBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.path = path
	f.contentType = contentType
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.data = b
	return nil
}

func (f *fakeBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	f.multipart = true
	return f.Put(ctx, path, data, contentType)
}

type fakeArchiveStore struct {
	trades []domain.Trade
	err    error
}

func (f *fakeArchiveStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return f.trades, f.err
}

func TestArchiveTrades_UploadsJSONL(t *testing.T) {
	cutoff := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{trades: []domain.Trade{
		{ID: 1, UserID: 7, TxDigest: "dgst-1"},
		{ID: 2, UserID: 8, TxDigest: "dgst-2"},
	}}
	writer := &fakeBlobWriter{}

	count, err := NewArchiver(writer, store).ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.Equal(t, "archive/trades/2025-03.jsonl", writer.path)
	require.Equal(t, "application/x-ndjson", writer.contentType)
	require.False(t, writer.multipart)

	// One JSON object per line.
	var lines int
	scanner := bufio.NewScanner(bytes.NewReader(writer.data))
	for scanner.Scan() {
		var trade domain.Trade
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &trade))
		lines++
	}
	require.Equal(t, 2, lines)
}

func TestArchiveTrades_LargePayloadUploadsMultipart(t *testing.T) {
	cutoff := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{trades: []domain.Trade{
		{ID: 1, TxDigest: "dgst-1"},
		{ID: 2, TxDigest: "dgst-2"},
	}}
	writer := &fakeBlobWriter{}

	archiver := NewArchiver(writer, store)
	archiver.multipartThreshold = 1

	count, err := archiver.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.True(t, writer.multipart)
	require.Equal(t, "archive/trades/2025-03.jsonl", writer.path)
	require.Equal(t, "application/x-ndjson", writer.contentType)
}

func TestArchiveTrades_NothingToArchive(t *testing.T) {
	writer := &fakeBlobWriter{}
	count, err := NewArchiver(writer, &fakeArchiveStore{}).ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, writer.path)
}

func TestArchiveTrades_QueryFailure(t *testing.T) {
	store := &fakeArchiveStore{err: errors.New("query timeout")}
	_, err := NewArchiver(&fakeBlobWriter{}, store).ArchiveTrades(context.Background(), time.Now())
	require.Error(t, err)
}

func TestArchiveTrades_UploadFailure(t *testing.T) {
	store := &fakeArchiveStore{trades: []domain.Trade{{ID: 1}}}
	writer := &fakeBlobWriter{err: errors.New("bucket gone")}
	_, err := NewArchiver(writer, store).ArchiveTrades(context.Background(), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "upload")
}
