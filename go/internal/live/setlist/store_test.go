package setlist

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blockColumns = []string{
	"ordem", "id", "titulo", "bpm", "tom",
	"id", "tipo", "nome_personalizado", "letra", "acordes", "duracao_compassos",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreLoad(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(eventQuery).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "titulo"}).AddRow("ev-1", "Sunday service"))
	mock.ExpectQuery(blocksQuery).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows(blockColumns).
			AddRow(1, "song-a", "Opener", 72.0, "G", "blk-1", "Intro", nil, nil, "G | D | Em | C", 4).
			AddRow(1, "song-a", "Opener", 72.0, "G", "blk-2", "Verso", "Verse 1", "line one", "G|D", 8).
			AddRow(2, "song-b", "Unfinished", nil, nil, nil, nil, nil, nil, nil, nil).
			AddRow(3, "song-a", "Opener", 72.0, "G", "blk-1", "Intro", nil, nil, "G | D | Em | C", 4).
			AddRow(4, "song-c", "Closer", nil, nil, "blk-9", "Refrão", nil, nil, nil, nil))

	sl, err := store.Load(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "ev-1", sl.EventID)
	assert.Equal(t, "Sunday service", sl.Title)
	require.Len(t, sl.Songs, 3, "song without structure skipped, repeated song kept")

	opener := sl.Songs[0]
	assert.Equal(t, "Opener", opener.Title)
	assert.Equal(t, 72.0, opener.BPM)
	assert.Equal(t, "G", opener.Key)
	require.Len(t, opener.Blocks, 2)
	assert.Equal(t, []string{"G", "D", "Em", "C"}, opener.Blocks[0].Chords)
	assert.Equal(t, "Verse 1", opener.Blocks[1].Label())
	assert.Equal(t, 8, opener.Blocks[1].Compasses)

	assert.Equal(t, "song-a", sl.Songs[1].ID)
	require.Len(t, sl.Songs[1].Blocks, 1)

	closer := sl.Songs[2]
	assert.Zero(t, closer.BPM, "tempo defaults at play time")
	assert.Empty(t, closer.Blocks[0].Chords)
	assert.Zero(t, closer.Blocks[0].Compasses)
}

func TestPostgresStoreNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(eventQuery).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSetlistNotFound)
}

func TestPostgresStoreEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(eventQuery).WithArgs("ev-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "titulo"}).AddRow("ev-2", "Empty"))
	mock.ExpectQuery(blocksQuery).WithArgs("ev-2").
		WillReturnRows(sqlmock.NewRows(blockColumns).
			AddRow(1, "song-b", "Unfinished", nil, nil, nil, nil, nil, nil, nil, nil))

	_, err := store.Load(context.Background(), "ev-2")
	assert.ErrorIs(t, err, ErrEmptySetlist)
}

func TestPostgresStoreQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(eventQuery).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "titulo"}).AddRow("ev-1", "Show"))
	mock.ExpectQuery(blocksQuery).WithArgs("ev-1").WillReturnError(boom)

	_, err := store.Load(context.Background(), "ev-1")
	assert.ErrorIs(t, err, boom)
}

const sampleYAML = `
event_id: ev-1
title: Friday
songs:
  - id: s1
    title: Opener
    bpm: 96
    key: D
    blocks:
      - id: b1
        kind: Intro
        chords: [D, A, Bm, G]
        compasses: 4
      - id: b2
        kind: Verse
        name: Verse 1
        chords: [D]
        lyrics: |
          first line
        compasses: 8
`

func TestDecode(t *testing.T) {
	sl, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "ev-1", sl.EventID)
	require.Len(t, sl.Songs, 1)
	assert.Equal(t, 96.0, sl.Songs[0].BPM)
	assert.Equal(t, "first line\n", sl.Songs[0].Blocks[1].Lyrics)

	_, err = Decode(strings.NewReader("event_id: x\nsongs: []\n"))
	assert.ErrorIs(t, err, ErrEmptySetlist)

	_, err = Decode(strings.NewReader("event_id: x\nunknown_field: 1\n"))
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	store := FileStore{Path: path}
	ctx := context.Background()

	sl, err := store.Load(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "Friday", sl.Title)

	_, err = store.Load(ctx, "")
	require.NoError(t, err)

	_, err = store.Load(ctx, "ev-2")
	assert.ErrorIs(t, err, ErrSetlistNotFound)

	_, err = FileStore{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Load(ctx, "")
	assert.Error(t, err)
}
