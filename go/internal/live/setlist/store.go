package setlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/setlist/go/internal/live/chords"
	"github.com/rs/zerolog/log"
)

// Store loads the setlist of an event. Implementations are read-only.
type Store interface {
	Load(ctx context.Context, eventID string) (Setlist, error)
}

const eventQuery = `SELECT id::text, COALESCE(titulo, '') FROM eventos WHERE id::text = $1`

// One row per (setlist entry, block). Songs without structure still produce a row with
// NULL block columns so they can be reported.
const blocksQuery = `
SELECT er.ordem,
       r.id::text,
       COALESCE(r.titulo, ''),
       r.bpm,
       r.tom,
       b.id::text,
       b.tipo,
       b.nome_personalizado,
       b.letra,
       b.acordes,
       b.duracao_compassos
FROM evento_repertorio er
JOIN repertorio r ON r.id = er.repertorio_id
LEFT JOIN musica_estrutura me ON me.repertorio_id = r.id
LEFT JOIN musica_blocos b ON b.id = me.bloco_id
WHERE er.evento_id::text = $1
ORDER BY er.ordem, me.posicao`

// PostgresStore reads setlists from the event/repertoire tables.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, eventID string) (Setlist, error) {
	var sl Setlist
	err := s.db.QueryRowContext(ctx, eventQuery, eventID).Scan(&sl.EventID, &sl.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return Setlist{}, fmt.Errorf("%w: event %s", ErrSetlistNotFound, eventID)
	}
	if err != nil {
		return Setlist{}, fmt.Errorf("query event: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, blocksQuery, eventID)
	if err != nil {
		return Setlist{}, fmt.Errorf("query setlist blocks: %w", err)
	}
	defer rows.Close()

	var (
		current   *Song
		lastOrder sql.NullInt64
	)
	flush := func() {
		if current == nil {
			return
		}
		if len(current.Blocks) == 0 {
			log.Warn().
				Str("event_id", eventID).
				Str("song_id", current.ID).
				Str("title", current.Title).
				Msg("skipping song without structure")
		} else {
			sl.Songs = append(sl.Songs, *current)
		}
		current = nil
	}

	for rows.Next() {
		var (
			order     sql.NullInt64
			songID    string
			title     string
			bpm       sql.NullFloat64
			key       sql.NullString
			blockID   sql.NullString
			kind      sql.NullString
			name      sql.NullString
			lyrics    sql.NullString
			chordLine sql.NullString
			compasses sql.NullInt64
		)
		if err := rows.Scan(&order, &songID, &title, &bpm, &key,
			&blockID, &kind, &name, &lyrics, &chordLine, &compasses); err != nil {
			return Setlist{}, fmt.Errorf("scan setlist row: %w", err)
		}

		if current == nil || order != lastOrder || songID != current.ID {
			flush()
			current = &Song{ID: songID, Title: title, BPM: bpm.Float64, Key: key.String}
			lastOrder = order
		}
		if !blockID.Valid {
			continue
		}
		current.Blocks = append(current.Blocks, Block{
			ID:        blockID.String,
			Kind:      kind.String,
			Name:      name.String,
			Chords:    chords.Split(chordLine.String),
			Lyrics:    lyrics.String,
			Compasses: int(compasses.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return Setlist{}, fmt.Errorf("iterate setlist rows: %w", err)
	}
	flush()

	if err := sl.Validate(); err != nil {
		return Setlist{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	return sl, nil
}
