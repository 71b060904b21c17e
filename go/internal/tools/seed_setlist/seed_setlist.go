package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/setlist/go/internal/dbconfig"
	"github.com/mcdev12/setlist/go/internal/live/chords"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
)

func main() {
	_ = godotenv.Load()

	// 1) Load the YAML setlist
	path := os.Getenv("SETLIST_FILE")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: seed_setlist <setlist.yaml> (or set SETLIST_FILE)")
		os.Exit(2)
	}
	sl, err := setlist.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read setlist: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert everything in one transaction
	var counts seedCounts
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var err error
		counts, err = seed(ctx, tx, sl)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Setlist seed complete: event %s, %d songs, %d blocks\n",
		rowID(sl.EventID), counts.songs, counts.blocks,
	)
}

type seedCounts struct {
	songs  int
	blocks int
}

func seed(ctx context.Context, tx pgx.Tx, sl setlist.Setlist) (seedCounts, error) {
	var counts seedCounts
	eventID := rowID(sl.EventID)

	if _, err := tx.Exec(ctx, `
        INSERT INTO eventos (id, titulo) VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET titulo = EXCLUDED.titulo
    `, eventID, sl.Title); err != nil {
		return counts, fmt.Errorf("upsert event: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM evento_repertorio WHERE evento_id = $1`, eventID); err != nil {
		return counts, fmt.Errorf("clear event setlist: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	for order, song := range sl.Songs {
		songID := rowID(song.ID)
		if _, err := tx.Exec(ctx, `
            INSERT INTO evento_repertorio (evento_id, repertorio_id, ordem) VALUES ($1, $2, $3)
        `, eventID, songID, order+1); err != nil {
			return counts, fmt.Errorf("link song %s: %w", song.ID, err)
		}
		if seen[songID] {
			continue
		}
		seen[songID] = true

		if _, err := tx.Exec(ctx, `
            INSERT INTO repertorio (id, titulo, bpm, tom) VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO UPDATE SET titulo = EXCLUDED.titulo, bpm = EXCLUDED.bpm, tom = EXCLUDED.tom
        `, songID, song.Title, nullIfZero(song.BPM), nullIfEmpty(song.Key)); err != nil {
			return counts, fmt.Errorf("upsert song %s: %w", song.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM musica_estrutura WHERE repertorio_id = $1`, songID); err != nil {
			return counts, fmt.Errorf("clear structure of %s: %w", song.ID, err)
		}
		counts.songs++

		for pos, block := range song.Blocks {
			blockID := rowID(song.ID + "/" + block.ID)
			if _, err := tx.Exec(ctx, `
                INSERT INTO musica_blocos (id, repertorio_id, tipo, nome_personalizado, letra, acordes, duracao_compassos)
                VALUES ($1, $2, $3, $4, $5, $6, $7)
                ON CONFLICT (id) DO UPDATE SET
                  tipo = EXCLUDED.tipo,
                  nome_personalizado = EXCLUDED.nome_personalizado,
                  letra = EXCLUDED.letra,
                  acordes = EXCLUDED.acordes,
                  duracao_compassos = EXCLUDED.duracao_compassos
            `, blockID, songID, block.Kind, nullIfEmpty(block.Name), nullIfEmpty(block.Lyrics),
				chords.Join(block.Chords), block.Compasses); err != nil {
				return counts, fmt.Errorf("upsert block %s of %s: %w", block.ID, song.ID, err)
			}
			if _, err := tx.Exec(ctx, `
                INSERT INTO musica_estrutura (repertorio_id, bloco_id, posicao) VALUES ($1, $2, $3)
            `, songID, blockID, pos+1); err != nil {
				return counts, fmt.Errorf("place block %s of %s: %w", block.ID, song.ID, err)
			}
			counts.blocks++
		}
	}
	return counts, nil
}

// rowID keeps ids that already are UUIDs and maps anything else to a stable
// name-based UUID, so re-running the seed updates rows in place.
func rowID(id string) uuid.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("setlist:"+id))
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
