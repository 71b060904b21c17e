package setlist

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/setlist/go/internal/live/timing"
)

var (
	ErrSetlistNotFound = errors.New("setlist not found")
	ErrEmptySetlist    = errors.New("setlist has no playable songs")
)

// Setlist is the ordered song list of one event (show).
type Setlist struct {
	EventID string `json:"event_id" yaml:"event_id"`
	Title   string `json:"title" yaml:"title"`
	Songs   []Song `json:"songs" yaml:"songs"`
}

// Song is one entry of a setlist with its block structure in play order.
type Song struct {
	ID     string  `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	BPM    float64 `json:"bpm" yaml:"bpm"`
	Key    string  `json:"key,omitempty" yaml:"key,omitempty"`
	Blocks []Block `json:"blocks" yaml:"blocks"`
}

// Block is a fixed-length segment of a song measured in compasses.
type Block struct {
	ID        string   `json:"id" yaml:"id"`
	Kind      string   `json:"kind,omitempty" yaml:"kind,omitempty"` // Verse, Chorus, Bridge...
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Chords    []string `json:"chords" yaml:"chords"`
	Lyrics    string   `json:"lyrics,omitempty" yaml:"lyrics,omitempty"`
	Compasses int      `json:"compasses" yaml:"compasses"`
}

// Label is what a display shows as the block title.
func (b Block) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Kind
}

// Duration returns how long the block lasts at the given tempo.
func (b Block) Duration(bpm float64) time.Duration {
	return timing.BlockDuration(bpm, b.Compasses)
}

// Position selects a block inside the flattened song -> block sequence.
type Position struct {
	Song  int `json:"song_index"`
	Block int `json:"block_index"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Song, p.Block)
}

// Validate checks that every song has at least one block, which the timeline relies on.
func (s Setlist) Validate() error {
	if len(s.Songs) == 0 {
		return ErrEmptySetlist
	}
	for i, song := range s.Songs {
		if len(song.Blocks) == 0 {
			return fmt.Errorf("%w: song %d (%q) has no blocks", ErrEmptySetlist, i, song.Title)
		}
	}
	return nil
}

// Contains reports whether pos addresses an existing block.
func (s Setlist) Contains(pos Position) bool {
	if pos.Song < 0 || pos.Song >= len(s.Songs) {
		return false
	}
	return pos.Block >= 0 && pos.Block < len(s.Songs[pos.Song].Blocks)
}

// Block returns the block at pos.
func (s Setlist) Block(pos Position) (Block, bool) {
	if !s.Contains(pos) {
		return Block{}, false
	}
	return s.Songs[pos.Song].Blocks[pos.Block], true
}

// Next returns the position following pos, crossing into the next song when needed.
// ok is false at the final block of the final song.
func (s Setlist) Next(pos Position) (next Position, ok bool) {
	if !s.Contains(pos) {
		return Position{}, false
	}
	if pos.Block < len(s.Songs[pos.Song].Blocks)-1 {
		return Position{Song: pos.Song, Block: pos.Block + 1}, true
	}
	if pos.Song < len(s.Songs)-1 {
		return Position{Song: pos.Song + 1, Block: 0}, true
	}
	return Position{}, false
}

// TotalDuration is the sum of every block at each song's own tempo.
func (s Setlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, song := range s.Songs {
		for _, b := range song.Blocks {
			total += b.Duration(song.BPM)
		}
	}
	return total
}
