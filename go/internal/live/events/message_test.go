package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	msg, err := New(KindStart, "show-1", "client-a", at, StartPayload{
		MaestroID:        "client-a",
		MaestroStartAtMs: at.Add(4 * time.Second).UnixMilli(),
		BPM:              96,
		SongIndex:        2,
		BlockIndex:       1,
		SemitoneShift:    -2,
		ViewMode:         ViewChords,
	})
	require.NoError(t, err)

	wire, err := Encode(msg)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"maestro_start_at_ms":1700000004123`)

	decoded, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, KindStart, decoded.Kind)
	assert.Equal(t, int64(1_700_000_000_123), decoded.SentAtMs)

	payload, err := ParsePayload(decoded)
	require.NoError(t, err)
	start, ok := payload.(StartPayload)
	require.True(t, ok)
	assert.Equal(t, at.Add(4*time.Second), start.StartAt())
	assert.Equal(t, -2, start.SemitoneShift)
	assert.Equal(t, ViewChords, start.ViewMode)
}

func TestPauseHasNoPayload(t *testing.T) {
	msg, err := New(KindPause, "show-1", "client-a", time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, msg.Data)

	payload, err := ParsePayload(msg)
	require.NoError(t, err)
	assert.IsType(t, PausePayload{}, payload)
}

func TestParsePayloadErrors(t *testing.T) {
	_, err := ParsePayload(Message{Kind: "SHUFFLE", SenderID: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = ParsePayload(Message{Kind: KindGoto, SenderID: "x"})
	assert.Error(t, err, "GOTO without data must not parse")

	_, err = ParsePayload(Message{Kind: KindPong, SenderID: "x", Data: []byte(`{"ping_id":`)})
	assert.Error(t, err)
}

func TestDecodeRejectsIncompleteEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"PAUSE"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestViewModeValid(t *testing.T) {
	assert.True(t, ViewLyrics.Valid())
	assert.False(t, ViewMode("karaoke").Valid())
}
