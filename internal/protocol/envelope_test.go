package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/protocol"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    protocol.Envelope
		wantErr bool
	}{
		{
			name: "complete envelope",
			raw:  `{"roomId":"101","username":"bob","text":"hi"}`,
			want: protocol.Envelope{RoomID: "101", Username: "bob", Text: "hi"},
		},
		{
			name: "extra fields are tolerated",
			raw:  `{"roomId":"7","username":"alice","text":"yo","color":"red"}`,
			want: protocol.Envelope{RoomID: "7", Username: "alice", Text: "yo"},
		},
		{
			name: "empty text is present",
			raw:  `{"roomId":"7","username":"alice","text":""}`,
			want: protocol.Envelope{RoomID: "7", Username: "alice"},
		},
		{name: "missing roomId", raw: `{"username":"bob","text":"hi"}`, wantErr: true},
		{name: "missing username", raw: `{"roomId":"1","text":"hi"}`, wantErr: true},
		{name: "missing text", raw: `{"roomId":"1","username":"bob"}`, wantErr: true},
		{name: "null field", raw: `{"roomId":null,"username":"bob","text":"hi"}`, wantErr: true},
		{name: "number field", raw: `{"roomId":101,"username":"bob","text":"hi"}`, wantErr: true},
		{name: "plain text", raw: `hello there`, wantErr: true},
		{name: "array", raw: `[1,2,3]`, wantErr: true},
		{name: "empty frame", raw: ``, wantErr: true},
		{name: "truncated", raw: `{"roomId":"1"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.Parse([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, protocol.ErrMalformedEnvelope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvelopeEncode(t *testing.T) {
	env := protocol.Envelope{RoomID: "101", Username: "bob", Text: "hi"}

	data, err := env.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":"101","username":"bob","text":"hi"}`, string(data))

	back, err := protocol.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, env, back)
}

func TestEnvelopeBlank(t *testing.T) {
	assert.True(t, protocol.Envelope{Text: ""}.Blank())
	assert.True(t, protocol.Envelope{Text: "   \t\n"}.Blank())
	assert.False(t, protocol.Envelope{Text: " x "}.Blank())
}
