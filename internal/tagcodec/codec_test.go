package tagcodec

import (
	"errors"
	"testing"

	ndef "github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooltrack/internal/reader"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tag := &reader.MockTag{ID: "04aa"}
	require.NoError(t, Encode(tag, "9f2c1d34-5e6f-4a7b-8c9d-0e1f2a3b4c5d"))

	payload, reason := Decode(tag)
	assert.Equal(t, "9f2c1d34-5e6f-4a7b-8c9d-0e1f2a3b4c5d", payload)
	assert.Empty(t, reason)
}

func TestEncodeReplacesExistingContent(t *testing.T) {
	tag := &reader.MockTag{}
	require.NoError(t, Encode(tag, "old-payload"))
	require.NoError(t, Encode(tag, "new-payload"))

	payload, _ := Decode(tag)
	assert.Equal(t, "new-payload", payload)
	assert.Len(t, tag.Written, 2)
}

func TestDecodeNotNDEFTag(t *testing.T) {
	payload, reason := Decode(&reader.MockTag{NotNDEF: true})
	assert.Empty(t, payload)
	assert.Equal(t, ReasonNotNDEF, reason)
}

func TestDecodeEmptyTag(t *testing.T) {
	payload, reason := Decode(&reader.MockTag{})
	assert.Empty(t, payload)
	assert.Equal(t, ReasonEmpty, reason)
}

func TestDecodeTagWithoutTextRecord(t *testing.T) {
	msg := ndef.NewURIMessage("https://example.org/not-a-student")
	raw, err := msg.Marshal()
	require.NoError(t, err)

	payload, reason := Decode(&reader.MockTag{NDEF: raw})
	assert.Empty(t, payload)
	assert.Equal(t, ReasonNoTextRecord, reason)
}

func TestDecodeReadFailure(t *testing.T) {
	payload, reason := Decode(&reader.MockTag{ReadErr: errors.New("transceive failed")})
	assert.Empty(t, payload)
	assert.Contains(t, reason, "ndef read failed")
}

func TestDecodeGarbageBytes(t *testing.T) {
	payload, reason := Decode(&reader.MockTag{NDEF: []byte{0xde, 0xad, 0xbe, 0xef}})
	assert.Empty(t, payload)
	assert.Contains(t, reason, "ndef parse failed")
}

func TestEncodeWriteFailure(t *testing.T) {
	err := Encode(&reader.MockTag{WriteErr: errors.New("page locked")}, "payload")
	assert.Error(t, err)
}
