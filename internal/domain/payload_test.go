package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	when := time.Date(2025, 7, 4, 18, 30, 0, 0, time.UTC)

	t.Run("time proposal", func(t *testing.T) {
		body, err := EncodePayload(&MeetupPayload{
			Kind:   PayloadKindTime,
			Status: PayloadStatusPending,
			When:   &when,
		})
		require.NoError(t, err)

		p := DecodePayload(body)
		require.NotNil(t, p)
		assert.Equal(t, PayloadKindTime, p.Kind)
		assert.Equal(t, PayloadStatusPending, p.Status)
		require.NotNil(t, p.When)
		assert.True(t, p.When.Equal(when))
	})

	t.Run("location proposal", func(t *testing.T) {
		body, err := EncodePayload(&MeetupPayload{
			Kind:   PayloadKindLocation,
			Status: PayloadStatusAccepted,
			Place:  &Place{Name: "Blue Bottle", Address: "300 Webster St", Lat: 37.8, Lng: -122.27},
		})
		require.NoError(t, err)

		p := DecodePayload(body)
		require.NotNil(t, p)
		assert.Equal(t, PayloadKindLocation, p.Kind)
		assert.Equal(t, PayloadStatusAccepted, p.Status)
		require.NotNil(t, p.Place)
		assert.Equal(t, "Blue Bottle", p.Place.Name)
	})
}

func TestDecodePayloadDoubleEncoded(t *testing.T) {
	when := time.Date(2025, 7, 4, 18, 30, 0, 0, time.UTC)
	body, err := EncodePayload(&MeetupPayload{Kind: PayloadKindTime, Status: PayloadStatusPending, When: &when})
	require.NoError(t, err)

	// Simulate a legacy row where the encoded payload was serialized again
	// as a JSON string.
	quoted, err := json.Marshal(body)
	require.NoError(t, err)

	p := DecodePayload(string(quoted))
	require.NotNil(t, p)
	assert.Equal(t, PayloadKindTime, p.Kind)
	require.NotNil(t, p.When)
	assert.True(t, p.When.Equal(when))

	// Only one layer of quoting is unwrapped.
	doubleQuoted, err := json.Marshal(string(quoted))
	require.NoError(t, err)
	assert.Nil(t, DecodePayload(string(doubleQuoted)))
}

func TestDecodePayloadRejectsNonPayloads(t *testing.T) {
	cases := map[string]string{
		"plain text":         "see you at 6?",
		"quoted plain text":  `"see you at 6?"`,
		"empty":              "",
		"truncated json":     `{"kind":"time"`,
		"unknown kind":       `{"kind":"teleport","status":"pending"}`,
		"time without when":  `{"kind":"time","status":"pending"}`,
		"location sans name": `{"kind":"location","status":"pending","place":{"address":"5th Ave"}}`,
		"json array":         `[1,2,3]`,
		"braces in chat":     "my face was like :-{ then :-}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, DecodePayload(body))
		})
	}
}

func TestDecodePayloadDefaultsStatusToPending(t *testing.T) {
	p := DecodePayload(`{"kind":"location","place":{"name":"The Alembic","lat":37.77,"lng":-122.44}}`)
	require.NotNil(t, p)
	assert.Equal(t, PayloadStatusPending, p.Status)
}

func TestPayloadValid(t *testing.T) {
	when := time.Now()
	assert.False(t, (*MeetupPayload)(nil).Valid())
	assert.False(t, (&MeetupPayload{Kind: PayloadKindTime}).Valid())
	assert.True(t, (&MeetupPayload{Kind: PayloadKindTime, When: &when}).Valid())
	assert.False(t, (&MeetupPayload{Kind: PayloadKindLocation, Place: &Place{}}).Valid())
	assert.True(t, (&MeetupPayload{Kind: PayloadKindLocation, Place: &Place{Name: "Dolores Park"}}).Valid())
}
