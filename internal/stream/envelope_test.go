package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_FlattensEnvelope(t *testing.T) {
	flat := Normalize([]byte(`{"type":"fraud_alert","payload":{"alert_id":"a1","severity":"HIGH"}}`))
	assert.JSONEq(t, `{"type":"fraud_alert","alert_id":"a1","severity":"HIGH"}`, string(flat))
}

func TestNormalize_FlatFramePassesThrough(t *testing.T) {
	raw := []byte(`{"type":"fraud_alert","alert_id":"a1"}`)
	assert.Equal(t, raw, Normalize(raw))
}

func TestNormalize_PayloadTypeWins(t *testing.T) {
	flat := Normalize([]byte(`{"type":"outer","payload":{"type":"inner","x":1}}`))
	assert.JSONEq(t, `{"type":"inner","x":1}`, string(flat))
}

func TestNormalize_NonObjectPayloadPassesThrough(t *testing.T) {
	raw := []byte(`{"type":"ping","payload":[1,2,3]}`)
	assert.Equal(t, raw, Normalize(raw))
}

func TestNormalize_GarbagePassesThrough(t *testing.T) {
	raw := []byte(`not json`)
	assert.Equal(t, raw, Normalize(raw))
}
