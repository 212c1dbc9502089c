package canonical

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAtEveryLevel(t *testing.T) {
	input := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{
			"nested_z": "x",
			"nested_a": "y",
		},
	}

	out, err := Marshal(input)
	require.NoError(t, err)

	assert.Equal(t, `{"alpha":{"nested_a":"y","nested_z":"x"},"zebra":1}`, string(out))
}

func TestMarshal_StructTagsApply(t *testing.T) {
	type payload struct {
		Number  string `json:"number"`
		BatchID string `json:"batch_id"`
		Skipped string `json:"-"`
	}

	out, err := Marshal(payload{Number: "HP-2026-abc", BatchID: "b1", Skipped: "x"})
	require.NoError(t, err)

	assert.Equal(t, `{"batch_id":"b1","number":"HP-2026-abc"}`, string(out))
}

func TestMarshal_PreservesNumberPrecision(t *testing.T) {
	out, err := Marshal(map[string]any{"value": 0.1, "count": 12345678901234567})
	require.NoError(t, err)

	assert.Equal(t, `{"count":12345678901234567,"value":0.1}`, string(out))
}

func TestSHA256Hex_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"x": 1, "y": []any{"a", "b"}, "z": nil}
	b := map[string]any{"z": nil, "y": []any{"a", "b"}, "x": 1}

	ha, err := SHA256Hex(a)
	require.NoError(t, err)
	hb, err := SHA256Hex(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), ha)
}

func TestSHA256Hex_DifferentContentDifferentDigest(t *testing.T) {
	ha, err := SHA256Hex(map[string]any{"grade": "ORGANIC"})
	require.NoError(t, err)
	hb, err := SHA256Hex(map[string]any{"grade": "EXPORT"})
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestMarshal_RejectsUnencodable(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
