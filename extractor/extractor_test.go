package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coordinator-agent/contract"
	"github.com/c360studio/coordinator-agent/llm"
	"github.com/c360studio/coordinator-agent/llm/testutil"
)

func mergedSchema() contract.Schema {
	s := contract.ParseInputSchema(`{"type":"object","properties":{"customer_id":{"type":"integer"},"vehicle_type":{"type":"string"}}}`)
	return contract.AllowNulls(contract.Merge([]contract.Schema{s}))
}

func TestExtract_ParsesDirectJSON(t *testing.T) {
	chat := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Content: `{"customer_id": 2345, "vehicle_type": null}`},
	}}
	ext := New(chat, nil)

	values := ext.Extract(context.Background(), "I am user 2345", mergedSchema())

	assert.Equal(t, float64(2345), values["customer_id"])
	assert.Nil(t, values["vehicle_type"])
	assert.Equal(t, 1, chat.GetCallCount())
}

func TestExtract_DegradesToAllNullOnChatError(t *testing.T) {
	chat := &testutil.MockLLMClient{Err: assert.AnError}
	ext := New(chat, nil)

	values := ext.Extract(context.Background(), "whatever", mergedSchema())

	require.Len(t, values, 2)
	assert.Nil(t, values["customer_id"])
	assert.Nil(t, values["vehicle_type"])
}

func TestExtract_DegradesToAllNullOnUnparseableResponse(t *testing.T) {
	chat := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Content: "I don't understand the request."},
	}}
	ext := New(chat, nil)

	values := ext.Extract(context.Background(), "whatever", mergedSchema())

	assert.Nil(t, values["customer_id"])
	assert.Nil(t, values["vehicle_type"])
}

func TestFilter_DropsAbsentValues(t *testing.T) {
	filtered := Filter(map[string]any{
		"customer_id":  2345,
		"vehicle_type": nil,
		"notes":        "null",
		"tier":         "  ",
		"plan":         "gold",
	})

	assert.Equal(t, map[string]any{"customer_id": 2345, "plan": "gold"}, filtered)
}
