package axelar_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/scalarorg/cosmos-gmp-relayer/pkg/clients/axelar"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPayload = []byte{0x12, 0x34}

func intArray(t *testing.T, data []byte) string {
	values := make([]int, len(data))
	for i, b := range data {
		values[i] = int(b)
	}
	encoded, err := json.Marshal(values)
	require.NoError(t, err)
	return string(encoded)
}

func contractCallSubmittedAttributes(t *testing.T, key string, payloadHash []byte) map[string][]string {
	return map[string][]string{
		key + ".message_id":        {`"0xabc-3"`},
		key + ".sender":            {`"osmo1sender"`},
		key + ".source_chain":      {`"osmosis-5"`},
		key + ".destination_chain": {`"ethereum-sepolia"`},
		key + ".contract_address":  {`"0x00000000000000000000000000000000000000bb"`},
		key + ".payload":           {`"` + base64.StdEncoding.EncodeToString(testPayload) + `"`},
		key + ".payload_hash":      {intArray(t, payloadHash)},
		"tx.hash":                  {"ABCDEF"},
		"write_acknowledgement.packet_src_channel": {"channel-0"},
		"write_acknowledgement.packet_dst_channel": {"channel-1"},
	}
}

func TestParseContractCallSubmittedEvent(t *testing.T) {
	payloadHash := axelar.Keccak256(testPayload)
	attrs := contractCallSubmittedAttributes(t, axelar.KEY_CONTRACT_CALL_SUBMITTED, payloadHash)

	events, err := axelar.ParseContractCallSubmittedEvent(context.Background(), attrs)
	require.NoError(t, err)
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "ABCDEF", event.Hash)
	assert.Equal(t, "channel-0", event.SrcChannel)
	assert.Equal(t, "channel-1", event.DestChannel)
	assert.Equal(t, "0xabc-3", event.Args.MessageID)
	assert.Equal(t, "osmo1sender", event.Args.Sender)
	assert.Equal(t, "osmosis-5", event.Args.SourceChain)
	assert.Equal(t, "ethereum-sepolia", event.Args.DestinationChain)
	assert.Equal(t, "0x1234", event.Args.Payload)
	assert.Equal(t, "0x"+hex.EncodeToString(payloadHash), event.Args.PayloadHash)
}

func TestParseContractCallSubmittedEventSkipsWrongHash(t *testing.T) {
	attrs := contractCallSubmittedAttributes(t, axelar.KEY_CONTRACT_CALL_SUBMITTED, make([]byte, 32))

	events, err := axelar.ParseContractCallSubmittedEvent(context.Background(), attrs)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseContractCallSubmittedEventMissingAttribute(t *testing.T) {
	attrs := contractCallSubmittedAttributes(t, axelar.KEY_CONTRACT_CALL_SUBMITTED, axelar.Keccak256(testPayload))
	delete(attrs, axelar.KEY_CONTRACT_CALL_SUBMITTED+".sender")

	_, err := axelar.ParseContractCallSubmittedEvent(context.Background(), attrs)
	require.ErrorIs(t, err, axelar.ErrAttributeNotFound)
}

func TestParseContractCallWithTokenSubmittedEvent(t *testing.T) {
	key := axelar.KEY_CONTRACT_CALL_WITH_TOKEN_SUBMITTED
	attrs := contractCallSubmittedAttributes(t, key, axelar.Keccak256(testPayload))
	attrs[key+".asset"] = []string{`{"denom":"uusdc","amount":"100"}`}

	events, err := axelar.ParseContractCallWithTokenSubmittedEvent(context.Background(), attrs)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "uusdc", events[0].Args.Symbol)
	assert.Equal(t, "100", events[0].Args.Amount)
	assert.Equal(t, "0xabc-3", events[0].Args.MessageID)
}

type fakeFinder struct {
	records map[string]*models.RelayData
}

func (f *fakeFinder) FindRelayDataById(ctx context.Context, id string) (*models.RelayData, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return record, nil
}

func TestParseEvmEventCompletedEvent(t *testing.T) {
	finder := &fakeFinder{records: map[string]*models.RelayData{
		"0xT-2": {ID: "0xT-2", CallContractWithToken: &models.CallContractWithToken{Payload: "0x1234"}},
	}}
	parser := axelar.NewParser(finder)
	attrs := map[string][]string{
		axelar.KEY_EVM_EVENT_COMPLETED + ".event_id": {`"0xT-2"`, `"0xunknown-0"`},
	}

	requests, err := parser.ParseEvmEventCompletedEvent(context.Background(), attrs)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "0xT-2", requests[0].ID)
	assert.Equal(t, "0x1234", requests[0].Payload)

	_, err = parser.ParseEvmEventCompletedEvent(context.Background(), map[string][]string{
		axelar.KEY_EVM_EVENT_COMPLETED + ".event_id": {`"0xunknown-0"`},
	})
	require.Error(t, err)
}

func TestParseIBCCompleteEvent(t *testing.T) {
	attrs := map[string][]string{
		"send_packet.packet_data":        {`{"amount":"100","denom":"uusdc","receiver":"osmo1r","sender":"axelar1s","memo":"{\"wasm\":{}}"}`},
		"send_packet.packet_sequence":    {"42"},
		"send_packet.packet_src_channel": {"channel-3"},
		"send_packet.packet_dst_channel": {"channel-7"},
		"tx.hash":                        {"HUBTX"},
	}

	packets, err := axelar.ParseIBCCompleteEvent(context.Background(), attrs)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	packet := packets[0]
	assert.Equal(t, 42, packet.Sequence)
	assert.Equal(t, "HUBTX", packet.Hash)
	assert.Equal(t, "channel-3", packet.SrcChannel)
	assert.Equal(t, "channel-7", packet.DestChannel)
	assert.Equal(t, "uusdc", packet.Denom)
	assert.Equal(t, "100", packet.Amount)
	assert.Equal(t, map[string]any{"wasm": map[string]any{}}, packet.Memo)

	_, err = axelar.ParseIBCCompleteEvent(context.Background(), map[string][]string{})
	require.ErrorIs(t, err, axelar.ErrAttributeNotFound)
}

func TestCalculateTokenIBCPath(t *testing.T) {
	denom := axelar.CalculateTokenIBCPath("transfer", "channel-0", "uusdc")
	assert.Regexp(t, `^ibc/[0-9A-F]{64}$`, denom)
	assert.Equal(t, denom, axelar.CalculateTokenIBCPath("", "channel-0", "uusdc"))
	assert.NotEqual(t, denom, axelar.CalculateTokenIBCPath("transfer", "channel-1", "uusdc"))
}
