package axelar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"
	ibctransfertypes "github.com/cosmos/ibc-go/v4/modules/apps/transfer/types"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
	"golang.org/x/crypto/sha3"
)

const (
	KEY_CONTRACT_CALL_SUBMITTED            = "axelar.axelarnet.v1beta1.ContractCallSubmitted"
	KEY_CONTRACT_CALL_WITH_TOKEN_SUBMITTED = "axelar.axelarnet.v1beta1.ContractCallWithTokenSubmitted"
	KEY_EVM_EVENT_COMPLETED                = "axelar.evm.v1beta1.EVMEventCompleted"
)

// PayloadFinder resolves the relay record an EVMEventCompleted event refers to.
type PayloadFinder interface {
	FindRelayDataById(ctx context.Context, id string) (*models.RelayData, error)
}

func removeQuote(str string) string {
	return strings.Trim(str, "\"'")
}

func DecodeIntArrayToBytes(input string) ([]byte, error) {
	var intArray []int
	if err := json.Unmarshal([]byte(input), &intArray); err != nil {
		return nil, fmt.Errorf("failed to parse input: %v", err)
	}
	byteArray := make([]byte, len(intArray))
	for i, v := range intArray {
		byteArray[i] = byte(v)
	}
	return byteArray, nil
}

// decodeBytesAttribute decodes a typed-event bytes attribute, either base64 or a json byte array.
func decodeBytesAttribute(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "[") {
		return DecodeIntArrayToBytes(value)
	}
	return base64.StdEncoding.DecodeString(removeQuote(value))
}

func decodeHexAttribute(value string) (string, error) {
	decoded, err := decodeBytesAttribute(value)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(decoded), nil
}

func Keccak256(data []byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	return hasher.Sum(nil)
}

func valueAt(values []string, ind int) string {
	if ind < len(values) {
		return values[ind]
	}
	return ""
}

type attributeReader struct {
	event map[string][]string
	key   string
	err   error
}

func (r *attributeReader) get(attr string, ind int) string {
	if r.err != nil {
		return ""
	}
	values, ok := r.event[r.key+"."+attr]
	if !ok || ind >= len(values) {
		r.err = fmt.Errorf("%w: %s.%s[%d]", ErrAttributeNotFound, r.key, attr, ind)
		return ""
	}
	return removeQuote(values[ind])
}

func (r *attributeReader) hex(attr string, ind int) string {
	if r.err != nil {
		return ""
	}
	raw, ok := r.event[r.key+"."+attr]
	if !ok || ind >= len(raw) {
		r.err = fmt.Errorf("%w: %s.%s[%d]", ErrAttributeNotFound, r.key, attr, ind)
		return ""
	}
	value, err := decodeHexAttribute(raw[ind])
	if err != nil {
		r.err = fmt.Errorf("invalid %s.%s: %w", r.key, attr, err)
	}
	return value
}

func parseContractCallSubmitted(reader *attributeReader, ind int) types.ContractCallSubmitted {
	return types.ContractCallSubmitted{
		MessageID:        reader.get("message_id", ind),
		Sender:           reader.get("sender", ind),
		SourceChain:      reader.get("source_chain", ind),
		DestinationChain: reader.get("destination_chain", ind),
		ContractAddress:  reader.get("contract_address", ind),
		Payload:          reader.hex("payload", ind),
		PayloadHash:      reader.hex("payload_hash", ind),
	}
}

// verifyPayloadHash reports whether payloadHash is the keccak256 of payload, both 0x hex.
func verifyPayloadHash(payload string, payloadHash string) bool {
	payloadBytes, err := hex.DecodeString(strings.TrimPrefix(payload, "0x"))
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(payloadHash, "0x"))
	if err != nil {
		return false
	}
	return bytes.Equal(Keccak256(payloadBytes), expected)
}

func ibcEvent[T any](event map[string][]string, ind int, args T) *types.IBCEvent[T] {
	return &types.IBCEvent[T]{
		Hash:        valueAt(event["tx.hash"], ind),
		SrcChannel:  valueAt(event["write_acknowledgement.packet_src_channel"], ind),
		DestChannel: valueAt(event["write_acknowledgement.packet_dst_channel"], ind),
		Args:        args,
	}
}

func ParseContractCallSubmittedEvent(ctx context.Context, event map[string][]string) ([]*types.IBCEvent[types.ContractCallSubmitted], error) {
	messageIds := event[KEY_CONTRACT_CALL_SUBMITTED+".message_id"]
	if len(messageIds) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, KEY_CONTRACT_CALL_SUBMITTED)
	}
	events := make([]*types.IBCEvent[types.ContractCallSubmitted], 0, len(messageIds))
	for ind := range messageIds {
		reader := &attributeReader{event: event, key: KEY_CONTRACT_CALL_SUBMITTED}
		args := parseContractCallSubmitted(reader, ind)
		if reader.err != nil {
			return nil, reader.err
		}
		if !verifyPayloadHash(args.Payload, args.PayloadHash) {
			log.Warn().Str("messageId", args.MessageID).Str("payloadHash", args.PayloadHash).
				Msg("[AxelarListener] [ParseContractCallSubmittedEvent] payload does not match its hash, skipped")
			continue
		}
		events = append(events, ibcEvent(event, ind, args))
	}
	return events, nil
}

func ParseContractCallWithTokenSubmittedEvent(ctx context.Context, event map[string][]string) ([]*types.IBCEvent[types.ContractCallWithTokenSubmitted], error) {
	messageIds := event[KEY_CONTRACT_CALL_WITH_TOKEN_SUBMITTED+".message_id"]
	if len(messageIds) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, KEY_CONTRACT_CALL_WITH_TOKEN_SUBMITTED)
	}
	events := make([]*types.IBCEvent[types.ContractCallWithTokenSubmitted], 0, len(messageIds))
	for ind := range messageIds {
		reader := &attributeReader{event: event, key: KEY_CONTRACT_CALL_WITH_TOKEN_SUBMITTED}
		args := parseContractCallSubmitted(reader, ind)
		assetJson := reader.get("asset", ind)
		if reader.err != nil {
			return nil, reader.err
		}
		var asset sdk.Coin
		if err := json.Unmarshal([]byte(event[reader.key+".asset"][ind]), &asset); err != nil {
			return nil, fmt.Errorf("invalid asset %s: %w", assetJson, err)
		}
		if !verifyPayloadHash(args.Payload, args.PayloadHash) {
			log.Warn().Str("messageId", args.MessageID).Str("payloadHash", args.PayloadHash).
				Msg("[AxelarListener] [ParseContractCallWithTokenSubmittedEvent] payload does not match its hash, skipped")
			continue
		}
		events = append(events, ibcEvent(event, ind, types.ContractCallWithTokenSubmitted{
			ContractCallSubmitted: args,
			Symbol:                asset.Denom,
			Amount:                asset.Amount.String(),
		}))
	}
	return events, nil
}

// Parser resolves events that only carry a relay id against the store.
type Parser struct {
	finder PayloadFinder
}

func NewParser(finder PayloadFinder) *Parser {
	return &Parser{finder: finder}
}

// ParseEvmEventCompletedEvent loads the payload of every completed event id.
// An id unknown to the store is an error, the event is not ours to route.
func (p *Parser) ParseEvmEventCompletedEvent(ctx context.Context, event map[string][]string) ([]*types.ExecuteRequest, error) {
	eventIds := event[KEY_EVM_EVENT_COMPLETED+".event_id"]
	if len(eventIds) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, KEY_EVM_EVENT_COMPLETED)
	}
	requests := make([]*types.ExecuteRequest, 0, len(eventIds))
	var missing []string
	for _, rawId := range eventIds {
		eventId := removeQuote(rawId)
		relayData, err := p.finder.FindRelayDataById(ctx, eventId)
		if err != nil || relayData == nil || relayData.Payload() == "" {
			log.Debug().Err(err).Str("eventId", eventId).Msg("[AxelarListener] [ParseEvmEventCompletedEvent] event id not found in db")
			missing = append(missing, eventId)
			continue
		}
		requests = append(requests, &types.ExecuteRequest{
			ID:      eventId,
			Payload: relayData.Payload(),
		})
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("not found eventId: %s in db, skip to handle an event", strings.Join(missing, ","))
	}
	return requests, nil
}

func ParseIBCCompleteEvent(ctx context.Context, event map[string][]string) ([]*types.IBCPacketEvent, error) {
	packetDatas := event["send_packet.packet_data"]
	if len(packetDatas) == 0 {
		return nil, fmt.Errorf("%w: send_packet.packet_data", ErrAttributeNotFound)
	}
	sequences := event["send_packet.packet_sequence"]
	packets := make([]*types.IBCPacketEvent, 0, len(packetDatas))
	for ind, rawData := range packetDatas {
		var packetData ibctransfertypes.FungibleTokenPacketData
		if err := json.Unmarshal([]byte(rawData), &packetData); err != nil {
			return nil, fmt.Errorf("invalid packet_data: %w", err)
		}
		if ind >= len(sequences) {
			return nil, fmt.Errorf("%w: send_packet.packet_sequence[%d]", ErrAttributeNotFound, ind)
		}
		sequence, err := strconv.Atoi(removeQuote(sequences[ind]))
		if err != nil {
			return nil, fmt.Errorf("invalid packet_sequence %q: %w", sequences[ind], err)
		}
		packets = append(packets, &types.IBCPacketEvent{
			Hash:        valueAt(event["tx.hash"], ind),
			SrcChannel:  valueAt(event["send_packet.packet_src_channel"], ind),
			DestChannel: valueAt(event["send_packet.packet_dst_channel"], ind),
			Denom:       packetData.Denom,
			Amount:      packetData.Amount,
			Sequence:    sequence,
			Memo:        parseMemo(packetData.Memo),
		})
	}
	return packets, nil
}

// parseMemo returns the decoded json memo, or the raw string when it is not json.
func parseMemo(memo string) any {
	if memo == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(memo), &decoded); err != nil {
		return memo
	}
	return decoded
}
