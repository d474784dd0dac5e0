package axelar

import (
	"errors"
	"fmt"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	EVENT_TYPE_SIGN        = "sign"
	EVENT_TYPE_SEND_PACKET = "send_packet"

	ATTRIBUTE_BATCHED_COMMAND_ID = "batchedCommandID"
	ATTRIBUTE_PACKET_SEQUENCE    = "packet_sequence"
)

var (
	ErrEventNotFound     = errors.New("event not found in tx log")
	ErrAttributeNotFound = errors.New("attribute not found in tx log")
)

// TxLogs returns the structured logs of a delivered tx. The raw log is parsed when
// the node did not fill in the structured form.
func TxLogs(res *sdk.TxResponse) (sdk.ABCIMessageLogs, error) {
	if res == nil {
		return nil, fmt.Errorf("nil tx response")
	}
	if len(res.Logs) > 0 {
		return res.Logs, nil
	}
	logs, err := sdk.ParseABCILogs(res.RawLog)
	if err != nil {
		return nil, fmt.Errorf("tx %s has a malformed raw log: %w", res.TxHash, err)
	}
	return logs, nil
}

// FindEventAttribute returns the first value of key in the first event of eventType.
func FindEventAttribute(logs sdk.ABCIMessageLogs, eventType string, key string) (string, error) {
	eventFound := false
	for _, msgLog := range logs {
		for _, event := range msgLog.Events {
			if event.Type != eventType {
				continue
			}
			eventFound = true
			for _, attr := range event.Attributes {
				if attr.Key == key {
					return attr.Value, nil
				}
			}
		}
	}
	if !eventFound {
		return "", fmt.Errorf("%w: %s", ErrEventNotFound, eventType)
	}
	return "", fmt.Errorf("%w: %s.%s", ErrAttributeNotFound, eventType, key)
}

func GetBatchCommandIDFromSignTx(res *sdk.TxResponse) (string, error) {
	logs, err := TxLogs(res)
	if err != nil {
		return "", err
	}
	id, err := FindEventAttribute(logs, EVENT_TYPE_SIGN, ATTRIBUTE_BATCHED_COMMAND_ID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty %s", ErrAttributeNotFound, ATTRIBUTE_BATCHED_COMMAND_ID)
	}
	return id, nil
}

func GetPacketSequenceFromExecuteTx(res *sdk.TxResponse) (int, error) {
	logs, err := TxLogs(res)
	if err != nil {
		return 0, err
	}
	value, err := FindEventAttribute(logs, EVENT_TYPE_SEND_PACKET, ATTRIBUTE_PACKET_SEQUENCE)
	if err != nil {
		return 0, err
	}
	sequence, err := strconv.Atoi(removeQuote(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", ATTRIBUTE_PACKET_SEQUENCE, value, err)
	}
	return sequence, nil
}
