package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Status of a relay message. Values are persisted, do not reorder.
type Status int

const (
	PENDING Status = iota
	APPROVED
	SUCCESS
	FAILED
)

func (s Status) String() string {
	switch s {
	case PENDING:
		return "PENDING"
	case APPROVED:
		return "APPROVED"
	case SUCCESS:
		return "SUCCESS"
	case FAILED:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) Value() (driver.Value, error) {
	return int64(s), nil
}

func (s *Status) Scan(value any) error {
	switch v := value.(type) {
	case int64:
		*s = Status(v)
	case int32:
		*s = Status(v)
	case int:
		*s = Status(v)
	case nil:
		*s = PENDING
	default:
		return fmt.Errorf("cannot scan %T into Status", value)
	}
	return nil
}

// CanTransition reports whether a record in status s may move to next.
// Forward moves only. SUCCESS may only be written again, FAILED is terminal,
// and a pending or approved record may fail.
func (s Status) CanTransition(next Status) bool {
	if s == SUCCESS || s == FAILED {
		return s == SUCCESS && next == SUCCESS
	}
	if next == FAILED {
		return true
	}
	return next >= s
}

// EvmMessageID builds the relay id of an EVM originated message.
func EvmMessageID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}

// SplitEvmMessageID is the inverse of EvmMessageID.
func SplitEvmMessageID(id string) (string, string, bool) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}

// ExecuteResult is reported for every candidate record processed by an approval handler.
type ExecuteResult struct {
	ID          string
	Status      Status
	ExecuteHash string
	Err         error
}
