package models

import (
	"time"

	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

// RelayData is the aggregate root of one cross-chain message.
// Exactly one of CallContract and CallContractWithToken is set.
type RelayData struct {
	ID                    string                 `json:"id" gorm:"primaryKey;type:varchar(255)"`
	PacketSequence        *int                   `json:"packetSequence" gorm:"uniqueIndex"`
	ExecuteHash           *string                `json:"executeHash" gorm:"type:varchar(255)"`
	Status                types.Status           `json:"status" gorm:"default:0;index"`
	From                  string                 `json:"from" gorm:"type:varchar(255)"`
	To                    string                 `json:"to" gorm:"type:varchar(255)"`
	CreatedAt             time.Time              `json:"createdAt" gorm:"autoCreateTime;type:timestamp(6)"`
	UpdatedAt             time.Time              `json:"updatedAt" gorm:"autoUpdateTime;type:timestamp(6);index"`
	CallContract          *CallContract          `json:"callContract,omitempty" gorm:"foreignKey:RelayDataID;constraint:OnDelete:CASCADE"`
	CallContractWithToken *CallContractWithToken `json:"callContractWithToken,omitempty" gorm:"foreignKey:RelayDataID;constraint:OnDelete:CASCADE"`
}

func (RelayData) TableName() string {
	return "relay_data"
}

// Payload returns the payload of whichever child is set.
func (r *RelayData) Payload() string {
	if r.CallContract != nil {
		return r.CallContract.Payload
	}
	if r.CallContractWithToken != nil {
		return r.CallContractWithToken.Payload
	}
	return ""
}
