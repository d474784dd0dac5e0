package models

import (
	"time"
)

type CallContract struct {
	ID              uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	RelayDataID     string    `json:"relayDataId" gorm:"type:varchar(255);uniqueIndex"`
	Payload         string    `json:"payload" gorm:"type:text"`
	PayloadHash     string    `json:"payloadHash" gorm:"type:varchar(255);index"`
	ContractAddress string    `json:"contractAddress" gorm:"type:varchar(255)"`
	SourceAddress   string    `json:"sourceAddress" gorm:"type:varchar(255)"`
	CreatedAt       time.Time `json:"createdAt" gorm:"autoCreateTime;type:timestamp(6)"`
	UpdatedAt       time.Time `json:"updatedAt" gorm:"autoUpdateTime;type:timestamp(6)"`
}
