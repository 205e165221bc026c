package entities

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ReceiptStatusPending   = "pending"
	ReceiptStatusProcessed = "processed"
	ReceiptStatusError     = "error"
)

type Receipt struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	ImageURL string    `json:"image_url"`
	Status   string    `json:"status"` // "pending", "processed", "error"

	MerchantName string `json:"merchant_name"`
	Date         string `json:"date"`
	Total        string `json:"total"`
	Subtotal     string `json:"subtotal"`
	Tax          string `json:"tax"`

	Items         datatypes.JSON `gorm:"type:jsonb" json:"items"`
	RawExtraction datatypes.JSON `gorm:"type:jsonb" json:"raw_extraction,omitempty"`

	User *User `gorm:"foreignKey:UserID"`
	Timestamp
}
