package models

// Badge associates a physical access card with an account.
type Badge struct {
	BaseModel

	AccountID  string `gorm:"size:13;uniqueIndex;not null" json:"account_id"`
	CardNumber string `gorm:"size:20;uniqueIndex;not null" json:"card_number"`
}
