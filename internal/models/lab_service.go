package models

// LabService is a capability the lab offers to the public (laser cutting, 3D printing...).
type LabService struct {
	BaseModel

	Name        string `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Active      bool   `gorm:"not null" json:"active"`
}

// InterestInquiry records someone's interest in a lab service.
type InterestInquiry struct {
	BaseModel

	ServiceID   string      `gorm:"size:36;index;not null" json:"service_id"`
	Service     *LabService `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	Name        string      `gorm:"size:150;not null" json:"name"`
	Email       string      `gorm:"size:254;not null" json:"email"`
	Phone       string      `gorm:"size:30" json:"phone,omitempty"`
	Description string      `gorm:"type:text;not null" json:"description"`
}
