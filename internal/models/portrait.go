package models

// PortraitStatus tracks an AI variation request.
type PortraitStatus string

const (
	PortraitStatusQueued     PortraitStatus = "queued"
	PortraitStatusProcessing PortraitStatus = "processing"
	PortraitStatusSucceeded  PortraitStatus = "succeeded"
	PortraitStatusFailed     PortraitStatus = "failed"
)

// PortraitVariation is a customer's request to restyle an uploaded pet photo.
type PortraitVariation struct {
	Base
	CustomerEmail  string         `gorm:"type:varchar(255);index" json:"customer_email,omitempty"`
	SourceImageURL string         `gorm:"type:text;not null" json:"source_image_url"`
	Style          string         `gorm:"type:varchar(50);not null" json:"style"`
	PetName        string         `gorm:"type:varchar(100)" json:"pet_name,omitempty"`
	Prompt         string         `gorm:"type:text;not null" json:"-"`
	Status         PortraitStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ResultURL      string         `gorm:"type:text" json:"result_url,omitempty"`
	ErrorMessage   string         `gorm:"type:text" json:"error,omitempty"`
}
