package domain

import (
	"time"
)

// PhysicalProperties holds the physical-state block of a safety data sheet.
type PhysicalProperties struct {
	PhysicalState string `json:"physical_state,omitempty"`
	Color         string `json:"color,omitempty"`
	Odor          string `json:"odor,omitempty"`
	PH            string `json:"ph,omitempty"`
	BoilingPoint  string `json:"boiling_point,omitempty"`
	MeltingPoint  string `json:"melting_point,omitempty"`
	FlashPoint    string `json:"flash_point,omitempty"`
	Density       string `json:"density,omitempty"`
}

// Extraction is one structured product record extracted from a document.
type Extraction struct {
	ID                   string              `json:"id"`
	ProductName          string              `json:"product_name"`
	Manufacturer         string              `json:"manufacturer,omitempty"`
	Hazards              []string            `json:"hazards"`
	Ingredients          []string            `json:"ingredients"`
	SafetyPrecautions    []string            `json:"safety_precautions"`
	FirstAidMeasures     []string            `json:"first_aid_measures"`
	PhysicalProperties   *PhysicalProperties `json:"physical_properties,omitempty"`
	GeneratedLabel       string              `json:"generated_label,omitempty"`
	FileName             string              `json:"file_name"`
	FileType             string              `json:"file_type"`
	ExtractionConfidence float64             `json:"extraction_confidence,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}
