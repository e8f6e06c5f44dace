package models

// LicenseType (jenis lesen) as published by the catalog service.
type LicenseType struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	ProcessingFee float64 `json:"processingFee"`
}

// DocumentRequirement (keperluan dokumen) for a license type.
type DocumentRequirement struct {
	ID            string `json:"id"`
	LicenseTypeID string `json:"licenseTypeId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Mandatory     bool   `json:"mandatory"`
}

// RequirementStatus is one line of a completeness evaluation.
type RequirementStatus struct {
	Requirement DocumentRequirement `json:"requirement"`
	Satisfied   bool                `json:"satisfied"`
	DocumentID  string              `json:"documentId,omitempty"`
}

type Completeness struct {
	PermohonanID string              `json:"permohonanId"`
	Complete     bool                `json:"complete"`
	Requirements []RequirementStatus `json:"requirements"`
	Missing      []string            `json:"missing"`
}

// ApplicationView is an application with its catalog-derived fields resolved.
type ApplicationView struct {
	Application
	LicenseType *LicenseType          `json:"licenseType,omitempty"`
	Documents   []ApplicationDocument `json:"documents"`
}

type ApplicationViewPage struct {
	Items  []ApplicationView `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
