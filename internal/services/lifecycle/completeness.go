package lifecycle

import "permohonan-service/internal/models"

// Evaluate marks each requirement satisfied iff a document exists for its id.
// Only mandatory requirements count toward Complete and Missing; optional ones
// are reported for information. Missing keeps catalog order.
func Evaluate(app models.Application, reqs []models.DocumentRequirement, docs []models.ApplicationDocument) models.Completeness {
	byRequirement := make(map[string]string, len(docs))
	for _, d := range docs {
		byRequirement[d.RequirementID] = d.ID
	}

	result := models.Completeness{
		PermohonanID: app.ID,
		Complete:     true,
		Requirements: make([]models.RequirementStatus, 0, len(reqs)),
		Missing:      []string{},
	}
	for _, r := range reqs {
		docID, ok := byRequirement[r.ID]
		result.Requirements = append(result.Requirements, models.RequirementStatus{
			Requirement: r,
			Satisfied:   ok,
			DocumentID:  docID,
		})
		if r.Mandatory && !ok {
			result.Complete = false
			result.Missing = append(result.Missing, r.Name)
		}
	}
	return result
}
