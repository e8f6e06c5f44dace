// internal/workers/document/scan-document/models.go
package scandocument

// Verdict is the antivirus service response.
type Verdict struct {
	Clean     bool   `json:"clean"`
	Signature string `json:"signature,omitempty"`
}
