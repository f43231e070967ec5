package coolfhir

// Resource holds the elements every FHIR resource has.
type Resource struct {
	Type string `json:"resourceType"`
	ID   string `json:"id"`
}
