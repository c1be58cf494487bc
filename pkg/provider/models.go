package provider

// Record is one remote dossier: an opaque attribute payload with an
// externally assigned unique identifier in its "ID" field. The pipeline
// never interprets the payload beyond that identifier.
type Record map[string]interface{}

// ID returns the record's unique identifier, if present
func (r Record) ID() (interface{}, bool) {
	v, ok := r["ID"]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// pageResponse is the provider's envelope for a range fetch
type pageResponse struct {
	Dossiers      []Record `json:"dossiers"`
	TotalDossiers int      `json:"totalDossiers"`
	LastIndexID   int      `json:"lastIndexId"`
}
