package models

// ShareSchemaVersion is written into every new share snapshot.
const ShareSchemaVersion = "2"

// ShareSnapshot is an immutable, read-only copy of a design's renderable
// state. CreatedAt is epoch milliseconds.
type ShareSnapshot struct {
	TemplateKey       string            `json:"templateKey"`
	FieldValues       map[string]string `json:"fieldValues"`
	ImageSlots        map[string]string `json:"imageSlots"`
	ProjectName       string            `json:"projectName"`
	CreativeDirection string            `json:"creativeDirection"`
	CreatedAt         int64             `json:"createdAt"`
	SchemaVersion     string            `json:"schemaVersion"`
}

// DesignFile is the local file export format: a design record plus the
// moment it was written.
type DesignFile struct {
	Design
	SavedDate string `json:"savedDate"`
}
