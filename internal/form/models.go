package form

import "time"

// FieldType enumerates the supported form field kinds.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldEmail    FieldType = "email"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
)

// Option is one selectable choice on select/checkbox/radio fields.
type Option struct {
	Label string `bson:"label" json:"label"`
	Value string `bson:"value" json:"value"`
}

// Field is a single field definition. FieldId is assigned once at
// form creation and referenced by response field values forever after.
type Field struct {
	FieldID     string    `bson:"fieldId" json:"fieldId"`
	Label       string    `bson:"label" json:"label"`
	Type        FieldType `bson:"type" json:"type"`
	Required    bool      `bson:"required" json:"required"`
	Placeholder string    `bson:"placeholder,omitempty" json:"placeholder,omitempty"`
	Options     []Option  `bson:"options,omitempty" json:"options,omitempty"`
	Order       int       `bson:"order" json:"order"`
}

// Form is a form definition. Builder CRUD is owned by another
// service; this one only reads definitions to seed responses and to
// serve the share-link lookup the fill flow starts from.
type Form struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Creator     string    `bson:"creator" json:"creator"`
	Fields      []Field   `bson:"fields" json:"fields"`
	ShareLink   string    `bson:"shareLink" json:"shareLink"`
	IsActive    bool      `bson:"isActive" json:"isActive"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}
