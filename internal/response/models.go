package response

import "time"

// Collaborator records a user who joined a response. Entries are
// append-only: a re-join flips IsActive back to true, a departure is
// never recorded here (presence is the ephemeral layer).
type Collaborator struct {
	UserID   string    `bson:"userId" json:"userId"`
	JoinedAt time.Time `bson:"joinedAt" json:"joinedAt"`
	IsActive bool      `bson:"isActive" json:"isActive"`
	// Username is resolved from the user store on read snapshots.
	Username string `bson:"-" json:"username,omitempty"`
}

// FieldValue is the current value of one form field within a response.
type FieldValue struct {
	FieldID       string    `bson:"fieldId" json:"fieldId"`
	Value         Value     `bson:"value" json:"value"`
	LastUpdatedBy string    `bson:"lastUpdatedBy,omitempty" json:"lastUpdatedBy,omitempty"`
	LastUpdatedAt time.Time `bson:"lastUpdatedAt" json:"lastUpdatedAt"`
	// LastUpdatedByName is resolved from the user store on read snapshots.
	LastUpdatedByName string `bson:"-" json:"lastUpdatedByName,omitempty"`
}

// FormResponse is the single shared response document for a form.
// The fieldValues set is fixed at creation from the form's field list;
// IsComplete only ever moves false -> true.
type FormResponse struct {
	ID            string         `bson:"_id,omitempty" json:"id"`
	Form          string         `bson:"form" json:"form"`
	FieldValues   []FieldValue   `bson:"fieldValues" json:"fieldValues"`
	Collaborators []Collaborator `bson:"collaborators" json:"collaborators"`
	IsComplete    bool           `bson:"isComplete" json:"isComplete"`
	CreatedAt     time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Field returns the field value for fieldID, or nil when the id is
// not part of this response.
func (r *FormResponse) Field(fieldID string) *FieldValue {
	for i := range r.FieldValues {
		if r.FieldValues[i].FieldID == fieldID {
			return &r.FieldValues[i]
		}
	}
	return nil
}

// Collaborator returns the collaborator entry for userID, or nil.
func (r *FormResponse) Collaborator(userID string) *Collaborator {
	for i := range r.Collaborators {
		if r.Collaborators[i].UserID == userID {
			return &r.Collaborators[i]
		}
	}
	return nil
}

// HasActiveCollaborator reports whether userID joined and is active.
func (r *FormResponse) HasActiveCollaborator(userID string) bool {
	c := r.Collaborator(userID)
	return c != nil && c.IsActive
}
