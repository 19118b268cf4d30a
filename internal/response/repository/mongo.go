package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/collabform/collabform/internal/response"
)

// MongoRepo persists responses in MongoDB. A unique index on "form"
// enforces the one-response-per-form invariant: when two first
// joiners race, the loser's insert fails with a duplicate key and is
// reported as ErrConflict so the store can fall back to the join path.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "form", Value: 1}}, Options: options.Index().SetUnique(true)}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(ctx context.Context, r *response.FormResponse) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := m.col.InsertOne(ctx, r)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return response.ErrConflict
		}
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*response.FormResponse, error) {
	var r response.FormResponse
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, response.ErrNotFound
		}
		return nil, fmt.Errorf("find response: %w", err)
	}
	return &r, nil
}

func (m *MongoRepo) FindByForm(ctx context.Context, formID string) (*response.FormResponse, error) {
	var r response.FormResponse
	if err := m.col.FindOne(ctx, bson.M{"form": formID}).Decode(&r); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("find response by form: %w", err)
	}
	return &r, nil
}

func (m *MongoRepo) ListByForm(ctx context.Context, formID string) ([]*response.FormResponse, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := m.col.Find(ctx, bson.M{"form": formID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer cur.Close(ctx)
	out := []*response.FormResponse{}
	for cur.Next(ctx) {
		var r response.FormResponse
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (m *MongoRepo) AddCollaborator(ctx context.Context, responseID string, c response.Collaborator) error {
	res, err := m.col.UpdateOne(ctx,
		bson.M{"_id": responseID},
		bson.M{
			"$push": bson.M{"collaborators": c},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("add collaborator: %w", err)
	}
	if res.MatchedCount == 0 {
		return response.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) SetCollaboratorActive(ctx context.Context, responseID, userID string, active bool) error {
	res, err := m.col.UpdateOne(ctx,
		bson.M{"_id": responseID, "collaborators.userId": userID},
		bson.M{"$set": bson.M{
			"collaborators.$.isActive": active,
			"updatedAt":                time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("set collaborator active: %w", err)
	}
	if res.MatchedCount == 0 {
		return response.ErrNotFound
	}
	return nil
}

// SetFieldValue applies an unconditional overwrite of one field
// value. No version guard: the write whose persistence completes last
// wins, which is the documented conflict policy.
func (m *MongoRepo) SetFieldValue(ctx context.Context, responseID, fieldID string, v response.Value, userID string, at time.Time) (*response.FieldValue, error) {
	res, err := m.col.UpdateOne(ctx,
		bson.M{"_id": responseID, "fieldValues.fieldId": fieldID},
		bson.M{"$set": bson.M{
			"fieldValues.$.value":         v,
			"fieldValues.$.lastUpdatedBy": userID,
			"fieldValues.$.lastUpdatedAt": at,
			"updatedAt":                   at,
		}})
	if err != nil {
		return nil, fmt.Errorf("set field value: %w", err)
	}
	if res.MatchedCount == 0 {
		// distinguish a missing response from a missing field
		if _, gerr := m.Get(ctx, responseID); gerr != nil {
			return nil, gerr
		}
		return nil, response.ErrFieldNotFound
	}
	return &response.FieldValue{FieldID: fieldID, Value: v, LastUpdatedBy: userID, LastUpdatedAt: at}, nil
}

func (m *MongoRepo) MarkComplete(ctx context.Context, responseID string) error {
	res, err := m.col.UpdateOne(ctx,
		bson.M{"_id": responseID},
		bson.M{"$set": bson.M{"isComplete": true, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	if res.MatchedCount == 0 {
		return response.ErrNotFound
	}
	return nil
}
