package form

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrNotFound = errors.New("form not found")

// Definitions is the read-only surface the response store depends on.
type Definitions interface {
	Get(ctx context.Context, id string) (*Form, error)
	GetByShareLink(ctx context.Context, link string) (*Form, error)
}

// MongoDefinitions reads form definitions from the shared forms collection.
type MongoDefinitions struct {
	col *mongo.Collection
}

func NewMongoDefinitions(col *mongo.Collection) *MongoDefinitions {
	return &MongoDefinitions{col: col}
}

func (r *MongoDefinitions) Get(ctx context.Context, id string) (*Form, error) {
	var f Form
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *MongoDefinitions) GetByShareLink(ctx context.Context, link string) (*Form, error) {
	var f Form
	if err := r.col.FindOne(ctx, bson.M{"shareLink": link}).Decode(&f); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// MemoryDefinitions is an in-memory Definitions used by unit tests.
type MemoryDefinitions struct {
	mu    sync.RWMutex
	forms map[string]*Form
}

func NewMemoryDefinitions() *MemoryDefinitions {
	return &MemoryDefinitions{forms: make(map[string]*Form)}
}

func (r *MemoryDefinitions) Put(f *Form) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[f.ID] = f
}

func (r *MemoryDefinitions) Get(ctx context.Context, id string) (*Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.forms[id]; ok {
		return f, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryDefinitions) GetByShareLink(ctx context.Context, link string) (*Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.forms {
		if f.ShareLink == link {
			return f, nil
		}
	}
	return nil, ErrNotFound
}
