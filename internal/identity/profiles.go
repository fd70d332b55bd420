package identity

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Profile is the stored view of a user, refreshed from token claims.
type Profile struct {
	Sub       string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email,omitempty"`
	Name      string    `bson:"name" json:"name,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	UpsertBySub(ctx context.Context, p *Profile) (*Profile, error)
	GetBySub(ctx context.Context, sub string) (*Profile, error)
}

// MongoProfileRepository implements ProfileRepository using MongoDB.
type MongoProfileRepository struct {
	col *mongo.Collection
}

func NewMongoProfileRepository(col *mongo.Collection) *MongoProfileRepository {
	return &MongoProfileRepository{col: col}
}

func (r *MongoProfileRepository) UpsertBySub(ctx context.Context, p *Profile) (*Profile, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"email": p.Email, "name": p.Name, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated Profile
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": p.Sub}, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoProfileRepository) GetBySub(ctx context.Context, sub string) (*Profile, error) {
	var p Profile
	if err := r.col.FindOne(ctx, bson.M{"_id": sub}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// MemoryProfiles is the in-process ProfileRepository.
type MemoryProfiles struct {
	mu   sync.RWMutex
	byID map[string]Profile
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{byID: make(map[string]Profile)}
}

func (m *MemoryProfiles) UpsertBySub(ctx context.Context, p *Profile) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cur, ok := m.byID[p.Sub]
	if !ok {
		cur = Profile{Sub: p.Sub, CreatedAt: now}
	}
	cur.Email = p.Email
	cur.Name = p.Name
	cur.UpdatedAt = now
	m.byID[p.Sub] = cur
	out := cur
	return &out, nil
}

func (m *MemoryProfiles) GetBySub(ctx context.Context, sub string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[sub]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Profiles keeps profiles in step with the actors seen on requests.
type Profiles struct {
	repo ProfileRepository
}

func NewProfiles(r ProfileRepository) *Profiles {
	return &Profiles{repo: r}
}

// Remember stores a. Anonymous actors are ignored.
func (s *Profiles) Remember(ctx context.Context, a Actor) (*Profile, error) {
	if a.ID == "" {
		return nil, nil
	}
	return s.repo.UpsertBySub(ctx, &Profile{Sub: a.ID, Email: a.Email, Name: a.Name})
}

// Lookup returns the profile of sub, or a bare profile carrying only the id
// when none is stored.
func (s *Profiles) Lookup(ctx context.Context, sub string) (*Profile, error) {
	p, err := s.repo.GetBySub(ctx, sub)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Profile{Sub: sub}, nil
	}
	return p, nil
}
