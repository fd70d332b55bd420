package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gogotex/docflow/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	DocumentsCollection      = "documents"
	RevisionsCollection      = "document_revisions"
	ReviewRequestsCollection = "review_requests"
	CommentsCollection       = "comments"
	PermissionsCollection    = "document_permissions"
)

// MongoRepo implements Repository on a MongoDB database. RunInTx uses a
// multi-document transaction, so the deployment must be a replica set.
type MongoRepo struct {
	db          *mongo.Database
	docs        *mongo.Collection
	revisions   *mongo.Collection
	reviews     *mongo.Collection
	comments    *mongo.Collection
	permissions *mongo.Collection
}

var _ Repository = (*MongoRepo)(nil)

func NewMongoRepo(ctx context.Context, db *mongo.Database) (*MongoRepo, error) {
	m := &MongoRepo{
		db:          db,
		docs:        db.Collection(DocumentsCollection),
		revisions:   db.Collection(RevisionsCollection),
		reviews:     db.Collection(ReviewRequestsCollection),
		comments:    db.Collection(CommentsCollection),
		permissions: db.Collection(PermissionsCollection),
	}
	// revisions are unique per (document, version); the ledger and comment
	// lookups are always scoped by document
	indexes := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{m.revisions, mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "versionNumber", Value: -1}}, Options: options.Index().SetUnique(true)}},
		{m.reviews, mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "reviewerId", Value: 1}, {Key: "updatedAt", Value: -1}}}},
		{m.reviews, mongo.IndexModel{Keys: bson.D{{Key: "reviewerId", Value: 1}, {Key: "status", Value: 1}}}},
		{m.comments, mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: 1}}}},
		{m.permissions, mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.docs, mongo.IndexModel{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "updatedAt", Value: -1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.col.Indexes().CreateOne(ctx, idx.model); err != nil {
			return nil, fmt.Errorf("create index on %s: %w", idx.col.Name(), err)
		}
	}
	return m, nil
}

// writeConflictCode is the server's WriteConflict error: another transaction
// wrote the same document first.
const writeConflictCode = 112

// writeConflict reports driver errors that a fresh attempt may resolve.
func writeConflict(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(writeConflictCode) || se.HasErrorLabel("TransientTransactionError")
}

// persistence classifies a driver error. The driver error stays in the chain
// so WithTransaction can still see its labels.
func persistence(op string, err error) error {
	if writeConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, err, document.ErrConcurrentModification)
	}
	return fmt.Errorf("%s: %w: %w", op, err, document.ErrPersistence)
}

func (m *MongoRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, m)
	}
	sess, err := m.db.Client().StartSession()
	if err != nil {
		return persistence("start session", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, m)
	})
	if err != nil && document.KindOf(err) == document.KindInternal {
		var se mongo.ServerError
		if errors.As(err, &se) {
			return persistence("commit", err)
		}
	}
	return err
}

func (m *MongoRepo) CreateDocument(ctx context.Context, d *document.Document) error {
	if _, err := m.docs.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: document %s already exists", document.ErrValidation, d.ID)
		}
		return persistence("insert document", err)
	}
	return nil
}

func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, persistence("get document", err)
	}
	return &d, nil
}

func documentQuery(f DocumentFilter) bson.M {
	q := bson.M{}
	author := bson.M{}
	if f.AuthorID != "" {
		author["$eq"] = f.AuthorID
	}
	if f.ExcludeAuthorID != "" {
		author["$ne"] = f.ExcludeAuthorID
	}
	if len(author) > 0 {
		q["authorId"] = author
	}
	if f.ProjectID != "" {
		q["projectId"] = f.ProjectID
	}
	status := bson.M{}
	if len(f.Statuses) > 0 {
		status["$in"] = f.Statuses
	}
	if len(f.ExcludeStatuses) > 0 {
		status["$nin"] = f.ExcludeStatuses
	}
	if len(status) > 0 {
		q["status"] = status
	}
	if f.IsTemplate != nil {
		q["isTemplate"] = *f.IsTemplate
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		re := primitiveRegex(s)
		q["$or"] = bson.A{bson.M{"title": re}, bson.M{"body": re}}
	}
	return q
}

func primitiveRegex(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

func (m *MongoRepo) ListDocuments(ctx context.Context, f DocumentFilter) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := m.docs.Find(ctx, documentQuery(f), opts)
	if err != nil {
		return nil, persistence("list documents", err)
	}
	out := []*document.Document{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, persistence("decode documents", err)
	}
	return out, nil
}

func (m *MongoRepo) UpdateDocument(ctx context.Context, d *document.Document, expectedVersion int, expectedStatus document.Status) error {
	filter := bson.M{"_id": d.ID, "version": expectedVersion, "status": expectedStatus}
	res, err := m.docs.ReplaceOne(ctx, filter, d)
	if err != nil {
		return persistence("update document", err)
	}
	if res.MatchedCount == 0 {
		n, err := m.docs.CountDocuments(ctx, bson.M{"_id": d.ID})
		if err != nil {
			return persistence("update document", err)
		}
		if n == 0 {
			return document.ErrNotFound
		}
		return fmt.Errorf("update document %s: %w", d.ID, document.ErrConcurrentModification)
	}
	return nil
}

func (m *MongoRepo) DeleteDocumentCascade(ctx context.Context, id string) error {
	byDoc := bson.M{"documentId": id}
	for _, col := range []*mongo.Collection{m.comments, m.reviews, m.permissions, m.revisions} {
		if _, err := col.DeleteMany(ctx, byDoc); err != nil {
			return persistence("delete "+col.Name(), err)
		}
	}
	res, err := m.docs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return persistence("delete document", err)
	}
	if res.DeletedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) InsertRevision(ctx context.Context, r *document.Revision) error {
	if _, err := m.revisions.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRevision
		}
		return persistence("insert revision", err)
	}
	return nil
}

func (m *MongoRepo) ListRevisions(ctx context.Context, documentID string) ([]*document.Revision, error) {
	opts := options.Find().SetSort(bson.D{{Key: "versionNumber", Value: -1}})
	cur, err := m.revisions.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, persistence("list revisions", err)
	}
	out := []*document.Revision{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, persistence("decode revisions", err)
	}
	return out, nil
}

func (m *MongoRepo) ListReviewRequests(ctx context.Context, f ReviewFilter) ([]*document.ReviewRequest, error) {
	q := bson.M{}
	if f.DocumentID != "" {
		q["documentId"] = f.DocumentID
	}
	if f.ReviewerID != "" {
		q["reviewerId"] = f.ReviewerID
	}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := m.reviews.Find(ctx, q, opts)
	if err != nil {
		return nil, persistence("list review requests", err)
	}
	out := []*document.ReviewRequest{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, persistence("decode review requests", err)
	}
	return out, nil
}

func (m *MongoRepo) UpsertReviewRequest(ctx context.Context, r *document.ReviewRequest) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.reviews.ReplaceOne(ctx, bson.M{"_id": r.ID}, r, opts); err != nil {
		return persistence("upsert review request", err)
	}
	return nil
}

func (m *MongoRepo) AddComment(ctx context.Context, c *document.Comment) error {
	if _, err := m.comments.InsertOne(ctx, c); err != nil {
		return persistence("insert comment", err)
	}
	return nil
}

func (m *MongoRepo) GetComment(ctx context.Context, id string) (*document.Comment, error) {
	var c document.Comment
	if err := m.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("comment %s: %w", id, document.ErrNotFound)
		}
		return nil, persistence("get comment", err)
	}
	return &c, nil
}

func (m *MongoRepo) ListComments(ctx context.Context, documentID string) ([]*document.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := m.comments.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, persistence("list comments", err)
	}
	out := []*document.Comment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, persistence("decode comments", err)
	}
	return out, nil
}

func (m *MongoRepo) UpdateComment(ctx context.Context, c *document.Comment) error {
	res, err := m.comments.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return persistence("update comment", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("comment %s: %w", c.ID, document.ErrNotFound)
	}
	return nil
}

func (m *MongoRepo) GrantPermission(ctx context.Context, p *document.Permission) error {
	filter := bson.M{"documentId": p.DocumentID, "userId": p.UserID}
	update := bson.M{"$set": bson.M{"role": p.Role}}
	if _, err := m.permissions.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return persistence("grant permission", err)
	}
	return nil
}

func (m *MongoRepo) ListPermissions(ctx context.Context, documentID string) ([]*document.Permission, error) {
	cur, err := m.permissions.Find(ctx, bson.M{"documentId": documentID})
	if err != nil {
		return nil, persistence("list permissions", err)
	}
	out := []*document.Permission{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, persistence("decode permissions", err)
	}
	return out, nil
}
