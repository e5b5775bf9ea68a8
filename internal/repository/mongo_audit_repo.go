package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rainbow-buyers/internal/model"
)

type MongoAuditRepository struct {
	col *mongo.Collection
}

func NewMongoAuditRepository(col *mongo.Collection) *MongoAuditRepository {
	return &MongoAuditRepository{col: col}
}

func (r *MongoAuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

func (r *MongoAuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = NormalizeAuditQuery(query)

	filter := bson.M{}
	if action := strings.TrimSpace(query.Action); action != "" {
		filter["action"] = caseInsensitive(action)
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		filter["actorId"] = actorID
	}
	if email := strings.TrimSpace(query.Email); email != "" {
		filter["email"] = email
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		filter["status"] = caseInsensitive(status)
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := PageMeta(query, int(total))

	opts := options.Find().
		SetSort(bson.D{{Key: "occurredAt", Value: -1}}).
		SetSkip(int64((query.Page - 1) * query.Limit)).
		SetLimit(int64(query.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]model.AuditEntry, 0)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, model.Meta{}, fmt.Errorf("decode audit entries: %w", err)
	}

	return entries, meta, nil
}

func caseInsensitive(value string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(value) + "$", "$options": "i"}
}
