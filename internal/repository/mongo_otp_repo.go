package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rainbow-buyers/internal/model"
)

// MongoOTPRepository relies on the expiresAt TTL index for garbage collection;
// CleanExpired exists for parity with the SQL store.
type MongoOTPRepository struct {
	col *mongo.Collection
}

func NewMongoOTPRepository(col *mongo.Collection) *MongoOTPRepository {
	return &MongoOTPRepository{col: col}
}

func (r *MongoOTPRepository) Replace(ctx context.Context, challenge model.OTPChallenge) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{"email": challenge.Email, "purpose": challenge.Purpose}); err != nil {
		return fmt.Errorf("delete prior otps: %w", err)
	}
	if _, err := r.col.InsertOne(ctx, challenge); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	return nil
}

func (r *MongoOTPRepository) Consume(ctx context.Context, email string, purpose model.OTPPurpose, code string, now time.Time) (model.OTPChallenge, error) {
	filter := bson.M{
		"email":     email,
		"purpose":   purpose,
		"otp":       code,
		"expiresAt": bson.M{"$gt": now},
	}

	var c model.OTPChallenge
	err := r.col.FindOneAndDelete(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.OTPChallenge{}, model.ErrInvalidOrExpiredOTP
	}
	if err != nil {
		return model.OTPChallenge{}, fmt.Errorf("consume otp: %w", err)
	}
	return c, nil
}

func (r *MongoOTPRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("clean expired otps: %w", err)
	}
	return res.DeletedCount, nil
}
