package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/pkg/apierror"
)

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "find user by id")
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, "find user by email")
}

func (r *MongoUserRepository) Create(ctx context.Context, u model.User) error {
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apierror.DuplicateField("email")
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.M{"isEmailVerified": true, "updatedAt": at}, "mark email verified")
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, at time.Time) error {
	return r.set(ctx, id, bson.M{"password": passwordHash, "updatedAt": at}, "update password")
}

func (r *MongoUserRepository) UpdateAvatar(ctx context.Context, id string, avatar string, at time.Time) error {
	return r.set(ctx, id, bson.M{"avatar": avatar, "updatedAt": at}, "update avatar")
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M, op string) (model.User, error) {
	var u model.User
	err := r.col.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (r *MongoUserRepository) set(ctx context.Context, id string, fields bson.M, op string) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
