package user

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionName = "users"

// ErrNotFound はユーザーが存在しない場合に返されます。
var ErrNotFound = errors.New("user not found")

// MongoRepository は MongoDB 上のユーザーを読み書きします。
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository は users コレクションを扱うリポジトリを作成します。
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(collectionName)}
}

// EnsureIndexes は name と email の一意インデックスを作成します。
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

// FindByNameOrEmail はユーザー名またはメールアドレスでユーザーを検索します。
func (r *MongoRepository) FindByNameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error) {
	return r.findOne(ctx, nameOrEmailFilter(usernameOrEmail))
}

// FindByRef は永続化IDでユーザーを検索します。
func (r *MongoRepository) FindByRef(ctx context.Context, ref string) (*User, error) {
	id, err := bson.ObjectIDFromHex(ref)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// UpdateAvatar はアバター参照を更新し、更新後のユーザーを返します。
func (r *MongoRepository) UpdateAvatar(ctx context.Context, ref, avatar string) (*User, error) {
	id, err := bson.ObjectIDFromHex(ref)
	if err != nil {
		return nil, ErrNotFound
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "avatar", Value: avatar}}}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update avatar: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*User, error) {
	var rec Record
	if err := r.coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return ToDomain(&rec), nil
}

func nameOrEmailFilter(usernameOrEmail string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name", Value: usernameOrEmail}},
		bson.D{{Key: "email", Value: usernameOrEmail}},
	}}}
}
