package user

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ToDomain は永続化レコードをドメインエンティティに変換します。
// UserType は検証せずにそのまま変換します。
func ToDomain(rec *Record) *User {
	if rec == nil {
		return nil
	}
	u := &User{
		Name:     rec.Name,
		Email:    rec.Email,
		Password: rec.PasswordHash,
		UserType: UserType(rec.UserType),
		Avatar:   rec.Avatar,
	}
	if !rec.ID.IsZero() {
		u.ID = LegacyID(rec.ID)
		u.Ref = rec.ID.Hex()
	}
	return u
}

// ToRecord はドメインエンティティを永続化レコードに変換します。
// Ref が空の場合 _id は省略され、保存時にストア側で採番されます。
func ToRecord(u *User) (*Record, error) {
	if u == nil {
		return nil, fmt.Errorf("user is nil")
	}
	rec := &Record{
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.Password,
		UserType:     string(u.UserType),
		Avatar:       u.Avatar,
	}
	if u.Ref != "" {
		id, err := bson.ObjectIDFromHex(u.Ref)
		if err != nil {
			return nil, fmt.Errorf("invalid user ref %q: %w", u.Ref, err)
		}
		rec.ID = id
	}
	return rec, nil
}
