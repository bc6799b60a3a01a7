// Package user はユーザーのドメインモデルと永続化レコードの相互変換を提供します。
package user

import (
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserType はユーザー種別を表します。
type UserType string

const (
	TypeBuyer  UserType = "buyer"
	TypeSeller UserType = "seller"
)

// User は認証後に呼び出し元へ返されるドメインエンティティです。
//
// ID は旧システム互換の数値IDで、Ref から一方向に導出されます。
// 永続化層との対応付けには常に Ref を使用します。
type User struct {
	ID       int64    `json:"id"`
	Ref      string   `json:"ref,omitempty"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"-"`
	UserType UserType `json:"userType"`
	Avatar   *string  `json:"avatar,omitempty"`
}

// Record は MongoDB の users コレクションに保存されるドキュメントです。
type Record struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Name         string        `bson:"name"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"passwordHash"`
	UserType     string        `bson:"userType"`
	Avatar       *string       `bson:"avatar,omitempty"`
}

// legacyIDOffset は16進表現のうち数値IDとして読む部分の開始位置です。
const legacyIDOffset = 18

// LegacyID は ObjectID の16進表現の末尾6文字を10進数として読み取ります。
// 先頭の数字列のみを解釈し、数字で始まらない場合は 0 を返します。
// 逆変換はできません。
func LegacyID(id bson.ObjectID) int64 {
	tail := id.Hex()[legacyIDOffset:]
	end := 0
	for end < len(tail) && tail[end] >= '0' && tail[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(tail[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
