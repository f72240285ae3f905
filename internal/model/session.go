// Package model はドメインモデルを定義する。
package model

import "fmt"

// Role はオペレーターのロールを表す閉じたタグ付き列挙。
// ワイヤー上の値は認証エンドポイントが返す文字列と一致する。
type Role string

const (
	// RoleOwner は車両オーナーロール。自車1台の詳細データのみ閲覧できる。
	RoleOwner Role = "user"
	// RoleServiceCenter はサービスセンターロール。予約一覧のみ閲覧できる。
	RoleServiceCenter Role = "service_center"
	// RoleManufacturing は製造部門ロール。フリートサマリーのみ閲覧できる。
	RoleManufacturing Role = "manufacturing"
)

// ParseRole はワイヤー上のロール文字列をRoleに変換する。
// 認証エンドポイントとログインフォームで表記ゆれがあるため、
// 既知のエイリアス（owner, service, mfg）も受け付ける。
func ParseRole(s string) (Role, error) {
	switch s {
	case "user", "owner":
		return RoleOwner, nil
	case "service_center", "service":
		return RoleServiceCenter, nil
	case "manufacturing", "mfg":
		return RoleManufacturing, nil
	default:
		return "", fmt.Errorf("未知のロールです: %q", s)
	}
}

// Session は現在認証済みのオペレーターセッションを表す。
// token が空でなく role が既知の3種のいずれかである場合にのみ存在する。
// OwnedVehicleID は role = RoleOwner の場合にのみ非空となる。
type Session struct {
	Token          string
	Role           Role
	SubjectID      string
	OwnedVehicleID string
}

// Valid はセッションの不変条件を満たしているかを返す。
func (s *Session) Valid() bool {
	if s == nil || s.Token == "" {
		return false
	}
	switch s.Role {
	case RoleOwner:
		return s.OwnedVehicleID != ""
	case RoleServiceCenter, RoleManufacturing:
		return s.OwnedVehicleID == ""
	default:
		return false
	}
}
