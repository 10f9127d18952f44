package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/capsule/xerrors"
)

// Claims 访问令牌中客户端关心的声明
type Claims struct {
	jwt.RegisteredClaims

	Username string   `json:"uname,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// ParseClaims 不校验签名地解析 JWT 载荷。
// 客户端没有签名密钥，这里只用于读取过期时间与身份信息，不能作为授权依据。
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, xerrors.Wrapf(ErrInvalidToken, "%v", err)
	}
	return claims, nil
}

// ExpiryFromJWT 读取 exp 声明；令牌不是 JWT 时返回 ErrInvalidToken，没有 exp 时返回零值
func ExpiryFromJWT(token string) (time.Time, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
