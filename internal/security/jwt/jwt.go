package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type Manager struct {
	secret []byte
	expire time.Duration
	issuer string
}

// Claims 只携带用户 ID，角色与权限每次由授权核心解析
type Claims struct {
	UserID int64  `json:"uid"`
	JTI    string `json:"jti"`
	jwtlib.RegisteredClaims
}

func NewManager(secret string, expireSeconds int, issuer string) *Manager {
	return &Manager{secret: []byte(secret), expire: time.Duration(expireSeconds) * time.Second, issuer: issuer}
}

// Generate 签发令牌；登录由外部系统负责，此处供运维工具与测试使用
func (m *Manager) Generate(userID int64, jti string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		JTI:    jti,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.expire)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token without user id")
	}
	return claims, nil
}

func (m *Manager) ExpireDuration() time.Duration { return m.expire }
