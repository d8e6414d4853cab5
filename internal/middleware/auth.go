// Package middleware содержит HTTP middleware сервиса управления продажами.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userKey contextKey = "authUser"

const (
	accessTokenTTL  = 30 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access_token"
	tokenTypeRefresh = "refresh_token"
)

// ErrInvalidToken возвращается, если токен не прошёл проверку подписи,
// просрочен или имеет неверный тип.
var ErrInvalidToken = errors.New("invalid token")

// Claims описывает полезную нагрузку токенов доступа и обновления.
type Claims struct {
	UserID    int64  `json:"uid"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// AuthUser содержит данные аутентифицированного пользователя из токена.
type AuthUser struct {
	ID    int64
	Email string
}

// AuthMiddleware выполняет выпуск и проверку JWT-токенов доступа.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным
// ключом. Пустой ключ отклоняется на этапе чтения конфигурации.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secret),
	}
}

// IssueTokenPair выпускает пару токенов доступа и обновления для пользователя.
func (a *AuthMiddleware) IssueTokenPair(userID int64, email string) (access, refresh string, err error) {
	access, err = a.sign(userID, email, tokenTypeAccess, accessTokenTTL)
	if err != nil {
		return "", "", err
	}

	refresh, err = a.sign(userID, email, tokenTypeRefresh, refreshTokenTTL)
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

// IssueAccessToken выпускает новый токен доступа.
func (a *AuthMiddleware) IssueAccessToken(userID int64, email string) (string, error) {
	return a.sign(userID, email, tokenTypeAccess, accessTokenTTL)
}

func (a *AuthMiddleware) sign(userID int64, email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

func (a *AuthMiddleware) parseToken(raw, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseRefreshToken проверяет токен обновления и возвращает данные пользователя.
func (a *AuthMiddleware) ParseRefreshToken(raw string) (AuthUser, error) {
	claims, err := a.parseToken(raw, tokenTypeRefresh)
	if err != nil {
		return AuthUser{}, err
	}
	return AuthUser{ID: claims.UserID, Email: claims.Subject}, nil
}

// Middleware проверяет заголовок Authorization и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		claims, err := a.parseToken(strings.TrimPrefix(header, "Bearer "), tokenTypeAccess)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		user := AuthUser{ID: claims.UserID, Email: claims.Subject}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext извлекает пользователя из контекста запроса.
func GetUserFromContext(ctx context.Context) (AuthUser, bool) {
	user, ok := ctx.Value(userKey).(AuthUser)
	return user, ok
}
