// auth.go — сервис аутентификации портала.
// Начальное заполнение учётных записей, проверка пароля (bcrypt)
// и выпуск bearer-токенов HS256 для REST API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/domain/rbac"
	"github.com/bigkaa/bmkg-portal/internal/repository"
)

// tokenIssuer — значение iss в выпускаемых токенах.
const tokenIssuer = "bmkg-portal"

// TxRunner — выполнение функции в транзакции.
// Реализуется repository.TxRunner.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// UserSeed — учётная запись для начального заполнения.
type UserSeed struct {
	Username string
	Password string
	Role     string
}

// Claims — claims bearer-токена REST API.
type Claims struct {
	// Username — имя пользователя
	Username string `json:"preferred_username"`
	// Role — роль пользователя (admin, user)
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService — сервис аутентификации.
type AuthService struct {
	users   repository.UserRepository
	tx      TxRunner
	newRepo func(db repository.DBTX) repository.UserRepository
	secret  []byte
	ttl     time.Duration
	cost    int
	now     func() time.Time
	logger  *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService создаёт сервис аутентификации.
// jwtSecret — ключ подписи HS256, ttl — время жизни bearer-токена.
func NewAuthService(
	users repository.UserRepository,
	tx TxRunner,
	jwtSecret string,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		tx:      tx,
		newRepo: repository.NewUserRepository,
		secret:  []byte(jwtSecret),
		ttl:     ttl,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "auth_service")),
	}
}

// SeedUsers создаёт начальные учётные записи в одной транзакции.
// Существующие пользователи не изменяются, их пароли не перезаписываются.
func (s *AuthService) SeedUsers(ctx context.Context, seeds []UserSeed) error {
	users := make([]*model.User, 0, len(seeds))
	for _, seed := range seeds {
		username := strings.TrimSpace(seed.Username)
		if username == "" {
			return fieldError("username", ReasonRequired)
		}
		if seed.Password == "" {
			return fieldError("password", ReasonRequired)
		}
		if !rbac.IsValidRole(seed.Role) {
			return fieldError("role", ReasonInvalid)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.cost)
		if err != nil {
			return fmt.Errorf("хэширование пароля %s: %w", username, err)
		}
		users = append(users, &model.User{
			ID:           uuid.New().String(),
			Username:     username,
			PasswordHash: string(hash),
			Role:         seed.Role,
		})
	}

	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := s.newRepo(tx)
		for _, u := range users {
			created, err := repo.CreateIfAbsent(ctx, u)
			if err != nil {
				return fmt.Errorf("создание пользователя %s: %w", u.Username, err)
			}
			if created {
				s.logger.Info("Пользователь создан",
					slog.String("username", u.Username),
					slog.String("role", u.Role),
				)
			} else {
				s.logger.Debug("Пользователь уже существует, пропущен",
					slog.String("username", u.Username),
				)
			}
		}
		return nil
	})
}

// Authenticate проверяет имя пользователя и пароль.
// Для неизвестного пользователя и неверного пароля возвращается
// одна и та же ошибка ErrInvalidCredentials за сопоставимое время.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Неверный пароль", slog.String("username", user.Username))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// dummy — хэш для выравнивания времени ответа при неизвестном пользователе.
func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
	})
	return s.dummyHash
}

// IssueToken выпускает bearer-токен для пользователя.
// Возвращает подписанный токен и время его истечения.
func (s *AuthService) IssueToken(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken проверяет подпись и срок действия bearer-токена.
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err) //nolint:errorlint // намеренный двойной wrap
	}
	if claims.Subject == "" || !rbac.IsValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
