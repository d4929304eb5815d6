// auth.go — JWT middleware для аутентификации и авторизации.
// Токены RS256 проверяются по JWKS (DS_JWKS_URL); при заданных
// DS_JWT_ISSUER и DS_JWT_AUDIENCE проверяются также iss и aud.
// Чтение требует валидного токена, запись — дополнительно scope files:write.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
)

// ScopeWrite — scope, необходимый для изменения ресурсов, клиентов и обслуживания.
const ScopeWrite = "files:write"

// Результаты проверки для ds_auth_requests_total.
const (
	authResultOK        = "ok"
	authResultMissing   = "missing_token"
	authResultInvalid   = "invalid_token"
	authResultForbidden = "forbidden"
)

var authRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ds_auth_requests_total",
		Help: "Количество проверок доступа к API по результату",
	},
	[]string{"result"},
)

// principalKey — ключ Principal в контексте запроса.
type principalKey struct{}

// Principal — аутентифицированный вызывающий.
type Principal struct {
	Subject string
	Scopes  []string
}

// HasScope проверяет наличие scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// WithPrincipal помещает вызывающего в контекст.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext извлекает вызывающего из контекста.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// SubjectFromContext возвращает sub вызывающего или "" без аутентификации.
// Записывается в метаданные ресурса как uploaded_by.
func SubjectFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Subject
}

// ScopesFromContext возвращает scopes вызывающего или nil.
func ScopesFromContext(ctx context.Context) []string {
	p, _ := PrincipalFromContext(ctx)
	return p.Scopes
}

// Claims — структура JWT claims.
// Поддерживает два формата scopes:
//   - Keycloak стандартный: "scope" (пробело-разделённая строка)
//   - Кастомный: "scopes" (массив строк)
type Claims struct {
	jwt.RegisteredClaims
	ScopeString string   `json:"scope"`
	ScopeArray  []string `json:"scopes"`
}

// Scopes возвращает объединённый список scope'ов из обоих форматов.
func (c *Claims) Scopes() []string {
	var result []string
	result = append(result, strings.Fields(c.ScopeString)...)
	result = append(result, c.ScopeArray...)
	return result
}

// Validation — правила проверки токена помимо подписи и exp.
type Validation struct {
	// Leeway — допустимое расхождение часов (DS_JWT_LEEWAY)
	Leeway time.Duration
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
	// Audience — ожидаемый aud (пусто — не проверяется)
	Audience string
}

func (v Validation) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks       keyfunc.Keyfunc
	parserOpts []jwt.ParserOption
	logger     *slog.Logger
}

// JWTAuthConfig — параметры для создания JWT middleware.
type JWTAuthConfig struct {
	JWKSURL         string
	CACertPath      string
	TLSSkipVerify   bool
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	Validation      Validation
}

// NewJWTAuth создаёт JWT middleware с JWKS из указанного URL.
// Первая загрузка JWKS не блокирует старт: ключи подтянутся при обновлении.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	httpClient, err := buildHTTPClient(authCfg)
	if err != nil {
		return nil, err
	}

	if authCfg.CACertPath != "" {
		logger.Info("CA-сертификат добавлен в пул доверия",
			slog.String("ca_cert", authCfg.CACertPath),
		)
	}

	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", authCfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, authCfg.Validation, logger), nil
}

// buildHTTPClient создаёт HTTP-клиент JWKS с TLS и таймаутом.
func buildHTTPClient(authCfg JWTAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: authCfg.TLSSkipVerify, //nolint:gosec // настраивается через DS_TLS_SKIP_VERIFY
	}

	if authCfg.CACertPath != "" {
		caCert, err := os.ReadFile(authCfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", authCfg.CACertPath, err)
		}

		caCertPool, err := x509.SystemCertPool()
		if err != nil {
			caCertPool = x509.NewCertPool()
		}
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-сертификатов", authCfg.CACertPath)
		}
		tlsConfig.RootCAs = caCertPool
	}

	return &http.Client{
		Timeout: authCfg.ClientTimeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с готовой keyfunc.
// Используется в тестах для подстановки JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, v Validation, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:       kf,
		parserOpts: v.parserOptions(),
		logger:     logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Валидный токен с непустым sub превращается в Principal в контексте запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r)
			if msg != "" {
				authRequestsTotal.WithLabelValues(authResultMissing).Inc()
				apierrors.Unauthorized(w, msg)
				return
			}

			principal, err := j.authenticate(r.Context(), tokenString)
			if err != nil {
				authRequestsTotal.WithLabelValues(authResultInvalid).Inc()
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			authRequestsTotal.WithLabelValues(authResultOK).Inc()
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func (j *JWTAuth) authenticate(ctx context.Context, tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(ctx), j.parserOpts...)
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, fmt.Errorf("токен невалиден")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Principal{}, fmt.Errorf("отсутствует sub в токене")
	}
	return Principal{Subject: subject, Scopes: claims.Scopes()}, nil
}

// bearerToken извлекает токен из заголовка Authorization.
// Непустое сообщение — причина отказа.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Отсутствует заголовок Authorization"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "Пустой Bearer token"
	}
	return token, ""
}

// RequireScope возвращает middleware, пропускающий только вызывающих с scope.
// Без Principal в контексте или без scope — 403.
// Подключается после JWTAuth.Middleware().
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				authRequestsTotal.WithLabelValues(authResultForbidden).Inc()
				apierrors.Forbidden(w, "Отсутствуют scopes в токене")
				return
			}
			if !p.HasScope(scope) {
				authRequestsTotal.WithLabelValues(authResultForbidden).Inc()
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
