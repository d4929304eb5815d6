// proxy.go — пересылка изменяющих запросов follower → leader.
//
// Чтение (GET, HEAD, OPTIONS) всегда обслуживается локально: метаданные
// и payload лежат в общем хранилище. Изменения выполняет только leader,
// остальные методы follower передаёт ему через httputil.ReverseProxy.
package replica

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
)

const (
	// CodeLeaderUnknown — код ошибки: адрес leader неизвестен.
	CodeLeaderUnknown = "LEADER_UNKNOWN"
	// CodeProxyError — код ошибки: leader недоступен по сети.
	CodeProxyError = "PROXY_ERROR"
	// ForwardedByHeader — заголовок с InstanceID пересылающего follower.
	ForwardedByHeader = "X-Forwarded-By"
)

// Результаты для ds_leader_proxy_requests_total.
const (
	proxyResultForwarded = "forwarded"
	proxyResultNoLeader  = "leader_unknown"
	proxyResultLoop      = "loop"
	proxyResultError     = "error"
)

var proxyRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ds_leader_proxy_requests_total",
		Help: "Изменяющие запросы follower, переданные leader, по результату",
	},
	[]string{"result"},
)

// ProxyConfig — параметры LeaderProxy.
type ProxyConfig struct {
	// UseTLS — экземпляры слушают HTTPS (DS_TLS_CERT/DS_TLS_KEY)
	UseTLS bool
	// TLSSkipVerify — не проверять сертификат leader (DS_TLS_SKIP_VERIFY)
	TLSSkipVerify bool
	// InstanceID — значение X-Forwarded-By
	InstanceID string
}

// LeaderProxy — middleware пересылки записи leader'у.
type LeaderProxy struct {
	roles      RoleProvider
	scheme     string
	instanceID string
	transport  http.RoundTripper
	logger     *slog.Logger

	mu        sync.Mutex
	proxyAddr string
	proxy     *httputil.ReverseProxy
}

// NewLeaderProxy создаёт middleware пересылки.
func NewLeaderProxy(roles RoleProvider, cfg ProxyConfig, logger *slog.Logger) *LeaderProxy {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = "follower"
	}
	return &LeaderProxy{
		roles:      roles,
		scheme:     scheme,
		instanceID: instanceID,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // настраивается через DS_TLS_SKIP_VERIFY
			},
		},
		logger: logger.With(slog.String("component", "leader_proxy")),
	}
}

func isReadMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// Middleware возвращает Chi middleware.
func (p *LeaderProxy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isReadMethod(r.Method) || p.roles.IsLeader() {
			next.ServeHTTP(w, r)
			return
		}

		// Отправитель считал нас leader'ом, но роль уже потеряна
		if by := r.Header.Get(ForwardedByHeader); by != "" {
			proxyRequestsTotal.WithLabelValues(proxyResultLoop).Inc()
			p.logger.Warn("Получен пересланный запрос, но экземпляр не leader",
				slog.String("forwarded_by", by),
				slog.String("path", r.URL.Path),
			)
			apierrors.WriteError(w, http.StatusServiceUnavailable, CodeLeaderUnknown,
				"Экземпляр больше не является leader, повторите позже")
			return
		}

		leaderAddr := p.roles.LeaderAddr()
		if leaderAddr == "" {
			proxyRequestsTotal.WithLabelValues(proxyResultNoLeader).Inc()
			apierrors.WriteError(w, http.StatusServiceUnavailable, CodeLeaderUnknown,
				"Leader неизвестен, повторите позже")
			return
		}

		proxy, err := p.proxyFor(leaderAddr)
		if err != nil {
			proxyRequestsTotal.WithLabelValues(proxyResultError).Inc()
			p.logger.Error("Некорректный адрес leader",
				slog.String("leader_addr", leaderAddr),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка пересылки запроса leader")
			return
		}

		p.logger.Debug("Пересылка запроса leader",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("leader_addr", leaderAddr),
		)
		proxyRequestsTotal.WithLabelValues(proxyResultForwarded).Inc()
		proxy.ServeHTTP(w, r)
	})
}

// proxyFor возвращает ReverseProxy на leaderAddr.
// Прокси пересоздаётся только при смене leader.
func (p *LeaderProxy) proxyFor(leaderAddr string) (*httputil.ReverseProxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proxy != nil && p.proxyAddr == leaderAddr {
		return p.proxy, nil
	}

	target, err := url.Parse(p.scheme + "://" + leaderAddr)
	if err != nil {
		return nil, err
	}

	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Set(ForwardedByHeader, p.instanceID)
		},
		Transport: p.transport,
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			proxyRequestsTotal.WithLabelValues(proxyResultError).Inc()
			p.logger.Error("Leader недоступен",
				slog.String("leader_addr", leaderAddr),
				slog.String("error", err.Error()),
			)
			apierrors.WriteError(w, http.StatusBadGateway, CodeProxyError,
				"Ошибка соединения с leader: "+err.Error())
		},
	}
	p.proxyAddr = leaderAddr
	return p.proxy, nil
}
