// Package authz serves nginx auth_request subrequests.
//
// GET /validate verifies the token from the Authorization header,
// or from the cookie named by the "cookie" query parameter,
// and responds with 200 or 401. Query parameters headers_<Name>=<claim>
// copy claims of a valid token to the response headers, so nginx can
// forward them with auth_request_set.
package authz

import (
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/jwt"
	"github.com/effective-security/xjwt/metricskey"
	"github.com/effective-security/xlog"
	"github.com/golang-jwt/jwt/v5/request"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjwt", "authz")

const (
	cookieParam   = "cookie"
	headersPrefix = "headers_"
	claimsPrefix  = "claims_"
)

// Server validates tokens
type Server struct {
	parser jwt.Parser
}

// New returns Server that verifies tokens with the parser
func New(parser jwt.Parser) *Server {
	return &Server{parser: parser}
}

// Handler returns handler for /validate and /healthz,
// and for /metrics if metrics is not nil
func (s *Server) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/validate", s.Validate)
	mux.HandleFunc("/healthz", Healthz)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

// Healthz responds with OK
func Healthz(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "OK")
}

// Validate responds with 200 if the request has a valid token
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	defer func() {
		if rec := recover(); rec != nil {
			logger.KV(xlog.ERROR, "reason", "panic", "err", rec)
			status = http.StatusInternalServerError
			w.WriteHeader(status)
		}
		metricskey.HTTPRequests.IncrCounter(1, strconv.Itoa(status))
		logger.KV(xlog.DEBUG,
			"method", r.Method,
			"url", r.URL.String(),
			"status", status,
			"agent", r.UserAgent())
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusMethodNotAllowed
		w.WriteHeader(status)
		return
	}

	claims, err := s.authorize(r)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "unauthorized", "err", err.Error())
		status = http.StatusUnauthorized
		w.WriteHeader(status)
		return
	}

	ForwardClaims(w.Header(), r.URL.Query(), claims)
	w.WriteHeader(status)
}

func (s *Server) authorize(r *http.Request) (*canonical.Object, error) {
	query := r.URL.Query()
	for key := range query {
		// claim values are not validated, the request must not pass
		if strings.HasPrefix(key, claimsPrefix) {
			logger.KV(xlog.WARNING, "reason", "claims_not_supported", "param", key)
			return nil, errors.Errorf("claim requirements are not supported: %s", key)
		}
	}

	token, err := Extractor(query.Get(cookieParam)).ExtractToken(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return s.parser.ParseToken(r.Context(), token)
}

// Extractor returns extractor of the token from the cookie,
// or from the Authorization header if cookie is empty
func Extractor(cookie string) request.Extractor {
	if cookie != "" {
		return CookieExtractor(cookie)
	}
	return request.AuthorizationHeaderExtractor
}

// CookieExtractor extracts a token from the named cookie
type CookieExtractor string

// ExtractToken implements request.Extractor
func (e CookieExtractor) ExtractToken(r *http.Request) (string, error) {
	c, err := r.Cookie(string(e))
	if err != nil || c.Value == "" {
		return "", request.ErrNoTokenInRequest
	}
	return c.Value, nil
}

// ForwardClaims adds headers named by headers_<Name>=<claim> query parameters.
// String claims are added as is, other values as compact JSON.
// Missing claims are skipped.
func ForwardClaims(h http.Header, query url.Values, claims *canonical.Object) {
	var params []string
	for key := range query {
		if strings.HasPrefix(key, headersPrefix) && len(key) > len(headersPrefix) {
			params = append(params, key)
		}
	}
	sort.Strings(params)

	for _, key := range params {
		header := strings.TrimPrefix(key, headersPrefix)
		name := query.Get(key)
		v, ok := claims.Get(name)
		if !ok {
			continue
		}

		var val string
		if str, ok := v.(canonical.String); ok {
			val = string(str)
		} else {
			b, err := canonical.Serialize(v)
			if err != nil {
				logger.KV(xlog.DEBUG, "reason", "serialize", "claim", name, "err", err.Error())
				continue
			}
			val = string(b)
		}
		h.Add(header, val)
	}
}
