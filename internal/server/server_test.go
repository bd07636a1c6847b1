package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	authrepository "github.com/smallbiznis/martpos/internal/auth/repository"
	authservice "github.com/smallbiznis/martpos/internal/auth/service"
	"github.com/smallbiznis/martpos/internal/auth/session"
	"github.com/smallbiznis/martpos/internal/authorization"
	billingrepository "github.com/smallbiznis/martpos/internal/billing/repository"
	billingservice "github.com/smallbiznis/martpos/internal/billing/service"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/martpos/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/martpos/internal/catalog/service"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/migration"
	"github.com/smallbiznis/martpos/internal/providers/pdf"
	"github.com/smallbiznis/martpos/internal/ratelimit"
	scannerservice "github.com/smallbiznis/martpos/internal/scanner/service"
	"github.com/smallbiznis/martpos/internal/scanner/store"
	"github.com/smallbiznis/martpos/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testOrigin   = "http://example.com"
	testPassword = "correct-password"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine  *gin.Engine
	auth    authdomain.Service
	catalog catalogdomain.Service
	clock   *clock.FakeClock
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type   string            `json:"type"`
		Errors []ValidationError `json:"errors"`
	} `json:"error"`
}

type harnessOption func(*config.Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Scanner: config.ScannerConfig{MobileBaseURL: "https://pos.example.com/m"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(migration.Models()...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()

	enforcer, err := authorization.NewEnforcer(nil)
	require.NoError(t, err)
	gate := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, Clock: clk})

	catalog := catalogservice.New(catalogservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Repo:  catalogrepository.Provide(),
		Clock: clk,
	})

	scanner := scannerservice.New(scannerservice.Params{
		Log:      log,
		Config:   cfg,
		Gate:     gate,
		Store:    store.NewMemoryStore(store.Options{TokenTTL: 15 * time.Minute, MaxQueue: 20}, clk),
		Products: catalog,
	})

	users, sessions := authrepository.New(conn)
	auth := authservice.New(authservice.Params{
		Log:         log,
		Repo:        users,
		SessionRepo: sessions,
		GenID:       node,
		Clock:       clk,
		Listeners:   []authdomain.SessionListener{scanner},
	})

	billing := billingservice.New(billingservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Repo:     billingrepository.Provide(),
		Catalog:  catalog,
		Clock:    clk,
		PDF:      pdf.New(),
		Settings: config.NewStaticStoreSettingsHolder(config.DefaultStoreSettings()),
		Users:    users,
	})

	var limiter *ratelimit.MobileLimiter
	if cfg.RateLimit.Enabled {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		limiter, err = ratelimit.NewMobileLimiter(cfg, client, log)
		require.NoError(t, err)
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           log,
		Authsvc:       auth,
		Sessions:      session.NewManager(cfg),
		AuthzSvc:      gate,
		Scanner:       scanner,
		Catalog:       catalog,
		Billing:       billing,
		MobileLimiter: limiter,
	})

	return &harness{engine: engine, auth: auth, catalog: catalog, clock: clk}
}

func withMobileRateLimit(rate float64, burst int) harnessOption {
	return func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, MobileRate: rate, MobileBurst: burst}
	}
}

type request struct {
	method  string
	path    string
	body    any
	cookies []*http.Cookie
	headers map[string]string
}

func (h *harness) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

// browser sends a same-origin request carrying the session cookies.
func (h *harness) browser(t *testing.T, cookies []*http.Cookie, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, request{
		method:  method,
		path:    path,
		body:    body,
		cookies: cookies,
		headers: map[string]string{"Origin": testOrigin},
	})
}

func (h *harness) user(t *testing.T, email string, role authdomain.Role) {
	t.Helper()
	_, err := h.auth.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    email,
		Password: testPassword,
		Role:     role.String(),
	})
	require.NoError(t, err)
}

func (h *harness) login(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	rec := h.do(t, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   LoginRequest{Email: email, Password: testPassword},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func (h *harness) product(t *testing.T, name, barcode string, price, stock int64) *catalogdomain.Response {
	t.Helper()
	req := catalogdomain.CreateRequest{Name: name, Price: price, Stock: stock}
	if barcode != "" {
		req.Barcode = &barcode
	}
	resp, err := h.catalog.Create(context.Background(), req)
	require.NoError(t, err)
	return resp
}

// bindMobile exchanges an activation token for a mobile session token.
func (h *harness) bindMobile(t *testing.T, token string) string {
	t.Helper()
	rec := h.do(t, request{method: http.MethodPost, path: "/scanner/activate-mobile", body: map[string]string{"token": token}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mobile, _ := decodeData[map[string]any](t, rec)["mobile_session_token"].(string)
	require.NotEmpty(t, mobile)
	return mobile
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := decode(t, rec)
	require.True(t, env.Success, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestAnonymousCallerGetsUnauthenticatedNeverForbidden(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/scanner/activate-pos"},
		{http.MethodPost, "/scanner/deactivate-pos"},
		{http.MethodGet, "/scanner/check-pos-activation"},
		{http.MethodGet, "/scanner/items"},
		{http.MethodGet, "/api/products"},
		{http.MethodPost, "/api/products"},
		{http.MethodPost, "/api/bills"},
		{http.MethodGet, "/api/sales"},
		{http.MethodPost, "/api/users"},
		{http.MethodGet, "/auth/me"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := h.do(t, request{method: tc.method, path: tc.path})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, "unauthenticated", env.Error.Type)
		})
	}

	rec := h.do(t, request{
		method:  http.MethodGet,
		path:    "/api/sales",
		cookies: []*http.Cookie{{Name: session.DefaultCookieName, Value: "forged"}},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffCanActivateScannerButNotViewSales(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	h.user(t, "owner@example.com", authdomain.RoleAdmin)
	staff := h.login(t, "cashier@example.com")
	admin := h.login(t, "owner@example.com")

	rec := h.browser(t, staff, http.MethodPost, "/scanner/activate-pos", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.browser(t, staff, http.MethodGet, "/api/sales", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode(t, rec).Error.Type)

	rec = h.browser(t, staff, http.MethodPost, "/api/products", map[string]any{"name": "Milk", "price": 100})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.browser(t, admin, http.MethodGet, "/api/sales", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.browser(t, admin, http.MethodPost, "/scanner/activate-pos", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScannerHandoff(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	staff := h.login(t, "cashier@example.com")
	h.product(t, "Whole Milk 1L", "8991234567890", 1850, 10)

	rec := h.browser(t, staff, http.MethodPost, "/scanner/activate-pos", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	activation := decodeData[map[string]any](t, rec)
	token, _ := activation["token"].(string)
	require.NotEmpty(t, token)
	assert.Contains(t, activation["link"], "https://pos.example.com/m?token=")

	rec = h.do(t, request{method: http.MethodPost, path: "/scanner/activate-mobile", body: map[string]string{"token": token}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mobile, _ := decodeData[map[string]any](t, rec)["mobile_session_token"].(string)
	require.NotEmpty(t, mobile)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": token, "barcode": "8991234567890"},
	})
	assert.Equal(t, http.StatusGone, rec.Code, "activation token cannot submit")

	for _, code := range []string{"8991234567890", "0000000000000"} {
		rec = h.do(t, request{
			method: http.MethodPost,
			path:   "/scanner/submit-scan",
			body:   map[string]string{"token": mobile, "barcode": code},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = h.browser(t, staff, http.MethodGet, "/scanner/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeData[[]map[string]any](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "8991234567890", items[0]["barcode"])
	assert.Equal(t, "Whole Milk 1L", items[0]["product_name"])
	assert.Equal(t, "0000000000000", items[1]["barcode"])
	assert.Nil(t, items[1]["product_id"])

	rec = h.browser(t, staff, http.MethodGet, "/scanner/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]map[string]any](t, rec))
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	rec = h.browser(t, staff, http.MethodPost, "/scanner/deactivate-pos", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": mobile, "barcode": "8991234567890"},
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "invalid_or_expired_token", decode(t, rec).Error.Type)

	rec = h.browser(t, staff, http.MethodGet, "/scanner/check-pos-activation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"active": false}, decodeData[map[string]any](t, rec))
}

func TestMobileTokenFromQueryString(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	staff := h.login(t, "cashier@example.com")

	rec := h.browser(t, staff, http.MethodPost, "/scanner/activate-pos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	activation := decodeData[map[string]any](t, rec)
	link, _ := activation["link"].(string)
	_, query, ok := strings.Cut(link, "?")
	require.True(t, ok)

	rec = h.do(t, request{method: http.MethodPost, path: "/scanner/activate-mobile?" + query})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitScanRejections(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	staff := h.login(t, "cashier@example.com")

	rec := h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": "never-issued", "barcode": "123"},
	})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = h.do(t, request{method: http.MethodPost, path: "/scanner/activate-mobile", body: map[string]string{"token": "never-issued"}})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = h.do(t, request{method: http.MethodPost, path: "/scanner/submit-scan", body: map[string]string{"barcode": "123"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": "never-issued", "barcode": strings.Repeat("9", 65)},
	})
	assert.Equal(t, http.StatusGone, rec.Code, "token is checked before the barcode")

	rec = h.browser(t, staff, http.MethodPost, "/scanner/activate-pos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeData[map[string]any](t, rec)["token"].(string)
	mobile := h.bindMobile(t, token)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": mobile, "barcode": strings.Repeat("9", 65)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "validation_error", env.Error.Type)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "invalid_barcode", env.Error.Errors[0].Code)

	h.clock.Advance(16 * time.Minute)
	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": mobile, "barcode": "123"},
	})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestReplacedPhoneCannotSubmit(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	staff := h.login(t, "cashier@example.com")

	rec := h.browser(t, staff, http.MethodPost, "/scanner/activate-pos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeData[map[string]any](t, rec)["token"].(string)

	phoneA := h.bindMobile(t, token)
	phoneB := h.bindMobile(t, token)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": phoneA, "barcode": "123"},
	})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": phoneB, "barcode": "123"},
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, request{method: http.MethodGet, path: "/api/nothing-here"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Error.Type)
}

func TestLogoutReleasesScanner(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	staff := h.login(t, "cashier@example.com")

	rec := h.browser(t, staff, http.MethodPost, "/scanner/activate-pos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeData[map[string]any](t, rec)["token"].(string)
	mobile := h.bindMobile(t, token)

	rec = h.browser(t, staff, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, request{
		method: http.MethodPost,
		path:   "/scanner/submit-scan",
		body:   map[string]string{"token": mobile, "barcode": "123"},
	})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = h.browser(t, staff, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeReturnsSessionRole(t *testing.T) {
	h := newHarness(t)
	h.user(t, "owner@example.com", authdomain.RoleAdmin)
	admin := h.login(t, "owner@example.com")

	rec := h.browser(t, admin, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[meResponse](t, rec)
	assert.Equal(t, "owner@example.com", me.Email)
	assert.Equal(t, "admin", me.Role)
	assert.NotEmpty(t, me.SessionID)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)

	rec := h.do(t, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   LoginRequest{Email: "cashier@example.com", Password: "wrong-password"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestCSRFProtection(t *testing.T) {
	h := newHarness(t)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	staff := h.login(t, "cashier@example.com")
	csrf := cookieValue(staff, session.CSRFCookieName)
	require.NotEmpty(t, csrf)

	rec := h.do(t, request{method: http.MethodPost, path: "/scanner/activate-pos", cookies: staff})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "csrf_rejected", decode(t, rec).Error.Type)

	rec = h.do(t, request{
		method:  http.MethodPost,
		path:    "/scanner/activate-pos",
		cookies: staff,
		headers: map[string]string{"Origin": "https://evil.example.net"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, request{
		method:  http.MethodPost,
		path:    "/scanner/activate-pos",
		cookies: staff,
		headers: map[string]string{HeaderCSRFToken: "not-the-cookie"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, request{
		method:  http.MethodPost,
		path:    "/scanner/activate-pos",
		cookies: staff,
		headers: map[string]string{HeaderCSRFToken: csrf},
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, request{
		method:  http.MethodPost,
		path:    "/scanner/deactivate-pos",
		cookies: staff,
		headers: map[string]string{"Referer": testOrigin + "/pos"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, request{method: http.MethodGet, path: "/scanner/check-pos-activation", cookies: staff})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductRoutes(t *testing.T) {
	h := newHarness(t)
	h.user(t, "owner@example.com", authdomain.RoleAdmin)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	admin := h.login(t, "owner@example.com")
	staff := h.login(t, "cashier@example.com")

	rec := h.browser(t, admin, http.MethodPost, "/api/products", map[string]any{
		"name":    "Jasmine Rice 5kg",
		"barcode": "8990001112223",
		"price":   72500,
		"stock":   12,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[catalogdomain.Response](t, rec)
	assert.Equal(t, "jasmine-rice-5kg", created.Code)

	rec = h.browser(t, admin, http.MethodPost, "/api/products", map[string]any{
		"name":    "Other Rice",
		"barcode": "8990001112223",
		"price":   100,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.browser(t, admin, http.MethodPost, "/api/products", map[string]any{"name": "Bad", "price": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.browser(t, staff, http.MethodGet, "/api/products/barcode/8990001112223", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, created.ID, decodeData[catalogdomain.Response](t, rec).ID)

	rec = h.browser(t, staff, http.MethodGet, "/api/products/barcode/404404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.browser(t, admin, http.MethodPatch, "/api/products/"+created.ID, map[string]any{"price": 70000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(70000), decodeData[catalogdomain.Response](t, rec).Price)

	rec = h.browser(t, admin, http.MethodPost, "/api/products/"+created.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeData[catalogdomain.Response](t, rec).Active)

	rec = h.browser(t, staff, http.MethodGet, "/api/products?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[catalogdomain.ListResponse](t, rec).Items)

	rec = h.browser(t, staff, http.MethodGet, "/api/products?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.browser(t, staff, http.MethodGet, "/api/products/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBillRoutes(t *testing.T) {
	h := newHarness(t)
	h.user(t, "owner@example.com", authdomain.RoleAdmin)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	admin := h.login(t, "owner@example.com")
	staff := h.login(t, "cashier@example.com")
	milk := h.product(t, "Milk", "", 1250, 3)

	rec := h.browser(t, staff, http.MethodPost, "/api/bills", map[string]any{
		"lines": []map[string]any{{"product_id": milk.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bill := decodeData[map[string]any](t, rec)
	billID, _ := bill["id"].(string)
	assert.EqualValues(t, 2500, bill["total"])
	assert.Equal(t, "B-20260301-0001", bill["number"])

	rec = h.browser(t, staff, http.MethodPost, "/api/bills", map[string]any{
		"lines": []map[string]any{{"product_id": milk.ID, "quantity": 2}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_stock", decode(t, rec).Error.Type)

	rec = h.browser(t, staff, http.MethodPost, "/api/bills", map[string]any{"lines": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "empty_bill", env.Error.Errors[0].Code)

	rec = h.browser(t, staff, http.MethodGet, "/api/bills/"+billID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.browser(t, staff, http.MethodGet, "/api/bills/"+billID+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = h.browser(t, staff, http.MethodGet, "/api/bills", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.browser(t, admin, http.MethodGet, "/api/bills?from=2026-03-01&to=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeData[map[string]any](t, rec)
	assert.Len(t, list["items"], 1)

	rec = h.browser(t, admin, http.MethodGet, "/api/sales?from=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeData[map[string]any](t, rec)
	assert.EqualValues(t, 1, summary["bill_count"])
	assert.EqualValues(t, 2500, summary["revenue"])

	rec = h.browser(t, admin, http.MethodGet, "/api/sales?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserRoutes(t *testing.T) {
	h := newHarness(t)
	h.user(t, "owner@example.com", authdomain.RoleAdmin)
	h.user(t, "cashier@example.com", authdomain.RoleStaff)
	admin := h.login(t, "owner@example.com")
	staff := h.login(t, "cashier@example.com")

	body := map[string]string{"email": "new@example.com", "password": testPassword, "role": "staff"}
	rec := h.browser(t, staff, http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.browser(t, admin, http.MethodPost, "/api/users", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[userResponse](t, rec)
	assert.Equal(t, "staff", created.Role)
	assert.True(t, created.Active)

	rec = h.browser(t, admin, http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.browser(t, admin, http.MethodPost, "/api/users", map[string]string{"email": "x@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	newcomer := h.login(t, "new@example.com")
	rec = h.browser(t, admin, http.MethodPost, "/api/users/"+created.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeData[userResponse](t, rec).Active)

	rec = h.browser(t, newcomer, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.browser(t, admin, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]userResponse](t, rec), 3)
}

func TestMobileRateLimit(t *testing.T) {
	h := newHarness(t, withMobileRateLimit(0.01, 2))

	for i := 0; i < 2; i++ {
		rec := h.do(t, request{method: http.MethodPost, path: "/scanner/activate-mobile", body: map[string]string{"token": "t"}})
		assert.Equal(t, http.StatusGone, rec.Code)
	}

	rec := h.do(t, request{method: http.MethodPost, path: "/scanner/activate-mobile", body: map[string]string{"token": "t"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec).Error.Type)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
