package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/models"
	"github.com/devsoc/devsoc-backend/internal/server/ratelimit"
	"github.com/devsoc/devsoc-backend/internal/server/services"
	"github.com/devsoc/devsoc-backend/internal/server/validation"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

var pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// ---- fakes ----

type fakeRegistrar struct {
	got  *services.RegisterInput
	body []byte
	err  error
}

func (f *fakeRegistrar) Register(_ context.Context, in services.RegisterInput) (*services.RegisterResult, error) {
	f.got = &in
	f.body, _ = io.ReadAll(in.Proof.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &services.RegisterResult{Success: true, Message: "Registration successful! Your payment is pending verification."}, nil
}

type fakeReader struct {
	check      *services.EmailCheck
	regs       []*models.Registration
	reg        *models.Registration
	pending    []*models.PaymentWithUser
	statusArgs []string
	err        error
}

func (f *fakeReader) CheckEmailRegistration(context.Context, string, string) (*services.EmailCheck, error) {
	return f.check, f.err
}
func (f *fakeReader) GetEventRegistrations(context.Context, string) ([]*models.Registration, error) {
	return f.regs, f.err
}
func (f *fakeReader) GetUserRegistration(context.Context, string, string) (*models.Registration, error) {
	return f.reg, f.err
}
func (f *fakeReader) GetPendingPayments(context.Context) ([]*models.PaymentWithUser, error) {
	return f.pending, f.err
}
func (f *fakeReader) UpdatePaymentStatus(_ context.Context, id string, status models.PaymentStatus, by string) (string, error) {
	f.statusArgs = []string{id, string(status), by}
	if f.err != nil {
		return "", f.err
	}
	return "Payment " + string(status) + " successfully", nil
}

type fakeSettings struct {
	view       *services.SettingView
	list       []*services.SettingView
	upsertArgs []string
	err        error
}

func (f *fakeSettings) Get(context.Context, string) (*services.SettingView, error) {
	return f.view, f.err
}
func (f *fakeSettings) List(context.Context) ([]*services.SettingView, error) { return f.list, f.err }
func (f *fakeSettings) Upsert(_ context.Context, key, value, description, by string) (string, error) {
	f.upsertArgs = []string{key, value, description, by}
	return "Setting '" + key + "' created successfully", f.err
}
func (f *fakeSettings) Delete(_ context.Context, key string) (string, error) {
	return "Setting '" + key + "' deleted successfully", f.err
}
func (f *fakeSettings) PaymentSettings(context.Context, string) (any, error) {
	return map[string]any{"upiId": "devsoc@upi"}, f.err
}
func (f *fakeSettings) CommunityLinks(context.Context) (any, error) {
	return services.CommunityLinks{"whatsapp": nil, "discord": nil}, f.err
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

type testEnv struct {
	router   *gin.Engine
	reg      *fakeRegistrar
	reader   *fakeReader
	settings *fakeSettings
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(100, time.Hour)
	}
	env := &testEnv{reg: &fakeRegistrar{}, reader: &fakeReader{}, settings: &fakeSettings{}}
	srv := NewHTTPServer(Options{
		Address:       "127.0.0.1:0",
		AdminSecret:   testSecret,
		CORSOrigins:   []string{"http://localhost:3000"},
		Registrar:     env.reg,
		Registrations: env.reader,
		Settings:      env.settings,
		Limiter:       limiter,
		Validator:     validation.New(),
		Logger:        logging.NewNopLogger(),
	})
	env.router = srv.engine
	return env
}

func (e *testEnv) logger() logging.Logger { return logging.NewNopLogger() }

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func registrationFields() map[string]string {
	return map[string]string{
		"name":          "Ann Lee",
		"roll":          "cs-21/04",
		"phone":         "9876543210",
		"email":         "Ann@Example.com",
		"department":    "CSE",
		"year":          "3",
		"questions":     "N/A",
		"eventSlug":     "hack-2024",
		"eventTitle":    "Hack 2024",
		"transactionId": "txn12345",
		"amount":        "199",
	}
}

func multipartRequest(t *testing.T, fields map[string]string, fileName, fileType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		h.Set("Content-Type", fileType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/register-event", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func adminRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// ---- register ----

func TestRegisterEvent_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	content := append(append([]byte{}, pngHead...), []byte("rest-of-image")...)

	w := env.do(multipartRequest(t, registrationFields(), "my proof (1).png", "image/png", content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])

	got := env.reg.got
	require.NotNil(t, got)
	assert.Equal(t, "ann@example.com", got.Email)
	assert.Equal(t, "CS-21/04", got.Roll)
	assert.Equal(t, "TXN12345", got.TransactionID)
	assert.True(t, decimal.NewFromInt(199).Equal(got.Amount), got.Amount.String())
	assert.Equal(t, "my_proof__1_.png", got.Proof.FileName)
	assert.Equal(t, "image/png", got.Proof.ContentType)
	assert.Equal(t, int64(len(content)), got.Proof.Size)
	assert.Equal(t, content, env.reg.body, "body is rewound after sniffing")
}

func TestRegisterEvent_NoFile(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(multipartRequest(t, registrationFields(), "", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file provided", decode(t, w)["error"])
	assert.Nil(t, env.reg.got)
}

func TestRegisterEvent_ValidationError(t *testing.T) {
	env := newTestEnv(t, nil)
	fields := registrationFields()
	fields["eventSlug"] = "Bad Slug"

	w := env.do(multipartRequest(t, fields, "p.png", "image/png", pngHead))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid event slug format", decode(t, w)["error"])
	assert.Nil(t, env.reg.got)
}

func TestRegisterEvent_RejectsSpoofedImage(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(multipartRequest(t, registrationFields(), "p.png", "image/png", []byte("%PDF-1.7 not an image")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, env.reg.got)
}

func TestRegisterEvent_OversizedProofRejectedBeforeRegistering(t *testing.T) {
	const sizeMsg = "File size must be less than 5MB. Please compress your image and try again."

	oversized := func(n int) []byte {
		b := make([]byte, n)
		copy(b, pngHead)
		return b
	}

	t.Run("over the proof limit", func(t *testing.T) {
		env := newTestEnv(t, nil)

		w := env.do(multipartRequest(t, registrationFields(), "p.png", "image/png", oversized(6_000_000)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, sizeMsg, decode(t, w)["error"])
		assert.Nil(t, env.reg.got)
	})

	t.Run("over the request body cap", func(t *testing.T) {
		env := newTestEnv(t, nil)

		w := env.do(multipartRequest(t, registrationFields(), "p.png", "image/png", oversized(6<<20)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, decode(t, w)["error"])
		assert.Nil(t, env.reg.got)
	})
}

func TestRegisterEvent_RateLimited(t *testing.T) {
	env := newTestEnv(t, denyAll{})

	w := env.do(multipartRequest(t, registrationFields(), "p.png", "image/png", pngHead))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many registration attempts. Please try again later.", decode(t, w)["error"])
}

func TestRegisterEvent_LimitPerClientIP(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewMemoryLimiter(1, time.Hour))

	send := func(ip string) int {
		req := multipartRequest(t, registrationFields(), "p.png", "image/png", pngHead)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		return env.do(req).Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("203.0.113.8"))
}

func TestRegisterEvent_ErrorMapping(t *testing.T) {
	dup := common.NewUserError(common.ErrDuplicateRegistration,
		"You have already registered for this event with the email ann@example.com. Each email can only register once per event.")

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"duplicate registration", dup, http.StatusInternalServerError, "You have already registered for this event with the email ann@example.com. Each email can only register once per event."},
		{"asset host", errors.Join(common.ErrAssetHost, errors.New("boom")), http.StatusInternalServerError, msgAssetHost},
		{"configuration", common.ErrConfiguration, http.StatusInternalServerError, msgUnavailable},
		{"rate limited downstream", common.ErrRateLimited, http.StatusTooManyRequests, msgTooManyRetries},
		{"other", errors.New("db exploded"), http.StatusInternalServerError, msgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.reg.err = tt.err

			w := env.do(multipartRequest(t, registrationFields(), "p.png", "image/png", pngHead))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.msg, decode(t, w)["error"])
		})
	}
}

// ---- public reads ----

func TestCheckRegistration(t *testing.T) {
	env := newTestEnv(t, nil)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	env.reader.check = &services.EmailCheck{IsRegistered: true, RegistrationDate: &at}

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/registrations/check?email=a@b.co&eventSlug=hack-2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["isRegistered"])
	assert.Equal(t, "2024-03-01T10:00:00Z", body["registrationDate"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/registrations/check?email=a@b.co", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/settings/payment?eventSlug=hack-2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"upiId": "devsoc@upi"}, decode(t, w)["data"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/settings/community-links", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"whatsapp": nil, "discord": nil}, decode(t, w)["data"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---- admin ----

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil)
	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized. Invalid or missing admin secret.", decode(t, w)["error"])

	req = httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil)
	req.Header.Set(common.AdminSecretHeaderName, testSecret)
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	assert.Equal(t, http.StatusOK, env.do(adminRequest(http.MethodGet, "/api/admin/settings", nil)).Code)
}

func TestAdminAuth_NoSecretConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", adminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminSettings_Get(t *testing.T) {
	env := newTestEnv(t, nil)
	env.settings.view = &services.SettingView{Key: "payment_default", Value: map[string]any{"upiId": "x"}}

	w := env.do(adminRequest(http.MethodGet, "/api/admin/settings?key=payment_default", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "payment_default", data["key"])

	env.settings.err = common.NewUserError(common.ErrSettingNotFound, "Setting 'nope' not found")
	w = env.do(adminRequest(http.MethodGet, "/api/admin/settings?key=nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Setting 'nope' not found", decode(t, w)["error"])
}

func TestAdminSettings_Upsert(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(adminRequest(http.MethodPost, "/api/admin/settings",
		strings.NewReader(`{"key":"community_links","value":{"discord":"https://d.gg/x"},"description":"links"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"community_links", `{"discord":"https://d.gg/x"}`, "links", "admin"}, env.settings.upsertArgs)

	w = env.do(adminRequest(http.MethodPost, "/api/admin/settings", strings.NewReader(`{"key":"note","value":"plain"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plain", env.settings.upsertArgs[1])

	w = env.do(adminRequest(http.MethodPost, "/api/admin/settings", strings.NewReader(`{"value":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Setting key is required", decode(t, w)["error"])

	w = env.do(adminRequest(http.MethodPost, "/api/admin/settings", strings.NewReader(`{"key":"k"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Setting value is required", decode(t, w)["error"])
}

func TestAdminSettings_Delete(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(adminRequest(http.MethodDelete, "/api/admin/settings", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(adminRequest(http.MethodDelete, "/api/admin/settings?key=k", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Setting 'k' deleted successfully", decode(t, w)["message"])
}

func TestAdminRegistrations(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reader.regs = []*models.Registration{{User: models.User{ID: "u1", Email: "a@b.co"}}}

	w := env.do(adminRequest(http.MethodGet, "/api/admin/registrations?eventSlug=hack-2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = env.do(adminRequest(http.MethodGet, "/api/admin/registrations/lookup?email=a@b.co&eventSlug=hack-2024", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.reader.reg = env.reader.regs[0]
	w = env.do(adminRequest(http.MethodGet, "/api/admin/registrations/lookup?email=a@b.co&eventSlug=hack-2024", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminPayments(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reader.pending = []*models.PaymentWithUser{{Payment: models.Payment{ID: "p1", Status: models.PaymentPending}}}

	w := env.do(adminRequest(http.MethodGet, "/api/admin/payments/pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	const id = "8d1f2a9e-3c4b-4e5f-9a6b-7c8d9e0f1a2b"
	w = env.do(adminRequest(http.MethodPost, "/api/admin/payments/"+id+"/status", strings.NewReader(`{"status":"verified"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Payment verified successfully", decode(t, w)["message"])
	assert.Equal(t, []string{id, "verified", "admin"}, env.reader.statusArgs)

	w = env.do(adminRequest(http.MethodPost, "/api/admin/payments/not-a-uuid/status", strings.NewReader(`{"status":"verified"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid payment ID", decode(t, w)["error"])

	env.reader.err = common.NewUserError(common.ErrPaymentNotFound, "Payment not found")
	w = env.do(adminRequest(http.MethodPost, "/api/admin/payments/"+id+"/status", strings.NewReader(`{"status":"rejected","verifiedBy":"ops"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Payment not found", decode(t, w)["error"])

	env.reader.err = common.NewUserError(common.ErrValidation, "Invalid payment status 'maybe'")
	w = env.do(adminRequest(http.MethodPost, "/api/admin/payments/"+id+"/status", strings.NewReader(`{"status":"maybe"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminInternalErrorHidesDetails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reader.err = errors.New("pq: connection refused")

	w := env.do(adminRequest(http.MethodGet, "/api/admin/payments/pending", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to retrieve pending payments", decode(t, w)["error"])
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/register-event", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := env.do(req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	cfg := corsConfig(nil)
	assert.True(t, cfg.AllowAllOrigins)
	assert.False(t, cfg.AllowCredentials)
}
