package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/seace/internal/audit"
	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/core"
	"github.com/JonMunkholm/seace/internal/schema"
	"github.com/JonMunkholm/seace/internal/spreadsheet"
)

// seace-v1 headers, as exported by SEACE.
var v1Headers = []interface{}{
	"Nombre o Sigla de la Entidad",
	"Fecha y Hora de Publicacion",
	"Nomenclatura",
	"Objeto de Contratación",
	"Descripción de Objeto",
	"VR / VE / Cuantía de la contratación",
	"Moneda",
}

var v1Rows = [][]interface{}{
	{"MUNI LIMA", "15/03/2024 10:30", "AS-001", "Bien", "Compra de laptops", 1500.5, "PEN"},
	{"MUNI CUSCO", "20/03/2024 09:00", "AS-002", "Servicio", "Limpieza", 800, "PEN"},
	{"MUNI LIMA", "01/04/2024 12:00", "AS-003", "Bien", "Mobiliario", 2300, "USD"},
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []core.Message
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, msg core.Message) (core.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return core.Receipt{}, f.err
	}
	return core.Receipt{To: msg.To}, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeArchiver struct {
	keys []string
}

func (f *fakeArchiver) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.keys = append(f.keys, key)
	return "https://archive.example.pe/" + key + "?X-Amz-Signature=abc", nil
}

type fakeExportLog struct {
	events []audit.Event
	err    error
}

func (f *fakeExportLog) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	return f.events, f.err
}

type testEnv struct {
	server    *Server
	transport *fakeTransport
	archiver  *fakeArchiver
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload:  config.UploadConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second, PreviewRows: 2},
		Session: config.SessionConfig{CookieName: "seace_session", IdleTTL: time.Hour},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config, withArchive bool, exports ExportLog) *testEnv {
	t.Helper()
	rules, err := schema.Default()
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{transport: &fakeTransport{}}
	deps := core.Deps{
		Rules:       rules,
		Parser:      &spreadsheet.Reader{},
		Encoder:     spreadsheet.Writer{},
		Transport:   env.transport,
		Limiter:     core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		MaxFileSize: cfg.Upload.MaxFileSize,
	}
	if withArchive {
		env.archiver = &fakeArchiver{}
		deps.Archiver = env.archiver
	}
	svc, err := core.NewService(deps)
	if err != nil {
		t.Fatal(err)
	}

	env.server = NewServer(cfg, svc, core.NewSessionStore(time.Hour), exports)
	t.Cleanup(func() { env.server.Shutdown(context.Background()) })
	return env
}

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func validWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, append([][]interface{}{v1Headers}, v1Rows...))
}

func uploadRequest(t *testing.T, path, fileName string, data []byte, profile string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if profile != "" {
		mw.WriteField("profile", profile)
	}
	if data != nil {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, form url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "seace_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

// upload validates the sample workbook and returns the session cookie.
func (e *testEnv) upload(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(uploadRequest(t, "/upload", "procesos.xlsx", validWorkbook(t), "seace-v1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return sessionCookie(t, rec)
}

func (e *testEnv) sessionFor(t *testing.T, c *http.Cookie) *core.Session {
	t.Helper()
	sess, ok := e.server.sessions.Get(c.Value)
	if !ok {
		t.Fatal("session not found")
	}
	return sess
}

func TestIndex_RendersUploadForm(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="/upload"`, `value="seace-v4" selected`, "seace-v1"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	sessionCookie(t, rec)

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestUpload_Valid(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)

	rec := env.do(uploadRequest(t, "/upload", "procesos.xlsx", validWorkbook(t), "seace-v1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Archivo validado: 3 filas, 7 columnas renombradas.",
		"3 de 3 filas coinciden",
		"Se muestran las primeras 2.",
		"MUNI CUSCO",
		`name="token"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	ds := env.sessionFor(t, sessionCookie(t, rec)).Dataset()
	if ds == nil || ds.Table.Len() != 3 || ds.Dates.Parsed != 3 {
		t.Fatalf("dataset = %+v", ds)
	}
}

func TestUpload_Rejected(t *testing.T) {
	noMoneda := make([][]interface{}, 0, len(v1Rows)+1)
	noMoneda = append(noMoneda, v1Headers[:6])
	for _, r := range v1Rows {
		noMoneda = append(noMoneda, r[:6])
	}

	tests := []struct {
		name       string
		fileName   string
		data       func(t *testing.T) []byte
		maxSize    int64
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "missing columns are listed",
			fileName:   "procesos.xlsx",
			data:       func(t *testing.T) []byte { return buildWorkbook(t, noMoneda) },
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   []string{"Faltan columnas requeridas: moneda", "VAL004"},
		},
		{
			name:       "no file",
			wantStatus: http.StatusBadRequest,
			wantBody:   []string{"FILE004"},
		},
		{
			name:       "unsupported extension",
			fileName:   "procesos.csv",
			data:       func(t *testing.T) []byte { return []byte("a,b\n1,2\n") },
			wantStatus: http.StatusUnsupportedMediaType,
			wantBody:   []string{"FILE003"},
		},
		{
			name:       "corrupt workbook",
			fileName:   "procesos.xlsx",
			data:       func(t *testing.T) []byte { return []byte("not a workbook") },
			wantStatus: http.StatusBadRequest,
			wantBody:   []string{"FILE002"},
		},
		{
			name:       "too large",
			fileName:   "procesos.xlsx",
			data:       validWorkbook,
			maxSize:    512,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   []string{"FILE001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.maxSize > 0 {
				cfg.Upload.MaxFileSize = tt.maxSize
			}
			env := newTestEnv(t, cfg, false, nil)

			var data []byte
			if tt.data != nil {
				data = tt.data(t)
			}
			rec := env.do(uploadRequest(t, "/upload", tt.fileName, data, "seace-v1"))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(rec.Body.String(), want) {
					t.Errorf("body missing %q", want)
				}
			}
			if strings.Contains(rec.Body.String(), "4. Procesos") {
				t.Error("rejected upload must not render the table")
			}
		})
	}
}

func TestUpload_RejectionClearsPreviousDataset(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	cookie := env.upload(t)

	req := uploadRequest(t, "/upload", "roto.xlsx", []byte("garbage"), "seace-v1")
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.sessionFor(t, cookie).Dataset() != nil {
		t.Error("dataset should be cleared after a failed upload")
	}
}

func TestUpload_NonHaltingFailureKeepsDataset(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxConcurrent = 1
	cfg.Upload.MaxWaitTime = 10 * time.Millisecond
	env := newTestEnv(t, cfg, false, nil)
	cookie := env.upload(t)

	limiter := env.server.service.Limiter()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer limiter.Release()

	for _, path := range []string{"/upload", "/api/validate"} {
		req := uploadRequest(t, path, "otro.xlsx", validWorkbook(t), "seace-v1")
		req.AddCookie(cookie)
		if rec := env.do(req); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		if ds := env.sessionFor(t, cookie).Dataset(); ds == nil || ds.FileName != "procesos.xlsx" {
			t.Errorf("%s: previous dataset should survive a busy server", path)
		}
	}
}

// workbookWithExtra adds a column outside the seace-v1 required set.
func workbookWithExtra(t *testing.T) []byte {
	rows := [][]interface{}{append(append([]interface{}{}, v1Headers...), "Observaciones")}
	for _, r := range v1Rows {
		rows = append(rows, append(append([]interface{}{}, r...), "nota interna"))
	}
	return buildWorkbook(t, rows)
}

func TestIndex_RequiredColumns(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	rec := env.do(uploadRequest(t, "/upload", "procesos.xlsx", workbookWithExtra(t), "seace-v1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(t, rec)

	tests := []struct {
		name    string
		path    string
		want    []string
		notWant []string
	}{
		{
			name:    "all columns",
			path:    "/",
			want:    []string{"Columnas validadas:", "<li>moneda</li>", "<th>Observaciones</th>", "nota interna"},
			notWant: []string{`value="required" checked`},
		},
		{
			name:    "required only",
			path:    "/?view=required",
			want:    []string{"Columnas validadas:", "<th>moneda</th>", `value="required" checked`},
			notWant: []string{"<th>Observaciones</th>", "nota interna"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.AddCookie(cookie)
			body := env.do(req).Body.String()
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("page missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(body, w) {
					t.Errorf("page should not contain %q", w)
				}
			}
		})
	}
}

func TestIndex_FiltersFromQuery(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	cookie := env.upload(t)

	req := httptest.NewRequest(http.MethodGet, "/?object=Servicio", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	body := rec.Body.String()
	if !strings.Contains(body, "1 de 3 filas coinciden") {
		t.Errorf("filter not applied: %s", body)
	}
	if !strings.Contains(body, `<input type="hidden" name="object" value="Servicio">`) {
		t.Error("mail form should carry the selection")
	}
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	cookie := env.upload(t)

	req := httptest.NewRequest(http.MethodGet, "/download?entity=MUNI+LIMA&from=2024-04-30&to=2024-03-01", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != core.ExportContentType {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="procesos_validado.xlsx"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	var r spreadsheet.Reader
	tbl, err := r.Parse(core.ExportFileName, rec.Body.Bytes())
	if err != nil {
		t.Fatalf("parse download: %v", err)
	}
	if tbl.Len() != 2 {
		t.Errorf("rows = %d, want 2 (MUNI LIMA, reversed range swapped)", tbl.Len())
	}
	if !tbl.Has("nombre entidad") || !tbl.Has("fecha de publicacion") {
		t.Errorf("columns = %v, want canonical names", tbl.Columns)
	}
}

func TestDownload_NoDataset(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/download", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SES001") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMail_InvalidRecipientNeverReachesTransport(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	cookie := env.upload(t)
	token := env.sessionFor(t, cookie).Mail().Token()

	rec := env.do(formRequest("/mail", url.Values{"token": {token}, "to": {"not-an-email"}}, cookie))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MAIL001") {
		t.Error("expected MAIL001")
	}
	if !strings.Contains(rec.Body.String(), `value="not-an-email"`) {
		t.Error("the typed address should be kept in the form")
	}
	if env.transport.calls() != 0 {
		t.Errorf("transport called %d times", env.transport.calls())
	}
	if env.sessionFor(t, cookie).Mail().Token() != token {
		t.Error("an invalid recipient must not consume the token")
	}
}

func TestMail_SendsOnce(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	cookie := env.upload(t)
	token := env.sessionFor(t, cookie).Mail().Token()

	form := url.Values{
		"token":   {token},
		"to":      {"compras@muni.gob.pe"},
		"subject": {"Procesos de marzo"},
		"object":  {"Bien"},
	}
	rec := env.do(formRequest("/mail", form, cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Correo enviado a compras@muni.gob.pe con 2 filas.") {
		t.Errorf("missing notice: %s", rec.Body.String())
	}

	if env.transport.calls() != 1 {
		t.Fatalf("transport calls = %d", env.transport.calls())
	}
	msg := env.transport.sent[0]
	if msg.Subject != "Procesos de marzo" || msg.Attachment.Name != core.ExportFileName {
		t.Errorf("message = %+v", msg)
	}

	// The browser resubmits the same form.
	rec = env.do(formRequest("/mail", form, cookie))
	if rec.Code != http.StatusConflict {
		t.Errorf("resubmission status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MAIL004") {
		t.Error("expected MAIL004")
	}
	if env.transport.calls() != 1 {
		t.Errorf("resubmission reached the transport")
	}
}

func TestMail_TransportFailure(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	env.transport.err = errors.New("535 authentication failed")
	cookie := env.upload(t)
	token := env.sessionFor(t, cookie).Mail().Token()

	rec := env.do(formRequest("/mail", url.Values{"token": {token}, "to": {"a@b.pe"}}, cookie))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "535 authentication failed") {
		t.Error("the underlying error should be shown")
	}
	if env.sessionFor(t, cookie).Mail().Token() == token {
		t.Error("a failed send should issue a fresh token")
	}
}

func TestArchive(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), false, nil)
		cookie := env.upload(t)
		rec := env.do(formRequest("/archive", url.Values{}, cookie))
		if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "ARC002") {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("stores and links", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), true, nil)
		cookie := env.upload(t)
		rec := env.do(formRequest("/archive", url.Values{"entity": {"MUNI CUSCO"}}, cookie))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if len(env.archiver.keys) != 1 || !strings.HasSuffix(env.archiver.keys[0], core.ExportFileName) {
			t.Fatalf("keys = %v", env.archiver.keys)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "Archivo guardado con 1 filas.") || !strings.Contains(body, "X-Amz-Signature=abc") {
			t.Errorf("body = %s", body)
		}
	})
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	cookie := env.upload(t)

	rec := env.do(formRequest("/reset", url.Values{}, cookie))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.sessionFor(t, cookie).Dataset() != nil {
		t.Error("dataset should be dropped")
	}
}

func TestAPI_Profiles(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var profiles []ProfileJSON
	if err := json.NewDecoder(rec.Body).Decode(&profiles); err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 4 {
		t.Fatalf("profiles = %d, want 4", len(profiles))
	}
	for _, p := range profiles {
		if p.Default != (p.Name == "seace-v4") {
			t.Errorf("%s default = %v", p.Name, p.Default)
		}
		if p.Name == "seace-v2" && p.Recipient != "fixed" {
			t.Errorf("seace-v2 recipient = %q", p.Recipient)
		}
	}
}

func TestAPI_ValidateThenTable(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)

	rec := env.do(uploadRequest(t, "/api/validate", "procesos.xlsx", validWorkbook(t), "seace-v1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var v ValidationResponse
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Rows != 3 || v.Profile != "seace-v1" || len(v.Renames) != 7 || v.Dates.Parsed != 3 {
		t.Errorf("response = %+v", v)
	}
	if strings.Join(v.Options.Entities, "|") != "MUNI CUSCO|MUNI LIMA" {
		t.Errorf("entities = %v", v.Options.Entities)
	}
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/session/table?object=Bien&limit=1", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("table status = %d", rec.Code)
	}
	var tbl TableResponse
	if err := json.NewDecoder(rec.Body).Decode(&tbl); err != nil {
		t.Fatal(err)
	}
	if tbl.Total != 3 || tbl.Matched != 2 || len(tbl.Rows) != 1 {
		t.Errorf("table = %+v", tbl)
	}
}

func TestAPI_RequiredView(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)

	rec := env.do(uploadRequest(t, "/api/validate", "procesos.xlsx", workbookWithExtra(t), "seace-v1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var v ValidationResponse
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	rules, _ := schema.Default()
	p, _ := rules.Get("seace-v1")
	if strings.Join(v.Required, "|") != strings.Join(p.Required, "|") {
		t.Errorf("required = %v, want %v", v.Required, p.Required)
	}
	if len(v.Columns) != len(p.Required)+1 {
		t.Errorf("columns = %v", v.Columns)
	}
	cookie := sessionCookie(t, rec)

	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: len(p.Required) + 1},
		{query: "?view=required", want: len(p.Required)},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/session/table"+tt.query, nil)
		req.AddCookie(cookie)
		var tbl TableResponse
		if err := json.NewDecoder(env.do(req).Body).Decode(&tbl); err != nil {
			t.Fatal(err)
		}
		if len(tbl.Columns) != tt.want || len(tbl.Rows[0]) != tt.want {
			t.Errorf("%q columns = %v", tt.query, tbl.Columns)
		}
	}
}

func TestAPI_ValidateMissingColumns(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	headers := append([]interface{}{}, v1Headers...)
	headers[0] = "Entidad"

	rec := env.do(uploadRequest(t, "/api/validate", "procesos.xlsx", buildWorkbook(t, [][]interface{}{headers, v1Rows[0]}), "seace-v1"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "VAL004" || len(resp.Missing) != 1 || resp.Missing[0] != "nombre entidad" {
		t.Errorf("response = %+v", resp)
	}
}

func TestAPI_SessionTableWithoutSession(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/session/table", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestAPI_KeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"clave-1"}}
	env := newTestEnv(t, cfg, false, nil)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "X-API-Key", "otra", http.StatusForbidden},
		{"header", "X-API-Key", "clave-1", http.StatusOK},
		{"bearer", "Authorization", "Bearer clave-1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if rec := env.do(req); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	// Pages stay open.
	if rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Errorf("page status = %d", rec.Code)
	}
}

func TestAPI_Exports(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), false, nil)
		if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/exports", nil)); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("lists events", func(t *testing.T) {
		log := &fakeExportLog{events: []audit.Event{{
			ID:        uuid.New(),
			SessionID: "s1",
			Sink:      core.SinkDownload,
			FileName:  "procesos.xlsx",
			Profile:   "seace-v4",
			Rows:      3,
			CreatedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		}}}
		env := newTestEnv(t, testConfig(), false, log)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/exports?limit=10", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out []ExportJSON
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if len(out) != 1 || out[0].Sink != "download" || out[0].CreatedAt != "2024-05-06T07:08:09Z" {
			t.Errorf("out = %+v", out)
		}
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), true, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["archive"] != true || body["uploads_max"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, testConfig(), false, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ".alert-error") {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     2,
		window:   time.Minute,
		now:      func() time.Time { return now },
		done:     make(chan struct{}),
	}

	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("10.0.0.1") {
		t.Error("third request in the window should be limited")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("other clients are counted separately")
	}

	now = now.Add(61 * time.Second)
	if !rl.allow("10.0.0.1") {
		t.Error("a new window resets the count")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	env := newTestEnv(t, cfg, false, nil)

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Error("missing Retry-After")
	}
}
