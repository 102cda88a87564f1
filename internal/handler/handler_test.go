package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datapilot-go/internal/model"
	"datapilot-go/internal/pipeline"
	"datapilot-go/internal/retrieval"
	"datapilot-go/internal/service"
	"datapilot-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIngestion struct {
	result *model.PipelineResult
	err    error
	got    string
}

func (s *stubIngestion) Ingest(_ context.Context, fileName string, content io.Reader, database string) (*model.PipelineResult, error) {
	b, _ := io.ReadAll(content)
	s.got = fmt.Sprintf("%s|%s|%s", fileName, database, b)
	return s.result, s.err
}

func (s *stubIngestion) Enqueue(context.Context, string, io.Reader, string) (string, error) {
	return "task-1", s.err
}

func (s *stubIngestion) EnqueueLocalFile(context.Context, string, string) (string, error) {
	return "task-1", nil
}

type stubQuery struct{}

func (stubQuery) Ask(_ context.Context, fileName, question string) (string, error) {
	if fileName != "iot.csv" {
		return "", fmt.Errorf("%w: %s", retrieval.ErrIndexNotFound, fileName)
	}
	return "answer to " + question, nil
}

func (stubQuery) StreamAnswer(_ context.Context, _, _ string, ws *websocket.Conn) error {
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"chunk":"hi"}`))
	return nil
}

func (stubQuery) ListFiles(context.Context) ([]string, error) { return []string{"iot.csv"}, nil }

type stubSchemas struct{ saved []string }

func (s *stubSchemas) Save(_ context.Context, db, category string, columns []string) (*model.SchemaRecord, error) {
	if len(columns) == 0 {
		return nil, service.ErrInvalidSchema
	}
	s.saved = append(s.saved, db+"/"+category)
	return &model.SchemaRecord{DBName: db, Category: category, Columns: columns}, nil
}

func (s *stubSchemas) Get(_ context.Context, db, category string) (*model.SchemaRecord, error) {
	return nil, service.ErrSchemaNotFound
}

func (s *stubSchemas) List(context.Context, string) ([]model.SchemaRecord, error) { return nil, nil }
func (s *stubSchemas) Delete(context.Context, string, string) error              { return nil }
func (s *stubSchemas) SeedDefaults(context.Context, string, map[string][]string) (int, error) {
	return 0, nil
}

type stubCatalog struct{}

func (stubCatalog) ListDatabases(context.Context) ([]string, error) { return []string{"shop"}, nil }
func (stubCatalog) ListCollections(context.Context, string) ([]string, error) {
	return []string{"sales"}, nil
}

type stubLogs struct{}

func (stubLogs) Text(context.Context) (string, error) {
	return "a.csv | Category: sales | Valid: true | Time: 2024-01-02 03:04:05\n", nil
}

type stubReports struct{}

func (stubReports) DownloadURL(context.Context, string) (*service.ReportDownloadDTO, error) {
	return nil, service.ErrReportNotFound
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(ing *stubIngestion, schemas *stubSchemas) (*gin.Engine, *token.JWTManager) {
	gin.SetMode(gin.TestMode)
	jwtManager := token.NewJWTManager("test-secret", 1)
	r := NewRouter(Services{
		Ingestion: ing,
		Query:     stubQuery{},
		Schema:    schemas,
		Catalog:   stubCatalog{},
		Logs:      stubLogs{},
		Reports:   stubReports{},
	}, jwtManager, 1)
	return r, jwtManager
}

func multipartUpload(t *testing.T, fileName, content, db string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("db_name", db))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestUploadSuccess(t *testing.T) {
	ing := &stubIngestion{result: &model.PipelineResult{FileName: "sales.csv", Category: "sales", Valid: true}}
	r, _ := newTestRouter(ing, &stubSchemas{})
	body, ct := multipartUpload(t, "sales.csv", "a,b\n1,2\n", "shop")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)

	rec, env := do(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sales.csv|shop|a,b\n1,2\n", ing.got)
	var res model.PipelineResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "sales", res.Category)
}

func TestUploadErrorStatusAndLogs(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pipeline.ErrUnclassified, http.StatusUnprocessableEntity},
		{pipeline.ErrFileBusy, http.StatusConflict},
		{pipeline.ErrUnsupportedFormat, http.StatusBadRequest},
		{model.ErrMalformedDataset, http.StatusBadRequest},
		{pipeline.ErrVerification, http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			ing := &stubIngestion{result: &model.PipelineResult{Logs: []string{"step one"}}, err: c.err}
			r, _ := newTestRouter(ing, &stubSchemas{})
			body, ct := multipartUpload(t, "x.csv", "a\n1\n", "shop")
			req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
			req.Header.Set("Content-Type", ct)

			rec, env := do(r, req)
			assert.Equal(t, c.status, rec.Code)
			assert.Equal(t, c.status, env.Code)
			assert.JSONEq(t, `{"logs":["step one"]}`, string(env.Data))
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	r, _ := newTestRouter(&stubIngestion{}, &stubSchemas{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", strings.NewReader(""))
	rec, _ := do(r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAsyncAccepted(t *testing.T) {
	r, _ := newTestRouter(&stubIngestion{}, &stubSchemas{})
	body, ct := multipartUpload(t, "iot.json", "[]", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/async", body)
	req.Header.Set("Content-Type", ct)
	rec, env := do(r, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"taskId":"task-1","fileName":"iot.json"}`, string(env.Data))
}

func TestQueryFormAndJSON(t *testing.T) {
	r, _ := newTestRouter(&stubIngestion{}, &stubSchemas{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("query=max+value&filename=iot.csv"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, env := do(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"filename":"iot.csv","answer":"answer to max value"}`, string(env.Data))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"q","filename":"other.csv"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = do(r, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = do(r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryWebsocket(t *testing.T) {
	r, _ := newTestRouter(&stubIngestion{}, &stubSchemas{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/query/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"filename":"iot.csv","query":"q"}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"chunk":"hi"}`, string(msg))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "error")
}

func TestSchemaWritesRequireAdmin(t *testing.T) {
	schemas := &stubSchemas{}
	r, jwtManager := newTestRouter(&stubIngestion{}, schemas)
	payload := `{"db_name":"shop","category":"sales","columns":["invoice_id"]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schemas", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := do(r, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := jwtManager.GenerateToken("viewer", "USER")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/schemas", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec, _ = do(r, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := jwtManager.GenerateToken("ops", token.RoleAdmin)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/schemas", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin)
	rec, _ = do(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"shop/sales"}, schemas.saved)
}

func TestReadEndpoints(t *testing.T) {
	r, _ := newTestRouter(&stubIngestion{}, &stubSchemas{})

	rec, env := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/shop/sales", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Code)

	rec, env = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/databases/shop/collections", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["sales"]`, string(env.Data))

	rec, _ = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "a.csv | Category: sales | Valid: true | Time: 2024-01-02 03:04:05\n", rec.Body.String())

	rec, _ = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/reports/download?filename=sales.csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["iot.csv"]`, string(env.Data))
}
