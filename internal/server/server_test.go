package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/teamgr/internal/chat"
	"github.com/jonathan/teamgr/internal/config"
	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/extraction"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/store"
)

type fakeClient struct {
	reply func(prompt, callType string) (string, error)
}

func (f *fakeClient) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier, callType string) (string, error) {
	return f.reply(prompt, callType)
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier, callType string) (string, error) {
	return f.reply(prompt, callType)
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                  { return nil }

type testEnv struct {
	server *Server
	store  *store.Memory
	worker *extraction.Worker
}

func newTestEnv(t *testing.T, passwordHash string, reply func(prompt, callType string) (string, error)) *testEnv {
	t.Helper()
	if reply == nil {
		reply = func(_, _ string) (string, error) {
			return `{"card_data": {}, "summary": "", "suggested_tags": [], "new_dimensions": []}`, nil
		}
	}

	mem := store.NewMemory()
	registry := dimension.NewRegistry(mem)
	require.NoError(t, registry.Seed(context.Background()))

	client := &fakeClient{reply: reply}
	worker := extraction.NewWorker(mem, registry, client, 0)

	srv := New(Config{Port: 0}, Deps{
		Store:          mem,
		Registry:       registry,
		Worker:         worker,
		Tracker:        extraction.NewTracker(mem),
		Orchestrator:   chat.NewOrchestrator(mem, registry, client),
		JWTConfig:      &config.JWTConfig{Secret: "test-secret", ExpirationHours: 1},
		PasswordConfig: &config.PasswordConfig{BcryptCost: 10},
		PasswordHash:   passwordHash,
	})

	return &testEnv{server: srv, store: mem, worker: worker}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTalentCRUD(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.do(t, http.MethodPost, "/api/talents", TalentCreateRequest{Name: "张伟", Department: "平台组"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[TalentResponse](t, rec)
	assert.Equal(t, "张伟", created.Name)
	assert.NotNil(t, created.CardData)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/talents/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	newRole := "技术负责人"
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/talents/%d", created.ID), TalentUpdateRequest{
		CurrentRole: &newRole,
		CardData:    map[string]any{"one_liner": "手工录入"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[TalentResponse](t, rec)
	assert.Equal(t, "技术负责人", updated.CurrentRole)
	assert.Equal(t, "手工录入", updated.CardData["one_liner"])

	rec = env.do(t, http.MethodGet, "/api/talents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/talents/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/talents/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTalentSeedsCardFromDimensions(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.do(t, http.MethodPost, "/api/talents", TalentCreateRequest{Name: "赵敏"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[TalentResponse](t, rec)

	// One entry per registered dimension, set to the dimension's exemplar.
	require.Len(t, created.CardData, len(dimension.Defaults()))
	personal, ok := created.CardData["personal_info"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, personal, "age")
	assert.Equal(t, []any{}, created.CardData["strengths"])
	assert.Equal(t, "", created.CardData["one_liner"])
}

func TestCreateTalentRequiresName(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(t, http.MethodPost, "/api/talents", TalentCreateRequest{Email: "a@b.c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTextEntryFlow(t *testing.T) {
	env := newTestEnv(t, "", func(_, _ string) (string, error) {
		return `{"card_data": {"one_liner": "后端工程师"}, "summary": "后端工程师", "suggested_tags": ["后端"], "new_dimensions": []}`, nil
	})

	talent, err := env.store.CreateTalent(context.Background(), &store.Talent{Name: "李娜"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/entry/text", TextEntryRequest{TalentID: talent.ID, Content: "她负责支付系统"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decode[EntryResponse](t, rec)
	assert.Equal(t, "processing", accepted.Status)
	assert.Equal(t, extraction.PollInterval.Milliseconds(), accepted.PollIntervalMs)

	env.worker.Wait()

	rec = env.do(t, http.MethodGet, "/api/entry/status/"+accepted.EntryID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[EntryStatusResponse](t, rec)
	assert.Equal(t, "done", status.Status)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/entry/logs/%d", talent.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]EntryLogResponse](t, rec)
	require.Len(t, logs, 1)

	rec = env.do(t, http.MethodDelete, "/api/entry/logs/"+accepted.EntryID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleting the entry does not revert the merged card.
	got, err := env.store.GetTalent(context.Background(), talent.ID)
	require.NoError(t, err)
	assert.Equal(t, "后端工程师", got.CardData["one_liner"])
}

func TestTextEntryUnknownTalent(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(t, http.MethodPost, "/api/entry/text", TextEntryRequest{TalentID: 4242, Content: "note"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPDFEntryRejectsNonPDF(t *testing.T) {
	env := newTestEnv(t, "", nil)
	talent, err := env.store.CreateTalent(context.Background(), &store.Talent{Name: "王芳"})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("talent_id", fmt.Sprint(talent.ID)))
	fw, err := mw.CreateFormFile("file", "resume.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not a pdf at all"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/entry/pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAskEndpoint(t *testing.T) {
	env := newTestEnv(t, "", func(_, callType string) (string, error) {
		if callType == "chat-analyze" {
			return `{"relevant_dimensions": [{"key": "strengths", "label": "优势"}], "reasoning": "ok"}`, nil
		}
		return "张三最合适", nil
	})
	_, err := env.store.CreateTalent(context.Background(), &store.Talent{Name: "张三"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/chat/ask", ChatAnalyzeRequest{Query: "谁擅长Go？"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[map[string]any](t, rec)
	assert.Equal(t, string(chat.PhaseCompleted), result["phase"])
}

func TestChatAskNoRelevantDimensions(t *testing.T) {
	env := newTestEnv(t, "", func(_, _ string) (string, error) {
		return `{"relevant_dimensions": [], "reasoning": "无关"}`, nil
	})

	rec := env.do(t, http.MethodPost, "/api/chat/ask", ChatAnalyzeRequest{Query: "天气如何？"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChatAnswerValidation(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(t, http.MethodPost, "/api/chat/answer", ChatAnswerRequest{Query: "谁擅长Go？"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDimensionsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(t, http.MethodGet, "/api/dimensions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dims := decode[[]DimensionResponse](t, rec)
	assert.Len(t, dims, len(dimension.Defaults()))
}

func TestLLMStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	require.NoError(t, env.store.RecordUsage(context.Background(), llm.Usage{Model: "fake-model", CallType: "chat-answer", DurationMs: 10}))

	rec := env.do(t, http.MethodGet, "/api/stats/llm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]store.UsageSummaryRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "fake-model", rows[0].Model)
}

func TestAuthProtectsRoutes(t *testing.T) {
	pw := &config.PasswordConfig{BcryptCost: 10}
	hash, err := pw.HashPassword("open sesame")
	require.NoError(t, err)
	env := newTestEnv(t, hash, nil)

	// No token: rejected.
	rec := env.do(t, http.MethodGet, "/api/talents", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Wrong password.
	rec = env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct password issues a working token.
	rec = env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Password: "open sesame"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[LoginResponse](t, rec)
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/talents", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	authed := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)

	// Garbage token is still rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/talents", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	denied := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(denied, req)
	assert.Equal(t, http.StatusUnauthorized, denied.Code)
}

func TestAuthStatusOpenMode(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(t, http.MethodGet, "/api/auth/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.False(t, status.PasswordConfigured)
	assert.True(t, status.Authenticated)
}

func TestLoginRateLimited(t *testing.T) {
	pw := &config.PasswordConfig{BcryptCost: 10}
	hash, err := pw.HashPassword("pw")
	require.NoError(t, err)
	env := newTestEnv(t, hash, nil)

	var last int
	for i := 0; i < 10; i++ {
		rec := env.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Password: "wrong"})
		last = rec.Code
		if last == http.StatusTooManyRequests || last == http.StatusForbidden {
			break
		}
	}
	assert.Contains(t, []int{http.StatusTooManyRequests, http.StatusForbidden}, last)
}
