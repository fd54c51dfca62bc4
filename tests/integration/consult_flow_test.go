package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	consult "github.com/consult-sh/consult"
	"github.com/consult-sh/consult/api/handlers"
	"github.com/consult-sh/consult/feedback"
	"github.com/consult-sh/consult/providers/ollama"
	"github.com/consult-sh/consult/registry"
)

// =============================================================================
// 端到端链路测试：HTTP API → Service → 真实 ollama 客户端 → 假 Ollama 服务器
// =============================================================================

// fakeOllama 模拟 Ollama 的 /api/generate 与 /api/tags 端点
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"response":"You should keep detailed records. Consider consulting %s guidance.","done":true}`, req.Model)
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	})
	return httptest.NewServer(mux)
}

// newStack 组装完整服务栈并返回 API 服务器与反馈存储
func newStack(t *testing.T) (*httptest.Server, feedback.Store) {
	t.Helper()
	upstream := fakeOllama(t)
	t.Cleanup(upstream.Close)

	logger := zap.NewNop()
	gen := ollama.NewClient(ollama.Config{BaseURL: upstream.URL}, logger)
	store := feedback.NewMemoryStore()
	svc := consult.NewService(registry.Default(), gen, store, logger)

	consultHandler := handlers.NewConsultHandler(svc, logger)
	feedbackHandler := handlers.NewFeedbackHandler(store, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/consult", consultHandler.HandleConsult)
	mux.HandleFunc("POST /api/v1/consult/{expert}", consultHandler.HandleConsultExpert)
	mux.HandleFunc("GET /api/v1/experts", consultHandler.HandleListExperts)
	mux.HandleFunc("POST /api/v1/feedback/{queryID}", feedbackHandler.HandleUpdate)
	mux.HandleFunc("GET /api/v1/feedback/stats", feedbackHandler.HandleStats)

	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api, store
}

// apiResponse 解包统一响应信封
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

// TestConsultToFeedbackFlow 跑通完整链路：
// 咨询 → 取回 query_id → 提交反馈 → 统计中出现专家评分
func TestConsultToFeedbackFlow(t *testing.T) {
	api, _ := newStack(t)

	// 1. 发起咨询
	resp := postJSON(t, api.URL+"/api/v1/consult", map[string]interface{}{
		"question":   "How should I structure my business for the 2026 tax year?",
		"synthesize": true,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)

	var consultation consult.Consultation
	require.NoError(t, json.Unmarshal(envelope.Data, &consultation))

	assert.Len(t, consultation.QueryID, feedback.QueryIDLen)
	assert.NotEmpty(t, consultation.Results)
	require.NotNil(t, consultation.Synthesis)
	assert.Equal(t, len(consultation.Results), consultation.Synthesis.TotalExperts)
	for _, r := range consultation.Results {
		assert.Equal(t, "success", string(r.Status))
	}

	bestExpert := consultation.Results[0].ExpertID

	// 2. 提交反馈
	resp = postJSON(t, api.URL+"/api/v1/feedback/"+consultation.QueryID, map[string]interface{}{
		"synthesis_helpful": true,
		"best_expert":       bestExpert,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 3. 统计中出现正向评分
	statsResp, err := http.Get(api.URL + "/api/v1/feedback/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	var statsEnvelope apiResponse
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&statsEnvelope))
	var stats map[string]feedback.ExpertStat
	require.NoError(t, json.Unmarshal(statsEnvelope.Data, &stats))

	require.Contains(t, stats, bestExpert)
	assert.Equal(t, int64(1), stats[bestExpert].Positive)
}

// TestSingleExpertConsultOverHTTP 单专家直连端点返回该专家一条结果
func TestSingleExpertConsultOverHTTP(t *testing.T) {
	api, _ := newStack(t)

	resp := postJSON(t, api.URL+"/api/v1/consult/app-architecture-expert", map[string]interface{}{
		"question": "Should I adopt Kubernetes for three services?",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	var consultation consult.Consultation
	require.NoError(t, json.Unmarshal(envelope.Data, &consultation))

	require.Len(t, consultation.Results, 1)
	assert.Equal(t, "app-architecture-expert", consultation.Results[0].ExpertID)
}

// TestFeedbackForUnknownQueryIDOverHTTP 未知 query id 返回 404
func TestFeedbackForUnknownQueryIDOverHTTP(t *testing.T) {
	api, _ := newStack(t)

	resp := postJSON(t, api.URL+"/api/v1/feedback/ffffffffffff", map[string]interface{}{
		"synthesis_helpful": true,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
