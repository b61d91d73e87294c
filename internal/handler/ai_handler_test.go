package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/baghchal/api/internal/auth"
	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/internal/service"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// --- Mock Service ---

type mockAIService struct {
	analysisErr error
	trainingErr error
	policyErr   error
	lastLevel   string
	lastReq     model.TrainingRequest
}

func (m *mockAIService) RunAnalysis(_ context.Context, difficulty string) (*model.AnalysisResponse, error) {
	m.lastLevel = difficulty
	if m.analysisErr != nil {
		return nil, m.analysisErr
	}
	if _, err := bot.ParseGuestDifficulty(difficulty); err != nil {
		return nil, err
	}
	return &model.AnalysisResponse{
		GuestAIDifficulty: difficulty,
		NumGames:          20,
		QLearningWins:     12,
		GuestAIWins:       7,
		Draws:             1,
		Results: []model.ComparisonResult{{
			AlgorithmComparison: model.AlgorithmComparison{
				DoubleQLearning: model.AlgorithmStats{WinRateAsTiger: 70, WinRateAsGoat: 50},
				Minimax:         model.AlgorithmStats{WinRateAsTiger: 45, WinRateAsGoat: 30},
			},
		}},
	}, nil
}

func (m *mockAIService) GetQTable(_ context.Context, player string) (model.QTableResponse, error) {
	side, err := baghchal.ParseSide(player)
	if err != nil {
		return model.QTableResponse{}, err
	}
	return model.QTableResponse{
		Player:        side.String(),
		QTableSize:    2,
		SampleEntries: map[string]map[string]float64{"T...T...............T...T/P20g": {"c3": 0.125}},
	}, nil
}

func (m *mockAIService) StartTraining(_ context.Context, req model.TrainingRequest) (model.TrainingStatus, error) {
	m.lastReq = req
	if m.trainingErr != nil {
		return model.TrainingStatus{}, m.trainingErr
	}
	return model.TrainingStatus{Player: req.Player, State: "running", Episodes: req.Episodes}, nil
}

func (m *mockAIService) CancelTraining(_ context.Context, player string) (model.TrainingStatus, error) {
	if m.trainingErr != nil {
		return model.TrainingStatus{}, m.trainingErr
	}
	return model.TrainingStatus{Player: player, State: "cancelled"}, nil
}

func (m *mockAIService) TrainingStatus(_ context.Context, player string) (model.TrainingStatus, error) {
	if m.trainingErr != nil {
		return model.TrainingStatus{}, m.trainingErr
	}
	return model.TrainingStatus{Player: player, State: "running", Episode: 250}, nil
}

func (m *mockAIService) ListPolicies(_ context.Context) (model.PolicyListResponse, error) {
	if m.policyErr != nil {
		return model.PolicyListResponse{}, m.policyErr
	}
	return model.PolicyListResponse{Policies: []model.PolicyInfo{
		{Player: "goat", Episodes: 5000, SizeBytes: 81920},
	}}, nil
}

// --- Helpers ---

func adminRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := auth.SetClaimsForTest(req.Context(), "admin-1", auth.RoleAdmin)
	return req.WithContext(ctx)
}

// serve routes req through a mux so path values are populated.
func serve(h *AIHandler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ai/analysis", h.RunAnalysis)
	mux.HandleFunc("GET /ai/q-table/{player}", h.GetQTable)
	mux.HandleFunc("POST /ai/training", h.StartTraining)
	mux.HandleFunc("GET /ai/training/{player}", h.TrainingStatus)
	mux.HandleFunc("DELETE /ai/training/{player}", h.CancelTraining)
	mux.HandleFunc("GET /ai/policies", h.ListPolicies)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

// --- Analysis ---

func TestRunAnalysis(t *testing.T) {
	svc := &mockAIService{}
	rec := serve(NewAIHandler(svc), adminRequest(http.MethodPost, "/ai/analysis", `{"guest_ai_difficulty":"hard"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastLevel != "hard" {
		t.Errorf("expected hard to reach the service, got %q", svc.lastLevel)
	}
	var resp model.AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.QLearningWins+resp.GuestAIWins+resp.Draws != resp.NumGames {
		t.Errorf("counts do not add up: %+v", resp)
	}
	if len(resp.Results) != 1 || resp.Results[0].AlgorithmComparison.DoubleQLearning.WinRateAsTiger != 70 {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
	if !strings.Contains(rec.Body.String(), `"double_q_learning"`) {
		t.Errorf("expected double_q_learning block in %s", rec.Body.String())
	}
}

func TestRunAnalysisBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing difficulty", `{}`},
		{"unknown difficulty", `{"guest_ai_difficulty":"grandmaster"}`},
		{"random is not a guest level", `{"guest_ai_difficulty":"random"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewAIHandler(&mockAIService{}), adminRequest(http.MethodPost, "/ai/analysis", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRunAnalysisInternalErrorIsGeneric(t *testing.T) {
	illegal := &baghchal.IllegalMoveError{Rule: baghchal.RuleOccupied, Message: "c3 is occupied"}
	svc := &mockAIService{analysisErr: fmt.Errorf("analysis against hard: %w", illegal)}
	rec := serve(NewAIHandler(svc), adminRequest(http.MethodPost, "/ai/analysis", `{"guest_ai_difficulty":"hard"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "operation failed" {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

// --- Q-table ---

func TestGetQTable(t *testing.T) {
	rec := serve(NewAIHandler(&mockAIService{}), adminRequest(http.MethodGet, "/ai/q-table/Goat", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp model.QTableResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Player != "goat" {
		t.Errorf("expected goat, got %s", resp.Player)
	}
	if resp.SampleEntries["T...T...............T...T/P20g"]["c3"] != 0.125 {
		t.Errorf("unexpected sample entries: %v", resp.SampleEntries)
	}
}

func TestGetQTableUnknownPlayer(t *testing.T) {
	rec := serve(NewAIHandler(&mockAIService{}), adminRequest(http.MethodGet, "/ai/q-table/lion", ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- Training ---

func TestStartTraining(t *testing.T) {
	svc := &mockAIService{}
	body := `{"player":"tiger","opponent":"hard","episodes":500}`
	rec := serve(NewAIHandler(svc), adminRequest(http.MethodPost, "/ai/training", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	want := model.TrainingRequest{Player: "tiger", Opponent: "hard", Episodes: 500}
	if svc.lastReq != want {
		t.Errorf("expected %+v, got %+v", want, svc.lastReq)
	}
}

func TestTrainingErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"already running", service.ErrTrainingInProgress, http.MethodPost, "/ai/training", `{"player":"tiger"}`, http.StatusConflict},
		{"bad episodes", fmt.Errorf("%w: -1", service.ErrInvalidEpisodes), http.MethodPost, "/ai/training", `{"player":"tiger","episodes":-1}`, http.StatusBadRequest},
		{"unknown opponent", fmt.Errorf("%w: %q", bot.ErrUnknownDifficulty, "x"), http.MethodPost, "/ai/training", `{"player":"tiger","opponent":"x"}`, http.StatusBadRequest},
		{"no job to cancel", service.ErrNoTrainingJob, http.MethodDelete, "/ai/training/goat", "", http.StatusNotFound},
		{"no job status", service.ErrNoTrainingJob, http.MethodGet, "/ai/training/goat", "", http.StatusNotFound},
		{"store failure", errors.New("connection refused"), http.MethodDelete, "/ai/training/goat", "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewAIHandler(&mockAIService{trainingErr: tt.err}), adminRequest(tt.method, tt.path, tt.body))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTrainingStatusAndCancel(t *testing.T) {
	h := NewAIHandler(&mockAIService{})

	rec := serve(h, adminRequest(http.MethodGet, "/ai/training/tiger", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var st model.TrainingStatus
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Episode != 250 {
		t.Errorf("expected episode 250, got %d", st.Episode)
	}

	rec = serve(h, adminRequest(http.MethodDelete, "/ai/training/tiger", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.State != "cancelled" {
		t.Errorf("expected cancelled, got %s", st.State)
	}
}

// --- Policies ---

func TestListPolicies(t *testing.T) {
	rec := serve(NewAIHandler(&mockAIService{}), adminRequest(http.MethodGet, "/ai/policies", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp model.PolicyListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Policies) != 1 || resp.Policies[0].Player != "goat" || resp.Policies[0].Episodes != 5000 {
		t.Errorf("unexpected policies: %+v", resp.Policies)
	}
	if strings.Contains(rec.Body.String(), "updated_at") {
		t.Errorf("zero updated_at should be omitted: %s", rec.Body.String())
	}
}

func TestListPoliciesWithoutStore(t *testing.T) {
	svc := &mockAIService{policyErr: service.ErrNoPolicyStore}
	rec := serve(NewAIHandler(svc), adminRequest(http.MethodGet, "/ai/policies", ""))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
	if got := errorBody(t, rec); got != service.ErrNoPolicyStore.Error() {
		t.Errorf("unexpected error body %q", got)
	}
}
