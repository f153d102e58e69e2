package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-reconciliation-service/internal/api"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/store"
	mock_store "ledger-reconciliation-service/internal/store/mocks"
	"ledger-reconciliation-service/pkg/errors"
)

const bankCSV = `Fecha,Documento,Debito,Credito
05/01/2024,0034567,,100
06/01/2024,999,50,
`

const systemCSV = `Fecha,Nro.Ref.Bco,Debe,Haber
07/01/2024,4567,100,0
`

type upload struct {
	bankName   string
	bank       string
	systemName string
	system     string
	fields     map[string]string
}

func multipartRequest(t *testing.T, u upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if u.bankName != "" {
		part, err := writer.CreateFormFile("bank", u.bankName)
		require.NoError(t, err)
		_, err = part.Write([]byte(u.bank))
		require.NoError(t, err)
	}
	if u.systemName != "" {
		part, err := writer.CreateFormFile("system", u.systemName)
		require.NoError(t, err)
		_, err = part.Write([]byte(u.system))
		require.NoError(t, err)
	}
	for k, v := range u.fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliations", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newService(t *testing.T) *reconciler.ReconciliationService {
	t.Helper()
	service, err := reconciler.NewReconciliationService(nil)
	require.NoError(t, err)
	return service
}

func TestHealth(t *testing.T) {
	router := api.NewRouter(newService(t), nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","store":false}`, rec.Body.String())
}

func TestCreateReconciliation_StoresRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mock_store.NewMockRunStore(ctrl)
	var saved *store.Run
	runs.EXPECT().SaveRun(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, run *store.Run) error {
			saved = run
			return nil
		},
	)

	router := api.NewRouter(newService(t), runs, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, upload{
		bankName: "extracto_4103.csv", bank: bankCSV,
		systemName: "auxiliar.csv", system: systemCSV,
		fields: map[string]string{"workflow": "auto", "tolerance_days": "5"},
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.NotNil(t, saved)
	assert.Equal(t, saved.ID, body["run_id"])
	assert.Equal(t, "WorkflowA", body["workflow"])
	assert.Equal(t, float64(5), body["tolerance_days"])
	assert.Len(t, body["matched"], 1)
	assert.Len(t, body["unmatched_bank"], 1)
	assert.Equal(t, 1, saved.Matched)
	assert.Equal(t, "extracto_4103.csv", saved.BankSource)
}

func TestCreateReconciliation_WithoutStore(t *testing.T) {
	router := api.NewRouter(newService(t), nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, upload{
		bankName: "servima.csv", bank: "Fecha,Documento,Debito,Credito\n05/01/2024,1,100,\n",
		systemName: "system.csv", system: "fec,documento,debe,haber\n04/01/2024,X,0,100\n",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	_, hasRunID := body["run_id"]
	assert.False(t, hasRunID)
	assert.Equal(t, "WorkflowB", body["workflow"])
	assert.Len(t, body["matched"], 1)
}

func TestCreateReconciliation_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		upload upload
		status int
		code   errors.ErrorCode
	}{
		{
			name:   "missing system file",
			upload: upload{bankName: "bank.csv", bank: bankCSV},
			status: http.StatusBadRequest,
		},
		{
			name: "non numeric tolerance",
			upload: upload{
				bankName: "bank.csv", bank: bankCSV, systemName: "system.csv", system: systemCSV,
				fields: map[string]string{"tolerance_days": "ten"},
			},
			status: http.StatusBadRequest,
		},
		{
			name: "tolerance out of range",
			upload: upload{
				bankName: "bank.csv", bank: bankCSV, systemName: "system.csv", system: systemCSV,
				fields: map[string]string{"tolerance_days": "40"},
			},
			status: http.StatusBadRequest,
			code:   errors.CodeOutOfRange,
		},
		{
			name: "unsupported extension",
			upload: upload{
				bankName: "bank.pdf", bank: bankCSV, systemName: "system.csv", system: systemCSV,
			},
			status: http.StatusBadRequest,
			code:   errors.CodeUnsupported,
		},
	}

	router := api.NewRouter(newService(t), nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, tt.upload))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.code != "" {
				assert.Equal(t, tt.code, body.Code)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mock_store.NewMockRunStore(ctrl)
	runs.EXPECT().ListRuns(gomock.Any(), 5).Return([]*store.Run{
		{ID: "run-1", Workflow: "WorkflowA", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}, nil)

	router := api.NewRouter(newService(t), runs, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs  []store.Run `json:"runs"`
		Limit int         `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-1", body.Runs[0].ID)
	assert.Equal(t, 5, body.Limit)
}

func TestGetRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mock_store.NewMockRunStore(ctrl)
	runs.EXPECT().GetRun(gomock.Any(), "run-1").Return(&store.Run{ID: "run-1", Matched: 3}, nil)
	runs.EXPECT().GetRun(gomock.Any(), "missing").Return(nil, errors.StorageError(errors.CodeRunNotFound, "missing", nil))

	router := api.NewRouter(newService(t), runs, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 3, run.Matched)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mock_store.NewMockRunStore(ctrl)
	runs.EXPECT().ListMatches(gomock.Any(), "run-1").Return([]store.RunMatch{
		{RunID: "run-1", Seq: 0, BankID: 1, SystemID: 1, Quality: "Exact"},
	}, nil)

	router := api.NewRouter(newService(t), runs, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/matches", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RunID   string           `json:"run_id"`
		Matches []store.RunMatch `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "Exact", body.Matches[0].Quality)
}

func TestRunsWithoutStore(t *testing.T) {
	router := api.NewRouter(newService(t), nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
