package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCredential implements azcore.TokenCredential for testing.
type MockCredential struct{}

func (m *MockCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     "mock-token",
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func TestNewEmailService_RequiresEndpointAndSender(t *testing.T) {
	_, err := NewEmailService("", "sender@test.com", &MockCredential{})
	assert.Error(t, err)

	_, err = NewEmailService("https://acs.test", "", &MockCredential{})
	assert.Error(t, err)
}

func TestEmailService_SendEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails:send", r.URL.Path)
		assert.Equal(t, "2023-03-31", r.URL.Query().Get("api-version"))
		assert.Equal(t, "Bearer mock-token", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req emailRequest
		require.NoError(t, json.Unmarshal(body, &req))

		assert.Equal(t, "sender@test.com", req.SenderAddress)
		require.Len(t, req.Recipients.To, 1)
		assert.Equal(t, "recipient@test.com", req.Recipients.To[0].Address)
		assert.Equal(t, "Test Subject", req.Content.Subject)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	service, err := NewEmailService(server.URL+"/", "sender@test.com", &MockCredential{})
	require.NoError(t, err)

	err = service.SendEmail(context.Background(), []string{"recipient@test.com"}, "Test Subject", "Test Body")
	assert.NoError(t, err)
}

func TestEmailService_SendEmail_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad sender"))
	}))
	defer server.Close()

	service, err := NewEmailService(server.URL, "sender@test.com", &MockCredential{})
	require.NoError(t, err)

	err = service.SendEmail(context.Background(), []string{"recipient@test.com"}, "Subject", "Body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad sender")
}

func TestEmailService_SendRunSummaryEmail(t *testing.T) {
	var subject, html string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		subject, html = req.Content.Subject, req.Content.HTML
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	service, err := NewEmailService(server.URL, "sender@test.com", &MockCredential{})
	require.NoError(t, err)

	result := &recurring.ProcessResult{
		Today:     models.NewDate(2025, time.March, 1),
		Processed: 2,
		Errors: []recurring.ScheduleError{{
			ScheduleID:  "b",
			Description: "Office rent",
			DueDate:     models.NewDate(2025, time.March, 1),
			Stage:       recurring.StageLedgerWrite,
			Message:     "ledger unavailable",
		}},
	}

	require.NoError(t, service.SendRunSummaryEmail(context.Background(), []string{"owner@test.com"}, result))
	assert.Contains(t, subject, "1 schedule(s)")
	assert.Contains(t, subject, "2025-03-01")
	assert.Contains(t, html, "Office rent")
	assert.Contains(t, html, "ledger unavailable")
}

func TestRenderRunSummaryBody_EscapesDescriptions(t *testing.T) {
	result := &recurring.ProcessResult{
		Today: models.NewDate(2025, time.March, 1),
		Errors: []recurring.ScheduleError{{
			Description: "<script>x</script>",
			DueDate:     models.NewDate(2025, time.March, 1),
			Stage:       recurring.StageAdvance,
			Message:     "conflict",
		}},
	}

	body := RenderRunSummaryBody(result)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "advance")
}

func TestRenderRunSummaryBody_UnreadableSchedule(t *testing.T) {
	result := &recurring.ProcessResult{
		Today: models.NewDate(2025, time.March, 1),
		Errors: []recurring.ScheduleError{{
			ScheduleID: "sched-9",
			Stage:      recurring.StageDecode,
			Message:    "invalid Amount",
		}},
	}

	body := RenderRunSummaryBody(result)
	assert.Contains(t, body, "schedule sched-9 (decode): invalid Amount")
	assert.NotContains(t, body, "0001-01-01")
}

func TestRenderImportErrorBody(t *testing.T) {
	body := RenderImportErrorBody("schedules.csv", []string{"Row 2: invalid amount", "Row 5: unknown kind"})
	assert.Contains(t, body, "schedules.csv")
	assert.Equal(t, 2, strings.Count(body, "<li>"))

	assert.Empty(t, RenderErrorSection("Nothing", nil))
}
