package statusapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

type stubController struct {
	status       model.ConnectionStatus
	connectErr   error
	disconnectErr error
	challengeErr error
	lastCode     string
}

func (s *stubController) Status() model.ConnectionStatus { return s.status }

func (s *stubController) Connect(ctx echo.Context) error { return s.connectErr }

func (s *stubController) Disconnect(ctx echo.Context) error { return s.disconnectErr }

func (s *stubController) SubmitChallenge(ctx echo.Context, code string) error {
	s.lastCode = code
	return s.challengeErr
}

func newTestServer(ctrl *stubController) *echo.Echo {
	e := echo.New()
	New(ctrl).RegisterRoutes(e)
	return e
}

func TestHandleStatusReturnsControllerStatus(t *testing.T) {
	ctrl := &stubController{status: model.ConnectionStatus{Kind: model.StatusConnected}}
	e := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Connected") {
		t.Fatalf("body = %s, want it to mention Connected", rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a request id header to be stamped on the response")
	}
}

func TestRequestIDDiffersAcrossRequests(t *testing.T) {
	ctrl := &stubController{status: model.ConnectionStatus{Kind: model.StatusConnected}}
	e := newTestServer(ctrl)

	var ids []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		ids = append(ids, rec.Header().Get("X-Request-Id"))
	}
	if ids[0] == "" || ids[1] == "" || ids[0] == ids[1] {
		t.Fatalf("request ids = %v, want two distinct non-empty values", ids)
	}
}

func TestHandleConnectPropagatesError(t *testing.T) {
	ctrl := &stubController{connectErr: apperror.New(apperror.Auth, "bad credentials")}
	e := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/connect", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status code = %d, want 401", rec.Code)
	}
}

func TestHandleChallengeBindsCodeAndCallsController(t *testing.T) {
	ctrl := &stubController{status: model.ConnectionStatus{Kind: model.StatusConnected}}
	e := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/challenge", strings.NewReader(`{"code":"123456"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if ctrl.lastCode != "123456" {
		t.Fatalf("last code = %q, want 123456", ctrl.lastCode)
	}
}

func TestHandleDisconnectReturns500OnUnexpectedError(t *testing.T) {
	ctrl := &stubController{disconnectErr: apperror.New(apperror.Network, "socket gone")}
	e := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/disconnect", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500", rec.Code)
	}
}
