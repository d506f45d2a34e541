package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atlasmedia/adboard-backend/internal/clients"
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
)

type stubClientService struct {
	list      []clients.ClientDTO
	created   *clients.ClientDTO
	conn      *clients.ConnectionDTO
	err       error
	lastInput clients.CredentialsInput
	lastSlug  string
}

func (s *stubClientService) List(context.Context) ([]clients.ClientDTO, error) {
	return s.list, s.err
}

func (s *stubClientService) ListActive(context.Context) ([]models.Client, error) {
	return nil, s.err
}

func (s *stubClientService) Create(_ context.Context, input clients.CreateClientInput) (*clients.ClientDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.created, nil
}

func (s *stubClientService) GetBySlug(context.Context, string) (*models.Client, error) {
	return nil, s.err
}

func (s *stubClientService) SaveCredentials(_ context.Context, slug string, input clients.CredentialsInput) (*clients.ConnectionDTO, error) {
	s.lastSlug = slug
	s.lastInput = input
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

func (s *stubClientService) TestCredentials(_ context.Context, slug string, input clients.CredentialsInput) error {
	s.lastSlug = slug
	s.lastInput = input
	return s.err
}

func (s *stubClientService) FindRecentCampaigns(context.Context, uuid.UUID, time.Duration) ([]models.Campaign, error) {
	return nil, s.err
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if dest != nil {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			t.Fatalf("parse data: %v", err)
		}
	}
}

func TestClientsListSuccess(t *testing.T) {
	svc := &stubClientService{list: []clients.ClientDTO{{Slug: "acme", Name: "Acme"}}}
	rec := httptest.NewRecorder()
	ClientsList(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var got []clients.ClientDTO
	decodeEnvelope(t, rec, &got)
	if len(got) != 1 || got[0].Slug != "acme" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestClientsCreateReturns201(t *testing.T) {
	svc := &stubClientService{created: &clients.ClientDTO{Slug: "acme", Name: "Acme"}}
	body := `{"slug":"acme","name":"Acme","monthlyBudget":"5000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ClientsCreate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestClientsCreateRejectsMissingName(t *testing.T) {
	svc := &stubClientService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(`{"slug":"acme"}`))
	rec := httptest.NewRecorder()
	ClientsCreate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestConnectionsSaveMapsURLParams(t *testing.T) {
	svc := &stubClientService{conn: &clients.ConnectionDTO{Platform: "search_ads", Connected: true}}
	body := `{"identifierId":"123-456","credentials":{"refresh_token":"rt"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/clients/acme/connections/search_ads", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"slug": "acme", "platform": "search_ads"})
	rec := httptest.NewRecorder()
	ConnectionsSave(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastSlug != "acme" {
		t.Fatalf("expected slug acme, got %q", svc.lastSlug)
	}
	if svc.lastInput.Platform != enums.PlatformSearchAds {
		t.Fatalf("expected platform from URL, got %q", svc.lastInput.Platform)
	}
	if svc.lastInput.IdentifierID != "123-456" {
		t.Fatalf("expected identifier from body, got %q", svc.lastInput.IdentifierID)
	}
}

func TestConnectionsSaveRejectsUnknownPlatform(t *testing.T) {
	svc := &stubClientService{}
	body := `{"identifierId":"123","credentials":{}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/clients/acme/connections/billboards", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"slug": "acme", "platform": "billboards"})
	rec := httptest.NewRecorder()
	ConnectionsSave(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestConnectionsSavePropagatesClientNotFound(t *testing.T) {
	svc := &stubClientService{err: pkgerrors.New(pkgerrors.CodeClientNotFound, "client not found")}
	body := `{"identifierId":"123","credentials":{}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/clients/ghost/connections/search_ads", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"slug": "ghost", "platform": "search_ads"})
	rec := httptest.NewRecorder()
	ConnectionsSave(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestConnectionsTestDoesNotRequireSuccessBody(t *testing.T) {
	svc := &stubClientService{}
	body := `{"identifierId":"prop-1","credentials":{"client_email":"svc@x.iam"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients/acme/connections/analytics/test", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"slug": "acme", "platform": "analytics"})
	rec := httptest.NewRecorder()
	ConnectionsTest(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	decodeEnvelope(t, rec, &got)
	if got["valid"] != true {
		t.Fatalf("expected valid=true, got %v", got)
	}
}

func TestConnectionsTestReportsAuthFailure(t *testing.T) {
	svc := &stubClientService{err: pkgerrors.New(pkgerrors.CodeAuth, "platform rejected credentials")}
	body := `{"identifierId":"act_1","credentials":{"access_token":"tok"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients/acme/connections/social_ads/test", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"slug": "acme", "platform": "social_ads"})
	rec := httptest.NewRecorder()
	ConnectionsTest(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rec.Code)
	}
}
