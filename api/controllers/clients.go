package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atlasmedia/adboard-backend/api/responses"
	"github.com/atlasmedia/adboard-backend/api/validators"
	"github.com/atlasmedia/adboard-backend/internal/clients"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/logger"
)

// ClientsList returns all non-archived clients with connection status.
func ClientsList(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type createClientRequest struct {
	Slug          string          `json:"slug" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=128"`
	MonthlyBudget decimal.Decimal `json:"monthlyBudget"`
}

// ClientsCreate registers a new client.
func ClientsCreate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		var payload createClientRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Create(r.Context(), clients.CreateClientInput{
			Slug:          payload.Slug,
			Name:          payload.Name,
			MonthlyBudget: payload.MonthlyBudget,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

type credentialsRequest struct {
	IdentifierID string          `json:"identifierId" validate:"required,max=128"`
	Credentials  json.RawMessage `json:"credentials" validate:"required"`
}

func credentialsInput(r *http.Request, payload credentialsRequest) (clients.CredentialsInput, error) {
	platform, err := enums.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		return clients.CredentialsInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown platform")
	}
	return clients.CredentialsInput{
		Platform:     platform,
		IdentifierID: payload.IdentifierID,
		Bundle:       payload.Credentials,
	}, nil
}

// ConnectionsSave encrypts and stores one platform's credentials, probing
// them first.
func ConnectionsSave(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		var payload credentialsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := credentialsInput(r, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.SaveCredentials(r.Context(), chi.URLParam(r, "slug"), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// ConnectionsTest probes credentials without persisting anything.
func ConnectionsTest(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}

		var payload credentialsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := credentialsInput(r, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.TestCredentials(r.Context(), chi.URLParam(r, "slug"), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"valid": true})
	}
}
