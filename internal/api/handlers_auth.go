// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/riskgrid/internal/auth"
	"github.com/tomtom215/riskgrid/internal/models"
	"github.com/tomtom215/riskgrid/internal/validation"
)

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// Token exchanges a username and password for a bearer token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeJSON(w, r, &req, maxSmallBody) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, r, verr)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, r, http.StatusUnauthorized, models.ErrCodeAuthentication, "Invalid credentials", nil)
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, token, responseMeta{})
}
