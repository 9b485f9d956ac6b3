// Package controllers traduce HTTP a llamadas del directorio y del issuer.
package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/directory"
	httperrors "github.com/dropDatabas3/hellocards/internal/http/errors"
	"github.com/dropDatabas3/hellocards/internal/http/helpers"
	mw "github.com/dropDatabas3/hellocards/internal/http/middlewares"
)

// CardService es la parte de directory.Service que expone el API.
type CardService interface {
	Register(ctx context.Context, tokenIdentity string, raw card.RawCard) (card.RawCard, error)
	Get(ctx context.Context, id string) (card.RawCard, bool, error)
	Search(ctx context.Context, identities []string) ([]card.RawCard, error)
	Outdated(ctx context.Context, ids []string) ([]string, error)
	Revoke(ctx context.Context, tokenIdentity, id string) error
}

var _ CardService = (*directory.Service)(nil)

type CardsController struct {
	service CardService
}

func NewCardsController(s CardService) *CardsController {
	return &CardsController{service: s}
}

// Publish maneja POST /card/v5 (requiere token).
func (c *CardsController) Publish(w http.ResponseWriter, r *http.Request) {
	tok, ok := mw.GetToken(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}
	var raw card.RawCard
	if err := helpers.ReadJSON(w, r, &raw); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	out, err := c.service.Register(r.Context(), tok.Identity, raw)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, directory.CardResponse{RawCard: out})
}

// Get maneja GET /card/v5/{id}
func (c *CardsController) Get(w http.ResponseWriter, r *http.Request) {
	raw, outdated, err := c.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, directory.CardResponse{RawCard: raw, IsOutdated: outdated})
}

// Search maneja POST /card/v5/actions/search
func (c *CardsController) Search(w http.ResponseWriter, r *http.Request) {
	var req directory.SearchRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	cards, err := c.service.Search(r.Context(), req.Identities)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, cards)
}

// Outdated maneja POST /card/v5/actions/outdated
func (c *CardsController) Outdated(w http.ResponseWriter, r *http.Request) {
	var req directory.OutdatedRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	ids, err := c.service.Outdated(r.Context(), req.CardIDs)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, directory.OutdatedResponse{CardIDs: ids})
}

// Revoke maneja DELETE /card/v5/{id} (requiere token del dueño).
func (c *CardsController) Revoke(w http.ResponseWriter, r *http.Request) {
	tok, ok := mw.GetToken(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}
	if err := c.service.Revoke(r.Context(), tok.Identity, chi.URLParam(r, "id")); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
