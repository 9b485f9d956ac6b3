package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de dominio. Viven en un paquete propio para evitar ciclos entre
// jwt, card, lookup y http.

var (
	CardsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cards_published_total",
		Help: "Publicaciones de cards por resultado",
	}, []string{"result"}) // ok|duplicate|signature|network|error

	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokens_issued_total",
		Help: "Tokens emitidos por resultado",
	}, []string{"result"}) // ok|invalid|unavailable|error

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_verifications_total",
		Help: "Verificaciones de tokens por resultado",
	}, []string{"result"}) // valid|invalid

	CardLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "card_lookups_total",
		Help: "Cards resueltas en lookups por origen",
	}, []string{"source"}) // cache|directory
)

// Result labels compartidos.
const (
	ResultOK          = "ok"
	ResultInvalid     = "invalid"
	ResultValid       = "valid"
	ResultDuplicate   = "duplicate"
	ResultSignature   = "signature"
	ResultNetwork     = "network"
	ResultUnavailable = "unavailable"
	ResultError       = "error"

	SourceCache     = "cache"
	SourceDirectory = "directory"
)

// Register registra las métricas de dominio en el registry dado (default si nil).
// Ignora AlreadyRegisteredError para que sea idempotente.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{CardsPublished, TokensIssued, TokenVerifications, CardLookups} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
