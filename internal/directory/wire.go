package directory

import "github.com/dropDatabas3/hellocards/internal/card"

// Cuerpos JSON del API /card/v5, compartidos por los handlers y Client.

type CardResponse struct {
	card.RawCard
	IsOutdated bool `json:"is_outdated,omitempty"`
}

type SearchRequest struct {
	Identities []string `json:"identities"`
}

type OutdatedRequest struct {
	CardIDs []string `json:"card_ids"`
}

type OutdatedResponse struct {
	CardIDs []string `json:"card_ids"`
}

// ErrorBody es el cuerpo de error del API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// CodeSignatureInvalid acompaña al 422 cuando el directorio rechaza una firma.
const CodeSignatureInvalid = "SIGNATURE_INVALID"
