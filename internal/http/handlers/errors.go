package handlers

import (
	"net/http"

	"genstudio/internal/domain"
	"genstudio/internal/middleware"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

// StatusFor maps an error kind to its HTTP status. Unclassified errors are 500.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const kindInternal domain.Kind = "internal"

var messages = map[string]map[domain.Kind]string{
	"en": {
		domain.KindUnauthorized:        "Please sign in to continue.",
		domain.KindForbidden:           "You do not have access to this resource.",
		domain.KindNotFound:            "The requested resource was not found.",
		domain.KindRateLimit:           "Too many requests. Please try again shortly.",
		domain.KindTimeout:             "The request took too long. Please try again.",
		domain.KindUpstreamUnavailable: "The generation service is unavailable. Please try again later.",
		kindInternal:                   "Something went wrong. Please try again.",
	},
	"id": {
		domain.KindUnauthorized:        "Silakan masuk untuk melanjutkan.",
		domain.KindForbidden:           "Anda tidak memiliki akses ke sumber ini.",
		domain.KindNotFound:            "Sumber yang diminta tidak ditemukan.",
		domain.KindRateLimit:           "Terlalu banyak permintaan. Silakan coba lagi sebentar lagi.",
		domain.KindTimeout:             "Permintaan terlalu lama. Silakan coba lagi.",
		domain.KindUpstreamUnavailable: "Layanan generasi sedang tidak tersedia. Silakan coba lagi nanti.",
		kindInternal:                   "Terjadi kesalahan. Silakan coba lagi.",
	},
}

// Localize returns the display message of kind in locale, defaulting to English.
func Localize(locale string, kind domain.Kind) string {
	table, ok := messages[locale]
	if !ok {
		table = messages["en"]
	}
	if msg, ok := table[kind]; ok {
		return msg
	}
	return messages["en"][kindInternal]
}

// error writes err as a JSON error. Validation failures keep their specific
// message; every other kind answers with a localized message. Internal causes
// are only logged.
func (a *App) error(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	detail := errorDetail{Kind: kind}
	switch {
	case kind == "":
		detail.Kind = kindInternal
		detail.Message = Localize(locale, kindInternal)
	case kind == domain.KindBadRequest:
		detail.Message = domain.SafeMessage(err)
	default:
		detail.Message = Localize(locale, kind)
	}

	ev := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = a.Logger.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("kind", string(detail.Kind)).
		Int("status", status).
		Msg("request failed")

	a.json(w, status, errorBody{Error: detail})
}
