package classify

import (
	"fmt"
	"strings"

	"github.com/eshaffer321/fleetclient-go/internal/types"
	"golang.org/x/text/language"
)

// supported lists the locales with a message catalog. The first entry is the fallback.
var supported = []language.Tag{
	language.English,
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

// catalogs holds user-safe messages per locale. A "%d" verb receives the HTTP status.
var catalogs = map[language.Tag]map[types.ErrorKind]string{
	language.English: {
		types.KindNetwork:     "Unable to reach the server. Check your connection and try again.",
		types.KindTimeout:     "The server took too long to respond. Please try again.",
		types.KindServer:      "The server ran into a problem (%d). Please try again later.",
		types.KindClient:      "The request could not be processed (%d).",
		types.KindAuthExpired: "Session expired, please log in again.",
		types.KindForbidden:   "You do not have permission to perform this action.",
		types.KindRateLimited: "Too many requests. Please wait a moment and try again.",
		types.KindUnknown:     "An unexpected error occurred. Please try again.",
	},
	language.Spanish: {
		types.KindNetwork:     "No se pudo conectar con el servidor. Verifique su conexión e intente de nuevo.",
		types.KindTimeout:     "El servidor tardó demasiado en responder. Intente de nuevo.",
		types.KindServer:      "El servidor tuvo un problema (%d). Intente más tarde.",
		types.KindClient:      "No se pudo procesar la solicitud (%d).",
		types.KindAuthExpired: "Sesión expirada, por favor inicie sesión nuevamente.",
		types.KindForbidden:   "No tiene permisos para realizar esta acción.",
		types.KindRateLimited: "Demasiadas solicitudes. Espere un momento e intente de nuevo.",
		types.KindUnknown:     "Ocurrió un error inesperado. Intente de nuevo.",
	},
}

// Localizer formats user messages for one locale
type Localizer struct {
	tag language.Tag
}

// NewLocalizer picks the best supported locale for the given preferences
// (BCP 47 tags or Accept-Language values). Unknown input falls back to English.
func NewLocalizer(preferences ...string) *Localizer {
	_, idx, _ := matcher.Match(parseTags(preferences)...)
	return &Localizer{tag: supported[idx]}
}

// Language returns the selected locale
func (l *Localizer) Language() language.Tag {
	return l.tag
}

// UserMessage returns the display text for a kind. It is total over all kinds.
func (l *Localizer) UserMessage(kind types.ErrorKind, status int) string {
	catalog, ok := catalogs[l.tag]
	if !ok {
		catalog = catalogs[supported[0]]
	}
	msg, ok := catalog[kind]
	if !ok {
		msg = catalog[types.KindUnknown]
	}
	if strings.Contains(msg, "%d") {
		if status <= 0 {
			return strings.TrimSpace(strings.Replace(msg, " (%d)", "", 1))
		}
		return fmt.Sprintf(msg, status)
	}
	return msg
}

var defaultLocalizer = &Localizer{tag: supported[0]}

// UserMessage formats a message with the default locale
func UserMessage(kind types.ErrorKind, status int) string {
	return defaultLocalizer.UserMessage(kind, status)
}

func parseTags(preferences []string) []language.Tag {
	var tags []language.Tag
	for _, p := range preferences {
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	return tags
}
