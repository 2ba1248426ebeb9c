package apperr

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supported = []language.Tag{language.English, language.German, language.Spanish}

var matcher = language.NewMatcher(supported)

var translations = map[language.Tag]map[string]string{
	language.German: {
		"invalid request":                      "Ungültige Anfrage",
		"not found":                            "Nicht gefunden",
		"forbidden":                            "Zugriff verweigert",
		"you cannot suspend your own practice": "Sie können Ihre eigene Praxis nicht sperren",
		"you cannot delete your only practice": "Sie können Ihre einzige Praxis nicht löschen",
		"failed to cancel subscription":        "Das Abonnement konnte nicht gekündigt werden",
		"invalid signature":                    "Ungültige Signatur",
		"authentication required":              "Anmeldung erforderlich",
		"request body too large":               "Der Anfragetext ist zu groß",
		"internal error":                       "Interner Fehler",
		"%s is required":                       "%s ist erforderlich",
		"%s is invalid":                        "%s ist ungültig",
		"%s must be one of: %s":                "%s muss einer der folgenden Werte sein: %s",
		"%s must be at most %d characters":     "%s darf höchstens %d Zeichen lang sein",
		"%s must be in the future":             "%s muss in der Zukunft liegen",
		"request body must be valid JSON":      "Der Anfragetext muss gültiges JSON sein",
	},
	language.Spanish: {
		"invalid request":                      "Solicitud no válida",
		"not found":                            "No encontrado",
		"forbidden":                            "Acceso denegado",
		"you cannot suspend your own practice": "No puede suspender su propia consulta",
		"you cannot delete your only practice": "No puede eliminar su única consulta",
		"failed to cancel subscription":        "No se pudo cancelar la suscripción",
		"invalid signature":                    "Firma no válida",
		"authentication required":              "Se requiere autenticación",
		"request body too large":               "El cuerpo de la solicitud es demasiado grande",
		"internal error":                       "Error interno",
		"%s is required":                       "%s es obligatorio",
		"%s is invalid":                        "%s no es válido",
		"%s must be one of: %s":                "%s debe ser uno de: %s",
		"%s must be at most %d characters":     "%s debe tener como máximo %d caracteres",
		"%s must be in the future":             "%s debe estar en el futuro",
		"request body must be valid JSON":      "El cuerpo de la solicitud debe ser JSON válido",
	},
}

func init() {
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := message.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
}

// MatchLanguage picks the best supported language for an Accept-Language
// header, defaulting to English.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Localize renders the client-facing message of e in tag.
func (e *Error) Localize(tag language.Tag) string {
	return message.NewPrinter(tag).Sprintf(e.Format, e.Args...)
}
