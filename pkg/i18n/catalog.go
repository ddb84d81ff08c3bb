// Package i18n holds the English and French text the Gap Scan form shows for
// validation failures and submission outcomes.
package i18n

import (
	"fmt"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
)

// Supported language tags.
const (
	English = "en"
	French  = "fr"
)

// Message keys shared outside validation.
const (
	KeyInvalidField       = "field.invalid"
	KeyConfigurationError = "error.configuration"
	KeyTransportError     = "error.transport"
	KeyInProgress         = "error.in_progress"
	KeySuccessTitle       = "success.title"
	KeySuccessDescription = "success.description"
)

var messages = map[string]map[string]string{
	English: {
		"name.min":                "Name must be at least 2 characters",
		"name.max":                "Name must be at most 100 characters",
		"email.required":          "Please enter a valid email",
		"email.email":             "Please enter a valid email",
		"email.max":               "Email must be at most 255 characters",
		"company.min":             "Company name is required",
		"company.max":             "Company name must be at most 100 characters",
		"industry.required":       "Please select your industry",
		"teamSize.required":       "Please select team size",
		"challenges.min":          "Please select at least one challenge",
		"challenges.unique":       "Each challenge can only be selected once",
		"challenges.challenge":    "Please pick challenges from the list",
		"biggestTimeConsumer.min": "Please tell us what takes the most time",
		"biggestTimeConsumer.max": "Please keep it under 200 characters",
		"automationWish.min":      "Please tell us what you'd like to automate",
		"automationWish.max":      "Please keep it under 150 characters",
		"timeline.required":       "Please select a timeline",
		"timeline.oneof":          "Please select a timeline",
		"additionalNotes.max":     "Please keep it under 200 characters",
		KeyInvalidField:           "{0} is invalid",
		KeyConfigurationError:     "Webhook configuration missing. Please contact support.",
		KeyTransportError:         "Failed to submit form. Please try again later.",
		KeyInProgress:             "Your answers are already being sent.",
		KeySuccessTitle:           "Got it! Analyzing your business...",
		KeySuccessDescription:     "Check your email in the next 10 minutes.",
	},
	French: {
		"name.min":                "Ton nom doit contenir au moins 2 caractères",
		"name.max":                "Ton nom doit contenir au plus 100 caractères",
		"email.required":          "Entre un email valide",
		"email.email":             "Entre un email valide",
		"email.max":               "L'email doit contenir au plus 255 caractères",
		"company.min":             "Le nom de l'entreprise est requis",
		"company.max":             "Le nom de l'entreprise doit contenir au plus 100 caractères",
		"industry.required":       "Choisis ton secteur",
		"teamSize.required":       "Choisis la taille de ton équipe",
		"challenges.min":          "Choisis au moins un défi",
		"challenges.unique":       "Chaque défi ne peut être choisi qu'une fois",
		"challenges.challenge":    "Choisis les défis dans la liste",
		"biggestTimeConsumer.min": "Dis-nous ce qui te prend le plus de temps",
		"biggestTimeConsumer.max": "Reste sous 200 caractères",
		"automationWish.min":      "Dis-nous ce que tu aimerais automatiser",
		"automationWish.max":      "Reste sous 150 caractères",
		"timeline.required":       "Choisis un délai",
		"timeline.oneof":          "Choisis un délai",
		"additionalNotes.max":     "Reste sous 200 caractères",
		KeyInvalidField:           "{0} n'est pas valide",
		KeyConfigurationError:     "Configuration du webhook manquante. Contacte le support.",
		KeyTransportError:         "Échec de l'envoi du formulaire. Réessaie plus tard.",
		KeyInProgress:             "Tes réponses sont déjà en cours d'envoi.",
		KeySuccessTitle:           "C'est noté ! J'analyse ton business...",
		KeySuccessDescription:     "Checke ton email dans les 10 prochaines minutes.",
	},
}

// Catalog resolves message keys per language.
type Catalog struct {
	uni *ut.UniversalTranslator
}

// NewCatalog builds the en/fr translators and loads every message.
func NewCatalog() (*Catalog, error) {
	english := en.New()
	uni := ut.New(english, english, fr.New())

	for lang, table := range messages {
		trans, ok := uni.GetTranslator(lang)
		if !ok {
			return nil, fmt.Errorf("i18n: no translator for %q", lang)
		}
		for key, text := range table {
			if err := trans.Add(key, text, false); err != nil {
				return nil, fmt.Errorf("i18n: adding %s/%s: %w", lang, key, err)
			}
		}
	}
	return &Catalog{uni: uni}, nil
}

// Normalize reduces a language tag such as "fr-CA" to a supported
// two-letter tag, falling back to English.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch lang {
	case French:
		return French
	default:
		return English
	}
}

// Translator returns the translator for lang.
func (c *Catalog) Translator(lang string) ut.Translator {
	trans, _ := c.uni.GetTranslator(Normalize(lang))
	return trans
}

// T returns the message for key in lang. Unknown keys fall back to English
// and then to the key itself.
func (c *Catalog) T(lang, key string, params ...string) string {
	if msg, err := c.Translator(lang).T(key, params...); err == nil {
		return msg
	}
	if msg, err := c.Translator(English).T(key, params...); err == nil {
		return msg
	}
	return key
}

// Has reports whether key exists for lang.
func (c *Catalog) Has(lang, key string) bool {
	// T indexes params by placeholder, so pad them.
	_, err := c.Translator(lang).T(key, "", "", "")
	return err == nil
}
