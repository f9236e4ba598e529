package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

//go:embed locales/*.json
var locales embed.FS

var (
	translations = make(map[string]map[string]string)
	loadOnce     sync.Once
	loadErr      error
)

var DefaultLang = "en"

var Languages = []string{"en", "fr"}

// LoadTranslations parses the embedded locale files. It is safe to call more
// than once; T calls it lazily.
func LoadTranslations() error {
	loadOnce.Do(func() {
		for _, lang := range Languages {
			data, err := locales.ReadFile(fmt.Sprintf("locales/%s.json", lang))
			if err != nil {
				loadErr = err
				return
			}
			var t map[string]string
			if err := json.Unmarshal(data, &t); err != nil {
				loadErr = fmt.Errorf("locale %s: %w", lang, err)
				return
			}
			translations[lang] = t
		}
	})
	return loadErr
}

func T(lang, key string) string {
	_ = LoadTranslations()
	if t, ok := translations[lang]; ok {
		if val, ok := t[key]; ok {
			return val
		}
	}
	// Fallback to English
	if lang != DefaultLang {
		return T(DefaultLang, key)
	}
	return key
}

func DetectLanguage(r *http.Request) string {
	_ = LoadTranslations()
	accept := r.Header.Get("Accept-Language")
	if accept != "" {
		// Example: fr-CH, fr;q=0.9, en;q=0.8, de;q=0.7, *;q=0.5
		parts := strings.Split(accept, ",")
		for _, part := range parts {
			lang := strings.TrimSpace(strings.Split(part, ";")[0])
			if len(lang) >= 2 {
				lang = strings.ToLower(lang[:2])
				if _, ok := translations[lang]; ok {
					return lang
				}
			}
		}
	}

	return DefaultLang
}
