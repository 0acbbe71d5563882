// loader.go — каталоги переводов портала, встроенные в бинарник:
// locales/id.json (язык по умолчанию) и locales/en.json.
package i18n

import (
	"embed"
	"fmt"
	"log/slog"
	"sort"
)

// localeFS — JSON-каталоги переводов страниц портала.
//
//go:embed locales/*.json
var localeFS embed.FS

// Languages возвращает коды языков портала в порядке SupportedLanguages.
func Languages() []string {
	langs := make([]string, 0, len(SupportedLanguages))
	for _, tag := range SupportedLanguages {
		base, _ := tag.Base()
		langs = append(langs, base.String())
	}
	return langs
}

// LoadFromEmbedFS загружает каталог locales/<lang>.json для каждого языка портала.
// Ключи, которых нет в каталоге языка, но есть в каталоге DefaultLang,
// логируются: на страницах они покажутся на индонезийском.
func LoadFromEmbedFS(bundle *Bundle, logger *slog.Logger) error {
	langs := Languages()
	for _, lang := range langs {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}
		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	for _, lang := range langs {
		if missing := bundle.MissingKeys(lang); len(missing) > 0 {
			logger.Warn("В каталоге переводов нет ключей",
				slog.String("lang", lang),
				slog.Any("keys", missing),
			)
		}
	}

	logger.Info("i18n каталоги загружены", slog.Int("languages", len(langs)))
	return nil
}

// MissingKeys возвращает отсортированные ключи каталога DefaultLang,
// отсутствующие в каталоге lang.
func (b *Bundle) MissingKeys(lang string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var missing []string
	catalog := b.catalogs[lang]
	for key := range b.catalogs[DefaultLang] {
		if _, ok := catalog[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
