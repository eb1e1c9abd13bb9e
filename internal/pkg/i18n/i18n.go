package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundle        *i18n.Bundle
	matcher       language.Matcher
	defaultLocale = "en"

	loadOnce sync.Once
	loadErr  error
)

// Init loads the embedded message files and sets the locale used when a
// request does not negotiate one.
func Init(defLocale string) error {
	if defLocale != "" {
		defaultLocale = defLocale
	}
	return load()
}

func load() error {
	loadOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			loadErr = fmt.Errorf("failed to read locales: %w", err)
			return
		}
		for _, entry := range entries {
			data, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
			if err != nil {
				loadErr = fmt.Errorf("failed to read locale %s: %w", entry.Name(), err)
				return
			}
			if _, err := b.ParseMessageFileBytes(data, entry.Name()); err != nil {
				loadErr = fmt.Errorf("failed to parse locale %s: %w", entry.Name(), err)
				return
			}
		}

		bundle = b
		matcher = language.NewMatcher(b.LanguageTags())
		slog.Debug("i18n bundle loaded", "languages", len(b.LanguageTags()))
	})
	return loadErr
}

// DefaultLocale returns the fallback locale.
func DefaultLocale() string {
	return defaultLocale
}

// Negotiate picks the best supported locale for an Accept-Language header value.
func Negotiate(acceptLanguage string) string {
	if acceptLanguage == "" || load() != nil {
		return defaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return defaultLocale
	}
	tag, _, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return defaultLocale
	}
	base, _ := tag.Base()
	return base.String()
}

func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxKey{}, locale)
}

func LocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(ctxKey{}).(string); ok && locale != "" {
		return locale
	}
	return defaultLocale
}

// T translates messageID for the locale stored in ctx. Unknown IDs come back unchanged.
func T(ctx context.Context, messageID string, templateData ...map[string]any) string {
	if err := load(); err != nil {
		return messageID
	}

	localizer := i18n.NewLocalizer(bundle, LocaleFromContext(ctx), defaultLocale)

	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(templateData) > 0 {
		cfg.TemplateData = templateData[0]
	}

	msg, err := localizer.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}
