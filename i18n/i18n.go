// Package i18n provides the display-text lookup handed to components that
// produce human-readable output. Catalog keys are the English format strings
// themselves, so the base locale needs no messages and unknown keys print as
// written.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the fallback when a requested locale has no catalog.
const BaseLocale = "en-US"

// Translator is the read-only lookup injected into the interpreter and the
// providers.
type Translator interface {
	// Sprintf formats a message through the locale catalog.
	Sprintf(format string, args ...any) string
	// Name translates an identifier within a category (weather, terrain,
	// status, ...), returning the input when no translation exists.
	Name(category, text string) string
}

//go:embed locales/*/*.yaml
var embedded embed.FS

type catalogFile struct {
	Locale    string                       `yaml:"locale"`
	Namespace string                       `yaml:"namespace"`
	Messages  map[string]string            `yaml:"messages"`
	Names     map[string]map[string]string `yaml:"names"`
}

// Catalog is a Translator bound to one locale.
type Catalog struct {
	locale  string
	printer *message.Printer
	names   map[string]map[string]string
	base    map[string]map[string]string
}

// New loads the embedded catalogs and binds them to locale, falling back to
// the base locale when it is unknown.
func New(locale string) (*Catalog, error) {
	return NewFromFS(embedded, locale)
}

// NewFromFS loads locales/<locale>/<namespace>.yaml files from fsys.
func NewFromFS(fsys fs.FS, locale string) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	sort.Strings(paths)

	builder := catalog.NewBuilder(catalog.Fallback(language.MustParse(BaseLocale)))
	names := map[string]map[string]map[string]string{}
	for _, path := range paths {
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		file.Locale = strings.TrimSpace(file.Locale)
		tag, err := language.Parse(file.Locale)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: parse locale %q: %w", path, file.Locale, err)
		}
		for key, msg := range file.Messages {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("catalog %s: key %q: %w", path, key, err)
			}
		}
		if names[file.Locale] == nil {
			names[file.Locale] = map[string]map[string]string{}
		}
		for category, entries := range file.Names {
			if names[file.Locale][category] == nil {
				names[file.Locale][category] = map[string]string{}
			}
			for k, v := range entries {
				names[file.Locale][category][k] = v
			}
		}
	}

	locale = strings.TrimSpace(locale)
	if _, ok := names[locale]; !ok {
		locale = BaseLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	return &Catalog{
		locale:  locale,
		printer: message.NewPrinter(tag, message.Catalog(builder)),
		names:   names[locale],
		base:    names[BaseLocale],
	}, nil
}

func (c *Catalog) Locale() string {
	return c.locale
}

func (c *Catalog) Sprintf(format string, args ...any) string {
	return c.printer.Sprintf(format, args...)
}

func (c *Catalog) Name(category, text string) string {
	if v, ok := c.names[category][text]; ok {
		return v
	}
	if v, ok := c.base[category][text]; ok {
		return v
	}
	return text
}

// Plain formats with fmt and never translates. Useful where no catalog is
// wired.
type Plain struct{}

func (Plain) Sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func (Plain) Name(_, text string) string {
	return text
}
