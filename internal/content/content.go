// Package content serves the static FAQ, contact and release-note pages.
package content

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

// Localized is a text with one value per language code.
type Localized map[string]string

// In returns the text for lang, falling back to English.
func (l Localized) In(lang string) string {
	if s, ok := l[lang]; ok && s != "" {
		return s
	}
	return l["en"]
}

// LocalizedList is a list of texts per language code.
type LocalizedList map[string][]string

// In returns the list for lang, falling back to English.
func (l LocalizedList) In(lang string) []string {
	if s, ok := l[lang]; ok && len(s) > 0 {
		return s
	}
	return l["en"]
}

type faqFile []struct {
	Question Localized `yaml:"question"`
	Answer   Localized `yaml:"answer"`
}

type contactFile struct {
	Telegram    string    `yaml:"telegram"`
	TelegramURL string    `yaml:"telegram_url"`
	Email       string    `yaml:"email"`
	Note        Localized `yaml:"note"`
}

type updatesFile []struct {
	Version string        `yaml:"version"`
	Date    string        `yaml:"date"`
	Changes LocalizedList `yaml:"changes"`
}

// FAQItem is one question and answer.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Contact lists the support channels.
type Contact struct {
	Telegram    string `json:"telegram"`
	TelegramURL string `json:"telegramUrl"`
	Email       string `json:"email"`
	Note        string `json:"note"`
}

// Update is one release note entry.
type Update struct {
	Version  string   `json:"version"`
	Date     string   `json:"date"`
	IsLatest bool     `json:"isLatest"`
	Changes  []string `json:"changes"`
}

// Catalog holds the parsed content.
type Catalog struct {
	faq     faqFile
	contact contactFile
	updates updatesFile
}

// Load parses the embedded content. A non-empty dir overrides individual files.
func Load(dir string) (*Catalog, error) {
	var fsys fs.FS = embedded
	c := &Catalog{}
	files := []struct {
		name string
		dst  any
	}{
		{"faq.yaml", &c.faq},
		{"contact.yaml", &c.contact},
		{"updates.yaml", &c.updates},
	}
	for _, f := range files {
		data, err := readFile(fsys, dir, f.name)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, f.dst); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
	}
	slog.Debug("content loaded", "faq", len(c.faq), "updates", len(c.updates))
	return c, nil
}

func readFile(fsys fs.FS, dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			slog.Info("content override", "file", name, "dir", dir)
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	data, err := fs.ReadFile(fsys, "data/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// FAQ returns the questions in lang.
func (c *Catalog) FAQ(lang string) []FAQItem {
	out := make([]FAQItem, 0, len(c.faq))
	for _, item := range c.faq {
		out = append(out, FAQItem{Question: item.Question.In(lang), Answer: item.Answer.In(lang)})
	}
	return out
}

// Contact returns the support channels with the note in lang.
func (c *Catalog) Contact(lang string) Contact {
	return Contact{
		Telegram:    c.contact.Telegram,
		TelegramURL: c.contact.TelegramURL,
		Email:       c.contact.Email,
		Note:        c.contact.Note.In(lang),
	}
}

// Updates returns the release notes, newest first, in lang.
func (c *Catalog) Updates(lang string) []Update {
	out := make([]Update, 0, len(c.updates))
	for i, u := range c.updates {
		out = append(out, Update{
			Version:  u.Version,
			Date:     u.Date,
			IsLatest: i == 0,
			Changes:  u.Changes.In(lang),
		})
	}
	return out
}
