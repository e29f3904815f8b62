// Package destination builds and parses the hosted application's URL contract.
package destination

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"smartlauncher/internal/models"
)

const (
	ParamFrom    = "from"
	ParamTool    = "tool"
	ParamSession = "session"
	ParamMethod  = "method"
	ParamURL     = "url"
	ParamWelcome = "welcome"
	ParamTab     = "tab"

	FromExtension = "extension"
)

// Params are the query parameters the launcher hands to the destination.
type Params struct {
	Tool      string
	SessionID string
	Method    models.TransferMethod
	SourceURL string
	Welcome   bool
	TabID     string
}

// Builder produces destination URLs for one base address and language.
type Builder struct {
	base     *url.URL
	language string
}

func NewBuilder(baseURL, language string) (*Builder, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse destination url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("destination url must be http(s): %s", baseURL)
	}
	return &Builder{base: u, language: language}, nil
}

// Build always sets from=extension; session and method travel together.
func (b *Builder) Build(p Params) string {
	u := *b.base
	if b.language != "" && b.language != "en" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + b.language
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := url.Values{}
	q.Set(ParamFrom, FromExtension)
	if p.Tool != "" {
		q.Set(ParamTool, p.Tool)
	}
	if p.SessionID != "" {
		q.Set(ParamSession, p.SessionID)
		if p.Method != "" {
			q.Set(ParamMethod, string(p.Method))
		}
	}
	if p.SourceURL != "" {
		q.Set(ParamURL, p.SourceURL)
	}
	if p.Welcome {
		q.Set(ParamWelcome, "true")
	}
	if p.TabID != "" {
		q.Set(ParamTab, p.TabID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ErrNotFromExtension is returned by Parse for pages not opened by the launcher.
var ErrNotFromExtension = errors.New("page was not opened by the launcher")

// Parse reads the contract back out of a page URL.
func Parse(raw string) (Params, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Params{}, fmt.Errorf("parse page url: %w", err)
	}
	q := u.Query()
	if q.Get(ParamFrom) != FromExtension {
		return Params{}, ErrNotFromExtension
	}
	return Params{
		Tool:      q.Get(ParamTool),
		SessionID: q.Get(ParamSession),
		Method:    models.TransferMethod(q.Get(ParamMethod)),
		SourceURL: q.Get(ParamURL),
		Welcome:   q.Get(ParamWelcome) == "true",
		TabID:     q.Get(ParamTab),
	}, nil
}

// WithLanguage returns a builder for the same base in another language.
func (b *Builder) WithLanguage(language string) *Builder {
	return &Builder{base: b.base, language: language}
}
