package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/mailwright/internal/apperr"
)

func builtinCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	return c
}

func TestBuiltinTemplates(t *testing.T) {
	c := builtinCatalog(t)
	keys := []string{}
	for _, tmpl := range c.List() {
		keys = append(keys, tmpl.Key)
	}
	if got := strings.Join(keys, ","); got != "newsletter,product-launch,webinar-invite" {
		t.Errorf("keys = %q", got)
	}
}

func TestDefaultsExcludePlaceholders(t *testing.T) {
	tmpl, err := builtinCatalog(t).Get("webinar-invite")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fields, images := tmpl.Defaults()
	want := map[string]string{"eyebrow": "Webinar", "cta": "Register today", "accent": "#3b5bdb"}
	if len(fields) != len(want) {
		t.Fatalf("defaults = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%q] = %q, want %q", k, fields[k], v)
		}
	}
	if _, ok := fields["headline"]; ok {
		t.Error("placeholder leaked into defaults")
	}
	if len(images) != 0 {
		t.Errorf("images = %v, want none", images)
	}

	headline, _ := tmpl.Field("headline")
	if _, ok := headline.DefaultValue(); ok {
		t.Error("headline should not have a default")
	}
	if headline.Hint() != "Name your webinar" {
		t.Errorf("hint = %q", headline.Hint())
	}
}

func TestGetUnknownTemplate(t *testing.T) {
	_, err := builtinCatalog(t).Get("nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestParseRejectsDefaultAndPlaceholder(t *testing.T) {
	_, err := Parse([]byte(`
templates:
  - key: bad
    fields:
      - id: x
        default: a
        placeholder: b
`))
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("err = %v, want mutual exclusion error", err)
	}
}

func TestParseRejectsBadRule(t *testing.T) {
	_, err := Parse([]byte(`
templates:
  - key: bad
    fields:
      - id: x
        rule: "value +"
`))
	if err == nil {
		t.Error("expected compile error")
	}
}

func TestDeclaredDropsLegacyKeys(t *testing.T) {
	tmpl, _ := builtinCatalog(t).Get("webinar-invite")
	fields, images := tmpl.Declared(
		map[string]string{"headline": "Hi", "legacy_title": "old", "hero": "not a value"},
		map[string]string{"hero": "https://img/1.png", "banner": "https://img/2.png"},
	)
	if len(fields) != 1 || fields["headline"] != "Hi" {
		t.Errorf("fields = %v", fields)
	}
	if len(images) != 1 || images["hero"] == "" {
		t.Errorf("images = %v", images)
	}
}

func TestValidate(t *testing.T) {
	tmpl, _ := builtinCatalog(t).Get("webinar-invite")
	defaults, _ := tmpl.Defaults()

	if err := tmpl.Validate(defaults, nil, false); err != nil {
		t.Errorf("defaults should be well formed: %v", err)
	}

	err := tmpl.Validate(defaults, nil, true)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if strings.Join(verr.Missing, ",") != "headline,date,cta_url" {
		t.Errorf("missing = %v", verr.Missing)
	}

	bad := map[string]string{
		"eyebrow": strings.Repeat("x", 25),
		"cta_url": "ftp://example.com",
		"accent":  "blue",
	}
	err = tmpl.Validate(bad, nil, false)
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, id := range []string{"eyebrow", "cta_url", "accent"} {
		if _, ok := verr.Malformed[id]; !ok {
			t.Errorf("expected %s to be malformed: %v", id, verr.Malformed)
		}
	}
}

func TestGroupsKeepOrder(t *testing.T) {
	tmpl, _ := builtinCatalog(t).Get("webinar-invite")
	g := tmpl.Groups()
	if strings.Join(g["header"], ",") != "eyebrow,headline" {
		t.Errorf("header group = %v", g["header"])
	}
}
