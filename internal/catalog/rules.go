package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/starford/mailwright/internal/apperr"
)

var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}){1,2}$`)

// ruleEnv is the environment a field rule is evaluated against.
type ruleEnv struct {
	Value  string            `expr:"value"`
	Field  string            `expr:"field"`
	Fields map[string]string `expr:"fields"`
}

type rule struct {
	source  string
	program *vm.Program
}

func compileRule(source string) (*rule, error) {
	program, err := expr.Compile(source, expr.Env(ruleEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", source, err)
	}
	return &rule{source: source, program: program}, nil
}

func (r *rule) check(env ruleEnv) error {
	out, err := expr.Run(r.program, env)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.source, err)
	}
	if ok, _ := out.(bool); !ok {
		return errors.New("does not satisfy " + r.source)
	}
	return nil
}

// Validate checks values against the template. Malformed values (over the
// maximum length, wrong color format, failing rule) are always reported;
// missing required fields only when requireAll is set. It returns nil or a
// *apperr.ValidationError.
func (t *Template) Validate(fields, images map[string]string, requireAll bool) error {
	verr := &apperr.ValidationError{Malformed: map[string]string{}}
	for _, f := range t.Fields {
		var value string
		if f.IsImage() {
			value = images[f.ID]
		} else {
			value = fields[f.ID]
		}
		if requireAll && f.Required {
			if err := validation.Validate(strings.TrimSpace(value), validation.Required); err != nil {
				verr.Missing = append(verr.Missing, f.ID)
				continue
			}
		}
		if value == "" {
			continue
		}
		if err := validation.Validate(value, t.valueRules(f)...); err != nil {
			verr.Malformed[f.ID] = err.Error()
			continue
		}
		if r, ok := t.rules[f.ID]; ok {
			if err := r.check(ruleEnv{Value: value, Field: f.ID, Fields: fields}); err != nil {
				verr.Malformed[f.ID] = err.Error()
			}
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func (t *Template) valueRules(f Field) []validation.Rule {
	var rules []validation.Rule
	if f.MaxLength > 0 {
		rules = append(rules, validation.RuneLength(0, f.MaxLength))
	}
	if f.Kind == KindColor {
		rules = append(rules, validation.Match(colorRe).Error("must be a hex color"))
	}
	return rules
}
