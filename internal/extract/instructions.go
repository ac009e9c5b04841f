package extract

import (
	"regexp"
	"strings"
)

// Field names the engine knows how to fill.
const (
	FieldName        = "name"
	FieldWebsite     = "website"
	FieldDescription = "description"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldLocation    = "location"
	FieldPrice       = "price"
)

// fieldKeywords map instruction words to fields, in output order.
var fieldKeywords = []struct {
	field    string
	keywords []string
}{
	{FieldWebsite, []string{"website", "web site", "url", "link", "homepage", "site"}},
	{FieldDescription, []string{"description", "describe", "summary", "about", "details", "bio"}},
	{FieldEmail, []string{"email", "e-mail", "mail"}},
	{FieldPhone, []string{"phone", "telephone", "tel", "mobile"}},
	{FieldLocation, []string{"location", "address", "city", "country", "where", "hq", "headquarters"}},
	{FieldPrice, []string{"price", "cost", "pricing", "fee"}},
}

var (
	selectorDirective = regexp.MustCompile(`(?i)selector\s*[:=]\s*("[^"]+"|'[^']+'|\S+)`)
	backtickSelector  = regexp.MustCompile("`([^`]+)`")
	bareSelector      = regexp.MustCompile(`^[.#][A-Za-z_][\w-]*(?:[.#>\s][\w.#-]*)*$`)
	wordPattern       = regexp.MustCompile(`[a-z][a-z-]*`)
)

// Plan is what the engine will look for.
type Plan struct {
	Fields    []string
	Selectors []string
}

// ParseInstructions derives the requested fields and any declared selectors.
// name is always requested first.
func ParseInstructions(instructions string) Plan {
	lower := strings.ToLower(instructions)
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(lower, -1) {
		words[strings.TrimSuffix(w, "s")] = struct{}{}
		words[w] = struct{}{}
	}

	plan := Plan{Fields: []string{FieldName}}
	for _, fk := range fieldKeywords {
		for _, kw := range fk.keywords {
			if mentions(lower, words, kw) {
				plan.Fields = append(plan.Fields, fk.field)
				break
			}
		}
	}
	plan.Selectors = declaredSelectors(instructions)
	return plan
}

func mentions(lower string, words map[string]struct{}, kw string) bool {
	if strings.Contains(kw, " ") || strings.Contains(kw, "-") {
		return strings.Contains(lower, kw)
	}
	_, ok := words[kw]
	return ok
}

func declaredSelectors(instructions string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.Trim(strings.TrimSpace(s), `"'`)
		s = strings.TrimRight(s, ",;")
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, m := range selectorDirective.FindAllStringSubmatch(instructions, -1) {
		add(m[1])
	}
	for _, m := range backtickSelector.FindAllStringSubmatch(instructions, -1) {
		add(m[1])
	}
	for _, tok := range strings.Fields(instructions) {
		tok = strings.TrimRight(tok, ",;:)")
		if bareSelector.MatchString(tok) && !strings.HasSuffix(tok, ".") {
			add(tok)
		}
	}
	return out
}
