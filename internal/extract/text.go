package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/webscout/internal/analyzer"
)

var (
	labelLine   = regexp.MustCompile(`^([A-Za-z][A-Za-z .-]{0,24}?)\s*:\s+(.+)$`)
	properName  = regexp.MustCompile(`^[A-Z][\w&'.-]*(?:\s+(?:[A-Z0-9][\w&'.-]*|&|of|and|de|la|für)){1,5}$`)
	urlToken    = regexp.MustCompile(`https?://[^\s<>"')]+`)
	labelFields = map[string]string{
		"name":         FieldName,
		"company":      FieldName,
		"organization": FieldName,
		"website":      FieldWebsite,
		"web":          FieldWebsite,
		"url":          FieldWebsite,
		"site":         FieldWebsite,
		"description":  FieldDescription,
		"about":        FieldDescription,
		"email":        FieldEmail,
		"e-mail":       FieldEmail,
		"phone":        FieldPhone,
		"tel":          FieldPhone,
		"telephone":    FieldPhone,
		"location":     FieldLocation,
		"address":      FieldLocation,
		"city":         FieldLocation,
		"country":      FieldLocation,
		"price":        FieldPrice,
		"cost":         FieldPrice,
	}
)

// blockAtoms end a rendered text line.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true, atom.Tr: true,
	atom.Td: true, atom.Th: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Ul: true, atom.Ol: true, atom.Dt: true,
	atom.Dd: true, atom.Blockquote: true, atom.Address: true, atom.Figcaption: true,
}

// skipAtoms never contribute text.
var skipAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Head: true, atom.Svg: true,
}

// RenderLines flattens the document body into visible text lines.
func RenderLines(root *html.Node) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if line := analyzer.Collapse(cur.String()); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipAtoms[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
			return
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()
	return lines
}

// textRecords groups rendered lines into records. A name line (labeled or a
// capitalized multi-word phrase) opens a record; labeled lines and bare URLs
// fill it.
func textRecords(lines []string, fields []string) []Record {
	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	var (
		out []Record
		cur map[string]string
	)
	flush := func() {
		if cur == nil {
			return
		}
		rec := make(Record, 0, len(fields))
		for _, f := range fields {
			rec = append(rec, Field{Name: f, Value: cur[f]})
		}
		out = append(out, rec)
		cur = nil
	}
	set := func(field, value string) {
		if !wanted[field] || value == "" {
			return
		}
		if cur == nil || cur[field] != "" {
			flush()
			cur = map[string]string{}
		}
		cur[field] = value
	}

	for _, line := range lines {
		if m := labelLine.FindStringSubmatch(line); m != nil {
			if field, ok := labelFields[strings.ToLower(strings.TrimSpace(m[1]))]; ok {
				set(field, clip(strings.TrimSpace(m[2]), maxDescriptionRunes))
				continue
			}
		}
		if properName.MatchString(line) && !genericLinkText(line) {
			flush()
			cur = map[string]string{FieldName: clip(line, maxNameRunes)}
			continue
		}
		if cur == nil {
			continue
		}
		if u := urlToken.FindString(line); u != "" && wanted[FieldWebsite] && cur[FieldWebsite] == "" {
			cur[FieldWebsite] = strings.TrimRight(u, ".,;")
		}
		if e := emailPattern.FindString(line); e != "" && wanted[FieldEmail] && cur[FieldEmail] == "" {
			cur[FieldEmail] = e
		}
		if p := pricePattern.FindString(line); p != "" && wanted[FieldPrice] && cur[FieldPrice] == "" {
			cur[FieldPrice] = p
		}
	}
	flush()
	return out
}
