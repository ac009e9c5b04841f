package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/webscout/internal/analyzer"
)

const (
	maxNameRunes        = 160
	maxDescriptionRunes = 400
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	pricePattern = regexp.MustCompile(`(?:[$€£¥]\s?\d[\d,]*(?:\.\d{1,2})?|\d[\d,]*(?:\.\d{1,2})?\s?(?:USD|EUR|GBP))`)
)

// recordFrom fills the requested fields from one item element.
func recordFrom(item *goquery.Selection, base *url.URL, fields []string) Record {
	rec := make(Record, 0, len(fields))
	name := itemName(item)
	for _, f := range fields {
		var v string
		switch f {
		case FieldName:
			v = name
		case FieldWebsite:
			v = itemWebsite(item, base)
		case FieldDescription:
			v = itemDescription(item, name)
		case FieldEmail:
			v = itemEmail(item)
		case FieldPhone:
			v = itemPhone(item)
		case FieldLocation:
			v = itemLocation(item)
		case FieldPrice:
			v = pricePattern.FindString(analyzer.Collapse(item.Text()))
		}
		rec = append(rec, Field{Name: f, Value: v})
	}
	return rec
}

func itemName(item *goquery.Selection) string {
	probes := []string{
		"[itemprop=name]",
		"h1, h2, h3, h4, h5, h6",
		"[class*=name], [class*=title]",
		"strong, b",
	}
	for _, p := range probes {
		if v := clip(analyzer.Collapse(item.Find(p).First().Text()), maxNameRunes); v != "" {
			return v
		}
	}
	if alt := analyzer.Collapse(item.Find("img[alt]").First().AttrOr("alt", "")); alt != "" {
		return clip(strings.TrimSuffix(strings.TrimSuffix(alt, " logo"), " Logo"), maxNameRunes)
	}
	if title := analyzer.Collapse(item.Find("a[title]").First().AttrOr("title", "")); title != "" {
		return clip(title, maxNameRunes)
	}
	if v := firstLine(item); v != "" && !genericLinkText(v) {
		return clip(v, maxNameRunes)
	}
	if v := analyzer.Collapse(item.Find("a").First().Text()); !genericLinkText(v) {
		return clip(v, maxNameRunes)
	}
	return ""
}

func itemWebsite(item *goquery.Selection, base *url.URL) string {
	candidates := item.Find("a[href]")
	if goquery.NodeName(item) == "a" {
		candidates = candidates.AddSelection(item)
	}
	var internal, external string
	candidates.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		abs := analyzer.ResolveHref(base, a.AttrOr("href", ""))
		if abs == "" {
			return true
		}
		if analyzer.IsExternal(base, abs) {
			external = abs
			return false
		}
		if internal == "" {
			internal = abs
		}
		return true
	})
	if external != "" {
		return external
	}
	return internal
}

func itemDescription(item *goquery.Selection, name string) string {
	for _, p := range []string{"[itemprop=description]", "[class*=desc], [class*=summary], [class*=excerpt]", "p"} {
		if v := analyzer.Collapse(item.Find(p).First().Text()); v != "" && v != name {
			return clip(v, maxDescriptionRunes)
		}
	}
	return ""
}

func itemEmail(item *goquery.Selection) string {
	if href, ok := item.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if addr != "" {
			return addr
		}
	}
	return emailPattern.FindString(item.Text())
}

func itemPhone(item *goquery.Selection) string {
	if href, ok := item.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		return strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
	}
	return strings.TrimSpace(phonePattern.FindString(analyzer.Collapse(item.Text())))
}

func itemLocation(item *goquery.Selection) string {
	probes := "address, [itemprop=address], [class*=location], [class*=address], [class*=city], [class*=country]"
	return clip(analyzer.Collapse(item.Find(probes).First().Text()), maxNameRunes)
}

func firstLine(item *goquery.Selection) string {
	var line string
	item.Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		line = analyzer.Collapse(s.Text())
		return line == ""
	})
	return line
}

func genericLinkText(s string) bool {
	switch strings.ToLower(s) {
	case "visit", "visit website", "website", "more", "read more", "learn more", "details", "view", "link":
		return true
	default:
		return false
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
