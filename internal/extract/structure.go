package extract

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/webscout/internal/analyzer"
)

// structuralSignature extends analyzer.Signature with the child tag sequence
// so only items with the same inner layout group together.
func structuralSignature(s *goquery.Selection) string {
	var tags []string
	s.Children().Each(func(_ int, c *goquery.Selection) {
		tags = append(tags, goquery.NodeName(c))
	})
	return analyzer.Signature(s) + "|" + strings.Join(tags, ",")
}

type group struct {
	members *goquery.Selection
	records []Record
	score   float64
}

// structureGroups finds sibling groups of at least minSize items with the same
// structural signature and similar text lengths.
func structureGroups(doc *goquery.Document, minSize int) []*goquery.Selection {
	var out []*goquery.Selection
	doc.Find("body, body *").Each(func(_ int, parent *goquery.Selection) {
		if parent.Closest("nav, header, footer").Length() > 0 {
			return
		}
		buckets := make(map[string][]*goquery.Selection)
		var order []string
		parent.Children().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "script", "style", "noscript", "template", "br":
				return
			}
			sig := structuralSignature(c)
			if _, ok := buckets[sig]; !ok {
				order = append(order, sig)
			}
			buckets[sig] = append(buckets[sig], c)
		})
		for _, sig := range order {
			if kept := similarLength(buckets[sig]); len(kept) >= minSize {
				sel := kept[0]
				for _, k := range kept[1:] {
					sel = sel.AddSelection(k)
				}
				out = append(out, sel)
			}
		}
	})
	return out
}

// similarLength keeps members whose text length is within 0.25x to 4x of the
// group median. Empty members are dropped.
func similarLength(members []*goquery.Selection) []*goquery.Selection {
	lengths := make([]int, 0, len(members))
	for _, m := range members {
		lengths = append(lengths, len(analyzer.Collapse(m.Text())))
	}
	sorted := append([]int(nil), lengths...)
	sort.Ints(sorted)
	median := float64(sorted[len(sorted)/2])
	if median == 0 {
		return nil
	}
	var kept []*goquery.Selection
	for i, m := range members {
		l := float64(lengths[i])
		if l >= median*0.25 && l <= median*4 {
			kept = append(kept, m)
		}
	}
	return kept
}

// bestGroup extracts each group and picks the one with the most filled fields.
func bestGroup(groups []*goquery.Selection, base *url.URL, fields []string) *group {
	var best *group
	for _, members := range groups {
		g := &group{members: members}
		members.Each(func(_ int, item *goquery.Selection) {
			g.records = append(g.records, recordFrom(item, base, fields))
		})
		g.records = dedupe(g.records)
		if len(g.records) == 0 {
			continue
		}
		filled := 0
		for _, r := range g.records {
			for _, f := range r {
				if f.Value != "" {
					filled++
				}
			}
		}
		coverage := float64(filled) / float64(len(g.records)*len(fields))
		g.score = float64(len(g.records)) * (0.5 + coverage)
		if best == nil || g.score > best.score {
			best = g
		}
	}
	return best
}
