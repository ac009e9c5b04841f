package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInstructions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		fields    []string
		selectors []string
	}{
		{
			name:   "name always first",
			in:     "list all companies",
			fields: []string{FieldName},
		},
		{
			name:   "plural keywords",
			in:     "list companies and websites",
			fields: []string{FieldName, FieldWebsite},
		},
		{
			name:   "several fields in canonical order",
			in:     "Get the price, phone number, email and a short description of each product",
			fields: []string{FieldName, FieldDescription, FieldEmail, FieldPhone, FieldPrice},
		},
		{
			name:      "selector directive and backticks",
			in:        "use selector: .exhibitor-card and also `ul.logos > li` for logos",
			fields:    []string{FieldName},
			selectors: []string{".exhibitor-card", "ul.logos > li"},
		},
		{
			name:      "bare selector tokens",
			in:        "names from #sponsors, please",
			fields:    []string{FieldName},
			selectors: []string{"#sponsors"},
		},
		{
			name:   "where means location",
			in:     "who exhibits and where are they based",
			fields: []string{FieldName, FieldLocation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan := ParseInstructions(tt.in)
			require.Equal(t, tt.fields, plan.Fields)
			require.Equal(t, tt.selectors, plan.Selectors)
		})
	}
}

func TestDedupeDropsEmptyAndDuplicateTuples(t *testing.T) {
	t.Parallel()

	in := []Record{
		{{FieldName, "A"}, {FieldWebsite, "x"}},
		{{FieldName, ""}, {FieldWebsite, " "}},
		{{FieldName, "A"}, {FieldWebsite, "x"}},
		{{FieldName, "A"}, {FieldWebsite, ""}},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	require.Equal(t, "x", out[0].Get(FieldWebsite))
	require.Empty(t, out[1].Get(FieldWebsite))
}
