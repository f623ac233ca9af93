package pages

import (
	"context"
	"testing"

	"github.com/pivolan/textile_dashboard/dataset"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsCSV = `Name,AccountType,Classification,Active,current_balance
Cotton Twill,Bank,Asset,true,120.50
Silk Charmeuse,Expense,Expense,false,0
`

const servicesCSV = `Title,Rate
Silk dyeing,12.5
Hemming,3
`

func testLoader(t *testing.T) *dataset.Loader {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "accounts.csv", []byte(accountsCSV), 0o644))
	require.NoError(t, afero.WriteFile(fs, "services.csv", []byte(servicesCSV), 0o644))
	return dataset.NewLoader(dataset.NewCache(), dataset.NewFileSource(fs))
}

func mustLookup(t *testing.T, slug string) Page {
	p, ok := Lookup(slug)
	require.True(t, ok, slug)
	return p
}

func TestLookup(t *testing.T) {
	tests := []struct {
		slug string
		want string
		ok   bool
	}{
		{"", "home", true},
		{"home", "home", true},
		{"Accounts", "accounts", true},
		{" expenses ", "expenses", true},
		{"payroll", "", false},
	}
	for _, tt := range tests {
		p, ok := Lookup(tt.slug)
		assert.Equal(t, tt.ok, ok, tt.slug)
		assert.Equal(t, tt.want, p.Slug, tt.slug)
	}
}

func TestAllAndReferences(t *testing.T) {
	titles := []string{}
	for _, p := range All() {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"Home", "Accounts", "Services", "Customers", "Invoices", "Vendors", "Bills", "Expenses"}, titles)
	assert.Equal(t, []string{"accounts", "services", "customers", "invoices", "vendors", "bills", "expenses"}, References())
}

func TestPageRulesHaveKnownKinds(t *testing.T) {
	for _, p := range All() {
		for _, r := range p.Rules {
			assert.True(t, r.Kind.Known(), "%s: %s", p.Slug, r.Name)
		}
	}
}

func TestRenderAccounts(t *testing.T) {
	v := Render(context.Background(), testLoader(t), mustLookup(t, "accounts"), "")
	assert.Empty(t, v.Warning)
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 2, v.Table.Len())

	r, _ := v.Summary.Get("Total Accounts")
	assert.Equal(t, "2", r.String())
	r, _ = v.Summary.Get("Active Accounts")
	assert.Equal(t, "1", r.String())
	r, _ = v.Summary.Get("Total Balance")
	assert.Equal(t, "120.50", r.String())

	require.NotNil(t, v.Stats)
	assert.Equal(t, 2, v.Stats.Count)
	require.Len(t, v.Top, 2)
	assert.Equal(t, "Bank", v.Top[0].Value)
}

func TestRenderSearch(t *testing.T) {
	v := Render(context.Background(), testLoader(t), mustLookup(t, "accounts"), "silk")
	require.Equal(t, 1, v.Table.Len())
	assert.Equal(t, "Silk Charmeuse", v.Table.Rows[0]["Name"].Formatted)
	assert.Equal(t, 2, v.Total)

	r, _ := v.Summary.Get("Total Accounts")
	assert.Equal(t, "1", r.String())
	r, _ = v.Summary.Get("Total Balance")
	assert.Equal(t, "0", r.String())

	// Active is outside the accounts search scope
	v = Render(context.Background(), testLoader(t), mustLookup(t, "accounts"), "true")
	assert.Equal(t, 0, v.Table.Len())
}

func TestRenderScopeFallsBackToAllColumns(t *testing.T) {
	// services.csv has none of the configured scope columns
	v := Render(context.Background(), testLoader(t), mustLookup(t, "services"), "silk")
	require.Equal(t, 1, v.Table.Len())
	assert.Equal(t, "Silk dyeing", v.Table.Rows[0]["Title"].Formatted)

	r, _ := v.Summary.Get("Average Price")
	assert.Equal(t, "N/A", r.String())
	r, _ = v.Summary.Get("Active Services")
	assert.Equal(t, "0", r.String())
}

func TestRenderMissingDataset(t *testing.T) {
	v := Render(context.Background(), testLoader(t), mustLookup(t, "invoices"), "anything")
	assert.Contains(t, v.Warning, `"invoices" was not found`)
	assert.Equal(t, 0, v.Table.Len())
	assert.Nil(t, v.Stats)
	assert.Empty(t, v.Top)

	r, _ := v.Summary.Get("Total Invoices")
	assert.Equal(t, "0", r.String())
	r, _ = v.Summary.Get("Total Invoiced")
	assert.Equal(t, "N/A", r.String())
}

func TestRenderHome(t *testing.T) {
	v := Render(context.Background(), testLoader(t), Home, "silk")
	assert.Nil(t, v.Table)
	assert.Empty(t, v.Records(0))
}

func TestRecords(t *testing.T) {
	v := Render(context.Background(), testLoader(t), mustLookup(t, "accounts"), "")
	recs := v.Records(1)
	require.Len(t, recs, 1)
	assert.Equal(t, "Cotton Twill", recs[0]["Name"])
	assert.Equal(t, true, recs[0]["Active"])
	assert.Equal(t, 120.5, recs[0]["current_balance"])
	assert.Len(t, v.Records(0), 2)
}
