package pages

import (
	"strings"

	"github.com/pivolan/textile_dashboard/summary"
)

// Page is one dashboard tab: which dataset it shows, which columns the
// search box looks at and which metrics sit above the table.
type Page struct {
	Slug    string
	Title   string
	Dataset string
	Scope   []string
	Rules   []summary.Rule
	// ChartColumn feeds the top values chart, DescribeColumn the numeric profile.
	ChartColumn    string
	DescribeColumn string
}

func (p Page) IsHome() bool {
	return p.Dataset == ""
}

var Home = Page{Slug: "home", Title: "Home"}

var all = []Page{
	Home,
	{
		Slug:    "accounts",
		Title:   "Accounts",
		Dataset: "accounts",
		Scope:   []string{"Name", "AccountType", "Classification"},
		Rules: []summary.Rule{
			summary.CountRule("Total Accounts"),
			summary.ConditionalCountRule("Active Accounts", "Active", summary.IsTrue),
			summary.SumRule("Total Balance", "current_balance"),
		},
		ChartColumn:    "AccountType",
		DescribeColumn: "current_balance",
	},
	{
		Slug:    "services",
		Title:   "Services",
		Dataset: "services",
		Scope:   []string{"Name", "Description", "Type"},
		Rules: []summary.Rule{
			summary.CountRule("Total Services"),
			summary.ConditionalCountRule("Active Services", "Active", summary.IsTrue),
			summary.MeanRule("Average Price", "UnitPrice"),
			summary.DistinctCountRule("Service Types", "Type"),
		},
		ChartColumn:    "Type",
		DescribeColumn: "UnitPrice",
	},
	{
		Slug:    "customers",
		Title:   "Customers",
		Dataset: "customers",
		Scope:   []string{"DisplayName", "CompanyName", "PrimaryEmailAddr", "BillAddrCity"},
		Rules: []summary.Rule{
			summary.CountRule("Total Customers"),
			summary.ConditionalCountRule("Active Customers", "Active", summary.IsTrue),
			summary.SumRule("Open Balance", "Balance"),
			summary.DistinctCountRule("Cities", "BillAddrCity"),
		},
		ChartColumn:    "BillAddrCity",
		DescribeColumn: "Balance",
	},
	{
		Slug:    "invoices",
		Title:   "Invoices",
		Dataset: "invoices",
		Scope:   []string{"DocNumber", "CustomerRef", "TxnDate", "DueDate"},
		Rules: []summary.Rule{
			summary.CountRule("Total Invoices"),
			summary.SumRule("Total Invoiced", "TotalAmt"),
			summary.SumRule("Outstanding", "Balance"),
			summary.DistinctCountRule("Customers Billed", "CustomerRef"),
		},
		ChartColumn:    "CustomerRef",
		DescribeColumn: "TotalAmt",
	},
	{
		Slug:    "vendors",
		Title:   "Vendors",
		Dataset: "vendors",
		Scope:   []string{"DisplayName", "CompanyName", "PrimaryEmailAddr"},
		Rules: []summary.Rule{
			summary.CountRule("Total Vendors"),
			summary.ConditionalCountRule("Active Vendors", "Active", summary.IsTrue),
			summary.SumRule("Amount Owed", "Balance"),
		},
		ChartColumn:    "CompanyName",
		DescribeColumn: "Balance",
	},
	{
		Slug:    "bills",
		Title:   "Bills",
		Dataset: "bills",
		Scope:   []string{"DocNumber", "VendorRef", "TxnDate", "DueDate"},
		Rules: []summary.Rule{
			summary.CountRule("Total Bills"),
			summary.SumRule("Total Billed", "TotalAmt"),
			summary.SumRule("Unpaid", "Balance"),
			summary.DistinctCountRule("Vendors Billing", "VendorRef"),
		},
		ChartColumn:    "VendorRef",
		DescribeColumn: "TotalAmt",
	},
	{
		Slug:    "expenses",
		Title:   "Expenses",
		Dataset: "expenses",
		Scope:   []string{"TxnDate", "PaymentType", "AccountRef", "EntityRef"},
		Rules: []summary.Rule{
			summary.CountRule("Total Expenses"),
			summary.SumRule("Total Spent", "TotalAmt"),
			summary.MeanRule("Average Expense", "TotalAmt"),
			summary.DistinctCountRule("Payment Types", "PaymentType"),
		},
		ChartColumn:    "PaymentType",
		DescribeColumn: "TotalAmt",
	},
}

// All returns every page in navigation order, Home first.
func All() []Page {
	return append([]Page(nil), all...)
}

// Lookup finds a page by slug, case-insensitively. "" is Home.
func Lookup(slug string) (Page, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return Home, true
	}
	for _, p := range all {
		if p.Slug == slug {
			return p, true
		}
	}
	return Page{}, false
}

// References lists the datasets uploaded when an analysis session starts.
func References() []string {
	var out []string
	for _, p := range all {
		if !p.IsHome() {
			out = append(out, p.Dataset)
		}
	}
	return out
}
