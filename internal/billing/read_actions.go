package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/tools/shared"
)

const defaultListLimit = 10

func readOnlySpecs(api *client.API) []actionSpec {
	return []actionSpec{
		{
			name:        "list_customers",
			description: "List Stripe customers, optionally filtered by email address.",
			category:    "customers",
			params: objectSchema(map[string]ports.Property{
				"email": {Type: "string", Description: "Filter by exact customer email."},
				"limit": {Type: "integer", Description: "Maximum number of customers to return (default 10)."},
			}),
			handler: listCustomers(api),
		},
		{
			name:        "list_invoices",
			description: "List Stripe invoices, optionally scoped to one customer.",
			category:    "invoices",
			params: objectSchema(map[string]ports.Property{
				"customer": {Type: "string", Description: "Customer id (cus_...) to scope the listing."},
				"limit":    {Type: "integer", Description: "Maximum number of invoices to return (default 10)."},
			}),
			handler: listInvoices(api),
		},
		{
			name:        "list_products",
			description: "List Stripe products.",
			category:    "products",
			params: objectSchema(map[string]ports.Property{
				"limit": {Type: "integer", Description: "Maximum number of products to return (default 10)."},
			}),
			handler: listProducts(api),
		},
		{
			name:        "list_prices",
			description: "List Stripe prices, optionally scoped to one product.",
			category:    "prices",
			params: objectSchema(map[string]ports.Property{
				"product": {Type: "string", Description: "Product id (prod_...) to scope the listing."},
				"limit":   {Type: "integer", Description: "Maximum number of prices to return (default 10)."},
			}),
			handler: listPrices(api),
		},
		{
			name:        "list_payment_links",
			description: "List Stripe payment links.",
			category:    "payment_links",
			params: objectSchema(map[string]ports.Property{
				"limit": {Type: "integer", Description: "Maximum number of payment links to return (default 10)."},
			}),
			handler: listPaymentLinks(api),
		},
	}
}

func listLimit(args map[string]any) int64 {
	if limit, ok := shared.IntArg(args, "limit"); ok && limit > 0 {
		return limit
	}
	return defaultListLimit
}

func listCustomers(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		params := &stripe.CustomerListParams{}
		params.Context = ctx
		params.Limit = stripe.Int64(listLimit(args))
		if email := shared.StringArg(args, "email"); email != "" {
			params.Email = stripe.String(email)
		}

		type row struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		var rows []row
		iter := api.Customers.List(params)
		for iter.Next() {
			c := iter.Customer()
			rows = append(rows, row{ID: c.ID, Email: c.Email, Name: c.Name})
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
		return marshalRows("customers", rows)
	}
}

func listInvoices(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		params := &stripe.InvoiceListParams{}
		params.Context = ctx
		params.Limit = stripe.Int64(listLimit(args))
		if customer := shared.StringArg(args, "customer"); customer != "" {
			params.Customer = stripe.String(customer)
		}

		type row struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
			Status   string `json:"status"`
			Total    int64  `json:"total"`
			Currency string `json:"currency"`
		}
		var rows []row
		iter := api.Invoices.List(params)
		for iter.Next() {
			inv := iter.Invoice()
			r := row{ID: inv.ID, Status: string(inv.Status), Total: inv.Total, Currency: string(inv.Currency)}
			if inv.Customer != nil {
				r.Customer = inv.Customer.ID
			}
			rows = append(rows, r)
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
		return marshalRows("invoices", rows)
	}
}

func listProducts(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		params := &stripe.ProductListParams{}
		params.Context = ctx
		params.Limit = stripe.Int64(listLimit(args))

		type row struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
			Active      bool   `json:"active"`
		}
		var rows []row
		iter := api.Products.List(params)
		for iter.Next() {
			p := iter.Product()
			rows = append(rows, row{ID: p.ID, Name: p.Name, Description: p.Description, Active: p.Active})
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
		return marshalRows("products", rows)
	}
}

func listPrices(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		params := &stripe.PriceListParams{}
		params.Context = ctx
		params.Limit = stripe.Int64(listLimit(args))
		if product := shared.StringArg(args, "product"); product != "" {
			params.Product = stripe.String(product)
		}

		type row struct {
			ID         string `json:"id"`
			Product    string `json:"product"`
			UnitAmount int64  `json:"unit_amount"`
			Currency   string `json:"currency"`
		}
		var rows []row
		iter := api.Prices.List(params)
		for iter.Next() {
			p := iter.Price()
			r := row{ID: p.ID, UnitAmount: p.UnitAmount, Currency: string(p.Currency)}
			if p.Product != nil {
				r.Product = p.Product.ID
			}
			rows = append(rows, r)
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
		return marshalRows("prices", rows)
	}
}

func listPaymentLinks(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		params := &stripe.PaymentLinkListParams{}
		params.Context = ctx
		params.Limit = stripe.Int64(listLimit(args))

		type row struct {
			ID     string `json:"id"`
			URL    string `json:"url"`
			Active bool   `json:"active"`
		}
		var rows []row
		iter := api.PaymentLinks.List(params)
		for iter.Next() {
			link := iter.PaymentLink()
			rows = append(rows, row{ID: link.ID, URL: link.URL, Active: link.Active})
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
		return marshalRows("payment_links", rows)
	}
}

func marshalRows(kind string, rows any) (string, error) {
	data, err := json.Marshal(map[string]any{kind: rows})
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", kind, err)
	}
	return string(data), nil
}
