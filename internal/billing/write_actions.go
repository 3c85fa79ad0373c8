package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/tools/shared"
)

func mutatingSpecs(api *client.API) []actionSpec {
	return []actionSpec{
		{
			name:        "create_customer",
			description: "Create a new Stripe customer.",
			category:    "customers",
			params: objectSchema(map[string]ports.Property{
				"email": {Type: "string", Description: "Customer email address."},
				"name":  {Type: "string", Description: "Customer display name."},
			}, "email"),
			handler: createCustomer(api),
		},
		{
			name:        "create_product",
			description: "Create a new Stripe product.",
			category:    "products",
			params: objectSchema(map[string]ports.Property{
				"name":        {Type: "string", Description: "Product name."},
				"description": {Type: "string", Description: "Product description."},
			}, "name"),
			handler: createProduct(api),
		},
		{
			name:        "create_price",
			description: "Create a price for an existing product. Amounts are in the currency's smallest unit (e.g. cents).",
			category:    "prices",
			params: objectSchema(map[string]ports.Property{
				"product":     {Type: "string", Description: "Product id (prod_...)."},
				"unit_amount": {Type: "integer", Description: "Amount in the smallest currency unit."},
				"currency":    {Type: "string", Description: "Three-letter ISO currency code, e.g. usd."},
			}, "product", "unit_amount", "currency"),
			handler: createPrice(api),
		},
		{
			name:        "create_invoice",
			description: "Create a draft invoice for a customer with a single line item.",
			category:    "invoices",
			params: objectSchema(map[string]ports.Property{
				"customer":    {Type: "string", Description: "Customer id (cus_...)."},
				"amount":      {Type: "integer", Description: "Line item amount in the smallest currency unit."},
				"currency":    {Type: "string", Description: "Three-letter ISO currency code, e.g. usd."},
				"description": {Type: "string", Description: "Line item description."},
			}, "customer", "amount", "currency"),
			handler: createInvoice(api),
		},
		{
			name:        "finalize_invoice",
			description: "Finalize a draft invoice so it can be sent and paid.",
			category:    "invoices",
			params: objectSchema(map[string]ports.Property{
				"invoice": {Type: "string", Description: "Invoice id (in_...)."},
			}, "invoice"),
			handler: finalizeInvoice(api),
		},
		{
			name:        "create_payment_link",
			description: "Create a payment link for an existing price.",
			category:    "payment_links",
			params: objectSchema(map[string]ports.Property{
				"price":    {Type: "string", Description: "Price id (price_...)."},
				"quantity": {Type: "integer", Description: "Quantity for the line item (default 1)."},
			}, "price"),
			handler: createPaymentLink(api),
		},
		{
			name:        "create_refund",
			description: "Refund a payment, fully or partially. Amounts are in the smallest currency unit.",
			category:    "refunds",
			params: objectSchema(map[string]ports.Property{
				"payment_intent": {Type: "string", Description: "Payment intent id (pi_...) to refund."},
				"amount":         {Type: "integer", Description: "Amount to refund; omit for a full refund."},
			}, "payment_intent"),
			handler: createRefund(api),
		},
	}
}

func createCustomer(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		email := shared.StringArg(args, "email")
		if email == "" {
			return "", fmt.Errorf("email is required")
		}
		params := &stripe.CustomerParams{Email: stripe.String(email)}
		params.Context = ctx
		if name := shared.StringArg(args, "name"); name != "" {
			params.Name = stripe.String(name)
		}
		customer, err := api.Customers.New(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created customer %s (email=%s)", customer.ID, customer.Email), nil
	}
}

func createProduct(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		name := shared.StringArg(args, "name")
		if name == "" {
			return "", fmt.Errorf("name is required")
		}
		params := &stripe.ProductParams{Name: stripe.String(name)}
		params.Context = ctx
		if description := shared.StringArg(args, "description"); description != "" {
			params.Description = stripe.String(description)
		}
		product, err := api.Products.New(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created product %s (name=%s)", product.ID, product.Name), nil
	}
}

func createPrice(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		product := shared.StringArg(args, "product")
		currency := shared.StringArg(args, "currency")
		amount, ok := shared.IntArg(args, "unit_amount")
		if product == "" || currency == "" || !ok {
			return "", fmt.Errorf("product, unit_amount and currency are required")
		}
		params := &stripe.PriceParams{
			Product:    stripe.String(product),
			UnitAmount: stripe.Int64(amount),
			Currency:   stripe.String(currency),
		}
		params.Context = ctx
		price, err := api.Prices.New(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created price %s (%d %s for %s)", price.ID, amount, currency, product), nil
	}
}

func createInvoice(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		customer := shared.StringArg(args, "customer")
		currency := shared.StringArg(args, "currency")
		amount, ok := shared.IntArg(args, "amount")
		if customer == "" || currency == "" || !ok {
			return "", fmt.Errorf("customer, amount and currency are required")
		}

		invoiceParams := &stripe.InvoiceParams{Customer: stripe.String(customer)}
		invoiceParams.Context = ctx
		invoice, err := api.Invoices.New(invoiceParams)
		if err != nil {
			return "", err
		}

		itemParams := &stripe.InvoiceItemParams{
			Customer: stripe.String(customer),
			Amount:   stripe.Int64(amount),
			Currency: stripe.String(currency),
			Invoice:  stripe.String(invoice.ID),
		}
		itemParams.Context = ctx
		if description := shared.StringArg(args, "description"); description != "" {
			itemParams.Description = stripe.String(description)
		}
		if _, err := api.InvoiceItems.New(itemParams); err != nil {
			return "", fmt.Errorf("invoice %s created but line item failed: %w", invoice.ID, err)
		}
		return fmt.Sprintf("Created draft invoice %s for %s (%d %s)", invoice.ID, customer, amount, currency), nil
	}
}

func finalizeInvoice(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		invoiceID := shared.StringArg(args, "invoice")
		if invoiceID == "" {
			return "", fmt.Errorf("invoice is required")
		}
		params := &stripe.InvoiceFinalizeInvoiceParams{}
		params.Context = ctx
		invoice, err := api.Invoices.FinalizeInvoice(invoiceID, params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Finalized invoice %s (status=%s, total=%d %s)",
			invoice.ID, invoice.Status, invoice.Total, invoice.Currency), nil
	}
}

func createPaymentLink(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		price := shared.StringArg(args, "price")
		if price == "" {
			return "", fmt.Errorf("price is required")
		}
		quantity := int64(1)
		if q, ok := shared.IntArg(args, "quantity"); ok && q > 0 {
			quantity = q
		}
		params := &stripe.PaymentLinkParams{
			LineItems: []*stripe.PaymentLinkLineItemParams{
				{Price: stripe.String(price), Quantity: stripe.Int64(quantity)},
			},
		}
		params.Context = ctx
		link, err := api.PaymentLinks.New(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created payment link %s: %s", link.ID, link.URL), nil
	}
}

func createRefund(api *client.API) handlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		paymentIntent := shared.StringArg(args, "payment_intent")
		if paymentIntent == "" {
			return "", fmt.Errorf("payment_intent is required")
		}
		params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntent)}
		params.Context = ctx
		if amount, ok := shared.IntArg(args, "amount"); ok && amount > 0 {
			params.Amount = stripe.Int64(amount)
		}
		refund, err := api.Refunds.New(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created refund %s (status=%s, amount=%d %s)",
			refund.ID, refund.Status, refund.Amount, refund.Currency), nil
	}
}
