package core

import (
	"github.com/tablelift/printd/internal/db"
)

// ReceiptRenderPayload is everything the renderer needs to draw one receipt.
// It is transient: built from a stored order, consumed by Render, and only
// ever persisted indirectly as the rendered bytes in a job's payload cache.
type ReceiptRenderPayload struct {
	RestaurantName string
	OrderNumber    string
	CreatedText    string
	PickupText     string
	CustomerText   string
	Notes          string
	Lines          []PayloadLine
	SubtotalText   string
	TaxText        string
	TotalText      string
	Kitchen        bool
	FontScale      string
}

type PayloadLine struct {
	Qty        int
	Name       string
	Selections []PayloadSelection
}

type PayloadSelection struct {
	Text        string
	IndentLevel int
}

const receiptTimeLayout = "Mon Jan 2 15:04"

// BuildOptions carries the restaurant-level settings the payload depends on.
type BuildOptions struct {
	RestaurantName string
	KitchenScale   string
}

// BuildPayload projects a stored order into a render payload for one copy
// type. Kitchen copies prefer the kitchen-language text on lines and
// selections and omit pricing; front copies keep the priced footer.
func BuildPayload(order *db.Order, copyType CopyType, opts BuildOptions) *ReceiptRenderPayload {
	kitchen := copyType == CopyTypeKitchen

	p := &ReceiptRenderPayload{
		RestaurantName: opts.RestaurantName,
		OrderNumber:    order.Number,
		CreatedText:    "Placed " + order.CreatedAt.UTC().Format(receiptTimeLayout),
		CustomerText:   customerText(order),
		Notes:          order.Notes,
		Kitchen:        kitchen,
	}

	if order.PickupAt != nil {
		p.PickupText = "Pickup " + order.PickupAt.UTC().Format(receiptTimeLayout)
	}

	if kitchen {
		p.FontScale = opts.KitchenScale
		if p.FontScale == "" {
			p.FontScale = "normal"
		}
	} else {
		p.FontScale = "normal"
		p.SubtotalText = order.SubtotalText
		p.TaxText = order.TaxText
		p.TotalText = order.TotalText
	}

	for _, line := range order.Lines {
		pl := PayloadLine{
			Qty:  line.Qty,
			Name: pickText(kitchen, line.Name, line.KitchenName),
		}
		for _, sel := range line.Selections {
			pl.Selections = append(pl.Selections, PayloadSelection{
				Text:        pickText(kitchen, sel.Text, sel.KitchenText),
				IndentLevel: sel.IndentLevel,
			})
		}
		p.Lines = append(p.Lines, pl)
	}

	return p
}

func pickText(kitchen bool, text, kitchenText string) string {
	if kitchen && kitchenText != "" {
		return kitchenText
	}
	return text
}

func customerText(order *db.Order) string {
	if order.CustomerPhone == "" {
		return order.CustomerName
	}
	if order.CustomerName == "" {
		return order.CustomerPhone
	}
	return order.CustomerName + "  " + order.CustomerPhone
}
