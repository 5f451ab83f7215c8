// Package ticket renders kitchen tickets as plain text. Output depends only on
// its inputs so it can be compared byte for byte.
package ticket

import (
	"fmt"
	"strings"
	"time"

	"kitchenops/internal/domain"
)

const DefaultWidth = 42

type Options struct {
	// Title defaults to KITCHEN ORDER. Station tickets use the station name.
	Title string
	Width int
}

// Render builds the ticket for the given items of order. Cancelled items are
// skipped.
func Render(order *domain.Order, items []*domain.OrderItem, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	title := opts.Title
	if title == "" {
		title = "KITCHEN ORDER"
	}

	var b strings.Builder
	heavy := strings.Repeat("=", width)
	light := strings.Repeat("-", width)

	line(&b, heavy)
	line(&b, center(strings.ToUpper(title), width))
	line(&b, heavy)

	line(&b, "Order: #"+order.Number)
	table := "-"
	if order.TableID != nil && *order.TableID != "" {
		table = *order.TableID
	}
	line(&b, "Table: "+table)
	line(&b, "Type: "+string(order.ServiceType))
	if order.Priority == domain.PriorityUrgent || order.Priority == domain.PriorityHigh {
		line(&b, fmt.Sprintf("Priority: *** %s ***", order.Priority))
	} else {
		line(&b, "Priority: "+string(order.Priority))
	}
	line(&b, "Time: "+order.CreatedAt.Format("2006-01-02 15:04"))
	if order.GuestCount > 0 {
		line(&b, fmt.Sprintf("Guests: %d", order.GuestCount))
	}
	line(&b, light)

	count := 0
	for _, item := range items {
		if item.Status == domain.ItemStatusCancelled {
			continue
		}
		count++
		name := item.ProductName
		if name == "" {
			name = item.ProductID
		}
		line(&b, fmt.Sprintf("%dx %s", item.Quantity, name))
		if item.SeatNumber != nil {
			line(&b, fmt.Sprintf("   Seat: %d", *item.SeatNumber))
		}
		if item.Course != "" {
			line(&b, "   Course: "+string(item.Course))
		}
		for _, m := range item.Modifiers {
			if m.Option != "" {
				line(&b, fmt.Sprintf("   + %s: %s", m.Name, m.Option))
			} else {
				line(&b, "   + "+m.Name)
			}
		}
		if s := strings.TrimSpace(item.SpecialInstructions); s != "" {
			line(&b, "   !! "+s+" !!")
		}
	}

	if notes := strings.TrimSpace(order.Notes); notes != "" {
		line(&b, light)
		line(&b, "Notes: "+notes)
	}

	line(&b, light)
	line(&b, fmt.Sprintf("Items: %d", count))
	line(&b, heavy)
	return b.String()
}

// RenderTest is the fixed ticket used to check a printer end to end.
func RenderTest(printer *domain.PrinterConfig, now time.Time, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if printer.Capabilities.PaperWidth > 0 && printer.Capabilities.PaperWidth < width {
		width = printer.Capabilities.PaperWidth
	}
	heavy := strings.Repeat("=", width)

	var b strings.Builder
	line(&b, heavy)
	line(&b, center("TEST PRINT", width))
	line(&b, heavy)
	line(&b, "Printer: "+printer.Name)
	line(&b, "Connection: "+string(printer.ConnectionType))
	if printer.Address != "" {
		line(&b, fmt.Sprintf("Address: %s:%d", printer.Address, printer.Port))
	}
	line(&b, "Time: "+now.Format("2006-01-02 15:04:05"))
	line(&b, strings.Repeat("-", width))
	line(&b, center("If you can read this,", width))
	line(&b, center("the printer is working.", width))
	line(&b, heavy)
	return b.String()
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", (width-len(s))/2) + s
}

func line(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}
