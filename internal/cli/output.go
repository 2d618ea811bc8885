// Package cli renders storefront data in a terminal.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vetclinic/storefront/internal/cart"
	"github.com/vetclinic/storefront/internal/remote"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes messages and tables, colored when writing to a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a printer for w. Color is enabled when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w)}
}

// Plain disables colors.
func (p *Printer) Plain() *Printer {
	p.color = false
	return p
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Colorize wraps text in color when colors are enabled.
func (p *Printer) Colorize(text, color string) string {
	if !p.color {
		return text
	}
	return color + text + ColorReset
}

func (p *Printer) Success(format string, args ...interface{}) {
	p.line("✓", ColorGreen, format, args...)
}

func (p *Printer) Error(format string, args ...interface{}) {
	p.line("✗", ColorRed, format, args...)
}

func (p *Printer) Warning(format string, args ...interface{}) {
	p.line("⚠", ColorYellow, format, args...)
}

func (p *Printer) Info(format string, args ...interface{}) {
	p.line("ℹ", ColorBlue, format, args...)
}

func (p *Printer) line(mark, color, format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize(mark, color), fmt.Sprintf(format, args...))
}

// Money formats an amount the way the storefront shows prices.
func Money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// Products prints a catalog listing.
func (p *Printer) Products(products []remote.Product) {
	if len(products) == 0 {
		p.Info("No hay productos")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, p.Colorize("ID\tPRODUCTO\tCATEGORÍA\tPRECIO\tSTOCK", ColorBold))
	for _, pr := range products {
		stock := fmt.Sprintf("%d", pr.Stock)
		if !pr.InStock() {
			stock = p.Colorize("agotado", ColorRed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", pr.ProductID, pr.Name, dash(pr.Category), Money(pr.Price), stock)
	}
	tw.Flush()
}

// Product prints one product in detail.
func (p *Printer) Product(pr remote.Product) {
	fmt.Fprintln(p.w, p.Colorize(pr.Name, ColorBold))
	if pr.Description != "" {
		fmt.Fprintln(p.w, pr.Description)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", pr.ProductID)
	fmt.Fprintf(tw, "Categoría\t%s\n", dash(pr.Category))
	fmt.Fprintf(tw, "Precio\t%s\n", Money(pr.Price))
	fmt.Fprintf(tw, "Stock\t%d\n", pr.Stock)
	tw.Flush()
}

// Cart prints the line items and the total.
func (p *Printer) Cart(items []cart.LineItem, total string) {
	if len(items) == 0 {
		p.Info("Tu carrito está vacío")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, p.Colorize("ID\tPRODUCTO\tPRECIO\tCANT.\tSUBTOTAL", ColorBold))
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", it.ID, it.Name, Money(it.Price), it.Quantity, Money(it.Subtotal()))
	}
	fmt.Fprintf(tw, "\t\t\t%s\t%s\n", p.Colorize("TOTAL", ColorBold), "$"+total)
	tw.Flush()
}

// Orders prints the order history.
func (p *Printer) Orders(orders []remote.Order) {
	if len(orders) == 0 {
		p.Info("Aún no tienes pedidos")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, p.Colorize("PEDIDO\tFECHA\tESTADO\tTOTAL", ColorBold))
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.OrderNumber, dash(o.Date), o.Status, Money(o.Total))
	}
	tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Spinner shows activity while a remote call is in flight.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	mu      sync.Mutex
	printer *Printer
	active  bool
	done    chan struct{}
}

// Spinner returns a spinner writing through p.
func (p *Printer) Spinner(prefix string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
		printer: p,
		done:    make(chan struct{}),
	}
}

// Start animates the spinner until Stop. It does nothing when the output is
// not a terminal.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active || !s.printer.color {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				frame := s.printer.Colorize(s.frames[s.current], ColorCyan)
				fmt.Fprintf(s.printer.w, "\r%s %s", frame, s.prefix)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.printer.w, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
