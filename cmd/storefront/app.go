package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vetclinic/storefront/internal/cart"
	"github.com/vetclinic/storefront/internal/cartsync"
	"github.com/vetclinic/storefront/internal/cli"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/remote"
	"github.com/vetclinic/storefront/internal/validate"
)

// errUsage reports a command called with the wrong arguments.
var errUsage = errors.New("uso incorrecto, ejecute sin argumentos para ver la ayuda")

type command func(ctx context.Context, args []string) error

func (a *app) commands() map[string]command {
	return map[string]command{
		"products":   a.products,
		"product":    a.product,
		"cart":       a.showCart,
		"add":        a.add,
		"qty":        a.qty,
		"remove":     a.remove,
		"clear":      a.clear,
		"checkout":   a.checkout,
		"orders":     a.orders,
		"login":      a.login,
		"logout":     a.logout,
		"whoami":     a.whoami,
		"profile":    a.profile,
		"watch":      a.watch,
		"completion": a.completion,
	}
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.Usage(a.out.Writer(), program)
		return nil
	}
	cmd, ok := a.commands()[args[0]]
	if !ok {
		cli.Usage(a.out.Writer(), program)
		return fmt.Errorf("comando desconocido: %s", args[0])
	}

	a.log.WithField("command", args[0]).Debug("running command")
	err := cmd(ctx, args[1:])
	if a.demo != nil {
		if saveErr := a.demo.save(a.sync.Cart()); saveErr != nil && err == nil {
			err = saveErr
		}
	}
	return translate(err)
}

// translate turns synchronizer sentinels into messages for the shopper.
func translate(err error) error {
	switch {
	case errors.Is(err, cartsync.ErrOutOfStock):
		return errors.New("producto agotado")
	case errors.Is(err, cartsync.ErrEmptyCart):
		return errors.New("tu carrito está vacío")
	case errors.Is(err, cartsync.ErrNoRemoteID):
		return errors.New("el producto no tiene identificador")
	}
	return err
}

// online loads the remote cart for commands that need a signed-in shopper.
func (a *app) online(ctx context.Context) error {
	if a.sync.Offline() {
		return nil
	}
	if _, err := a.session.RequireToken(); err != nil {
		return err
	}
	return a.withSpinner("sincronizando carrito", func() error { return a.sync.Refresh(ctx) })
}

func (a *app) withSpinner(label string, fn func() error) error {
	s := a.out.Spinner(label)
	s.Start()
	defer s.Stop()
	return fn()
}

func (a *app) products(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products", flag.ContinueOnError)
	fs.SetOutput(a.out.Writer())
	query := fs.String("q", "", "Texto a buscar en el nombre")
	band := fs.String("band", string(remote.BandAll), "Rango de precio: all|cheap|expensive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch remote.PriceBand(*band) {
	case remote.BandAll, remote.BandCheap, remote.BandExpensive:
	default:
		return serrors.InvalidInput("band", "rango de precio inválido: "+*band)
	}

	var list []remote.Product
	err := a.withSpinner("cargando catálogo", func() error {
		var err error
		list, err = a.catalog.List(ctx)
		return err
	})
	if err != nil {
		return err
	}
	a.out.Products(remote.Filter(list, *query, remote.PriceBand(*band)))
	return nil
}

func (a *app) product(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := a.catalog.Get(ctx, args[0])
	if err != nil {
		return err
	}
	a.out.Product(p)
	return nil
}

func (a *app) showCart(ctx context.Context, _ []string) error {
	if err := a.online(ctx); err != nil {
		return err
	}
	c := a.sync.Cart()
	a.out.Cart(c.Items(), c.CalculateTotal())
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	quantity := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return serrors.InvalidInput("cantidad", "la cantidad debe ser un número")
		}
		quantity = n
	}
	if err := a.online(ctx); err != nil {
		return err
	}
	p, err := a.catalog.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.sync.Add(ctx, p, quantity); err != nil {
		return err
	}
	a.out.Success("%s agregado al carrito", p.Name)
	c := a.sync.Cart()
	a.out.Cart(c.Items(), c.CalculateTotal())
	return nil
}

func (a *app) qty(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseItemID(args[0])
	if err != nil {
		return err
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil {
		return serrors.InvalidInput("delta", "el cambio de cantidad debe ser un número")
	}
	if err := a.online(ctx); err != nil {
		return err
	}
	if _, ok := a.sync.Cart().Get(id); !ok {
		return serrors.NotFound("item", args[0])
	}
	if err := a.sync.UpdateQuantity(ctx, id, delta); err != nil {
		return err
	}
	c := a.sync.Cart()
	a.out.Cart(c.Items(), c.CalculateTotal())
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseItemID(args[0])
	if err != nil {
		return err
	}
	if err := a.online(ctx); err != nil {
		return err
	}
	item, ok := a.sync.Cart().Get(id)
	if !ok {
		return serrors.NotFound("item", args[0])
	}
	if err := a.sync.Remove(ctx, id); err != nil {
		return err
	}
	a.out.Success("%s eliminado del carrito", item.Name)
	return nil
}

func (a *app) clear(ctx context.Context, _ []string) error {
	if err := a.online(ctx); err != nil {
		return err
	}
	for _, it := range a.sync.Cart().Items() {
		if err := a.sync.Remove(ctx, it.ID); err != nil {
			return err
		}
	}
	a.out.Success("Carrito vacío")
	return nil
}

func (a *app) checkout(ctx context.Context, _ []string) error {
	if err := a.online(ctx); err != nil {
		return err
	}
	var receipt cartsync.Receipt
	err := a.withSpinner("generando pedido", func() error {
		var err error
		receipt, err = a.sync.Checkout(ctx)
		return err
	})
	if err != nil {
		return err
	}
	a.out.Cart(receipt.Items, receipt.Total.StringFixed(2))
	a.out.Success("Pedido %s: %s (%s)", receipt.Order.OrderNumber, cli.Money(receipt.Order.Total), receipt.Order.Status)
	a.out.Info("Monto a cobrar: %d centavos", receipt.AmountCents)
	return nil
}

func (a *app) orders(ctx context.Context, _ []string) error {
	if a.svc == nil {
		a.out.Info("El historial de pedidos no está disponible en modo demo")
		return nil
	}
	if _, err := a.session.RequireToken(); err != nil {
		return err
	}
	list, err := a.svc.Orders.ListMine(ctx)
	if err != nil {
		return err
	}
	a.out.Orders(list)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	user, err := a.session.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	name := user.Name
	if name == "" {
		name = user.Email
	}
	if name == "" {
		name = args[0]
	}
	a.out.Success("Bienvenido, %s", name)
	return nil
}

func (a *app) logout(_ context.Context, _ []string) error {
	if err := a.session.Logout(); err != nil {
		return err
	}
	a.out.Success("Sesión cerrada")
	return nil
}

func (a *app) whoami(ctx context.Context, _ []string) error {
	if a.svc == nil {
		a.out.Info("Modo demo: sin sesión")
		return nil
	}
	if _, err := a.session.RequireToken(); err != nil {
		return err
	}
	user, err := a.svc.Users.Current(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return serrors.NotFound("user", "current")
	}
	a.out.Info("%s <%s> (usuario %d, carrito %d)", user.Name, user.Email, user.UserID, user.CartID)
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(a.out.Writer())
	name := fs.String("name", "", "Nombre")
	lastName := fs.String("last-name", "", "Apellido")
	email := fs.String("email", "", "Correo")
	phone := fs.String("phone", "", "Teléfono")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.svc == nil {
		a.out.Info("El perfil no está disponible en modo demo")
		return nil
	}

	form := validate.ProfileForm{
		Name:     strings.TrimSpace(*name),
		LastName: strings.TrimSpace(*lastName),
		Email:    strings.TrimSpace(*email),
	}
	if *phone != "" {
		form.Phone = validate.FormatPhone(*phone)
	}
	if msg := validate.Profile(form); msg != "" {
		return serrors.InvalidInput("profile", msg)
	}
	if _, err := a.session.RequireToken(); err != nil {
		return err
	}
	err := a.svc.Users.Update(ctx, remote.UserUpdate{
		Name:     form.Name,
		LastName: form.LastName,
		Email:    form.Email,
		Phone:    form.Phone,
	})
	if err != nil {
		return err
	}
	a.out.Success("Perfil actualizado")
	return nil
}

// watch refreshes the cart on an interval and prints it whenever it changes.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(a.out.Writer())
	interval := fs.Duration("interval", 30*time.Second, "Intervalo de sincronización")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return serrors.InvalidInput("interval", "el intervalo debe ser positivo")
	}
	if err := a.online(ctx); err != nil {
		return err
	}

	c := a.sync.Cart()
	a.out.Cart(c.Items(), c.CalculateTotal())
	unsubscribe := c.OnChange(a.printItems)
	defer unsubscribe()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.sync.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.out.Warning("%s", serrors.UserMessage(err))
			}
		}
	}
}

func (a *app) completion(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("completion", flag.ContinueOnError)
	fs.SetOutput(a.out.Writer())
	install := fs.Bool("install", false, "Instala el script en el directorio del usuario")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	shell := fs.Arg(0)

	if *install {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path, err := cli.InstallCompletion(shell, program, home)
		if err != nil {
			return err
		}
		a.out.Success("Autocompletado instalado en %s", path)
		return nil
	}

	script, err := cli.CompletionScript(shell, program)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out.Writer(), script)
	return nil
}

// printItems prints a cart snapshot with the total of those same items.
func (a *app) printItems(items []cart.LineItem) {
	a.out.Cart(items, cart.TotalOf(items).StringFixed(2))
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, serrors.InvalidInput("item", "identificador de producto inválido: "+raw)
	}
	return id, nil
}
