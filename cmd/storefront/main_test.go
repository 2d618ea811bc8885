package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetclinic/storefront/internal/cart"
	"github.com/vetclinic/storefront/internal/cli"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/validate"
	"github.com/vetclinic/storefront/pkg/testutil"
)

type cliEnv struct {
	api *testutil.FakeAPI
	url string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	api := testutil.NewFakeAPI()
	api.SeedCatalog()
	api.AddUser(testutil.FakeUser{UserID: 7, CartID: 70, Email: "ana@vet.mx", Password: "secreto", Name: "Ana"})
	server := api.Start()
	t.Cleanup(server.Close)

	t.Setenv("STOREFRONT_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("STOREFRONT_API_MAX_RETRIES", "-1")
	t.Setenv("STOREFRONT_REDIS_URL", "")
	return &cliEnv{api: api, url: server.URL}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--env", "", "--api-url", e.url, "--log-level", "error"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_NoCommandPrintsUsage(t *testing.T) {
	e := newCLIEnv(t)
	out, err := e.run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Comandos:")
}

func TestRun_UnknownCommand(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestRun_Products(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "products", "-band", "cheap")
	require.NoError(t, err)
	assert.Contains(t, out, "Arena Sanitaria 5kg")
	assert.NotContains(t, out, "Croquetas Gato Adulto 1kg")

	out, err = e.run(t, "products", "-q", "gato")
	require.NoError(t, err)
	assert.Contains(t, out, "Croquetas Gato Adulto 1kg")
	assert.Contains(t, out, "Lata Gato Salmón")
	assert.NotContains(t, out, "Juguete Ratón")

	_, err = e.run(t, "products", "-band", "gratis")
	assert.Error(t, err)
}

func TestRun_CartRequiresLogin(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "cart")
	require.Error(t, err)
}

func TestRun_ShoppingFlow(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "login", "ana@vet.mx", "secreto")
	require.NoError(t, err)
	assert.Contains(t, out, "Bienvenido, ana@vet.mx")

	out, err = e.run(t, "add", "1", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Croquetas Gato Adulto 1kg")
	assert.Contains(t, out, "$171.00")
	assert.Equal(t, 2, e.api.CartQuantity(7, "1"))

	_, err = e.run(t, "add", "3")
	require.NoError(t, err)

	out, err = e.run(t, "cart")
	require.NoError(t, err)
	assert.Contains(t, out, "$196.70")

	_, err = e.run(t, "qty", "1", "-1")
	require.NoError(t, err)
	assert.Equal(t, 1, e.api.CartQuantity(7, "1"))

	_, err = e.run(t, "remove", "3")
	require.NoError(t, err)
	assert.Equal(t, 0, e.api.CartQuantity(7, "3"))

	out, err = e.run(t, "checkout")
	require.NoError(t, err)
	assert.Contains(t, out, "PED-001")
	assert.Contains(t, out, "8550 centavos")
	assert.Equal(t, 1, e.api.OrderCount(7))

	out, err = e.run(t, "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "PED-001")

	out, err = e.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Sesión cerrada")

	_, err = e.run(t, "orders")
	assert.Error(t, err)
}

func TestRun_LoginRejected(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "login", "ana@vet.mx", "equivocada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Credenciales inválidas")

	_, err = e.run(t, "login", "", "")
	assert.Error(t, err)
}

func TestRun_AddOutOfStock(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "login", "ana@vet.mx", "secreto")
	require.NoError(t, err)

	_, err = e.run(t, "add", "5")
	require.Error(t, err)
	assert.Equal(t, "producto agotado", err.Error())
}

func TestRun_QtyUnknownItem(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "login", "ana@vet.mx", "secreto")
	require.NoError(t, err)

	_, err = e.run(t, "qty", "99", "1")
	assert.Error(t, err)

	_, err = e.run(t, "qty", "abc", "1")
	assert.Error(t, err)
}

func TestRun_DemoMode(t *testing.T) {
	e := newCLIEnv(t)
	demo := func(args ...string) string {
		t.Helper()
		out, err := e.run(t, append([]string{"--demo"}, args...)...)
		require.NoError(t, err)
		return out
	}

	assert.Contains(t, demo("products"), "Producto 1")

	demo("add", "1")
	demo("add", "2", "3")
	out := demo("cart")
	assert.Contains(t, out, "$175.50")

	demo("qty", "2", "-1")
	out = demo("checkout")
	assert.Contains(t, out, "LOCAL-")
	assert.Contains(t, out, "14550 centavos")

	assert.Contains(t, demo("cart"), "vacío")
	assert.Zero(t, e.api.Calls("GET", "/product"))
}

func TestRun_Completion(t *testing.T) {
	e := newCLIEnv(t)
	out, err := e.run(t, "completion", "bash")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#!/bin/bash"))

	_, err = e.run(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestRun_Whoami(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "whoami")
	require.Error(t, err)

	_, err = e.run(t, "login", "ana@vet.mx", "secreto")
	require.NoError(t, err)

	out, err := e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana <ana@vet.mx>")
	assert.Contains(t, out, "usuario 7")
}

func TestRun_Profile(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "profile", "-name", "Anita")
	require.Error(t, err)
	assert.True(t, serrors.IsUnauthorized(err))

	_, err = e.run(t, "login", "ana@vet.mx", "secreto")
	require.NoError(t, err)

	_, err = e.run(t, "profile")
	require.Error(t, err)
	assert.Equal(t, validate.MsgProfileEmpty, serrors.UserMessage(err))

	_, err = e.run(t, "profile", "-email", "ana@")
	require.Error(t, err)
	assert.Equal(t, validate.MsgRegisterEmail, serrors.UserMessage(err))

	out, err := e.run(t, "profile", "-name", "Anita", "-phone", "(55) 1234-5678")
	require.NoError(t, err)
	assert.Contains(t, out, "Perfil actualizado")
	assert.Equal(t, 1, e.api.Calls("PUT", "/user/update"))

	out, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Anita <ana@vet.mx>")
}

func TestPrintItems_TotalMatchesLines(t *testing.T) {
	var buf bytes.Buffer
	a := &app{out: cli.NewPrinter(&buf)}

	a.printItems([]cart.LineItem{
		{ID: 1, Name: "Croquetas", Price: decimal.RequireFromString("85.5"), Quantity: 2},
		{ID: 3, Name: "Lata", Price: decimal.RequireFromString("25.7"), Quantity: 1},
	})
	assert.Contains(t, buf.String(), "$196.70")
}
