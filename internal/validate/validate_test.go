package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEmail(t *testing.T) {
	for _, ok := range []string{"usuario@ejemplo.com", "nombre.apellido@empresa.mx", "test123@dominio.org"} {
		assert.True(t, IsEmail(ok), ok)
	}
	for _, bad := range []string{"invalido", "@ejemplo.com", "usuario@", "usuario@dominio", ""} {
		assert.False(t, IsEmail(bad), bad)
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "", Email("usuario@ejemplo.com"))
	assert.Equal(t, MsgEmailEmpty, Email("   "))
	assert.Equal(t, MsgEmailInvalid, Email("@ejemplo.com"))
}

func TestFieldPredicates(t *testing.T) {
	assert.True(t, IsPassword("12345"))
	assert.False(t, IsPassword("1234"))
	assert.True(t, IsName("Ñu"))
	assert.False(t, IsName("A"))

	assert.True(t, IsPhone("5551234567"))
	assert.True(t, IsPhone("+525551234567"))
	assert.False(t, IsPhone("555-123-4567"))
	assert.False(t, IsPhone("123456"))

	assert.True(t, IsAge(1))
	assert.False(t, IsAge(0))
	assert.False(t, IsAge(120))
	assert.True(t, IsPetAge(0))
	assert.False(t, IsPetAge(50))

	assert.True(t, IsEmpty(" \t"))
	assert.False(t, IsEmpty("  x "))
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "5551234567", FormatPhone("(555) 123-4567"))
	assert.Equal(t, "1234567890", FormatPhone("12345678901234"))
	assert.Equal(t, "", FormatPhone("abc-def-ghij"))
	assert.Equal(t, "12", FormatPhone("1٢2"))
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     string
	}{
		{"valid", "usuario@ejemplo.com", "12345", ""},
		{"both empty", "  ", "  ", MsgLoginEmpty},
		{"no email", "", "12345", MsgLoginNoEmail},
		{"no password", "usuario@ejemplo.com", "", MsgLoginNoPassword},
		{"missing wins over malformed", "invalido", "", MsgLoginNoPassword},
		{"bad email", "invalido", "12345", MsgLoginBadEmail},
		{"short password", "usuario@ejemplo.com", "123", MsgLoginBadPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Login(tt.email, tt.password))
		})
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name string
		args [6]string
		want string
	}{
		{"valid", [6]string{"Juan", "Pérez", "García", "juan@ejemplo.com", "5551234567", "password123"}, ""},
		{"all empty", [6]string{}, MsgRegisterMissing},
		{"one empty", [6]string{"Juan", "Pérez", " ", "juan@ejemplo.com", "5551234567", "password123"}, MsgRegisterMissing},
		{"short name", [6]string{"A", "Pérez", "García", "juan@ejemplo.com", "5551234567", "password123"}, MsgRegisterName},
		{"bad email", [6]string{"Juan", "Pérez", "García", "invalido", "5551234567", "password123"}, MsgRegisterEmail},
		{"bad phone", [6]string{"Juan", "Pérez", "García", "juan@ejemplo.com", "123", "password123"}, MsgRegisterPhone},
		{"short password", [6]string{"Juan", "Pérez", "García", "juan@ejemplo.com", "5551234567", "123"}, MsgRegisterPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.args
			assert.Equal(t, tt.want, Register(a[0], a[1], a[2], a[3], a[4], a[5]))
		})
	}
}

func TestPet(t *testing.T) {
	age := func(n int) *int { return &n }

	assert.Equal(t, "", Pet("Michi", age(0)))
	assert.Equal(t, MsgPetMissing, Pet("Michi", nil))
	assert.Equal(t, MsgPetMissing, Pet("", age(3)))
	assert.Equal(t, MsgPetName, Pet("M", age(3)))
	assert.Equal(t, MsgPetAge, Pet("Michi", age(50)))
	assert.Equal(t, MsgPetAge, Pet("Michi", age(-1)))
}

func TestProfile(t *testing.T) {
	tests := []struct {
		name string
		form ProfileForm
		want string
	}{
		{"nothing", ProfileForm{Name: "  "}, MsgProfileEmpty},
		{"name only", ProfileForm{Name: "Ana"}, ""},
		{"last name only", ProfileForm{LastName: "López"}, ""},
		{"short name", ProfileForm{Name: "A"}, MsgRegisterName},
		{"bad email", ProfileForm{Email: "ana@"}, MsgRegisterEmail},
		{"bad phone", ProfileForm{Phone: "123"}, MsgRegisterPhone},
		{"all fields", ProfileForm{Name: "Ana", LastName: "López", Email: "ana@vet.mx", Phone: "5512345678"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Profile(tt.form))
		})
	}
}
