// Package validate checks the shopper-facing forms before they reach the
// storefront API. Form validators return the message to show, or "" when
// the input is acceptable.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Messages shown to shoppers.
const (
	MsgLoginEmpty       = "Ingrese los datos"
	MsgLoginNoEmail     = "Ingrese el correo"
	MsgLoginNoPassword  = "Ingrese la contraseña"
	MsgLoginBadEmail    = "Correo invalido"
	MsgLoginBadPassword = "Contraseña invalida"
	MsgRegisterMissing  = "Ingrese todos los datos"
	MsgRegisterName     = "Nombre debe tener mínimo 2 caracteres"
	MsgRegisterEmail    = "Correo invalido"
	MsgRegisterPhone    = "El teléfono debe tener 10 dígitos"
	MsgRegisterPassword = "La contraseña debe tener mínimo 5 caracteres"
	MsgEmailEmpty       = "El email no puede estar vacío"
	MsgEmailInvalid     = "El email no es válido"
	MsgPetMissing       = "Ingrese el nombre y la edad de la mascota"
	MsgPetName          = "El nombre de la mascota debe tener mínimo 2 caracteres"
	MsgPetAge           = "Edad de la mascota inválida"
	MsgProfileEmpty     = "Ingrese al menos un dato"
)

const (
	MinPasswordLength    = 5
	MinNameLength        = 2
	MaxFormattedPhoneLen = 10
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return emailRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	return v
}

// LoginForm is the sign-in form.
type LoginForm struct {
	Email    string `validate:"required,mailbox"`
	Password string `validate:"required,min=5"`
}

// RegisterForm is the sign-up form.
type RegisterForm struct {
	Name           string `validate:"required,min=2"`
	LastName       string `validate:"required"`
	MotherLastName string `validate:"required"`
	Email          string `validate:"required,mailbox"`
	Phone          string `validate:"required,phone"`
	Password       string `validate:"required,min=5"`
}

// PetForm registers a pet with the clinic.
type PetForm struct {
	Name string `validate:"required,min=2"`
	Age  *int   `validate:"required,gte=0,lt=50"`
}

// ProfileForm edits the shopper's profile. Empty fields are left unchanged.
type ProfileForm struct {
	Name     string `validate:"omitempty,min=2"`
	LastName string
	Email    string `validate:"omitempty,mailbox"`
	Phone    string `validate:"omitempty,phone"`
}

var (
	loginMessages = map[string]string{
		"Email.required":    MsgLoginNoEmail,
		"Password.required": MsgLoginNoPassword,
		"Email.mailbox":     MsgLoginBadEmail,
		"Password.min":      MsgLoginBadPassword,
	}
	registerMessages = map[string]string{
		"Name.min":      MsgRegisterName,
		"Email.mailbox": MsgRegisterEmail,
		"Phone.phone":   MsgRegisterPhone,
		"Password.min":  MsgRegisterPassword,
		"required":      MsgRegisterMissing,
	}
	profileMessages = map[string]string{
		"Name.min":      MsgRegisterName,
		"Email.mailbox": MsgRegisterEmail,
		"Phone.phone":   MsgRegisterPhone,
	}
	petMessages = map[string]string{
		"required": MsgPetMissing,
		"Name.min": MsgPetName,
		"Age.gte":  MsgPetAge,
		"Age.lt":   MsgPetAge,
	}
)

// Login checks the sign-in form. Missing fields are reported before
// malformed ones.
func Login(email, password string) string {
	f := LoginForm{Email: strings.TrimSpace(email), Password: strings.TrimSpace(password)}
	if f.Email == "" && f.Password == "" {
		return MsgLoginEmpty
	}
	return message(validate.Struct(f), loginMessages)
}

// Register checks the sign-up form.
func Register(name, lastName, motherLastName, email, phone, password string) string {
	f := RegisterForm{
		Name:           strings.TrimSpace(name),
		LastName:       strings.TrimSpace(lastName),
		MotherLastName: strings.TrimSpace(motherLastName),
		Email:          strings.TrimSpace(email),
		Phone:          strings.TrimSpace(phone),
		Password:       strings.TrimSpace(password),
	}
	return message(validate.Struct(f), registerMessages)
}

// Pet checks the pet registration form. A nil age means it was not entered.
func Pet(name string, age *int) string {
	return message(validate.Struct(PetForm{Name: strings.TrimSpace(name), Age: age}), petMessages)
}

// Profile checks a profile edit. At least one field must be given.
func Profile(f ProfileForm) string {
	f.Name = strings.TrimSpace(f.Name)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	if f.Name == "" && f.LastName == "" && f.Email == "" && f.Phone == "" {
		return MsgProfileEmpty
	}
	return message(validate.Struct(f), profileMessages)
}

// message maps the first failure to its text. "required" failures win over
// every other kind; a bare "required" key covers all fields at once.
func message(err error, messages map[string]string) string {
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}

	pick := fieldErrs[0]
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			pick = fe
			break
		}
	}
	if msg, ok := messages[pick.Field()+"."+pick.Tag()]; ok {
		return msg
	}
	if msg, ok := messages[pick.Tag()]; ok {
		return msg
	}
	return pick.Error()
}

// Email checks a single email field.
func Email(email string) string {
	if IsEmpty(email) {
		return MsgEmailEmpty
	}
	if !IsEmail(email) {
		return MsgEmailInvalid
	}
	return ""
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailRe.MatchString(s)
}

// IsPassword reports whether s is long enough to be a password.
func IsPassword(s string) bool {
	return len([]rune(s)) >= MinPasswordLength
}

// IsName reports whether s is long enough to be a name.
func IsName(s string) bool {
	return len([]rune(s)) >= MinNameLength
}

// IsPhone reports whether s is 7 to 15 digits with an optional leading +.
func IsPhone(s string) bool {
	return phoneRe.MatchString(s)
}

// IsAge reports whether age is plausible for a person.
func IsAge(age int) bool {
	return age > 0 && age < 120
}

// IsPetAge reports whether age is plausible for a pet.
func IsPetAge(age int) bool {
	return age >= 0 && age < 50
}

// IsEmpty reports whether s is blank.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// FormatPhone keeps the first ten digits of s.
func FormatPhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == MaxFormattedPhoneLen {
			break
		}
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
