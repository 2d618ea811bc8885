package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Command describes one CLI command for help and completion.
type Command struct {
	Name        string
	Usage       string
	Description string
}

// Commands lists the storefront CLI commands.
var Commands = []Command{
	{"products", "products [-q texto] [-band all|cheap|expensive]", "Lista el catálogo"},
	{"product", "product <id>", "Muestra un producto"},
	{"cart", "cart", "Muestra el carrito"},
	{"add", "add <product-id> [cantidad]", "Agrega un producto al carrito"},
	{"qty", "qty <item-id> <delta>", "Cambia la cantidad de un producto"},
	{"remove", "remove <item-id>", "Quita un producto del carrito"},
	{"clear", "clear", "Vacía el carrito"},
	{"checkout", "checkout", "Genera el pedido"},
	{"orders", "orders", "Historial de pedidos"},
	{"login", "login <email> <contraseña>", "Inicia sesión"},
	{"logout", "logout", "Cierra sesión"},
	{"whoami", "whoami", "Muestra el usuario actual"},
	{"profile", "profile [-name n] [-last-name a] [-email e] [-phone t]", "Actualiza el perfil"},
	{"watch", "watch [-interval 30s]", "Sincroniza el carrito periódicamente"},
	{"completion", "completion bash|zsh|fish [-install]", "Genera el script de autocompletado"},
}

// GlobalFlags are accepted before any command.
var GlobalFlags = []string{"--config", "--env", "--demo", "--log-level", "--log-format", "--metrics-addr"}

// Usage writes the command list.
func Usage(w io.Writer, program string) {
	fmt.Fprintf(w, "Uso: %s [flags] <comando> [args]\n\nComandos:\n", program)
	for _, c := range Commands {
		fmt.Fprintf(w, "  %-40s %s\n", c.Usage, c.Description)
	}
	fmt.Fprintf(w, "\nFlags: %s\n", strings.Join(GlobalFlags, " "))
}

func commandNames() []string {
	names := make([]string, 0, len(Commands))
	for _, c := range Commands {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func bashScript(program string) string {
	fn := "_" + strings.ReplaceAll(program, "-", "_") + "_completion"
	return fmt.Sprintf(`#!/bin/bash
# Bash completion for %[1]s

%[2]s() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    case "${prev}" in
        --config|--env)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        --log-level)
            COMPREPLY=( $(compgen -W "debug info warn error" -- ${cur}) )
            return 0
            ;;
        --log-format)
            COMPREPLY=( $(compgen -W "json text" -- ${cur}) )
            return 0
            ;;
        -band)
            COMPREPLY=( $(compgen -W "all cheap expensive" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "%[3]s %[4]s" -- ${cur}) )
    return 0
}

complete -F %[2]s %[1]s
`, program, fn, strings.Join(commandNames(), " "), strings.Join(GlobalFlags, " "))
}

func zshScript(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#compdef %s\n\n_%s() {\n    local -a commands\n    commands=(\n", program, program)
	for _, c := range Commands {
		fmt.Fprintf(&b, "        '%s:%s'\n", c.Name, c.Description)
	}
	b.WriteString(`    )

    _arguments -C \
        '--config[Archivo de configuración]:file:_files' \
        '--env[Archivo .env]:file:_files' \
        '--demo[Catálogo de demostración sin servidor]' \
        '--log-level[Nivel de log]:level:(debug info warn error)' \
        '--log-format[Formato de log]:format:(json text)' \
        '--metrics-addr[Dirección del endpoint de métricas]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

`)
	fmt.Fprintf(&b, "_%s \"$@\"\n", program)
	return b.String()
}

func fishScript(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fish completion for %s\n\n", program)
	for _, c := range Commands {
		fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_use_subcommand\" -a %q -d %q\n", program, c.Name, c.Description)
	}
	for _, shell := range []string{"bash", "zsh", "fish"} {
		fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_seen_subcommand_from completion\" -a %q\n", program, shell)
	}
	fmt.Fprintf(&b, "complete -c %s -l config -r -d \"Archivo de configuración\"\n", program)
	fmt.Fprintf(&b, "complete -c %s -l demo -d \"Catálogo de demostración sin servidor\"\n", program)
	fmt.Fprintf(&b, "complete -c %s -l log-level -x -a \"debug info warn error\"\n", program)
	fmt.Fprintf(&b, "complete -c %s -l log-format -x -a \"json text\"\n", program)
	return b.String()
}

// CompletionScript returns the completion script for shell.
func CompletionScript(shell, program string) (string, error) {
	switch shell {
	case "bash":
		return bashScript(program), nil
	case "zsh":
		return zshScript(program), nil
	case "fish":
		return fishScript(program), nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}

// InstallCompletion writes the completion script under home and returns its path.
func InstallCompletion(shell, program, home string) (string, error) {
	script, err := CompletionScript(shell, program)
	if err != nil {
		return "", err
	}

	var path string
	switch shell {
	case "bash":
		path = filepath.Join(home, ".bash_completion.d", program)
	case "zsh":
		path = filepath.Join(home, ".zsh", "completion", "_"+program)
	case "fish":
		path = filepath.Join(home, ".config", "fish", "completions", program+".fish")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	return path, nil
}
