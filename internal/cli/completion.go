package cli

import (
	"fmt"
	"io"
)

// BashCompletion is the bash completion script for splitoctl
const BashCompletion = `#!/bin/bash
# Bash completion for splitoctl

_splitoctl_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    local commands="balances tokens quote settle submit status completion help"
    local global_flags="--gateway --session --direct --json"

    case "${prev}" in
        splitoctl)
            COMPREPLY=( $(compgen -W "${commands} ${global_flags}" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
        --chain)
            COMPREPLY=( $(compgen -W "stellar stellar-testnet aptos aptos-testnet" -- ${cur}) )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "--token --chain --friend --currency --exclude --group --address --kind --debt --id --signed --reject" -- ${cur}) )
}

complete -F _splitoctl_completion splitoctl
`

// ZshCompletion is the zsh completion script for splitoctl
const ZshCompletion = `#compdef splitoctl

_splitoctl() {
    local -a commands
    commands=(
        'balances:Show what you owe and are owed'
        'tokens:List settlement tokens'
        'quote:Convert debts into a token amount'
        'settle:Start a settlement'
        'submit:Hand back an externally signed transaction'
        'status:Show a settlement'
        'completion:Print a completion script'
    )
    _arguments \
        '--gateway[Gateway base URL]:url:' \
        '--session[Backend session]:session:' \
        '--direct[Call the backend directly]' \
        '--json[Print JSON]' \
        '1: :->command' \
        '*:: :->args'
    case $state in
        command) _describe 'command' commands ;;
    esac
}

_splitoctl "$@"
`

// FishCompletion is the fish completion script for splitoctl
const FishCompletion = `# Fish completion for splitoctl
complete -c splitoctl -f -n "__fish_use_subcommand" -a "balances" -d "Show what you owe and are owed"
complete -c splitoctl -f -n "__fish_use_subcommand" -a "tokens" -d "List settlement tokens"
complete -c splitoctl -f -n "__fish_use_subcommand" -a "quote" -d "Convert debts into a token amount"
complete -c splitoctl -f -n "__fish_use_subcommand" -a "settle" -d "Start a settlement"
complete -c splitoctl -f -n "__fish_use_subcommand" -a "submit" -d "Hand back a signed transaction"
complete -c splitoctl -f -n "__fish_use_subcommand" -a "status" -d "Show a settlement"
complete -c splitoctl -f -n "__fish_use_subcommand" -a "completion" -d "Print a completion script"
complete -c splitoctl -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
complete -c splitoctl -l gateway -r -d "Gateway base URL"
complete -c splitoctl -l session -r -d "Backend session"
complete -c splitoctl -l direct -d "Call the backend directly"
complete -c splitoctl -l json -d "Print JSON"
`

// GenerateCompletion writes the completion script for shell to w
func GenerateCompletion(w io.Writer, shell string) error {
	var script string

	switch shell {
	case "bash":
		script = BashCompletion
	case "zsh":
		script = ZshCompletion
	case "fish":
		script = FishCompletion
	default:
		return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}

	_, err := io.WriteString(w, script)
	return err
}
