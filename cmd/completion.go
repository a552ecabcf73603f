package cmd

import (
	"fmt"
)

// Completion writes a shell completion script
func (a *App) Completion(shell string) error {
	switch shell {
	case "bash":
		fmt.Fprint(a.Out, bashCompletion)
	case "zsh":
		fmt.Fprint(a.Out, zshCompletion)
	case "fish":
		fmt.Fprint(a.Out, fishCompletion)
	default:
		return fmt.Errorf("unknown shell: %s\nSupported: bash, zsh, fish", shell)
	}
	return nil
}

const bashCompletion = `_zecret() {
    local cur prev words cword
    _init_completion || return

    local commands="init ls show write rm passwd export import foreign diff status keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        ls)
            COMPREPLY=($(compgen -W "-titles" -- "$cur"))
            ;;
        show)
            COMPREPLY=($(compgen -W "-raw" -- "$cur"))
            ;;
        write)
            if [[ "$prev" == "-file" ]]; then
                _filedir
            else
                COMPREPLY=($(compgen -W "-id -title -file" -- "$cur"))
            fi
            ;;
        export)
            if [[ "$prev" == "-o" ]]; then
                _filedir
            else
                COMPREPLY=($(compgen -W "-o -raw" -- "$cur"))
            fi
            ;;
        import)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-overwrite -id -rename" -- "$cur"))
            else
                _filedir
            fi
            ;;
        diff)
            _filedir
            ;;
        foreign)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "ls rm adopt" -- "$cur"))
            elif [[ "$prev" == "-from" ]]; then
                _filedir -d
            else
                COMPREPLY=($(compgen -W "-from -overwrite" -- "$cur"))
            fi
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _zecret zecret
`

const zshCompletion = `#compdef zecret

_zecret() {
    local -a commands
    commands=(
        'init:Create a new vault'
        'ls:List entries, newest first'
        'show:Print an entry'
        'write:Create or replace an entry'
        'rm:Delete entries'
        'passwd:Change the vault password'
        'export:Export entries as an encrypted bundle'
        'import:Import a bundle or raw entry record'
        'foreign:Manage records quarantined on import'
        'diff:Compare an entry with new content'
        'status:Show vault metadata'
        'keyring:Manage password in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'zecret commands' commands
            ;;
        args)
            case "${words[2]}" in
                ls)
                    _arguments '-titles[Decrypt entries to show note titles]'
                    ;;
                show)
                    _arguments '-raw[Print plaintext as stored]'
                    ;;
                write)
                    _arguments \
                        '-id[Entry to replace]:id' \
                        '-title[Note title]:title' \
                        '-file[Read body from file]:file:_files'
                    ;;
                export)
                    _arguments \
                        '-o[Output file]:file:_files' \
                        '-raw[Export one raw record]'
                    ;;
                import)
                    _arguments \
                        '-overwrite[Replace existing entries]' \
                        '-id[Id for a raw record]:id' \
                        '-rename[Store a single entry under a new id]:id' \
                        '*:file:_files'
                    ;;
                diff)
                    _arguments '*:file:_files'
                    ;;
                foreign)
                    _values 'subcommand' ls rm adopt
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'zecret commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_zecret "$@"
`

const fishCompletion = `# zecret fish completions

set -l commands init ls show write rm passwd export import foreign diff status keyring help completion

complete -c zecret -f

# Commands
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a new vault'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List entries'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a show -d 'Print an entry'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a write -d 'Create or replace an entry'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Delete entries'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change vault password'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a export -d 'Export entries'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a import -d 'Import entries'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a foreign -d 'Manage quarantined records'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare an entry with new content'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault metadata'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c zecret -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# flags
complete -c zecret -n "__fish_seen_subcommand_from ls" -o titles -d 'Show note titles'
complete -c zecret -n "__fish_seen_subcommand_from show" -o raw -d 'Print plaintext as stored'
complete -c zecret -n "__fish_seen_subcommand_from write" -o id -d 'Entry to replace'
complete -c zecret -n "__fish_seen_subcommand_from write" -o title -d 'Note title'
complete -c zecret -n "__fish_seen_subcommand_from write" -o file -r -F -d 'Read body from file'
complete -c zecret -n "__fish_seen_subcommand_from export" -o o -r -F -d 'Output file'
complete -c zecret -n "__fish_seen_subcommand_from export" -o raw -d 'Export one raw record'
complete -c zecret -n "__fish_seen_subcommand_from import" -o overwrite -d 'Replace existing entries'
complete -c zecret -n "__fish_seen_subcommand_from import" -o id -d 'Id for a raw record'
complete -c zecret -n "__fish_seen_subcommand_from import" -o rename -d 'Store under a new id'
complete -c zecret -n "__fish_seen_subcommand_from import diff" -F

# subcommands
complete -c zecret -n "__fish_seen_subcommand_from foreign" -a "ls rm adopt"
complete -c zecret -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c zecret -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c zecret -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
