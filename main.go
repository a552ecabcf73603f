package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/zecret/cmd"
	"github.com/illarion/zecret/internal/config"
	"github.com/illarion/zecret/internal/logging"
)

var errUnknownCommand = errors.New("unknown command")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	global := flag.NewFlagSet("zecret", flag.ContinueOnError)
	global.Usage = printUsage
	vaultDir := global.String("vault", "", "Vault directory (default ~/.zecret, or $ZECRET_VAULT)")
	configPath := global.String("config", "", "JSON config file (or $ZECRET_CONFIG)")
	logLevel := global.String("log-level", "", "Log level: debug, info, warn, error")
	if err := global.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	args := global.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "help", "-h", "--help":
		if len(args) < 2 {
			printUsage()
			return
		}
		printCommandHelp(args[1])
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cmd.HandleError(err)
	}
	if *vaultDir != "" {
		cfg.VaultDir = *vaultDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		cmd.HandleError(err)
	}

	app := cmd.NewApp(cfg, logger)
	err = run(ctx, app, args[0], args[1:])
	_ = logger.Sync()
	if errors.Is(err, errUnknownCommand) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		cmd.HandleError(err)
	}
}

func run(ctx context.Context, app *cmd.App, command string, args []string) error {
	switch command {
	case "init":
		return runInit(ctx, app, args)
	case "ls", "list":
		return runLs(ctx, app, args)
	case "show", "cat":
		return runShow(ctx, app, args)
	case "write":
		return runWrite(ctx, app, args)
	case "rm":
		return runRm(ctx, app, args)
	case "passwd":
		return runPasswd(ctx, app, args)
	case "export":
		return runExport(ctx, app, args)
	case "import":
		return runImport(ctx, app, args)
	case "foreign":
		return runForeign(ctx, app, args)
	case "diff":
		return runDiff(ctx, app, args)
	case "status":
		return runStatus(app, args)
	case "keyring":
		return runKeyring(ctx, app, args)
	case "completion":
		if len(args) < 1 {
			return errors.New("usage: zecret completion <bash|zsh|fish>")
		}
		return app.Completion(args[0])
	default:
		return errUnknownCommand
	}
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	return fs.Parse(args)
}

func runInit(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Init(ctx)
}

func runLs(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	titles := fs.Bool("titles", false, "Decrypt entries to show note titles")
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Ls(ctx, *titles)
}

func runShow(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	raw := fs.Bool("raw", false, "Print plaintext as stored")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: zecret show [-raw] <id>")
	}
	return app.Show(ctx, fs.Arg(0), *raw)
}

func runWrite(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	id := fs.String("id", "", "Entry to replace (default: new entry)")
	title := fs.String("title", "", "Store as a note with this title")
	file := fs.String("file", "", "Read body from file (default: stdin)")
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Write(ctx, cmd.WriteOptions{ID: *id, Title: *title, File: *file})
}

func runRm(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Remove(ctx, fs.Args())
}

func runPasswd(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Passwd(ctx)
}

func runExport(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("o", "", "Output file (default: stdout)")
	raw := fs.Bool("raw", false, "Export a single entry as a raw record")
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Export(ctx, cmd.ExportOptions{IDs: fs.Args(), Output: *output, Raw: *raw})
}

func runImport(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	overwrite := fs.Bool("overwrite", false, "Replace entries that already exist")
	id := fs.String("id", "", "Id for a raw record (default: file name)")
	rename := fs.String("rename", "", "Store a single imported entry under this id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: zecret import [-overwrite] [-id id] [-rename id] <file>")
	}
	return app.Import(ctx, fs.Arg(0), cmd.ImportOptions{Overwrite: *overwrite, ID: *id, Rename: *rename})
}

func runForeign(ctx context.Context, app *cmd.App, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: zecret foreign <ls|rm|adopt>")
	}

	switch args[0] {
	case "ls":
		return app.ForeignList(ctx)
	case "rm":
		return app.ForeignRemove(ctx, args[1:])
	case "adopt":
		fs := flag.NewFlagSet("foreign adopt", flag.ExitOnError)
		from := fs.String("from", "", "Vault directory whose key encrypted the record")
		overwrite := fs.Bool("overwrite", false, "Replace an existing entry with the same id")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: zecret foreign adopt [-from vault] [-overwrite] <id>")
		}
		return app.ForeignAdopt(ctx, fs.Arg(0), *from, *overwrite)
	default:
		return fmt.Errorf("unknown foreign subcommand: %s", args[0])
	}
}

func runDiff(ctx context.Context, app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: zecret diff <id> [file]")
	}
	return app.Diff(ctx, fs.Arg(0), fs.Arg(1))
}

func runStatus(app *cmd.App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.Status()
}

func runKeyring(ctx context.Context, app *cmd.App, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: zecret keyring <save|delete|status>")
	}

	switch args[0] {
	case "save":
		return app.KeyringSave(ctx)
	case "delete":
		return app.KeyringDelete()
	case "status":
		return app.KeyringStatus()
	default:
		return fmt.Errorf("unknown keyring subcommand: %s", args[0])
	}
}

func printUsage() {
	fmt.Println("zecret - encrypted diary in a local vault")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  zecret [-vault dir] [-config file] [-log-level level] <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a new vault")
	fmt.Println("  ls          List entries, newest first")
	fmt.Println("  show        Print an entry")
	fmt.Println("  write       Create or replace an entry")
	fmt.Println("  rm          Delete entries")
	fmt.Println("  passwd      Change vault password")
	fmt.Println("  export      Export entries as an encrypted bundle")
	fmt.Println("  import      Import a bundle or a raw entry record")
	fmt.Println("  foreign     Manage records quarantined on import")
	fmt.Println("  diff        Compare an entry with new content")
	fmt.Println("  status      Show vault metadata")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  zecret init                              # Create new vault")
	fmt.Println("  zecret write -title \"Monday\" < note.txt  # Save a note")
	fmt.Println("  zecret ls -titles                        # List with titles")
	fmt.Println("  zecret export -o backup.json             # Export everything")
	fmt.Println()
	fmt.Println("Flags go before positional arguments.")
	fmt.Println("Use 'zecret help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("zecret init")
		fmt.Println()
		fmt.Println("Creates a vault in the configured directory.")
		fmt.Println("Prompts for a password that will be used for encryption.")
		fmt.Println("The password is not stored anywhere - you must remember it.")
		fmt.Println("Set ZECRET_PASSWORD to skip the prompt.")
	case "ls", "list":
		fmt.Println("zecret ls [-titles]")
		fmt.Println()
		fmt.Println("Lists entries newest first with modification time and size.")
		fmt.Println("Only record headers are read unless -titles is given.")
		fmt.Println("Unreadable entries are listed with the reason and do not stop the listing.")
	case "show", "cat":
		fmt.Println("zecret show [-raw] <id>")
		fmt.Println()
		fmt.Println("Decrypts and prints an entry. Notes are shown as title and body.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -raw    Print the plaintext exactly as stored")
	case "write":
		fmt.Println("zecret write [-id id] [-title title] [-file path]")
		fmt.Println()
		fmt.Println("Encrypts content from stdin or a file and stores it.")
		fmt.Println("Without -id a new entry id is generated from the current time.")
		fmt.Println("Replacing an entry keeps its creation time.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  echo hello | zecret write -title \"First\"")
		fmt.Println("  zecret write -id 20240101_120000_ab12cd34 -file note.txt")
	case "rm":
		fmt.Println("zecret rm <id> [id...]")
		fmt.Println()
		fmt.Println("Deletes entries from the vault.")
	case "passwd":
		fmt.Println("zecret passwd")
		fmt.Println()
		fmt.Println("Changes the vault password and re-encrypts every entry.")
		fmt.Println("The change is all or nothing: on any failure the vault is left untouched.")
		fmt.Println("Set ZECRET_NEW_PASSWORD to skip the new password prompt.")
	case "export":
		fmt.Println("zecret export [-o file] [-raw] [id...]")
		fmt.Println()
		fmt.Println("Writes entries, still encrypted, to a portable bundle.")
		fmt.Println("Without ids all entries are exported. No key material is included.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -o file   Output file (default: stdout)")
		fmt.Println("  -raw      Export exactly one entry as its raw record")
	case "import":
		fmt.Println("zecret import [-overwrite] [-id id] [-rename id] <file>")
		fmt.Println()
		fmt.Println("Imports a bundle or a raw entry record. Input is validated before anything is written.")
		fmt.Println("Existing ids fail the import unless -overwrite is given.")
		fmt.Println("Records encrypted under another vault's key are quarantined, see 'zecret foreign'.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -overwrite   Replace entries that already exist")
		fmt.Println("  -id id       Id for a raw record (default: file name without .zent)")
		fmt.Println("  -rename id   Store a single imported entry under a new id")
	case "foreign":
		fmt.Println("zecret foreign ls")
		fmt.Println("zecret foreign rm <id> [id...]")
		fmt.Println("zecret foreign adopt [-from vault] [-overwrite] <id>")
		fmt.Println()
		fmt.Println("Manages records that were imported under another vault's key.")
		fmt.Println("adopt decrypts a record with the vault given by -from, after prompting")
		fmt.Println("for that vault's password, and re-encrypts it under this vault.")
	case "diff":
		fmt.Println("zecret diff <id> [file]")
		fmt.Println()
		fmt.Println("Shows a unified diff from the stored entry to the file (or stdin).")
	case "status":
		fmt.Println("zecret status")
		fmt.Println()
		fmt.Println("Shows vault id, cipher, KDF, entry counts and keyring state.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "keyring":
		fmt.Println("zecret keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Stores the vault password in the OS keyring so commands do not prompt.")
	case "completion":
		fmt.Println("zecret completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(zecret completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(zecret completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  zecret completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
