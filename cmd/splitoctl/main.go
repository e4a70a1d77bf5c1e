// Command splitoctl lists tokens, quotes debts and drives settlements from
// the terminal, either through a running gateway or directly against the
// Splito backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	settlementsvc "github.com/splito-labs/settlement_gateway/internal/app/services/settlement"
	"github.com/splito-labs/settlement_gateway/internal/cli"
	"github.com/splito-labs/settlement_gateway/internal/config"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

const usage = `usage: splitoctl [--gateway URL] [--session TOKEN] [--json] <command> [flags]

commands:
  balances                      show what you owe and are owed
  tokens [--chain ID]           list settlement tokens
  quote --token ID --chain ID --debt USD:50 [--debt EUR:10]
  settle --token ID --chain ID [--friend ID] [--currency USD] [--exclude ID] [--group ID] [--kind stellar] [--address ADDR]
  submit --id ID (--signed TX | --reject REASON)
  status --id ID
  completion bash|zsh|fish

Without --gateway the backend is called directly using the gateway's
environment configuration.
`

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	global := flag.NewFlagSet("splitoctl", flag.ExitOnError)
	gatewayURL := global.String("gateway", os.Getenv("SPLITO_GATEWAY_URL"), "gateway base URL")
	session := global.String("session", os.Getenv("SPLITO_SESSION"), "backend session token")
	asJSON := global.Bool("json", false, "print JSON")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}
	cmd, rest := args[0], args[1:]
	out := cli.NewPrinter(os.Stdout)

	if cmd == "completion" {
		if len(rest) != 1 {
			log.Fatalf("usage: splitoctl completion bash|zsh|fish")
		}
		if err := cli.GenerateCompletion(os.Stdout, rest[0]); err != nil {
			log.Fatalf("completion: %v", err)
		}
		return
	}
	if cmd == "help" {
		global.Usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gw, err := connect(ctx, *gatewayURL, *session)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	err = run(ctx, gw, out, os.Stderr, cmd, rest, *asJSON)
	if c, ok := gw.(io.Closer); ok {
		_ = c.Close()
	}
	if err != nil {
		out.Error("%v", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, gatewayURL, session string) (gateway, error) {
	if gatewayURL != "" {
		cookie := os.Getenv("SPLITO_SESSION_COOKIE")
		if cookie == "" {
			cookie = "splito.session"
		}
		return newHTTPGateway(gatewayURL, session, cookie)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	lg := logger.New(logger.LoggingConfig{Level: "warn", Format: cfg.Logging.Format, Output: "stderr"})
	return newDirectGateway(ctx, cfg, session, lg)
}

func run(ctx context.Context, gw gateway, out *cli.Printer, status io.Writer, cmd string, args []string, asJSON bool) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(status)

	switch cmd {
	case "tokens":
		chain := fs.String("chain", "", "chain id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		opts, err := gw.Tokens(ctx, *chain)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(opts)
		}
		rows := make([][]string, 0, len(opts))
		for _, o := range opts {
			rows = append(rows, []string{o.ID, o.Symbol, o.Name, o.ChainID})
		}
		return out.Table([]string{"ID", "SYMBOL", "NAME", "CHAIN"}, rows)

	case "balances":
		if err := fs.Parse(args); err != nil {
			return err
		}
		summary, err := gw.Balances(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(summary)
		}
		rows := make([][]string, 0, len(summary.Currencies))
		for _, c := range summary.Currencies {
			rows = append(rows, []string{c.Currency, c.Owe.String(), c.Owed.String(), c.Net().String()})
		}
		return out.Table([]string{"CURRENCY", "OWE", "OWED", "NET"}, rows)

	case "quote":
		tokenID := fs.String("token", "", "token id")
		chain := fs.String("chain", "", "chain id")
		var debts debtList
		fs.Var(&debts, "debt", "CURRENCY:AMOUNT, repeatable")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *tokenID == "" || *chain == "" || len(debts) == 0 {
			return errors.New("quote needs --token, --chain and at least one --debt")
		}
		conv, err := gw.Quote(ctx, *tokenID, *chain, debts)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(conv)
		}
		return printConversion(out, conv)

	case "settle":
		var sa settleArgs
		var currencies, exclude stringList
		fs.StringVar(&sa.TokenID, "token", "", "token id")
		fs.StringVar(&sa.ChainID, "chain", "", "chain id")
		fs.StringVar(&sa.GroupID, "group", "", "group id")
		fs.StringVar(&sa.FriendID, "friend", "", "settle with one friend")
		fs.StringVar(&sa.Kind, "kind", "", "wallet kind (stellar or aptos)")
		fs.StringVar(&sa.Address, "address", "", "wallet address")
		fs.StringVar(&sa.PublicKey, "public-key", "", "wallet public key")
		fs.Var(&currencies, "currency", "currency to pay, repeatable (with --friend)")
		fs.Var(&exclude, "exclude", "friend to skip, repeatable")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if sa.TokenID == "" || sa.ChainID == "" {
			return errors.New("settle needs --token and --chain")
		}
		sa.Currencies, sa.Exclude = currencies, exclude

		spin := cli.NewSpinner(status, "settling")
		spin.Start()
		res, err := gw.Settle(ctx, sa)
		spin.Stop()
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(res)
		}
		return printResult(out, res)

	case "submit":
		id := fs.String("id", "", "settlement id")
		signed := fs.String("signed", "", "signed transaction")
		reject := fs.String("reject", "", "reason the wallet refused to sign")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" || (*signed == "") == (*reject == "") {
			return errors.New("submit needs --id and exactly one of --signed or --reject")
		}
		rec, err := gw.Submit(ctx, *id, *signed, *reject)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(rec)
		}
		printSettlement(out, rec)
		return nil

	case "status":
		id := fs.String("id", "", "settlement id")
		wait := fs.Duration("wait", 0, "poll until the settlement is final or this long has passed")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return errors.New("status needs --id")
		}
		rec, err := awaitStatus(ctx, gw, *id, *wait, 2*time.Second)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(rec)
		}
		printSettlement(out, rec)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// awaitStatus fetches a settlement, polling while it is not final until wait
// elapses.
func awaitStatus(ctx context.Context, gw gateway, id string, wait, every time.Duration) (domain.Settlement, error) {
	deadline := time.Now().Add(wait)
	for {
		rec, err := gw.Status(ctx, id)
		if err != nil || rec.Status.Terminal() || wait <= 0 || time.Now().After(deadline) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return rec, nil
		case <-time.After(every):
		}
	}
}

func printConversion(out *cli.Printer, conv domain.Conversion) error {
	rows := make([][]string, 0, len(conv.Lines))
	for _, l := range conv.Lines {
		rows = append(rows, []string{l.Currency, l.Amount.String(), l.Price.String(), l.TokenAmount.String(), string(l.Source)})
	}
	if err := out.Table([]string{"CURRENCY", "AMOUNT", "PRICE", conv.Symbol, "SOURCE"}, rows); err != nil {
		return err
	}
	out.Info("total %s %s", conv.Total.String(), conv.Symbol)
	return nil
}

func printResult(out *cli.Printer, res settlementsvc.Result) error {
	if len(res.Conversion.Lines) > 0 {
		if err := printConversion(out, res.Conversion); err != nil {
			return err
		}
	}
	printSettlement(out, res.Settlement)
	if res.Settlement.Status == domain.StatusSigning {
		out.Warning("sign the payload below and run: splitoctl submit --id %s --signed <tx>", res.Settlement.ID)
		out.Println(res.Settlement.UnsignedTx)
	}
	return nil
}

func printSettlement(out *cli.Printer, rec domain.Settlement) {
	line := fmt.Sprintf("settlement %s %s %s on %s", rec.ID, rec.Status, rec.Amount.String(), rec.ChainID)
	if rec.TxHash != "" {
		line += " tx " + rec.TxHash
	}
	switch rec.Status {
	case domain.StatusFailed:
		msg := rec.Message
		if rec.ErrorCode != "" {
			msg = rec.ErrorCode + ": " + msg
		}
		out.Error("%s (%s)", line, msg)
	case domain.StatusConfirmed:
		out.Success("%s", line)
	default:
		out.Info("%s", line)
	}
}

// debtList parses repeated CURRENCY:AMOUNT flags.
type debtList []balance.Debt

func (d *debtList) String() string {
	parts := make([]string, 0, len(*d))
	for _, debt := range *d {
		parts = append(parts, debt.Currency+":"+debt.Amount.String())
	}
	return strings.Join(parts, ",")
}

func (d *debtList) Set(value string) error {
	debt, err := parseDebt(value)
	if err != nil {
		return err
	}
	*d = append(*d, debt)
	return nil
}

func parseDebt(value string) (balance.Debt, error) {
	currency, amount, ok := strings.Cut(strings.TrimSpace(value), ":")
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !ok || currency == "" {
		return balance.Debt{}, fmt.Errorf("debt %q must look like USD:50", value)
	}
	n, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return balance.Debt{}, fmt.Errorf("debt %q: %w", value, err)
	}
	if !n.IsPositive() {
		return balance.Debt{}, fmt.Errorf("debt %q must be positive", value)
	}
	return balance.Debt{Currency: currency, Amount: n}, nil
}

// stringList collects a repeated or comma separated flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*s = append(*s, item)
		}
	}
	return nil
}
