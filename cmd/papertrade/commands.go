package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/papertrade/internal/broker"
	"github.com/seenimoa/papertrade/internal/journal"
	"github.com/seenimoa/papertrade/pkg/models"
	"github.com/seenimoa/papertrade/pkg/utils"
)

// cmdTimeout bounds one CLI action, quote fetches included.
const cmdTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(placeCmd, modifyCmd, cancelCmd, ordersCmd)
	rootCmd.AddCommand(positionsCmd, holdingsCmd, fundsCmd, tradebookCmd, exitCmd)
	rootCmd.AddCommand(refreshCmd, rolloverCmd, resetCmd, quoteCmd, journalCmd)

	placeCmd.Flags().String("side", "BUY", "BUY or SELL")
	placeCmd.Flags().String("type", "MARKET", "MARKET, LIMIT, SL-M or SL")
	placeCmd.Flags().String("product", "INTRADAY", "INTRADAY, CNC or MARGIN")
	placeCmd.Flags().Float64("limit", 0, "limit price")
	placeCmd.Flags().Float64("stop", 0, "stop (trigger) price")
	placeCmd.Flags().String("validity", "DAY", "DAY or IOC")
	placeCmd.Flags().String("tag", "", "free-form order tag")

	modifyCmd.Flags().Int("qty", 0, "new quantity")
	modifyCmd.Flags().String("type", "", "new order type")
	modifyCmd.Flags().Float64("limit", 0, "new limit price")
	modifyCmd.Flags().Float64("stop", 0, "new stop price")

	ordersCmd.Flags().String("status", "", "only orders in this status (e.g. PENDING)")
	resetCmd.Flags().Bool("yes", false, "confirm wiping the ledger")

	journalCmd.Flags().String("symbol", "", "only trades in this symbol")
	journalCmd.Flags().String("since", "", "only trades on or after this date (YYYY-MM-DD)")
	journalCmd.Flags().Int("limit", 50, "maximum trades to show")
	journalCmd.AddCommand(journalSummaryCmd)
}

// withBroker runs fn against the engine with a bounded context.
func withBroker(cmd *cobra.Command, fn func(ctx context.Context, b *broker.PaperBroker) error) error {
	r, err := openRuntime()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
	defer cancel()
	return fn(ctx, r.broker)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// ════════════════════════════════════════════════════════════════════
// Orders
// ════════════════════════════════════════════════════════════════════

var placeCmd = &cobra.Command{
	Use:   "place [symbol] [qty]",
	Short: "Place an order",
	Example: `  papertrade place SBIN 10
  papertrade place TCS 5 --side sell --type limit --limit 3550 --product cnc`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("qty must be an integer: %w", err)
		}
		sideFlag, _ := cmd.Flags().GetString("side")
		side, err := models.ParseSide(sideFlag)
		if err != nil {
			return err
		}
		typ, _ := cmd.Flags().GetString("type")
		product, _ := cmd.Flags().GetString("product")
		limit, _ := cmd.Flags().GetFloat64("limit")
		stop, _ := cmd.Flags().GetFloat64("stop")
		validity, _ := cmd.Flags().GetString("validity")
		tag, _ := cmd.Flags().GetString("tag")

		req := models.OrderRequest{
			Symbol:      args[0],
			Qty:         qty,
			Side:        side,
			Type:        models.OrderType(strings.ToUpper(typ)),
			ProductType: models.ProductType(strings.ToUpper(product)),
			LimitPrice:  limit,
			StopPrice:   stop,
			Validity:    models.Validity(validity),
			OrderTag:    tag,
		}
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			resp, err := b.PlaceOrder(ctx, req)
			return printOrderResponse(cmd, resp, err)
		})
	},
}

var modifyCmd = &cobra.Command{
	Use:   "modify [order-id]",
	Short: "Modify a pending order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, _ := cmd.Flags().GetInt("qty")
		typ, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetFloat64("limit")
		stop, _ := cmd.Flags().GetFloat64("stop")
		req := models.ModifyRequest{
			Qty:        qty,
			Type:       models.OrderType(strings.ToUpper(typ)),
			LimitPrice: limit,
			StopPrice:  stop,
		}
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			resp, err := b.ModifyOrder(ctx, args[0], req)
			return printOrderResponse(cmd, resp, err)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [order-id...]",
	Short: "Cancel pending orders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			if len(args) == 1 {
				resp, err := b.CancelOrder(ctx, args[0])
				return printOrderResponse(cmd, resp, err)
			}
			return printMultiResults(cmd, b.CancelMultiOrder(ctx, args), nil)
		})
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List the order book",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			orders, err := b.GetOrders(ctx)
			if err != nil {
				return err
			}
			if status != "" {
				filtered := orders[:0]
				for _, o := range orders {
					if strings.EqualFold(string(o.Status), status) {
						filtered = append(filtered, o)
					}
				}
				orders = filtered
			}
			if wantJSON(cmd) {
				return printJSON(orders)
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tTIME\tSYMBOL\tSIDE\tQTY\tFILLED\tTYPE\tPRODUCT\tPRICE\tSTATUS\tMESSAGE")
			for _, o := range orders {
				price := o.LimitPrice
				if o.Status == models.OrderTraded {
					price = o.TradedPrice
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%.2f\t%s\t%s\n",
					o.ID, o.OrderDateTime.In(utils.IST).Format("15:04:05"), o.Symbol, o.Side,
					o.Qty, o.FilledQty, o.Type, o.ProductType, price, o.Status, o.Message)
			}
			return tw.Flush()
		})
	},
}

// ════════════════════════════════════════════════════════════════════
// Books
// ════════════════════════════════════════════════════════════════════

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show net positions marked to market",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			book, err := b.GetPositions(ctx)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(book)
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tNET QTY\tAVG\tLTP\tREALIZED\tUNREALIZED\tP&L")
			for _, p := range book.Positions {
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%s\t%s\t%s\n",
					p.ID, p.NetQty, p.NetAvg, p.LTP,
					utils.FormatPnL(p.Realized), utils.FormatPnL(p.Unrealized), utils.FormatPnL(p.PL))
			}
			o := book.Overall
			fmt.Fprintf(tw, "\t%d open / %d total\t\t\t%s\t%s\t%s\n",
				o.CountOpen, o.CountTotal,
				utils.FormatPnL(o.PLRealized), utils.FormatPnL(o.PLUnrealized), utils.FormatPnL(o.PLTotal))
			return tw.Flush()
		})
	},
}

var holdingsCmd = &cobra.Command{
	Use:   "holdings",
	Short: "Show delivery holdings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			book, err := b.GetHoldings(ctx)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(book)
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tSYMBOL\tQTY\tCOST\tLTP\tVALUE\tP&L")
			for _, h := range book.Holdings {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%.2f\t%s\t%s\n",
					h.ID, h.Symbol, h.RemainingQty, h.CostPrice, h.LTP,
					utils.FormatINR(h.MarketVal), utils.FormatPnL(h.PL))
			}
			o := book.Overall
			fmt.Fprintf(tw, "\t\t\t%s\t\t%s\t%s (%s)\n",
				utils.FormatINR(o.TotalInvestment), utils.FormatINR(o.TotalCurrentValue),
				utils.FormatPnL(o.TotalPL), utils.FormatPct(o.PnLPct))
			return tw.Flush()
		})
	},
}

var fundsCmd = &cobra.Command{
	Use:   "funds",
	Short: "Show account funds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			f, err := b.GetFunds(ctx)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(f)
			}
			printFunds(*f)
			return nil
		})
	},
}

var tradebookCmd = &cobra.Command{
	Use:   "tradebook",
	Short: "List fills",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			trades, err := b.GetTradebook(ctx)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(trades)
			}
			return printTrades(trades)
		})
	},
}

var exitCmd = &cobra.Command{
	Use:   "exit [position-id...]",
	Short: "Square off positions (all open positions when none are named)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			if len(args) == 1 {
				resp, err := b.ExitPosition(ctx, args[0])
				return printOrderResponse(cmd, resp, err)
			}
			results, err := b.ExitPositions(ctx, args)
			return printMultiResults(cmd, results, err)
		})
	},
}

// ════════════════════════════════════════════════════════════════════
// Maintenance
// ════════════════════════════════════════════════════════════════════

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch quotes, fill marketable pending orders and mark the book",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			if err := b.UpdatePositionsLtp(ctx); err != nil {
				return err
			}
			return printSummary(ctx, cmd, b)
		})
	},
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover [date]",
	Short: "Run the end-of-day rollover for a date (default today, IST)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day := ""
		if len(args) == 1 {
			day = args[0]
		}
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			res, err := b.Rollover(ctx, day)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(res)
			}
			if !res.Applied {
				fmt.Printf("Ledger already rolled over to %s\n", res.Date)
				return nil
			}
			fmt.Printf("Rolled over to %s: %d intraday positions closed, %d orders expired\n",
				res.Date, len(res.Closed), len(res.Expired))
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the ledger back to the initial balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to reset without --yes")
		}
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			if err := b.ResetPaperTradeState(ctx); err != nil {
				return err
			}
			return printSummary(ctx, cmd, b)
		})
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show market session, configuration and account summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBroker(cmd, func(ctx context.Context, b *broker.PaperBroker) error {
			if wantJSON(cmd) {
				return printSummary(ctx, cmd, b)
			}
			now := utils.NowIST()
			fmt.Println("═══════════════════════════════════════")
			fmt.Println("  papertrade — Status")
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  Version:       %s (%s)\n", version, commit)
			fmt.Printf("  Market Status: %s\n", utils.SessionStatus(now))
			fmt.Printf("  Time (IST):    %s\n", now.Format("2006-01-02 15:04:05"))
			fmt.Printf("  Quotes:        %s\n", cfg.Quotes.Provider)
			fmt.Printf("  State File:    %s\n", cfg.Paper.StateFile)
			fmt.Printf("  Journal:       %s\n", orDash(cfg.Journal.Path))
			fmt.Println()
			return printSummary(ctx, cmd, b)
		})
	},
}

// ════════════════════════════════════════════════════════════════════
// Market data & journal
// ════════════════════════════════════════════════════════════════════

var quoteCmd = &cobra.Command{
	Use:   "quote [symbol...]",
	Short: "Fetch quotes from the configured provider",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRuntime()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
		defer cancel()

		symbols := make([]string, len(args))
		for i, a := range args {
			symbols[i] = utils.NormalizeSymbol(a)
		}
		quotes, err := r.fetcher.Fetch(ctx, symbols)
		if err != nil && len(quotes) == 0 {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(quotes)
		}
		tw := newTable()
		fmt.Fprintln(tw, "SYMBOL\tLTP\tHIGH\tLOW\tPREV CLOSE")
		for _, s := range symbols {
			q, ok := quotes[s]
			if !ok {
				fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", s)
				continue
			}
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\n", s, q.LastPrice, q.High, q.Low, q.PrevClose)
		}
		return tw.Flush()
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRuntime()
		if err != nil {
			return err
		}
		if r.journal == nil {
			return errNoJournal
		}
		symbol, _ := cmd.Flags().GetString("symbol")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		f := journal.Filter{Symbol: utils.NormalizeSymbol(symbol), Limit: limit}
		if since != "" {
			if f.Since, err = utils.ParseTradingDate(since); err != nil {
				return fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
			}
		}
		trades, err := r.journal.Trades(cmd.Context(), f)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(trades)
		}
		return printTrades(trades)
	},
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Per-symbol traded quantity and value",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRuntime()
		if err != nil {
			return err
		}
		if r.journal == nil {
			return errNoJournal
		}
		rows, err := r.journal.Summary(cmd.Context())
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(rows)
		}
		tw := newTable()
		fmt.Fprintln(tw, "SYMBOL\tTRADES\tBUY QTY\tBUY VALUE\tSELL QTY\tSELL VALUE")
		for _, s := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\n", s.Symbol, s.Trades,
				s.BuyQty, utils.FormatINR(s.BuyValue), s.SellQty, utils.FormatINR(s.SellValue))
		}
		return tw.Flush()
	},
}

// ════════════════════════════════════════════════════════════════════
// Output helpers
// ════════════════════════════════════════════════════════════════════

func printOrderResponse(cmd *cobra.Command, resp *models.OrderResponse, err error) error {
	if resp == nil {
		return err
	}
	if wantJSON(cmd) {
		if perr := printJSON(resp); perr != nil {
			return perr
		}
		return err
	}
	id := resp.OrderID
	if id == "" {
		id = "-"
	}
	fmt.Printf("%s  %s  %s\n", id, resp.Status, resp.Message)
	return err
}

func printMultiResults(cmd *cobra.Command, results []broker.MultiOrderResult, err error) error {
	if wantJSON(cmd) {
		if perr := printJSON(results); perr != nil {
			return perr
		}
		return err
	}
	tw := newTable()
	fmt.Fprintln(tw, "#\tREF\tORDER\tSTATUS\tMESSAGE")
	for _, r := range results {
		id, status, msg := "-", "", r.Error
		if r.Response != nil {
			if r.Response.OrderID != "" {
				id = r.Response.OrderID
			}
			status = string(r.Response.Status)
			if msg == "" {
				msg = r.Response.Message
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Index, orDash(r.Ref), id, status, msg)
	}
	if ferr := tw.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func printTrades(trades []models.Trade) error {
	tw := newTable()
	fmt.Fprintln(tw, "ID\tORDER\tTIME\tSYMBOL\tSIDE\tQTY\tPRICE\tVALUE\tPRODUCT")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			t.ID, t.OrderID, t.TradedAt.In(utils.IST).Format("2006-01-02 15:04:05"),
			t.Symbol, t.Side, t.TradedQty, t.TradedPrice, utils.FormatINR(t.TradeValue), t.ProductType)
	}
	return tw.Flush()
}

func printFunds(f models.Funds) {
	fmt.Printf("  Total Balance:     %s\n", utils.FormatINR(f.TotalBalance))
	fmt.Printf("  Available Balance: %s\n", utils.FormatINR(f.AvailableBalance))
	fmt.Printf("  Utilized Margin:   %s\n", utils.FormatINR(f.UtilizedMargin))
	fmt.Printf("  Realized P&L:      %s\n", utils.FormatPnL(f.RealizedPnL))
	fmt.Printf("  Unrealized P&L:    %s\n", utils.FormatPnL(f.UnrealizedPnL))
}

func printSummary(ctx context.Context, cmd *cobra.Command, b *broker.PaperBroker) error {
	sum, err := b.Summary(ctx)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return printJSON(sum)
	}
	fmt.Println("  Account:")
	printFunds(sum.Funds)
	fmt.Printf("  Open Positions:    %d\n", sum.OpenPositions)
	fmt.Printf("  Pending Orders:    %d\n", sum.PendingOrders)
	fmt.Printf("  Holdings:          %d\n", sum.Holdings)
	fmt.Printf("  Trades:            %d\n", sum.Trades)
	fmt.Printf("  Trading Date:      %s\n", orDash(sum.LastTradingDate))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
