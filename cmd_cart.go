package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"coopStore/entities"
	"coopStore/events"
	"coopStore/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cartKey  string
	syncFlag bool
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Inspect and change a cart in the configured storage",
	Long: `Operates on one cart key (storage.key, or --key) in the configured
storage backend. Every change is visible to other instances sharing that
storage; "cart watch" prints the cart whenever it changes.`,
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cart with rounded totals",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		return printJSON(cmd, cs.GetCartState().Display())
	}),
}

var cartAddCmd = &cobra.Command{
	Use:   "add <product-id> <variant-id> [quantity]",
	Short: "Add a product variant to the cart",
	Args:  cobra.RangeArgs(2, 3),
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		quantity := 1
		if len(args) == 3 {
			q, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			quantity = q
		}
		return printResult(cmd, cs.AddToCart(cmd.Context(), args[0], args[1], quantity))
	}),
}

var cartUpdateCmd = &cobra.Command{
	Use:   "update <item-id> <quantity>",
	Short: "Set the quantity of a cart line",
	Args:  cobra.ExactArgs(2),
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		q, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity must be a number: %w", err)
		}
		return printResult(cmd, cs.UpdateQuantity(args[0], q))
	}),
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove <item-id>",
	Short: "Remove a line from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		return printResult(cmd, cs.RemoveFromCart(args[0]))
	}),
}

var cartDiscountCmd = &cobra.Command{
	Use:   "discount <code>",
	Short: "Apply a discount code",
	Args:  cobra.ExactArgs(1),
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		return printResult(cmd, cs.ApplyDiscount(cmd.Context(), args[0]))
	}),
}

var cartClearDiscountCmd = &cobra.Command{
	Use:   "clear-discount",
	Short: "Remove the applied discount code",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		return printResult(cmd, cs.ClearDiscount())
	}),
}

var cartMemberCmd = &cobra.Command{
	Use:   "member <true|false>",
	Short: "Switch between co-op member and regular prices",
	Args:  cobra.ExactArgs(1),
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		isMember, err := strconv.ParseBool(args[0])
		if err != nil {
			return fmt.Errorf("membership must be true or false: %w", err)
		}
		return printResult(cmd, cs.SetCoOpMembership(isMember))
	}),
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart, keeping the membership flag",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		return printResult(cmd, cs.ClearCart())
	}),
}

var cartCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the cart can be checked out",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		if syncFlag {
			if err := cs.SyncStock(cmd.Context()); err != nil {
				return err
			}
		}
		return printJSON(cmd, cs.IsCartValidForCheckout())
	}),
}

var cartCheckoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Place a simulated order and empty the cart",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		receipt, err := cs.Checkout(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	}),
}

var cartOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List the orders checked out from this cart",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, cs *services.CartService, args []string) error {
		orders, err := cs.Orders(cmd.Context())
		if err != nil {
			return err
		}
		summaries := make([]entities.OrderSummary, 0, len(orders))
		for _, o := range orders {
			summaries = append(summaries, entities.OrderSummary{
				OrderNumber:  o.OrderNumber,
				PlacedAt:     o.PlacedAt,
				Status:       o.Status,
				DiscountCode: o.DiscountCode,
				Total:        entities.Money(o.Total),
			})
		}
		return printJSON(cmd, summaries)
	}),
}

var cartWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the cart every time it changes, until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runCartWatch,
}

func init() {
	cartCmd.PersistentFlags().StringVarP(&cartKey, "key", "k", "", "Cart key (default: storage.key)")
	cartCheckCmd.Flags().BoolVar(&syncFlag, "sync", false, "Refresh prices and stock from the catalog first")

	cartCmd.AddCommand(cartShowCmd)
	cartCmd.AddCommand(cartAddCmd)
	cartCmd.AddCommand(cartUpdateCmd)
	cartCmd.AddCommand(cartRemoveCmd)
	cartCmd.AddCommand(cartDiscountCmd)
	cartCmd.AddCommand(cartClearDiscountCmd)
	cartCmd.AddCommand(cartMemberCmd)
	cartCmd.AddCommand(cartClearCmd)
	cartCmd.AddCommand(cartCheckCmd)
	cartCmd.AddCommand(cartCheckoutCmd)
	cartCmd.AddCommand(cartOrdersCmd)
	cartCmd.AddCommand(cartWatchCmd)
}

func selectedKey() string {
	if cartKey != "" {
		return cartKey
	}
	return cfg.Storage.Key
}

// withCart opens storage and catalog for the duration of one command.
func withCart(fn func(cmd *cobra.Command, cs *services.CartService, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bus := events.NewBus()
		st, err := openCartStorage(ctx, cfg, bus, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		cat := openCatalogRepos(ctx, cfg, logger)
		defer cat.Close()

		cs := newCartService(selectedKey(), cfg, st, cat, bus, logger)
		err = fn(cmd, cs, args)
		if cs.Degraded() {
			logger.Warn("cart storage failed during this command, the change was not kept", zap.String("key", cs.Key()))
		}
		return err
	}
}

func runCartWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bus := events.NewBus()
	st, err := openCartStorage(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	cs := newCartService(selectedKey(), cfg, st, &catalog{}, bus, logger)
	unsubscribe := cs.Watch(func(cart entities.Cart, ev events.Event) {
		logger.Debug("cart changed", zap.String("channel", ev.Channel.String()), zap.String("origin", ev.Origin))
		if err := printJSON(cmd, cart.Display()); err != nil {
			logger.Error("printing cart", zap.Error(err))
		}
	})
	defer unsubscribe()

	if err = printJSON(cmd, cs.GetCartState().Display()); err != nil {
		return err
	}
	if err = st.watcher.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func printResult(cmd *cobra.Command, err error) error {
	if err != nil {
		return err
	}
	return printJSON(cmd, entities.Result{Success: true})
}
