package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	appbilling "github.com/erp/utilitybilling/internal/application/billing"
	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func requireID(name, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("-%s is required", name)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-%s: %w", name, err)
	}
	return id, nil
}

func parseIDs(list string) ([]uuid.UUID, error) {
	if list == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, raw := range strings.Split(list, ",") {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid account id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseAsOf reads a YYYY-MM-DD date as the end of that day in UTC. An empty
// value means now.
func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("-as-of: %w", err)
	}
	return day.Add(24*time.Hour - time.Nanosecond), nil
}

// parseManual reads BILL:AMOUNT pairs
func parseManual(value string) ([]reconciliation.ManualAllocation, error) {
	var out []reconciliation.ManualAllocation
	for _, pair := range strings.Split(value, ",") {
		billID, amount, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("manual allocation %q must be BILL:AMOUNT", pair)
		}
		id, err := uuid.Parse(billID)
		if err != nil {
			return nil, fmt.Errorf("manual allocation %q: %w", pair, err)
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("manual allocation %q: %w", pair, err)
		}
		out = append(out, reconciliation.ManualAllocation{BillID: id, Amount: dec})
	}
	return out, nil
}

func runGenerate(ctx context.Context, a *app, actor string, args []string) error {
	fs := newFlagSet("generate")
	period := fs.String("period", "", "Billing period YYYY-MM")
	account := fs.String("account", "", "Generate one bill for this account")
	accounts := fs.String("accounts", "", "Comma separated account IDs (default: every billable account)")
	allowDuplicate := fs.Bool("allow-duplicate", false, "Generate even if the period is already billed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := billing.ParsePeriod(*period)
	if err != nil {
		return fmt.Errorf("-period: %w", err)
	}

	if *account != "" {
		id, err := requireID("account", *account)
		if err != nil {
			return err
		}
		bill, err := a.billing.Generate(ctx, appbilling.GenerateBillRequest{
			AccountID:      id,
			Period:         p,
			AllowDuplicate: *allowDuplicate,
			Actor:          actor,
		})
		if err != nil {
			return err
		}
		return printJSON(bill)
	}

	ids, err := parseIDs(*accounts)
	if err != nil {
		return err
	}
	report, err := a.billing.GenerateForAccounts(ctx, p, ids, a.cfg.Billing.BulkConcurrency)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runVoid(ctx context.Context, a *app, actor string, args []string) error {
	fs := newFlagSet("void")
	bill := fs.String("bill", "", "Bill ID")
	reason := fs.String("reason", "", "Why the bill is voided")
	regenerate := fs.Bool("regenerate", false, "Generate a replacement bill for the same period")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID("bill", *bill)
	if err != nil {
		return err
	}
	result, err := a.billing.VoidAndRegenerate(ctx, appbilling.VoidBillRequest{
		BillID:     id,
		Reason:     *reason,
		Actor:      actor,
		Regenerate: *regenerate,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runDistribute(ctx context.Context, a *app, actor string, args []string) error {
	fs := newFlagSet("distribute")
	reading := fs.String("reading", "", "Bulk meter reading ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID("reading", *reading)
	if err != nil {
		return err
	}
	resp, err := a.distribution.Distribute(ctx, appbilling.DistributeRequest{ReadingID: id, Actor: actor})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runValidateBulk(ctx context.Context, a *app, _ string, args []string) error {
	fs := newFlagSet("validate-bulk")
	meter := fs.String("meter", "", "Bulk meter ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID("meter", *meter)
	if err != nil {
		return err
	}
	v, err := a.distribution.ValidateSetup(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runReconcile(ctx context.Context, a *app, actor string, args []string) error {
	fs := newFlagSet("reconcile")
	pmt := fs.String("payment", "", "Payment ID")
	manual := fs.String("manual", "", "Manual allocations BILL:AMOUNT,... (default: oldest bills first)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID("payment", *pmt)
	if err != nil {
		return err
	}
	req := reconciliation.ReconcileRequest{PaymentID: id, Mode: reconciliation.ModeAuto, Actor: actor}
	if *manual != "" {
		if req.Allocations, err = parseManual(*manual); err != nil {
			return err
		}
		req.Mode = reconciliation.ModeManual
	}
	result, err := a.reconciliation.Reconcile(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runReverse(ctx context.Context, a *app, actor string, args []string) error {
	fs := newFlagSet("reverse")
	pmt := fs.String("payment", "", "Payment ID")
	reason := fs.String("reason", "", "Why the reconciliation is reversed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID("payment", *pmt)
	if err != nil {
		return err
	}
	result, err := a.reconciliation.Reverse(ctx, reconciliation.ReverseRequest{PaymentID: id, Actor: actor, Reason: *reason})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func accountArg(name string, args []string, extra func(*flag.FlagSet)) (uuid.UUID, error) {
	fs := newFlagSet(name)
	account := fs.String("account", "", "Account ID")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return uuid.Nil, err
	}
	return requireID("account", *account)
}

func runBalance(ctx context.Context, a *app, _ string, args []string) error {
	id, err := accountArg("balance", args, nil)
	if err != nil {
		return err
	}
	balance, err := a.balances.GetAccountBalance(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(balance)
}

func runAging(ctx context.Context, a *app, _ string, args []string) error {
	id, err := accountArg("aging", args, nil)
	if err != nil {
		return err
	}
	report, err := a.balances.GetAgingReport(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runHistory(ctx context.Context, a *app, _ string, args []string) error {
	var page, pageSize int
	id, err := accountArg("history", args, func(fs *flag.FlagSet) {
		fs.IntVar(&page, "page", 1, "Page number")
		fs.IntVar(&pageSize, "page-size", 20, "Entries per page")
	})
	if err != nil {
		return err
	}
	history, err := a.balances.GetPaymentHistory(ctx, id, page, pageSize)
	if err != nil {
		return err
	}
	return printJSON(history)
}

func runOverdue(ctx context.Context, a *app, _ string, args []string) error {
	fs := newFlagSet("overdue")
	asOf := fs.String("as-of", "", "Sweep as of this date YYYY-MM-DD (default: now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	at, err := parseAsOf(*asOf)
	if err != nil {
		return err
	}
	result, err := a.billing.MarkOverdue(ctx, at)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runExpireCredits(ctx context.Context, a *app, _ string, args []string) error {
	fs := newFlagSet("expire-credits")
	asOf := fs.String("as-of", "", "Expire as of this date YYYY-MM-DD (default: now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	at, err := parseAsOf(*asOf)
	if err != nil {
		return err
	}
	result, err := a.reconciliation.ExpireCredits(ctx, at)
	if err != nil {
		return err
	}
	return printJSON(result)
}
