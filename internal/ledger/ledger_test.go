package ledger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func usd(s string) core.Money { return core.MustParseMoney(s, "USD") }

func ym(year int, month time.Month) core.YearMonth { return core.NewYearMonth(year, month) }

// fixture collects every event a ledger emits so tests can replay them.
type fixture struct {
	t      *testing.T
	ledger *Ledger
	events []Event
}

func newOpenLedger(t *testing.T, balance string) *fixture {
	t.Helper()
	l, events, err := Create(CreateLedger{
		OwnerID:     "owner-1",
		Name:        "Household",
		BankAccount: BankAccount{Name: "Checking", AccountNumber: "PL-001", Balance: usd(balance)},
	}, now)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	return &fixture{t: t, ledger: l, events: events}
}

func newSetupLedger(t *testing.T, start, active core.YearMonth, initial string) *fixture {
	t.Helper()
	initialBalance := usd(initial)
	l, events, err := Create(CreateLedger{
		OwnerID:        "owner-1",
		Name:           "Imported",
		BankAccount:    BankAccount{Name: "Savings", Balance: usd("0")},
		ActivePeriod:   &active,
		StartPeriod:    &start,
		InitialBalance: &initialBalance,
	}, now)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if l.Status != StatusSetup {
		t.Fatalf("status = %s, want SETUP", l.Status)
	}
	return &fixture{t: t, ledger: l, events: events}
}

func (f *fixture) exec(cmd Command) []Event {
	f.t.Helper()
	events, err := f.ledger.Execute(cmd, now)
	if err != nil {
		f.t.Fatalf("%s error = %v", cmd.CommandName(), err)
	}
	f.events = append(f.events, events...)
	return events
}

func (f *fixture) execErr(cmd Command) error {
	f.t.Helper()
	before, _ := f.ledger.Snapshot()
	events, err := f.ledger.Execute(cmd, now)
	if err == nil {
		f.t.Fatalf("%s expected an error, got events %v", cmd.CommandName(), events)
	}
	after, _ := f.ledger.Snapshot()
	if !bytes.Equal(before, after) {
		f.t.Fatalf("%s mutated state on failure", cmd.CommandName())
	}
	return err
}

func (f *fixture) assertReplayMatches() {
	f.t.Helper()
	replayed, err := Replay(f.events)
	if err != nil {
		f.t.Fatalf("Replay error = %v", err)
	}
	live, _ := f.ledger.Snapshot()
	got, _ := replayed.Snapshot()
	if !bytes.Equal(live, got) {
		f.t.Fatalf("replayed state differs from live state\nlive:   %s\nreplay: %s", live, got)
	}
}

func (f *fixture) appendExpected(id core.TransactionID, d core.Direction, amount string, cat category.Name, due time.Time) {
	f.t.Helper()
	f.exec(AppendExpectedTransaction{
		TransactionID: id,
		Category:      cat,
		Name:          "tx " + string(id),
		Money:         usd(amount),
		Direction:     d,
		DueDate:       due,
	})
}

func TestConfirmExpectedInflow(t *testing.T) {
	f := newOpenLedger(t, "0")
	f.appendExpected("CC0000000001", core.Inflow, "100", category.Uncategorized, now.AddDate(0, 0, 5))

	if tx, _ := f.ledger.Transaction("CC0000000001"); tx.Status != core.Pending {
		t.Fatalf("status = %s, want PENDING", tx.Status)
	}
	if !f.ledger.BankAccount.Balance.IsZero() {
		t.Fatalf("pending transactions must not move the balance")
	}

	f.exec(ConfirmTransaction{TransactionID: "CC0000000001"})

	tx, _ := f.ledger.Transaction("CC0000000001")
	if tx.Status != core.Confirmed || tx.PaidDate == nil || !tx.PaidDate.Equal(now) {
		t.Fatalf("unexpected transaction after confirm: %+v", tx)
	}
	if !f.ledger.BankAccount.Balance.Equal(usd("100")) {
		t.Fatalf("balance = %s, want 100.00 USD", f.ledger.BankAccount.Balance)
	}
	f.assertReplayMatches()
}

func TestArchiveThenRecreateCategory(t *testing.T) {
	f := newOpenLedger(t, "1000")
	f.exec(CreateCategory{Parent: category.NotDefined, Name: "Rent", Direction: core.Outflow})
	f.appendExpected("CC0000000001", core.Outflow, "800", "Rent", now)
	f.exec(ArchiveCategory{Name: "Rent", Direction: core.Outflow})
	f.exec(CreateCategory{Parent: category.NotDefined, Name: "Rent", Direction: core.Outflow})
	f.appendExpected("CC0000000002", core.Outflow, "850", "Rent", now.AddDate(0, 1, 0))

	var versions []*category.Category
	f.ledger.Outflows.Walk(func(c, _ *category.Category, _ int) bool {
		if c.Name == "Rent" {
			versions = append(versions, c)
		}
		return true
	})
	if len(versions) != 2 || !versions[0].Archived || versions[1].Archived {
		t.Fatalf("expected an archived and an active Rent, got %d versions", len(versions))
	}
	if tx, ok := f.ledger.Transaction("CC0000000001"); !ok || tx.Category != "Rent" {
		t.Fatalf("historical transaction should remain")
	}
	active, err := f.ledger.Outflows.ResolveForPosting("Rent")
	if err != nil || active != versions[1] {
		t.Fatalf("posting should resolve to the recreated Rent (err=%v)", err)
	}
	f.assertReplayMatches()
}

func TestImportWithFuturePaidDateIsRejected(t *testing.T) {
	active := ym(2026, time.May)
	f := newSetupLedger(t, active.Plus(-3), active, "0")
	f.exec(CreateCategory{Name: "Salary", Direction: core.Inflow, ForImport: true})

	err := f.execErr(ImportHistoricalTransaction{
		TransactionID: "CC0000000001",
		Category:      "Salary",
		Name:          "April salary",
		Money:         usd("3000"),
		Direction:     core.Inflow,
		PaidDate:      time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, apperrors.ErrPaidDateInFuture) {
		t.Fatalf("expected ErrPaidDateInFuture, got %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindPeriodViolation {
		t.Fatalf("kind = %s, want period violation", apperrors.KindOf(err))
	}
}

func TestAttestHistoricalImport(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newSetupLedger(t, ym(2025, time.December), ym(2026, time.March), "500")
		f.exec(CreateCategory{Name: "Salary", Direction: core.Inflow, ForImport: true})
		f.exec(ImportHistoricalTransaction{
			TransactionID: "CC0000000001",
			Category:      "Salary",
			Name:          "January salary",
			Money:         usd("1000"),
			Direction:     core.Inflow,
			PaidDate:      time.Date(2026, time.January, 25, 0, 0, 0, 0, time.UTC),
		})
		if !f.ledger.BankAccount.Balance.Equal(usd("1500")) {
			t.Fatalf("balance after import = %s", f.ledger.BankAccount.Balance)
		}
		return f
	}

	t.Run("mismatch without flags", func(t *testing.T) {
		f := setup(t)
		err := f.execErr(AttestHistoricalImport{ConfirmedBalance: usd("1450")})
		var mismatch *apperrors.BalanceMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected BalanceMismatchError, got %v", err)
		}
		if mismatch.Confirmed != "1450.00" || mismatch.Calculated != "1500.00" || mismatch.Delta != "-50.00" {
			t.Fatalf("unexpected mismatch values %+v", mismatch)
		}
		for _, part := range []string{"1450.00", "1500.00", "-50.00"} {
			if !strings.Contains(err.Error(), part) {
				t.Errorf("error %q should mention %s", err, part)
			}
		}
		if f.ledger.Status != StatusSetup {
			t.Fatalf("ledger must stay in SETUP")
		}

		f.exec(AttestHistoricalImport{ConfirmedBalance: usd("1450"), ForceAttestation: true})
		if f.ledger.Status != StatusOpen {
			t.Fatalf("status = %s, want OPEN", f.ledger.Status)
		}
		if !f.ledger.BankAccount.Balance.Equal(usd("1450")) {
			t.Fatalf("balance = %s, want confirmed balance", f.ledger.BankAccount.Balance)
		}
		f.assertReplayMatches()
	})

	t.Run("adjustment closes the gap", func(t *testing.T) {
		f := setup(t)
		events := f.exec(AttestHistoricalImport{ConfirmedBalance: usd("1450"), CreateAdjustment: true})
		if len(events) != 2 {
			t.Fatalf("expected adjustment and attestation, got %d events", len(events))
		}
		adj, ok := events[0].(HistoricalTransactionImported)
		if !ok || !adj.Adjustment || adj.Direction != core.Outflow || !adj.Money.Equal(usd("50")) {
			t.Fatalf("unexpected adjustment %+v", events[0])
		}
		if core.YearMonthOf(adj.PaidDate) != ym(2026, time.February) {
			t.Fatalf("adjustment should be dated in the month before the active one, got %s", adj.PaidDate)
		}
		if !f.ledger.BankAccount.Balance.Equal(usd("1450")) || f.ledger.Status != StatusOpen {
			t.Fatalf("unexpected state after adjustment")
		}
		f.assertReplayMatches()
	})

	t.Run("matching balance", func(t *testing.T) {
		f := setup(t)
		f.exec(AttestHistoricalImport{ConfirmedBalance: usd("1500.00")})
		if f.ledger.Status != StatusOpen {
			t.Fatalf("status = %s", f.ledger.Status)
		}
	})
}

func TestImportPeriodRules(t *testing.T) {
	f := newSetupLedger(t, ym(2025, time.December), ym(2026, time.March), "0")
	f.exec(CreateCategory{Name: "Salary", Direction: core.Inflow, ForImport: true})

	tests := []struct {
		name string
		paid time.Time
		want error
	}{
		{"before start", time.Date(2025, time.November, 30, 0, 0, 0, 0, time.UTC), apperrors.ErrImportDateBeforeStartPeriod},
		{"inside active period", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), apperrors.ErrImportDateNotBeforeActive},
		{"in the future", now.Add(time.Hour), apperrors.ErrPaidDateInFuture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.execErr(ImportHistoricalTransaction{
				TransactionID: "CC0000000009",
				Category:      "Salary",
				Name:          "salary",
				Money:         usd("10"),
				Direction:     core.Inflow,
				PaidDate:      tt.paid,
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestModeViolations(t *testing.T) {
	t.Run("setup ledger rejects live postings", func(t *testing.T) {
		f := newSetupLedger(t, ym(2026, time.January), ym(2026, time.March), "0")
		err := f.execErr(AppendExpectedTransaction{
			TransactionID: "CC0000000001", Category: category.Uncategorized, Name: "x",
			Money: usd("1"), Direction: core.Inflow, DueDate: now,
		})
		if !errors.Is(err, apperrors.ErrLedgerNotOpen) {
			t.Fatalf("expected ErrLedgerNotOpen, got %v", err)
		}
	})

	t.Run("setup ledger needs import flag for categories", func(t *testing.T) {
		f := newSetupLedger(t, ym(2026, time.January), ym(2026, time.March), "0")
		err := f.execErr(CreateCategory{Name: "Food", Direction: core.Outflow})
		if !errors.Is(err, apperrors.ErrImportFlagMissing) {
			t.Fatalf("expected ErrImportFlagMissing, got %v", err)
		}
	})

	t.Run("open ledger rejects imports", func(t *testing.T) {
		f := newOpenLedger(t, "0")
		err := f.execErr(ImportHistoricalTransaction{
			Category: category.Uncategorized, Name: "x", Money: usd("1"), Direction: core.Inflow,
			PaidDate: now.AddDate(0, -1, 0),
		})
		if !errors.Is(err, apperrors.ErrLedgerNotInSetup) {
			t.Fatalf("expected ErrLedgerNotInSetup, got %v", err)
		}
	})

	t.Run("closed ledger rejects everything", func(t *testing.T) {
		f := newOpenLedger(t, "0")
		f.exec(CloseLedger{Reason: "account closed"})
		err := f.execErr(CreateCategory{Name: "Food", Direction: core.Outflow})
		if !errors.Is(err, apperrors.ErrLedgerClosed) {
			t.Fatalf("expected ErrLedgerClosed, got %v", err)
		}
		if apperrors.KindOf(err) != apperrors.KindModeViolation {
			t.Fatalf("kind = %s", apperrors.KindOf(err))
		}
	})
}

func TestAppendValidation(t *testing.T) {
	base := func() AppendPaidTransaction {
		return AppendPaidTransaction{
			TransactionID: "CC0000000001",
			Category:      category.Uncategorized,
			Name:          "groceries",
			Money:         usd("20"),
			Direction:     core.Outflow,
			DueDate:       now,
			PaidDate:      now.Add(-time.Hour),
		}
	}
	tests := []struct {
		name   string
		mutate func(*AppendPaidTransaction)
		want   error
	}{
		{"due before active month", func(c *AppendPaidTransaction) { c.DueDate = ym(2026, time.February).LastDay() }, apperrors.ErrDueDateOutsideAllowedRange},
		{"due past horizon", func(c *AppendPaidTransaction) { c.DueDate = ym(2027, time.March).FirstDay() }, apperrors.ErrDueDateOutsideAllowedRange},
		{"paid in future", func(c *AppendPaidTransaction) { c.PaidDate = now.Add(time.Minute) }, apperrors.ErrPaidDateInFuture},
		{"paid outside active month", func(c *AppendPaidTransaction) { c.PaidDate = ym(2026, time.February).FirstDay() }, apperrors.ErrPaidDateOutsideActivePeriod},
		{"unknown category", func(c *AppendPaidTransaction) { c.Category = "Nope" }, apperrors.ErrCategoryDoesNotExist},
		{"negative amount", func(c *AppendPaidTransaction) { c.Money = usd("-5") }, apperrors.ErrInvalidAmount},
		{"other currency", func(c *AppendPaidTransaction) { c.Money = core.MustParseMoney("5", "EUR") }, apperrors.ErrCurrencyMismatch},
		{"malformed id", func(c *AppendPaidTransaction) { c.TransactionID = "TX1" }, apperrors.ErrInvalidTransactionID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOpenLedger(t, "100")
			cmd := base()
			tt.mutate(&cmd)
			if err := f.execErr(cmd); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("last month of horizon is allowed", func(t *testing.T) {
		f := newOpenLedger(t, "100")
		cmd := base()
		cmd.DueDate = ym(2027, time.February).LastDay()
		f.exec(cmd)
		if !f.ledger.BankAccount.Balance.Equal(usd("80")) {
			t.Fatalf("balance = %s, want 80", f.ledger.BankAccount.Balance)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		f := newOpenLedger(t, "100")
		f.exec(base())
		if err := f.execErr(base()); !errors.Is(err, apperrors.ErrTransactionAlreadyExists) {
			t.Fatalf("expected ErrTransactionAlreadyExists, got %v", err)
		}
	})
}

func TestTerminalTransactionsCannotChange(t *testing.T) {
	f := newOpenLedger(t, "0")
	f.appendExpected("CC0000000001", core.Outflow, "10", category.Uncategorized, now)
	f.exec(RejectTransaction{TransactionID: "CC0000000001", Reason: "duplicate"})

	for _, cmd := range []Command{
		ConfirmTransaction{TransactionID: "CC0000000001"},
		RejectTransaction{TransactionID: "CC0000000001"},
		EditTransaction{TransactionID: "CC0000000001", Name: "x", Money: usd("1"), DueDate: now},
	} {
		if err := f.execErr(cmd); !errors.Is(err, apperrors.ErrCashChangeIsNotOpened) {
			t.Errorf("%s: expected ErrCashChangeIsNotOpened, got %v", cmd.CommandName(), err)
		}
	}
	if err := f.execErr(ConfirmTransaction{TransactionID: "CC0000000404"}); !errors.Is(err, apperrors.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestEditTransaction(t *testing.T) {
	f := newOpenLedger(t, "0")
	f.exec(CreateCategory{Name: "Food", Direction: core.Outflow})
	f.appendExpected("CC0000000001", core.Outflow, "10", category.Uncategorized, now)

	food := category.Name("Food")
	f.exec(EditTransaction{TransactionID: "CC0000000001", Name: "lunch", Money: usd("12.50"), Category: &food, DueDate: now.AddDate(0, 1, 0)})

	tx, _ := f.ledger.Transaction("CC0000000001")
	if tx.Name != "lunch" || tx.Category != "Food" || !tx.Money.Equal(usd("12.5")) {
		t.Fatalf("unexpected transaction after edit: %+v", tx)
	}

	f.exec(EditTransaction{TransactionID: "CC0000000001", Name: "dinner", Money: usd("30"), DueDate: now})
	if tx, _ := f.ledger.Transaction("CC0000000001"); tx.Category != "Food" {
		t.Fatalf("nil category should keep the current one, got %s", tx.Category)
	}
	f.assertReplayMatches()
}

func TestBalanceEqualsInitialPlusSettledFlows(t *testing.T) {
	f := newOpenLedger(t, "250")
	f.appendExpected("CC0000000001", core.Inflow, "1000", category.Uncategorized, now)
	f.appendExpected("CC0000000002", core.Outflow, "300.25", category.Uncategorized, now)
	f.appendExpected("CC0000000003", core.Outflow, "99.99", category.Uncategorized, now)
	f.exec(AppendPaidTransaction{
		TransactionID: "CC0000000004", Category: category.Uncategorized, Name: "coffee",
		Money: usd("4.50"), Direction: core.Outflow, DueDate: now, PaidDate: now,
	})
	f.exec(ConfirmTransaction{TransactionID: "CC0000000001"})
	f.exec(ConfirmTransaction{TransactionID: "CC0000000002"})
	f.exec(RejectTransaction{TransactionID: "CC0000000003"})

	want := f.ledger.InitialBalance
	for _, tx := range f.ledger.Transactions {
		if tx.Status != core.Confirmed {
			continue
		}
		if tx.Direction == core.Inflow {
			want, _ = want.Plus(tx.Money)
		} else {
			want, _ = want.Minus(tx.Money)
		}
	}
	if !f.ledger.BankAccount.Balance.Equal(want) || !want.Equal(usd("945.25")) {
		t.Fatalf("balance = %s, want %s", f.ledger.BankAccount.Balance, want)
	}
	f.assertReplayMatches()
}

func TestMonthTransitions(t *testing.T) {
	f := newOpenLedger(t, "100")

	err := f.execErr(MakeMonthlyAttestation{Period: ym(2026, time.May), CurrentBalance: usd("100")})
	if !errors.Is(err, apperrors.ErrAttestationPeriodNotAdjacent) {
		t.Fatalf("expected ErrAttestationPeriodNotAdjacent, got %v", err)
	}

	f.exec(MakeMonthlyAttestation{Period: ym(2026, time.April), CurrentBalance: usd("120")})
	if f.ledger.ActivePeriod != ym(2026, time.April) || !f.ledger.BankAccount.Balance.Equal(usd("120")) {
		t.Fatalf("unexpected state after attestation: %s %s", f.ledger.ActivePeriod, f.ledger.BankAccount.Balance)
	}

	events := f.exec(RolloverMonth{})
	rolled := events[0].(MonthRolledOver)
	if rolled.From != ym(2026, time.April) || rolled.To != ym(2026, time.May) {
		t.Fatalf("unexpected rollover %+v", rolled)
	}
	if f.ledger.ActivePeriod != ym(2026, time.May) {
		t.Fatalf("active period = %s", f.ledger.ActivePeriod)
	}
	f.assertReplayMatches()
}

func TestCategoryCommands(t *testing.T) {
	f := newOpenLedger(t, "0")
	f.exec(CreateCategory{Name: "Housing", Direction: core.Outflow})
	f.exec(CreateCategory{Parent: "Housing", Name: "Rent", Direction: core.Outflow})

	if err := f.execErr(CreateCategory{Name: "Rent", Direction: core.Outflow}); !errors.Is(err, apperrors.ErrCategoryAlreadyExists) {
		t.Fatalf("expected ErrCategoryAlreadyExists, got %v", err)
	}
	// Names are scoped per direction.
	f.exec(CreateCategory{Name: "Rent", Direction: core.Inflow})

	if err := f.execErr(ArchiveCategory{Name: category.Uncategorized, Direction: core.Outflow}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for system category, got %v", err)
	}

	f.exec(SetBudgeting{Name: "Rent", Direction: core.Outflow, Amount: usd("900")})
	rent, _ := f.ledger.Outflows.FindActive("Rent")
	if rent.Budget == nil || !rent.Budget.Amount.Equal(usd("900")) {
		t.Fatalf("budget not set: %+v", rent.Budget)
	}
	f.exec(RemoveBudgeting{Name: "Rent", Direction: core.Outflow})
	if rent, _ := f.ledger.Outflows.FindActive("Rent"); rent.Budget != nil {
		t.Fatalf("budget should be removed")
	}

	f.exec(ArchiveCategory{Name: "Housing", Direction: core.Outflow, ForceArchiveChildren: true})
	if err := f.execErr(AppendExpectedTransaction{
		TransactionID: "CC0000000001", Category: "Rent", Name: "rent",
		Money: usd("900"), Direction: core.Outflow, DueDate: now,
	}); !errors.Is(err, apperrors.ErrCategoryIsArchived) {
		t.Fatalf("expected ErrCategoryIsArchived, got %v", err)
	}

	f.exec(UnarchiveCategory{Name: "Housing", Direction: core.Outflow})
	f.exec(CreateCategory{Name: "Rent", Direction: core.Outflow})
	if err := f.execErr(UnarchiveCategory{Name: "Rent", Direction: core.Outflow}); !errors.Is(err, apperrors.ErrCannotUnarchiveCategory) {
		t.Fatalf("expected ErrCannotUnarchiveCategory, got %v", err)
	}

	for _, tree := range []*category.Tree{&f.ledger.Inflows, &f.ledger.Outflows} {
		seen := map[category.Name]bool{}
		for _, n := range tree.ActiveNames() {
			if seen[n] {
				t.Fatalf("duplicate active category %q", n)
			}
			seen[n] = true
		}
	}
	f.assertReplayMatches()
}

func TestCreateLedgerValidation(t *testing.T) {
	active := ym(2026, time.March)
	tests := []struct {
		name string
		cmd  CreateLedger
		want error
	}{
		{"missing owner", CreateLedger{Name: "x", BankAccount: BankAccount{Balance: usd("0")}}, apperrors.ErrInvalidArgument},
		{"malformed id", CreateLedger{LedgerID: "XX1", OwnerID: "o", Name: "x", BankAccount: BankAccount{Balance: usd("0")}}, apperrors.ErrInvalidLedgerID},
		{"start not before active", CreateLedger{OwnerID: "o", Name: "x", BankAccount: BankAccount{Balance: usd("0")}, ActivePeriod: &active, StartPeriod: &active}, apperrors.ErrStartPeriodNotBeforeActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Create(tt.cmd, now); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	l, _, err := Create(CreateLedger{LedgerID: "CF0000000042", OwnerID: "o", Name: "x", BankAccount: BankAccount{Balance: usd("0")}}, now)
	if err != nil || l.ID != "CF0000000042" || l.ActivePeriod != active {
		t.Fatalf("unexpected ledger %+v (err=%v)", l, err)
	}
	if _, err := l.Execute(CreateLedger{OwnerID: "o", Name: "y"}, now); err == nil {
		t.Fatalf("creating an existing ledger should fail")
	}
}

func TestVersionAndChecksumTrackEvents(t *testing.T) {
	f := newOpenLedger(t, "0")
	f.appendExpected("CC0000000001", core.Inflow, "5", category.Uncategorized, now)

	if f.ledger.Version != uint64(len(f.events)) {
		t.Fatalf("version = %d, want %d", f.ledger.Version, len(f.events))
	}
	last, err := Checksum(f.events[len(f.events)-1])
	if err != nil {
		t.Fatalf("Checksum error = %v", err)
	}
	if f.ledger.LastEventChecksum != last {
		t.Fatalf("last checksum = %s, want %s", f.ledger.LastEventChecksum, last)
	}
}

func TestReplayRejectsMisorderedStream(t *testing.T) {
	f := newOpenLedger(t, "0")
	f.appendExpected("CC0000000001", core.Inflow, "5", category.Uncategorized, now)

	if _, err := Replay(f.events[1:]); err == nil {
		t.Fatalf("replay without LedgerCreated should fail")
	}
	if _, err := Replay(append(f.events, f.events[0])); err == nil {
		t.Fatalf("replay with a second LedgerCreated should fail")
	}
}
