// Package journeys is the catalog of built-in scenarios for the repair
// marketplace: the dashboards, onboarding wizards, proposal flow, admin
// escalation, filtering and locale checks its release checklist covers.
//
// Text defaults are English with Ukrainian (the app's default language)
// and, where the landing page ships it, Russian overrides.
package journeys

import (
	"fmt"
	"sort"
	"time"

	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/target"
)

// Entry is a built-in scenario with the matrix it runs over by default.
type Entry struct {
	Scenario scenario.Scenario
	Matrix   scenario.Matrix
}

// ID is the scenario id.
func (e Entry) ID() string { return e.Scenario.ID }

// Registry indexes entries by id.
type Registry struct {
	byID map[string]Entry
}

// NewRegistry validates every entry and rejects duplicate ids.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{byID: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := e.Scenario.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[e.ID()]; dup {
			return nil, fmt.Errorf("journeys: duplicate scenario %q", e.ID())
		}
		r.byID[e.ID()] = e
	}
	return r, nil
}

// Get returns a copy of the entry.
func (r *Registry) Get(id string) (Entry, bool) {
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	e.Scenario = e.Scenario.Clone()
	return e, true
}

// IDs lists the registered ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries lists copies of every entry in id order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.byID))
	for _, id := range r.IDs() {
		e, _ := r.Get(id)
		out = append(out, e)
	}
	return out
}

// Builtin returns the registry of built-in journeys.
func Builtin() *Registry {
	r, err := NewRegistry(
		ClientDashboard(),
		Portfolio(),
		PartsInventory(),
		Proposal(),
		ProposalAcceptance(),
		AdminEscalation(),
		AdminSettings(),
		OrderFiltering(),
		ResponsiveOrders(),
		SocialAuth(),
		Translations(),
		MasterOnboarding(),
		ClientOnboarding(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

func button(name scenario.Text) scenario.Selector { return scenario.ByRole("button", name) }
func link(name scenario.Text) scenario.Selector   { return scenario.ByRole("link", name) }

var (
	navProposals = link(scenario.T("Proposals").In("uk", "Пропозиції"))
	navOrders    = link(scenario.T("My orders").In("uk", "Мої замовлення"))
)

// single runs over the scenario's own cell only.
func single() scenario.Matrix { return scenario.Matrix{} }

func ClientDashboard() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "client-dashboard",
		Description: "A signed-in client lands on the personal greeting.",
		Identity:    identity.ClientUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.AssertVisible(scenario.ByRole("heading",
				scenario.T("👋 Hello, Володимир Петров!").In("uk", "👋 Привіт, Володимир Петров!"))),
			scenario.Screenshot("dashboard"),
		},
	}, Matrix: single()}
}

func Portfolio() Entry {
	title := scenario.T("Test Portfolio Item")
	return Entry{Scenario: scenario.Scenario{
		ID:          "portfolio",
		Description: "A master adds the first item to an empty portfolio.",
		Identity:    identity.TestMaster,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.AssertTextPresent(scenario.T("Welcome, Test Master").In("uk", "Вітаємо, Test Master")),
			scenario.Click(link(scenario.T("Portfolio").In("uk", "Портфоліо"))),
			scenario.WaitFor(scenario.URLContains("/portfolio"), 0),
			scenario.AssertTextPresent(scenario.T("Your portfolio is empty").In("uk", "Ваше портфоліо порожнє")),
			scenario.Screenshot("empty"),
			scenario.Click(button(scenario.T("Add New Item").In("uk", "Додати роботу"))),
			scenario.Fill(scenario.ByPlaceholder(scenario.T("Title").In("uk", "Назва")), title),
			scenario.Fill(scenario.ByPlaceholder(scenario.T("Description").In("uk", "Опис")),
				scenario.T("This is a test portfolio item.").In("uk", "Тестова робота для портфоліо.")),
			scenario.Click(button(scenario.T("Create").In("uk", "Створити"))),
			scenario.AssertTextPresent(title),
			scenario.Screenshot("with-item"),
		},
	}, Matrix: single()}
}

func PartsInventory() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "parts-inventory",
		Description: "A master stocks a part in an empty inventory.",
		Identity:    identity.TestMaster,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(link(scenario.T("Parts").In("uk", "Запчастини"))),
			scenario.AssertTextPresent(scenario.T("No parts in stock").In("uk", "Склад порожній")),
			scenario.Screenshot("empty"),
			scenario.Click(button(scenario.T("Add Part").In("uk", "Додати запчастину"))),
			scenario.Fill(scenario.ByLabel(scenario.T("Name").In("uk", "Назва")), scenario.T("Test Part")),
			scenario.Fill(scenario.ByLabel(scenario.T("Price").In("uk", "Ціна")), scenario.T("100")),
			scenario.Fill(scenario.ByLabel(scenario.T("Quantity").In("uk", "Кількість")), scenario.T("10")),
			scenario.Click(button(scenario.T("Create").In("uk", "Створити"))),
			scenario.WaitFor(scenario.ElementVisible(scenario.ByRole("row", scenario.T("Test Part"))), 0),
			scenario.Screenshot("with-item"),
		},
	}, Matrix: single()}
}

// Proposal is master-only: run over the client role it fails because the
// client never sees a place-proposal control.
func Proposal() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "proposal",
		Description: "A master places a priced proposal on an open order.",
		Identity:    identity.MasterUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(navProposals),
			scenario.Click(button(scenario.T("Place proposal").In("uk", "Розмістити пропозицію")).First()),
			scenario.Select(scenario.ByRole("combobox", scenario.T("Order").In("uk", "Замовлення")), scenario.T("order-1")),
			scenario.Fill(scenario.ByLabel(scenario.T("Price ($)").In("uk", "Ціна ($)")), scenario.T("100")),
			scenario.Fill(scenario.ByLabel(scenario.T("Work description").In("uk", "Опис роботи")),
				scenario.T("Test proposal").In("uk", "Тестова пропозиція")),
			scenario.Click(button(scenario.T("Submit").In("uk", "Розмістити")).Exact()),
			scenario.AssertTextPresent(scenario.T("Proposal submitted").In("uk", "Пропозицію розміщено")),
			scenario.Screenshot("submitted"),
		},
	}, Matrix: single()}
}

func ProposalAcceptance() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "proposal-acceptance",
		Description: "A client accepts a received proposal.",
		Identity:    identity.ClientUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(navProposals),
			scenario.Click(button(scenario.T("Accept").In("uk", "Прийняти")).First()),
			scenario.Screenshot("accepted"),
		},
	}, Matrix: single()}
}

func AdminEscalation() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "admin-escalation",
		Description: "A master session promoted to admin in place reaches the admin dashboard.",
		Identity:    identity.MasterUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.AssertVisible(scenario.ByRole("heading", scenario.T("Master dashboard").In("uk", "Кабінет майстра"))),
			scenario.MutateRole(identity.Admin),
			scenario.AssertVisible(scenario.ByRole("heading", scenario.T("Admin Dashboard").In("uk", "Панель адміністратора"))),
			scenario.Screenshot("admin-dashboard"),
		},
	}, Matrix: single()}
}

func AdminSettings() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "admin-settings",
		Description: "An admin opens the platform settings panel.",
		Identity:    identity.AdminUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(link(scenario.T("Settings").In("uk", "Налаштування"))),
			scenario.AssertTextPresent(scenario.T("Admin panel: Settings").In("uk", "Адмін-панель: Налаштування")),
			scenario.AssertVisible(scenario.ByLabel(scenario.T("Exchange rate provider:").In("uk", "Провайдер курсів валют:"))).Checkpoint(),
			scenario.AssertVisible(scenario.ByLabel(scenario.T("Platform fee (%):").In("uk", "Комісія платформи (%):"))).Checkpoint(),
			scenario.Screenshot("settings"),
		},
	}, Matrix: single()}
}

func OrderFiltering() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "order-filtering",
		Description: "Searching the client's orders hides the ones that do not match.",
		Identity:    identity.ClientUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(navOrders),
			scenario.Fill(scenario.ByPlaceholder(scenario.T("Search orders...").In("uk", "Пошук замовлень...")), scenario.T("iphone")),
			scenario.WaitFor(scenario.ElementHidden(scenario.ByRole("listitem", scenario.T("Samsung"))), 0),
			scenario.AssertVisible(scenario.ByRole("listitem", scenario.T("iPhone 13"))),
			scenario.Screenshot("filtered"),
		},
	}, Matrix: single()}
}

func ResponsiveOrders() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "responsive-orders",
		Description: "The client's orders are reachable from the navigation at every screen size.",
		Identity:    identity.ClientUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(scenario.ByCSS(`button[aria-label="Open menu"]`)).
				Named("open mobile menu").
				OnlyOn("mobile"),
			scenario.Click(navOrders),
			scenario.WaitFor(scenario.URLContains("/orders"), 0),
			scenario.Screenshot("orders"),
		},
	}, Matrix: scenario.Matrix{Viewports: []string{"desktop", "tablet", "mobile"}}}
}

func SocialAuth() Entry {
	signIn := scenario.ByRole("heading", scenario.T("Sign in").In("uk", "Вхід в акаунт"))
	return Entry{Scenario: scenario.Scenario{
		ID:          "social-auth",
		Description: "The sign-in modal offers every social and phone provider.",
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(scenario.ByCSS("nav button")).Named("open sign-in"),
			scenario.AssertVisible(signIn),
			scenario.AssertVisible(button(scenario.T("Continue with Google").In("uk", "Продовжити з Google"))).Checkpoint(),
			scenario.AssertVisible(button(scenario.T("Continue with Telegram").In("uk", "Продовжити з Telegram"))).Checkpoint(),
			scenario.AssertVisible(button(scenario.T("Sign in with phone").In("uk", "Увійти за номером телефону"))).Checkpoint(),
			scenario.Screenshot("login-modal"),
			scenario.Reload(),
			scenario.WaitFor(scenario.ElementHidden(signIn), 0),
		},
	}, Matrix: single()}
}

// TranslationLocales are the languages the landing page ships.
var TranslationLocales = []string{"uk", "en", "ru", "pl", "ro"}

func Translations() Entry {
	return Entry{Scenario: scenario.Scenario{
		ID:          "translations",
		Description: "The landing page renders in every shipped language.",
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.WaitFor(scenario.ScriptTruthy("document.documentElement.lang"), 0),
			scenario.AssertVisible(scenario.ByRole("heading", scenario.T("Device repair near you").
				In("uk", "Ремонт техніки поруч з вами").
				In("ru", "Ремонт техники рядом с вами").
				In("pl", "Naprawa sprzętu w pobliżu").
				In("ro", "Reparații de dispozitive lângă tine"))),
			scenario.Screenshot("landing"),
		},
	}, Matrix: scenario.Matrix{Locales: TranslationLocales}}
}

// OnboardingSteps is the length of the onboarding wizards.
const OnboardingSteps = 5

var (
	wizardNext   = button(scenario.T("Next").In("uk", "Далі").In("ru", "Далее"))
	wizardFinish = button(scenario.T("Finish").In("uk", "Завершити").In("ru", "Завершить"))
)

// onboarding walks a wizard started from the landing page, capturing every
// step, and checks where finishing lands.
func onboarding(id, description string, start scenario.Text, landing scenario.Selector) Entry {
	steps := []scenario.Step{
		scenario.Navigate("/"),
		// the landing page repeats each entry point in its footer
		scenario.Click(button(start).First()),
	}
	for i := 1; i <= OnboardingSteps; i++ {
		steps = append(steps, scenario.WaitFor(scenario.ElementVisible(scenario.ByRole("heading",
			scenario.T(fmt.Sprintf("Step %d of %d", i, OnboardingSteps)).
				In("uk", fmt.Sprintf("Крок %d з %d", i, OnboardingSteps)).
				In("ru", fmt.Sprintf("Шаг %d из %d", i, OnboardingSteps)))), 5*time.Second),
			scenario.Screenshot(fmt.Sprintf("step%d", i)),
		)
		if i < OnboardingSteps {
			steps = append(steps, scenario.Click(wizardNext))
		}
	}
	steps = append(steps,
		scenario.Click(wizardFinish),
		scenario.AssertVisible(landing),
		scenario.Screenshot("dashboard"),
	)
	return Entry{Scenario: scenario.Scenario{
		ID:          id,
		Description: description,
		Viewport:    target.Desktop.Name,
		Steps:       steps,
	}, Matrix: single()}
}

func MasterOnboarding() Entry {
	return onboarding("master-onboarding", "A guest starts earning and completes the master wizard.",
		scenario.T("Start earning").In("uk", "Почати заробляти").In("ru", "Начать зарабатывать"),
		scenario.ByRole("heading", scenario.T("Master dashboard").In("uk", "Кабінет майстра").In("ru", "Кабинет мастера")),
	)
}

func ClientOnboarding() Entry {
	return onboarding("client-onboarding", "A guest looks for a master and completes the client wizard.",
		scenario.T("Find a master").In("uk", "Знайти майстра").In("ru", "Найти мастера"),
		scenario.ByRole("heading", scenario.T("👋 Hello, Володимир Петров!").
			In("uk", "👋 Привіт, Володимир Петров!").
			In("ru", "👋 Привет, Володимир Петров!")),
	)
}
