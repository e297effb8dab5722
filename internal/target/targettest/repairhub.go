package targettest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// RepairHub is a fake repair marketplace: guests see a landing page with a
// sign-in modal and the onboarding wizards; clients see their orders and
// received proposals; masters manage a portfolio, a parts inventory and
// place proposals; admins see the dashboard and platform settings. It reads its session from the persisted auth store
// (envelope or legacy layout) and its language from the i18n detector key,
// exactly once per boot.
type RepairHub struct {
	// TokenKey, when set, makes the portfolio API reject sessions without a
	// bearer token under this storage key.
	TokenKey string

	mu        sync.Mutex
	portfolio []string
	parts     []string
	boots     int
}

// OnboardingSteps is the length of both onboarding wizards.
const OnboardingSteps = 5

// NewRepairHub returns an app with empty backend state.
func NewRepairHub() *RepairHub {
	return &RepairHub{}
}

// Boots counts navigations and reloads.
func (a *RepairHub) Boots() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boots
}

var heroByLocale = map[string]string{
	"uk": "Ремонт техніки поруч з вами",
	"en": "Device repair near you",
	"ru": "Ремонт техники рядом с вами",
	"pl": "Naprawa sprzętu w pobliżu",
	"ro": "Reparații de dispozitive lângă tine",
}

var orders = []struct{ uk, en string }{
	{"iPhone 13 — заміна екрану", "iPhone 13 — screen replacement"},
	{"Samsung S21 — заміна батареї", "Samsung S21 — battery replacement"},
}

func (a *RepairHub) Boot(p *Page) {
	a.mu.Lock()
	a.boots++
	a.mu.Unlock()

	role, name := "guest", ""
	var user map[string]any
	if raw, ok := p.Storage["auth-storage"]; ok {
		var env struct {
			State struct {
				CurrentUser map[string]any `json:"currentUser"`
			} `json:"state"`
		}
		if json.Unmarshal([]byte(raw), &env) == nil {
			user = env.State.CurrentUser
		}
	} else if raw, ok := p.Storage["currentUser"]; ok {
		_ = json.Unmarshal([]byte(raw), &user)
	}
	if user != nil {
		if r, _ := user["role"].(string); r != "" {
			role = r
		}
		name, _ = user["name"].(string)
	}
	p.State["role"] = role
	p.State["name"] = name

	lang := p.Storage["i18nextLng"]
	if lang == "" {
		lang = p.Locale
	}
	if lang == "" {
		lang = "uk"
	}
	p.State["lang"] = strings.ToLower(lang)
}

func (a *RepairHub) Evaluate(p *Page, script string) (any, error) {
	switch strings.TrimSpace(script) {
	case "document.documentElement.lang":
		return p.State["lang"], nil
	case "document.title":
		return "RepairHub", nil
	case "window.__APP_READY__":
		return true, nil
	}
	return nil, fmt.Errorf("ReferenceError: %s is not defined", script)
}

func (a *RepairHub) Render(p *Page) []*Node {
	role, _ := p.State["role"].(string)
	lang, _ := p.State["lang"].(string)
	tr := func(uk, en string) string {
		if lang == "uk" {
			return uk
		}
		return en
	}

	nodes := a.nav(p, role, tr)
	switch p.Path {
	case "/", "":
		nodes = append(nodes, a.home(p, role, lang, tr)...)
	case "/portfolio":
		nodes = append(nodes, a.portfolioPage(p, role, tr)...)
	case "/proposals":
		nodes = append(nodes, proposalsPage(p, role, tr)...)
	case "/orders":
		nodes = append(nodes, ordersPage(p, role, tr)...)
	case "/parts":
		nodes = append(nodes, a.partsPage(p, role, tr)...)
	case "/admin":
		if role != "admin" {
			return append(nodes, &Node{Text: tr("Доступ заборонено", "Access denied")})
		}
		nodes = append(nodes, &Node{Role: "heading", Name: tr("Панель адміністратора", "Admin Dashboard")})
	case "/settings":
		if role != "admin" {
			return append(nodes, &Node{Text: tr("Доступ заборонено", "Access denied")})
		}
		nodes = append(nodes,
			&Node{Role: "heading", Name: tr("Адмін-панель: Налаштування", "Admin panel: Settings"), Text: tr("Адмін-панель: Налаштування", "Admin panel: Settings")},
			&Node{Role: "textbox", Label: tr("Провайдер курсів валют:", "Exchange rate provider:")},
			&Node{Role: "textbox", Label: tr("Комісія платформи (%):", "Platform fee (%):")},
			&Node{Role: "button", Name: tr("Зберегти", "Save")},
		)
	default:
		nodes = append(nodes, &Node{Role: "heading", Name: "404"})
	}
	return nodes
}

func (a *RepairHub) nav(p *Page, role string, tr func(uk, en string) string) []*Node {
	mobile := p.Viewport.Width > 0 && p.Viewport.Width < 768
	open, _ := p.State["menuOpen"].(bool)
	collapsed := mobile && !open

	var nodes []*Node
	if mobile {
		nodes = append(nodes, &Node{
			Role:    "button",
			Name:    tr("Відкрити меню", "Open menu"),
			CSS:     []string{`button[aria-label="Open menu"]`},
			OnClick: func(p *Page) { p.State["menuOpen"] = true },
		})
	}
	link := func(name, path string) *Node {
		return &Node{Role: "link", Name: name, Text: name, Hidden: collapsed, OnClick: func(p *Page) {
			p.Go(path)
			p.State["menuOpen"] = false
		}}
	}

	switch role {
	case "guest":
		nodes = append(nodes, &Node{
			Role:    "button",
			Name:    tr("Вхід", "Login"),
			CSS:     []string{"nav button"},
			Hidden:  collapsed,
			OnClick: func(p *Page) { p.State["loginOpen"] = true },
		})
		return nodes
	case "client":
		nodes = append(nodes, link(tr("Мої замовлення", "My orders"), "/orders"), link(tr("Пропозиції", "Proposals"), "/proposals"))
	case "master":
		nodes = append(nodes,
			link(tr("Портфоліо", "Portfolio"), "/portfolio"),
			link(tr("Запчастини", "Parts"), "/parts"),
			link(tr("Пропозиції", "Proposals"), "/proposals"),
		)
	case "admin":
		nodes = append(nodes, link(tr("Панель", "Dashboard"), "/admin"), link(tr("Налаштування", "Settings"), "/settings"))
	}
	nodes = append(nodes, &Node{
		Role:   "button",
		Name:   tr("Вихід", "Logout"),
		Title:  tr("Вихід", "Logout"),
		Hidden: collapsed,
		OnClick: func(p *Page) {
			delete(p.Storage, "auth-storage")
			delete(p.Storage, "currentUser")
			p.State["role"] = "guest"
			p.State["name"] = ""
			p.Go("/")
		},
	})
	return nodes
}

func (a *RepairHub) home(p *Page, role, lang string, tr func(uk, en string) string) []*Node {
	name, _ := p.State["name"].(string)
	switch role {
	case "client":
		return []*Node{{Role: "heading", Name: tr("👋 Привіт, "+name+"!", "👋 Hello, "+name+"!")}}
	case "master":
		return []*Node{
			{Role: "heading", Name: tr("Кабінет майстра", "Master dashboard")},
			{Text: tr("Вітаємо, "+name, "Welcome, "+name)},
		}
	case "admin":
		return []*Node{{Role: "heading", Name: tr("Панель адміністратора", "Admin Dashboard")}}
	}

	hero, ok := heroByLocale[lang]
	if !ok {
		hero = heroByLocale["en"]
	}
	if wizard, _ := p.State["wizard"].(string); wizard != "" {
		return onboarding(p, wizard, tr)
	}
	start := func(wizard string) func(p *Page) {
		return func(p *Page) {
			p.State["wizard"] = wizard
			p.State["wizardStep"] = 1
		}
	}
	earn, find := tr("Почати заробляти", "Start earning"), tr("Знайти майстра", "Find a master")
	nodes := []*Node{
		{Role: "heading", Name: hero, Text: hero},
		{Role: "button", Name: earn, OnClick: start("master")},
		{Role: "button", Name: find, OnClick: start("client")},
		// call-to-action footer repeats both entry points
		{Role: "button", Name: earn, OnClick: start("master")},
		{Role: "button", Name: find, OnClick: start("client")},
	}
	if open, _ := p.State["loginOpen"].(bool); open {
		nodes = append(nodes,
			&Node{Role: "heading", Name: tr("Вхід в акаунт", "Sign in")},
			&Node{Role: "button", Name: tr("Продовжити з Google", "Continue with Google")},
			&Node{Role: "button", Name: tr("Продовжити з Telegram", "Continue with Telegram")},
			&Node{Role: "button", Name: tr("Увійти за номером телефону", "Sign in with phone")},
		)
	}
	return nodes
}

// onboarding renders one wizard step. Finishing signs the demo account of
// the wizard's role in, the way the live landing page does.
func onboarding(p *Page, wizard string, tr func(uk, en string) string) []*Node {
	step, _ := p.State["wizardStep"].(int)
	nodes := []*Node{{
		Role: "heading",
		Name: fmt.Sprintf(tr("Крок %d з %d", "Step %d of %d"), step, OnboardingSteps),
	}}
	if step < OnboardingSteps {
		return append(nodes, &Node{Role: "button", Name: tr("Далі", "Next"), OnClick: func(p *Page) {
			p.State["wizardStep"] = step + 1
		}})
	}
	return append(nodes, &Node{Role: "button", Name: tr("Завершити", "Finish"), OnClick: func(p *Page) {
		user := map[string]any{"id": "master-1", "name": "Олександр Петренко", "role": "master"}
		if wizard == "client" {
			user = map[string]any{"id": "client-1", "name": "Володимир Петров", "role": "client"}
		}
		raw, _ := json.Marshal(map[string]any{
			"state":   map[string]any{"currentUser": user, "isOnboardingCompleted": true},
			"version": 0,
		})
		p.Storage["auth-storage"] = string(raw)
		p.State["role"] = user["role"]
		p.State["name"] = user["name"]
		delete(p.State, "wizard")
		p.Go("/")
	}})
}

func (a *RepairHub) portfolioPage(p *Page, role string, tr func(uk, en string) string) []*Node {
	if role != "master" {
		return []*Node{{Text: tr("Доступ заборонено", "Access denied")}}
	}
	nodes := []*Node{{Role: "heading", Name: tr("Портфоліо", "Portfolio")}}
	if a.TokenKey != "" && p.Storage[a.TokenKey] == "" {
		return append(nodes, &Node{Text: "401 Unauthorized"})
	}

	a.mu.Lock()
	items := append([]string(nil), a.portfolio...)
	a.mu.Unlock()
	if len(items) == 0 {
		nodes = append(nodes, &Node{Text: tr("Ваше портфоліо порожнє", "Your portfolio is empty")})
	}
	for _, item := range items {
		nodes = append(nodes, &Node{Role: "article", Name: item, Text: item})
	}

	titleKey, descKey := tr("Назва", "Title"), tr("Опис", "Description")
	nodes = append(nodes, &Node{
		Role:    "button",
		Name:    tr("Додати роботу", "Add New Item"),
		OnClick: func(p *Page) { p.State["formOpen"] = true },
	})
	if open, _ := p.State["formOpen"].(bool); open {
		nodes = append(nodes,
			&Node{Role: "textbox", Placeholder: titleKey},
			&Node{Role: "textbox", Placeholder: descKey},
			&Node{Role: "button", Name: tr("Створити", "Create"), OnClick: func(p *Page) {
				title := strings.TrimSpace(p.Inputs[titleKey])
				if title == "" {
					return
				}
				a.mu.Lock()
				a.portfolio = append(a.portfolio, title)
				a.mu.Unlock()
				p.State["formOpen"] = false
			}},
		)
	}
	return nodes
}

func proposalsPage(p *Page, role string, tr func(uk, en string) string) []*Node {
	nodes := []*Node{{Role: "heading", Name: tr("Пропозиції", "Proposals")}}
	for _, o := range orders {
		nodes = append(nodes, &Node{Text: tr(o.uk, o.en)})
	}
	switch role {
	case "master":
		for range orders {
			nodes = append(nodes, &Node{
				Role:    "button",
				Name:    tr("Розмістити пропозицію", "Place proposal"),
				OnClick: func(p *Page) { p.State["proposalFormOpen"] = true },
			})
		}
		if open, _ := p.State["proposalFormOpen"].(bool); open {
			priceKey := tr("Ціна ($)", "Price ($)")
			nodes = append(nodes,
				&Node{Role: "combobox", Name: tr("Замовлення", "Order"), Options: []string{"order-1", "order-2"}},
				&Node{Role: "textbox", Label: priceKey},
				&Node{Role: "textbox", Label: tr("Опис роботи", "Work description")},
				&Node{Role: "button", Name: tr("Розмістити", "Submit"), OnClick: func(p *Page) {
					if p.Inputs[priceKey] == "" {
						return
					}
					p.State["proposalFormOpen"] = false
					p.State["proposalSent"] = true
				}},
			)
		}
		if sent, _ := p.State["proposalSent"].(bool); sent {
			nodes = append(nodes, &Node{Text: tr("Пропозицію розміщено", "Proposal submitted")})
		}
	case "client":
		nodes = append(nodes, &Node{Role: "button", Name: tr("Прийняти", "Accept")})
	}
	return nodes
}

func ordersPage(p *Page, role string, tr func(uk, en string) string) []*Node {
	if role != "client" {
		return []*Node{{Text: tr("Доступ заборонено", "Access denied")}}
	}
	searchKey := tr("Пошук замовлень...", "Search orders...")
	query := strings.ToLower(strings.TrimSpace(p.Inputs[searchKey]))
	nodes := []*Node{
		{Role: "heading", Name: tr("Мої замовлення", "My orders")},
		{Role: "textbox", Placeholder: searchKey},
	}
	for _, o := range orders {
		title := tr(o.uk, o.en)
		nodes = append(nodes, &Node{
			Role:   "listitem",
			Name:   title,
			Text:   title,
			Hidden: query != "" && !strings.Contains(strings.ToLower(title), query),
		})
	}
	return nodes
}

func (a *RepairHub) partsPage(p *Page, role string, tr func(uk, en string) string) []*Node {
	if role != "master" {
		return []*Node{{Text: tr("Доступ заборонено", "Access denied")}}
	}
	nodes := []*Node{{Role: "heading", Name: tr("Запчастини", "Parts inventory")}}

	a.mu.Lock()
	items := append([]string(nil), a.parts...)
	a.mu.Unlock()
	if len(items) == 0 {
		nodes = append(nodes, &Node{Text: tr("Склад порожній", "No parts in stock")})
	}
	for _, item := range items {
		nodes = append(nodes, &Node{Role: "row", Name: item, Text: item})
	}

	nameKey, priceKey, qtyKey := tr("Назва", "Name"), tr("Ціна", "Price"), tr("Кількість", "Quantity")
	nodes = append(nodes, &Node{
		Role:    "button",
		Name:    tr("Додати запчастину", "Add Part"),
		OnClick: func(p *Page) { p.State["partFormOpen"] = true },
	})
	if open, _ := p.State["partFormOpen"].(bool); open {
		nodes = append(nodes,
			&Node{Role: "textbox", Label: nameKey},
			&Node{Role: "spinbutton", Label: priceKey},
			&Node{Role: "spinbutton", Label: qtyKey},
			&Node{Role: "button", Name: tr("Створити", "Create"), OnClick: func(p *Page) {
				name := strings.TrimSpace(p.Inputs[nameKey])
				if name == "" || p.Inputs[qtyKey] == "" {
					return
				}
				a.mu.Lock()
				a.parts = append(a.parts, fmt.Sprintf("%s × %s", name, p.Inputs[qtyKey]))
				a.mu.Unlock()
				p.State["partFormOpen"] = false
			}},
		)
	}
	return nodes
}
