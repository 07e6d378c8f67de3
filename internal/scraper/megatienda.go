package scraper

import (
	"fmt"
	"net/url"

	"github.com/maltedev/marketplace-scraper/internal/parser"
	"github.com/playwright-community/playwright-go"
)

const (
	megatiendaStoreInputs = `div.megatiendas-delivery-modal-1-x-ModalFormAddress__card_content_store--active input[type="text"]`
	megatiendaContent     = ".gallery-layout-container, .vtex-store-components-3-x-container"
)

// Megatienda only prices products once a pickup store is chosen.
type Megatienda struct {
	Department string
	City       string
	parser     *parser.MegatiendaParser
}

func NewMegatienda() *Megatienda {
	return &Megatienda{
		Department: "Bolívar",
		City:       "Cartagena",
		parser:     &parser.MegatiendaParser{},
	}
}

func (m *Megatienda) Name() string { return parser.Megatienda }

func (m *Megatienda) Parser() parser.ListingParser { return m.parser }

func (m *Megatienda) SearchURL(query string, page int, _ SearchState) string {
	u := parser.MegatiendaBaseURL + "/buscar?q=" + url.QueryEscape(query)
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

func (m *Megatienda) Prepare(page playwright.Page) error {
	if clickIfVisible(page, `text="Recoge en tienda"`, 5000) {
		if err := m.chooseStore(page); err != nil {
			return fmt.Errorf("failed to choose pickup store: %w", err)
		}
	}

	if err := waitVisible(page, megatiendaContent, 15000); err != nil {
		return fmt.Errorf("listing did not load: %w", err)
	}
	return nil
}

func (m *Megatienda) chooseStore(page playwright.Page) error {
	inputs := page.Locator(megatiendaStoreInputs)
	if err := inputs.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	}); err != nil {
		return err
	}

	for i, value := range []string{m.Department, m.City} {
		if err := selectAutocomplete(page, inputs.Nth(i), value); err != nil {
			return err
		}
	}

	return page.Locator(`button:has-text("Guardar")`).First().Click()
}

func selectAutocomplete(page playwright.Page, input playwright.Locator, value string) error {
	if err := input.Fill(value); err != nil {
		return err
	}
	page.WaitForTimeout(500)
	if err := page.Keyboard().Press("ArrowDown"); err != nil {
		return err
	}
	return page.Keyboard().Press("Enter")
}
