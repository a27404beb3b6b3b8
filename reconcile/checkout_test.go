package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/pharmaprice-api/collections"
	"github.com/giygas/pharmaprice-api/currency"
	"github.com/giygas/pharmaprice-api/entities"
)

func newEngine(t *testing.T, records ...entities.PriceRecord) (*Engine, *collections.Manager) {
	t.Helper()
	m := collections.NewManager()
	for _, r := range records {
		m.AddToBasket(r)
	}
	return NewEngine(m, currency.DefaultFormatter()), m
}

func xyz() []entities.PriceRecord {
	return []entities.PriceRecord{
		rec("X", quote{"Boots", "€10.00"}, quote{"Lloyds", "€11.00"}),
		rec("Y", quote{"Boots", "€5.50"}, quote{"Lloyds", "€4.00"}),
		rec("Z", quote{"Boots", "€2.25"}),
	}
}

func TestCheckoutExample(t *testing.T) {
	e, m := newEngine(t, xyz()...)

	c, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)
	assert.Equal(t, Reviewing, c.State)
	assert.Equal(t, []string{"X", "Y", "Z"}, c.SelectedItems, "every item starts selected")
	assert.True(t, c.AllSelected)
	assert.Equal(t, "€17.75", c.Total)

	c, err = e.ToggleItem("Y")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Z"}, c.SelectedItems)
	assert.False(t, c.AllSelected)

	conf, err := e.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "Boots", conf.Pharmacy)
	assert.Equal(t, []string{"X", "Z"}, conf.ConfirmedItems)
	assert.Equal(t, "€12.25", conf.Total)
	assert.False(t, conf.BasketEmpty)

	assert.Equal(t, []string{"Y"}, m.BasketNames())
	assert.Equal(t, Browsing, e.State().State)
}

func TestConfirmWithNothingSelected(t *testing.T) {
	e, m := newEngine(t, xyz()...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)

	c, err := e.ToggleSelectAll()
	require.NoError(t, err)
	assert.Empty(t, c.SelectedItems)

	conf, err := e.Confirm()
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Nil(t, conf)
	assert.Equal(t, []string{"X", "Y", "Z"}, m.BasketNames(), "basket untouched")
	assert.Equal(t, Reviewing, e.State().State, "still reviewing")
}

func TestConfirmAllSignalsEmptyBasket(t *testing.T) {
	e, m := newEngine(t, xyz()...)
	_, err := e.SelectPharmacy("Lloyds")
	require.NoError(t, err)

	conf, err := e.Confirm()
	require.NoError(t, err)
	assert.True(t, conf.BasketEmpty)
	assert.Equal(t, "€15.00", conf.Total, "Z has no Lloyds offer and adds nothing")
	assert.Empty(t, m.BasketNames())
}

func TestToggleSelectAll(t *testing.T) {
	e, _ := newEngine(t, xyz()...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)

	_, err = e.ToggleItem("X")
	require.NoError(t, err)

	c, err := e.ToggleSelectAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y", "Z"}, c.SelectedItems, "partial selection becomes full")

	c, err = e.ToggleSelectAll()
	require.NoError(t, err)
	assert.Empty(t, c.SelectedItems, "full selection becomes empty")
}

func TestInvalidTransitions(t *testing.T) {
	e, _ := newEngine(t, xyz()...)

	_, err := e.ToggleItem("X")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.ToggleSelectAll()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.Cancel()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.Confirm()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.SelectPharmacy("Boots")
	require.NoError(t, err)
	_, err = e.SelectPharmacy("Lloyds")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.ToggleItem("Nope")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestSelectPharmacyRequiresBasketAndName(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.SelectPharmacy("Boots")
	assert.ErrorIs(t, err, ErrEmptyBasket)

	e, _ = newEngine(t, xyz()...)
	_, err = e.SelectPharmacy("  ")
	assert.ErrorIs(t, err, ErrNoPharmacy)
}

func TestCancelKeepsBasket(t *testing.T) {
	e, m := newEngine(t, xyz()...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)
	_, err = e.ToggleItem("X")
	require.NoError(t, err)

	c, err := e.Cancel()
	require.NoError(t, err)
	assert.Equal(t, Browsing, c.State)
	assert.Equal(t, []string{"X", "Y", "Z"}, m.BasketNames())

	c, err = e.SelectPharmacy("Lloyds")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y", "Z"}, c.SelectedItems, "a fresh review starts from the full basket")
}

func TestSelectionPrunedWhenItemRemoved(t *testing.T) {
	e, m := newEngine(t, xyz()...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)

	m.RemoveFromBasket("Y")

	c := e.State()
	assert.Equal(t, []string{"X", "Z"}, c.SelectedItems)
	assert.True(t, c.AllSelected)

	_, err = e.ToggleItem("Y")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestReAddedItemStaysUnselected(t *testing.T) {
	items := xyz()
	e, m := newEngine(t, items...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)
	_, err = e.ToggleItem("X")
	require.NoError(t, err)

	// removed and added back before the engine looks again
	m.RemoveFromBasket("Y")
	m.AddToBasket(items[1])

	c := e.State()
	assert.Equal(t, Reviewing, c.State)
	assert.Equal(t, []string{"Z"}, c.SelectedItems)
	assert.False(t, c.AllSelected)

	confirmation, err := e.Confirm()
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, confirmation.ConfirmedItems)
	assert.False(t, confirmation.BasketEmpty)
	assert.Equal(t, []string{"X", "Y"}, m.BasketNames())
}

func TestReAddedItemCanBeSelectedAgain(t *testing.T) {
	items := xyz()
	e, m := newEngine(t, items...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)

	m.RemoveFromBasket("Y")
	m.AddToBasket(items[1])

	c, err := e.ToggleItem("Y")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Z", "Y"}, c.SelectedItems)
	assert.True(t, c.AllSelected)
}

func TestSelectionDiscardedWhenBasketEmptied(t *testing.T) {
	e, m := newEngine(t, xyz()...)
	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)

	m.ClearBasket()
	// refilled before the engine looks again
	m.AddToBasket(rec("W", quote{"Boots", "€1.00"}))

	c := e.State()
	assert.Equal(t, Browsing, c.State, "emptying the basket ends the review")
	assert.Empty(t, c.SelectedItems)
}

func TestEngineTotalAtDefaults(t *testing.T) {
	e, _ := newEngine(t, xyz()...)

	assert.Equal(t, "€17.75", e.TotalAt("Boots", nil), "whole basket while browsing")
	assert.Equal(t, "€5.50", e.TotalAt("Boots", []string{"Y"}))

	_, err := e.SelectPharmacy("Boots")
	require.NoError(t, err)
	_, err = e.ToggleItem("X")
	require.NoError(t, err)

	assert.Equal(t, "€7.75", e.TotalAt("Boots", nil), "selection while reviewing")
	assert.Equal(t, "€4.00", e.TotalAt("Lloyds", nil))
}

func TestSummary(t *testing.T) {
	e, _ := newEngine(t,
		rec("X", quote{"Boots", "€10.00"}, quote{"Lloyds", "€8.00"}, quote{"Asda", "€9.00"}),
		rec("Y", quote{"Lloyds", "€4.00"}, quote{"Boots", "€5.50"}, quote{"Asda", "€1.00"}),
	)

	s := e.Summary()
	assert.Equal(t, 2, s.ItemCount)
	require.Len(t, s.CommonPharmacies, 3)
	assert.Equal(t, "Asda", s.CommonPharmacies[0].Pharmacy)
	assert.Equal(t, "€10.00", s.CommonPharmacies[0].Total)
	assert.Equal(t, "Lloyds", s.CommonPharmacies[1].Pharmacy)
	assert.Equal(t, "Boots", s.CommonPharmacies[2].Pharmacy)
	require.NotNil(t, s.Cheapest)
	assert.Equal(t, "Asda", s.Cheapest.Pharmacy)
	assert.Equal(t, "€5.50", s.Savings)
	assert.Equal(t, Browsing, s.Checkout.State)
}

func TestSummaryEmptyBasket(t *testing.T) {
	e, _ := newEngine(t)
	s := e.Summary()
	assert.Zero(t, s.ItemCount)
	assert.Empty(t, s.CommonPharmacies)
	assert.Nil(t, s.Cheapest)
	assert.Empty(t, s.Savings)
}

func TestChangeHooks(t *testing.T) {
	e, _ := newEngine(t, xyz()...)
	var states []State
	e.OnChange(func(c Checkout) { states = append(states, c.State) })

	_, _ = e.SelectPharmacy("Boots")
	_, _ = e.ToggleItem("X")
	_, _ = e.Cancel()
	_, _ = e.Cancel()

	assert.Equal(t, []State{Reviewing, Reviewing, Browsing}, states, "failed transitions are not reported")
}
