package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"order-engine/internal/catalog"
	"order-engine/internal/config"
	"order-engine/internal/interaction"
	"order-engine/internal/model"
	"order-engine/internal/order"
	"order-engine/internal/pricing"
)

// Outcome is the result of handling one event.
type Outcome struct {
	Action     interaction.Action `json:"action"`
	Ref        string             `json:"ref,omitempty"`
	Stage      model.Stage        `json:"stage"`
	Directive  model.Directive    `json:"directive"`
	Diagnostic string             `json:"diagnostic,omitempty"`
	OrderID    string             `json:"order_id,omitempty"`
}

// Options configures an Engine.
type Options struct {
	SessionTTL  time.Duration
	MaxSessions int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Engine routes classified events through the state machine.
type Engine struct {
	sessions *SessionStore
	resolver *catalog.Resolver
	pricer   *pricing.Engine
	orders   *order.Orchestrator
	tenants  map[string]config.Tenant
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires the engine's collaborators.
func NewEngine(resolver *catalog.Resolver, pricer *pricing.Engine, orders *order.Orchestrator, tenants map[string]config.Tenant, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	return &Engine{
		sessions: NewSessionStore(opts.SessionTTL, opts.MaxSessions, opts.Now),
		resolver: resolver,
		pricer:   pricer,
		orders:   orders,
		tenants:  tenants,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Sessions exposes the session store.
func (e *Engine) Sessions() *SessionStore {
	return e.sessions
}

// step is what applying one action produced.
type step struct {
	next    State
	dir     model.Directive
	note    string
	orderID string
}

// Handle processes one event for a conversation. Events of the same
// conversation are serialized. Rejected actions and user-facing failures are
// reported in the Outcome and leave the session untouched; the error return
// is reserved for infrastructure failures.
func (e *Engine) Handle(ctx context.Context, tenantID, conversationID string, ev interaction.Event) (Outcome, error) {
	if _, ok := e.tenants[tenantID]; !ok {
		return Outcome{}, model.NewNotFoundError("tenant " + tenantID)
	}
	if conversationID == "" {
		return Outcome{}, model.NewValidationError("conversation", "id is required")
	}

	unlock := e.sessions.Lock(tenantID, conversationID)
	defer unlock()

	sess, ok := e.sessions.Get(tenantID, conversationID)
	if !ok {
		sess = newSession(tenantID, conversationID, e.now())
	}
	stage := sess.State.Stage()

	snap := interaction.Snapshot{
		Stage:           stage,
		SelectsProducts: Accepts(stage, interaction.KindSelectProduct),
	}
	if st, ok := sess.State.(CheckoutState); ok {
		snap.AwaitingAddress = st.AwaitingAddress
	}
	action := interaction.Classify(ev, snap)
	out := Outcome{Action: action, Ref: action.RefString(), Stage: stage}

	if action.Kind == interaction.KindNone {
		out.Directive = model.Directive{Kind: model.DirectivePassThrough}
		return out, nil
	}

	if !Accepts(stage, action.Kind) {
		err := model.NewTransitionError(string(stage), string(action.Kind))
		out.Directive = model.ErrorDirective(err)
		out.Diagnostic = err.Message
		e.logger.Info("transition rejected",
			"tenant", tenantID,
			"conversation", conversationID,
			"stage", stage,
			"action", action.Kind,
		)
		return out, nil
	}

	if ev.Sender.Name != "" {
		sess.Customer.Name = ev.Sender.Name
	}
	if ev.Sender.Phone != "" {
		sess.Customer.Phone = ev.Sender.Phone
	}

	res, err := e.apply(ctx, sess, action)
	if err != nil {
		out.Directive = model.ErrorDirective(err)
		out.Diagnostic = err.Error()
		if model.IsUserFacing(err) {
			e.logger.Info("action failed",
				"tenant", tenantID,
				"conversation", conversationID,
				"stage", stage,
				"action", action.Kind,
				"error", err,
			)
			return out, nil
		}
		e.logger.Error("action failed",
			"tenant", tenantID,
			"conversation", conversationID,
			"stage", stage,
			"action", action.Kind,
			"error", err,
		)
		return out, err
	}

	sess.State = res.next
	sess.UpdatedAt = e.now()
	e.sessions.Put(sess)

	out.Stage = res.next.Stage()
	out.Directive = res.dir
	out.Diagnostic = res.note
	out.OrderID = res.orderID

	e.logger.Debug("interaction handled",
		"tenant", tenantID,
		"conversation", conversationID,
		"action", action.Kind,
		"ref", out.Ref,
		"from", stage,
		"to", out.Stage,
	)
	return out, nil
}

// State returns the current stage record and a cart copy of a conversation.
func (e *Engine) State(tenantID, conversationID string) (View, model.Cart, bool) {
	sess, ok := e.sessions.Get(tenantID, conversationID)
	if !ok {
		return View{}, model.Cart{}, false
	}
	return ViewOf(sess.State), sess.Cart.Snapshot(), true
}

// apply mutates sess (a private copy) and returns the next state record.
func (e *Engine) apply(ctx context.Context, sess *Session, a interaction.Action) (step, error) {
	switch a.Kind {
	case interaction.KindShowMenu:
		if sess.State.Stage() == model.StageConfirmed {
			sess.Cart = model.NewCart(sess.TenantID)
		}
		return e.browse(ctx, sess)

	case interaction.KindContinueShopping:
		return e.browse(ctx, sess)

	case interaction.KindClearCart:
		sess.Cart.Clear()
		return e.browse(ctx, sess)

	case interaction.KindSelectCategory:
		return e.selectCategory(ctx, sess, a.Ref)

	case interaction.KindSelectProduct:
		return e.selectProduct(ctx, sess, a.Ref)

	case interaction.KindSelectPresentation, interaction.KindSelectSize,
		interaction.KindToggleModifier, interaction.KindToggleAddOn, interaction.KindSetQuantity:
		st := sess.State.(CustomizingState)
		if err := e.customize(&st, a); err != nil {
			return step{}, err
		}
		return e.stepTo(st, sess, e.customizeDirective(st))

	case interaction.KindAddToCart:
		st := sess.State.(CustomizingState)
		item, err := e.pricer.PriceItem(st.Product, st.Draft.Quantity, st.Draft.Selection)
		if err != nil {
			return step{}, err
		}
		sess.Cart.Add(item)
		return e.stepTo(ReviewingCartState{}, sess, cartDirective(sess.Cart))

	case interaction.KindViewCart:
		switch sess.State.(type) {
		case CheckoutState, PaymentState:
			return e.stepTo(sess.State, sess, cartDirective(sess.Cart))
		}
		return e.stepTo(ReviewingCartState{}, sess, cartDirective(sess.Cart))

	case interaction.KindRemoveItem:
		if err := sess.Cart.Remove(a.Number - 1); err != nil {
			return step{}, err
		}
		return e.stepTo(ReviewingCartState{}, sess, cartDirective(sess.Cart))

	case interaction.KindUpdateLine:
		idx := a.Number - 1
		if idx < 0 || idx >= len(sess.Cart.Items) {
			return step{}, model.NewValidationError("item", fmt.Sprintf("no cart line at position %d", a.Number))
		}
		p, _, err := e.resolver.ResolveProduct(ctx, sess.TenantID, catalog.ProductRef(sess.Cart.Items[idx].ProductID))
		if err != nil {
			return step{}, err
		}
		if err := e.pricer.UpdateQuantity(sess.Cart, idx, a.Quantity, p); err != nil {
			return step{}, err
		}
		return e.stepTo(ReviewingCartState{}, sess, cartDirective(sess.Cart))

	case interaction.KindCheckout:
		dir := cartDirective(sess.Cart)
		dir.Kind = model.DirectiveAskDelivery
		return e.stepTo(CheckoutState{}, sess, dir)

	case interaction.KindSelectDelivery:
		st := sess.State.(CheckoutState)
		mode := model.DeliveryMode(a.Value)
		if mode == model.DeliveryDelivery {
			next := CheckoutState{Delivery: model.Delivery{Mode: mode}, AwaitingAddress: true, PromoCode: st.PromoCode}
			dir := cartDirective(sess.Cart)
			dir.Kind = model.DirectiveAskDelivery
			dir.AwaitingAddress = true
			return e.stepTo(next, sess, dir)
		}
		return e.toPayment(sess, PaymentState{Delivery: model.Delivery{Mode: mode}, PromoCode: st.PromoCode})

	case interaction.KindProvideAddress:
		st := sess.State.(CheckoutState)
		if !st.AwaitingAddress {
			return step{}, model.NewTransitionError(string(model.StageCheckout), string(a.Kind))
		}
		return e.toPayment(sess, PaymentState{
			Delivery:  model.Delivery{Mode: model.DeliveryDelivery, Address: a.Value},
			PromoCode: st.PromoCode,
		})

	case interaction.KindApplyPromo:
		if _, err := order.PromoDiscount(e.tenants[sess.TenantID], a.Value); err != nil {
			return step{}, err
		}
		switch st := sess.State.(type) {
		case CheckoutState:
			st.PromoCode = a.Value
			dir := cartDirective(sess.Cart)
			dir.Kind = model.DirectiveAskDelivery
			dir.AwaitingAddress = st.AwaitingAddress
			dir.PromoCode = st.PromoCode
			return e.stepTo(st, sess, dir)
		case PaymentState:
			st.PromoCode = a.Value
			return e.toPayment(sess, st)
		}
		return step{}, model.NewTransitionError(string(sess.State.Stage()), string(a.Kind))

	case interaction.KindSelectPayment:
		st := sess.State.(PaymentState)
		st.Payment = model.Payment{Method: model.PaymentMethod(a.Value)}
		return e.toPayment(sess, st)

	case interaction.KindConfirmOrder:
		return e.confirm(ctx, sess)

	case interaction.KindCancelCheckout:
		return e.stepTo(ReviewingCartState{}, sess, cartDirective(sess.Cart))

	case interaction.KindPaymentFailed:
		res, err := e.stepTo(ReviewingCartState{}, sess, cartDirective(sess.Cart))
		res.note = "payment failed; cart kept for another attempt"
		return res, err
	}
	return step{}, model.NewTransitionError(string(sess.State.Stage()), string(a.Kind))
}

func (e *Engine) stepTo(next State, sess *Session, dir model.Directive) (step, error) {
	st, err := enter(next, sess.Cart)
	if err != nil {
		return step{}, err
	}
	return step{next: st, dir: dir}, nil
}

func (e *Engine) browse(ctx context.Context, sess *Session) (step, error) {
	cats, _, err := e.resolver.Categories(ctx, sess.TenantID)
	if err != nil {
		return step{}, err
	}
	return e.stepTo(BrowsingState{}, sess, model.Directive{Kind: model.DirectiveShowCategories, Categories: cats})
}

func (e *Engine) selectCategory(ctx context.Context, sess *Session, ref catalog.Ref) (step, error) {
	cref, ok := ref.(catalog.CanonicalRef)
	if !ok || cref.Kind != catalog.KindCategory {
		return step{}, model.NewValidationError("category", fmt.Sprintf("%v is not a category", ref))
	}
	products, _, err := e.resolver.ProductsInCategory(ctx, sess.TenantID, cref.ID)
	if err != nil {
		return step{}, err
	}
	if len(products) == 0 {
		return step{}, model.NewNotFoundError("category " + cref.ID)
	}
	return e.stepTo(SelectingState{CategoryID: cref.ID}, sess, model.Directive{
		Kind:       model.DirectiveShowProducts,
		CategoryID: cref.ID,
		Products:   products,
	})
}

func (e *Engine) selectProduct(ctx context.Context, sess *Session, ref catalog.Ref) (step, error) {
	if ref == nil {
		return step{}, model.NewValidationError("product", "no product reference")
	}
	p, _, err := e.resolver.ResolveProduct(ctx, sess.TenantID, ref)
	if err != nil {
		return step{}, err
	}
	if !p.Available {
		return step{}, model.NewValidationError("product", p.Name+" is not available right now")
	}
	st := CustomizingState{Product: p, Draft: Draft{Quantity: 1}}
	return e.stepTo(st, sess, e.customizeDirective(st))
}

// customize applies one draft change. Invalid references are rejected before
// anything changes, and a modifier group never holds more than its maximum.
func (e *Engine) customize(st *CustomizingState, a interaction.Action) error {
	p := &st.Product
	sel := &st.Draft.Selection

	switch a.Kind {
	case interaction.KindSelectPresentation:
		if p.Mode != model.ModePresentation {
			return model.NewValidationError("presentation", p.Name+" is not sold by presentation")
		}
		if _, ok := p.Presentation(a.Value); !ok {
			return model.NewValidationError("presentation", fmt.Sprintf("%q does not exist on %s", a.Value, p.Name))
		}
		sel.PresentationID = a.Value

	case interaction.KindSelectSize:
		if p.Mode == model.ModePresentation {
			return model.NewValidationError("size", p.Name+" is sold by presentation, not size")
		}
		if _, ok := p.Size(a.Value); !ok {
			return model.NewValidationError("size", fmt.Sprintf("%q does not exist on %s", a.Value, p.Name))
		}
		sel.Size = a.Value

	case interaction.KindToggleModifier:
		if p.Mode != model.ModePresentation {
			return model.NewValidationError("modifier", p.Name+" has no modifier groups")
		}
		g, ok := p.ModifierGroup(a.GroupID)
		if !ok {
			return model.NewValidationError("modifier", fmt.Sprintf("group %q does not exist on %s", a.GroupID, p.Name))
		}
		if _, ok := g.Option(a.OptionID); !ok {
			return model.NewValidationError("modifier", fmt.Sprintf("option %q does not exist in %s", a.OptionID, g.Name))
		}
		choice := model.ModifierChoice{GroupID: a.GroupID, OptionID: a.OptionID}
		for i, m := range sel.Modifiers {
			if m == choice {
				sel.Modifiers = append(sel.Modifiers[:i], sel.Modifiers[i+1:]...)
				return nil
			}
		}
		if g.Max > 0 && groupCount(*sel, g.ID) >= g.Max {
			return model.NewValidationError("modifier", fmt.Sprintf("%s allows at most %d selection(s)", g.Name, g.Max))
		}
		sel.Modifiers = append(sel.Modifiers, choice)

	case interaction.KindToggleAddOn:
		if p.Mode == model.ModePresentation {
			return model.NewValidationError("add-on", p.Name+" uses modifier groups, not add-ons")
		}
		if _, ok := p.AddOn(a.Value); !ok {
			return model.NewValidationError("add-on", fmt.Sprintf("%q does not exist on %s", a.Value, p.Name))
		}
		for i, id := range sel.AddOns {
			if id == a.Value {
				sel.AddOns = append(sel.AddOns[:i], sel.AddOns[i+1:]...)
				return nil
			}
		}
		sel.AddOns = append(sel.AddOns, a.Value)

	case interaction.KindSetQuantity:
		if e.pricer.MaxQuantity > 0 && a.Number > e.pricer.MaxQuantity {
			return model.NewValidationError("quantity", fmt.Sprintf("at most %d per line", e.pricer.MaxQuantity))
		}
		st.Draft.Quantity = a.Number
	}
	return nil
}

func groupCount(sel model.Selection, groupID string) int {
	n := 0
	for _, m := range sel.Modifiers {
		if m.GroupID == groupID {
			n++
		}
	}
	return n
}

// customizeDirective asks for the next missing choice, and previews the line
// price once the draft is complete.
func (e *Engine) customizeDirective(st CustomizingState) model.Directive {
	p := st.Product
	sel := st.Draft.Selection
	d := model.Directive{Product: &p}

	switch p.Mode {
	case model.ModePresentation:
		if sel.PresentationID == "" {
			d.Kind = model.DirectiveShowPresentations
			return d
		}
		d.Kind = model.DirectiveShowModifiers
		d.GroupID = nextGroup(p, sel)
	default:
		if sel.Size == "" && len(p.Sizes) > 1 {
			d.Kind = model.DirectiveShowSizes
			return d
		}
		d.Kind = model.DirectiveShowModifiers
	}

	if item, err := e.pricer.PriceItem(p, st.Draft.Quantity, sel); err == nil {
		d.Subtotal = model.FormatMoney(item.LineTotal)
	}
	return d
}

// nextGroup picks the first group below its minimum, then the first with room left.
func nextGroup(p model.Product, sel model.Selection) string {
	for _, g := range p.ModifierGroups {
		if groupCount(sel, g.ID) < g.Min {
			return g.ID
		}
	}
	for _, g := range p.ModifierGroups {
		if g.Max <= 0 || groupCount(sel, g.ID) < g.Max {
			return g.ID
		}
	}
	return ""
}

func cartDirective(cart *model.Cart) model.Directive {
	c := cart.Snapshot()
	return model.Directive{
		Kind:     model.DirectiveShowCart,
		Cart:     &c,
		Subtotal: model.FormatMoney(c.Subtotal()),
	}
}

func (e *Engine) toPayment(sess *Session, st PaymentState) (step, error) {
	totals, err := e.orders.Quote(sess.TenantID, sess.Cart, st.Delivery.Mode, st.PromoCode)
	if err != nil {
		return step{}, err
	}
	dir := cartDirective(sess.Cart)
	dir.Kind = model.DirectiveAskPayment
	dir.Total = model.FormatMoney(totals.Total)
	dir.PaymentMethod = string(st.Payment.Method)
	dir.PromoCode = st.PromoCode
	return e.stepTo(st, sess, dir)
}

// confirm persists the order. Reaching Confirmed needs a persisted, priced order.
func (e *Engine) confirm(ctx context.Context, sess *Session) (step, error) {
	st := sess.State.(PaymentState)
	if st.Payment.Method == "" {
		return step{}, model.NewValidationError("payment", "choose a payment method first")
	}

	ord, err := e.orders.Submit(ctx, sess.TenantID, order.SubmitRequest{
		Cart:           sess.Cart,
		Customer:       sess.Customer,
		Delivery:       st.Delivery,
		Payment:        st.Payment,
		PromoCode:      st.PromoCode,
		ConversationID: sess.ConversationID,
	})
	if err != nil {
		return step{}, err
	}
	if ord == nil || ord.ID == "" {
		return step{}, model.NewInternalError(errors.New("order submission returned no order"))
	}

	res, err := e.stepTo(ConfirmedState{OrderID: ord.ID, OrderNumber: ord.DisplayNumber(), Status: ord.Status}, sess, model.Directive{
		Kind:        model.DirectiveShowConfirmation,
		OrderID:     ord.ID,
		OrderNumber: ord.DisplayNumber(),
		OrderStatus: string(ord.Status),
		Total:       model.FormatMoney(ord.Totals.Total),
	})
	if err != nil {
		return step{}, err
	}
	res.orderID = ord.ID
	if ord.Status == model.StatusLocalOnly {
		res.note = ord.StatusReason
	}
	return res, nil
}
