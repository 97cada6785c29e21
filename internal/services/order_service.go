package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

const (
	orderEventLog        = "order.event.publish_failed"
	orderNotificationLog = "order.notification.failed"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Users         repositories.UserRepository
	Inventory     repositories.InventoryUnitOfWork
	Notifications NotificationService
	Events        OrderEventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	users         repositories.UserRepository
	inventory     repositories.InventoryUnitOfWork
	notifications NotificationService
	events        OrderEventPublisher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		users:         deps.Users,
		inventory:     deps.Inventory,
		notifications: deps.Notifications,
		events:        deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, invalidField("user_id", "User is required")
	}
	if len(cmd.Items) == 0 {
		return Order{}, invalidField("items", "Items are required")
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" || strings.TrimSpace(item.VariantID) == "" {
			return Order{}, invalidField("items", "Each item requires product_id and variant_id")
		}
		if item.Quantity < 1 {
			return Order{}, invalidField("items", "Quantity must be at least 1")
		}
	}
	if cmd.TotalAmount < 0 {
		return Order{}, invalidField("total_amount", "Total amount must not be negative")
	}

	if _, err := s.users.Get(ctx, userID); err != nil {
		return Order{}, mapRepositoryError(err, "User not found")
	}

	now := s.clock()
	order := Order{
		ID:              s.newID(),
		UserID:          userID,
		ShippingAddress: trimShipping(cmd.ShippingAddress),
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		TotalAmount:     cmd.TotalAmount,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	productIDs := make([]string, 0, len(cmd.Items))
	variantIDs := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		productIDs = append(productIDs, strings.TrimSpace(item.ProductID))
		variantIDs = append(variantIDs, strings.TrimSpace(item.VariantID))
	}

	err := s.inventory.RunInventoryTx(ctx, func(ctx context.Context, tx repositories.InventoryTx) error {
		products, err := tx.Products(ctx, productIDs)
		if err != nil {
			return err
		}
		variants, err := tx.Variants(ctx, variantIDs)
		if err != nil {
			return err
		}

		lines := make([]OrderLine, 0, len(cmd.Items))
		requested := make(map[string]int, len(cmd.Items))
		for _, item := range cmd.Items {
			productID := strings.TrimSpace(item.ProductID)
			variantID := strings.TrimSpace(item.VariantID)
			product, ok := products[productID]
			if !ok {
				return notFound("Product not found")
			}
			variant, ok := variants[variantID]
			if !ok || variant.ProductID != productID {
				return notFound("Variant not found")
			}
			requested[variantID] += item.Quantity
			if variant.Stock < requested[variantID] {
				return failure(ErrInsufficientStock, fmt.Sprintf("Insufficient stock for product variant %s. Available: %d", variantID, variant.Stock))
			}

			price := item.Price
			if price <= 0 {
				price = variant.Price
			}
			brand := strings.TrimSpace(item.Brand)
			if brand == "" {
				brand = product.BrandID
			}
			lines = append(lines, OrderLine{
				Brand:     brand,
				ProductID: productID,
				VariantID: variantID,
				Quantity:  item.Quantity,
				Price:     price,
			})
		}
		order.Items = lines

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		variantDeltas, productDeltas := lineQuantities(lines)
		for _, id := range slices.Sorted(maps.Keys(variantDeltas)) {
			if err := tx.IncrementVariantStock(ctx, id, -variantDeltas[id], now); err != nil {
				return err
			}
		}
		for _, id := range slices.Sorted(maps.Keys(productDeltas)) {
			if err := tx.IncrementProductSold(ctx, id, productDeltas[id], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, mapRepositoryError(err, "")
	}

	s.notify(ctx, order, "Order placed successfully", fmt.Sprintf("Your order #%s has been created.", order.ID))
	s.publish(ctx, OrderEventCreated, order)
	return order, nil
}

func (s *orderService) Get(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidField("id", "Order id is required")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}
	if !actor.owns(order) {
		return Order{}, notFound("Order not found")
	}
	return order, nil
}

func (s *orderService) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, mapRepositoryError(err, "User not found")
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: userID,
		Page:   domain.Page{SortField: "created_at", SortOrder: domain.SortDesc},
	})
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return page.Items, nil
}

// Cancel restores the stock and sold counters of a pending order and marks it cancelled, all in
// one transaction. Lines whose variant or product no longer exists are skipped.
func (s *orderService) Cancel(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidField("id", "Order id is required")
	}

	now := s.clock()
	var cancelled Order
	err := s.inventory.RunInventoryTx(ctx, func(ctx context.Context, tx repositories.InventoryTx) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, "Order not found")
		}
		if !actor.owns(order) {
			return notFound("Order not found")
		}
		if order.Status != domain.OrderStatusPending {
			return failure(ErrInvalidTransition, "Only pending orders can be cancelled")
		}

		variantDeltas, productDeltas := lineQuantities(order.Items)
		products, err := tx.Products(ctx, slices.Collect(maps.Keys(productDeltas)))
		if err != nil {
			return err
		}
		variants, err := tx.Variants(ctx, slices.Collect(maps.Keys(variantDeltas)))
		if err != nil {
			return err
		}

		for _, id := range slices.Sorted(maps.Keys(variantDeltas)) {
			if _, ok := variants[id]; !ok {
				continue
			}
			if err := tx.IncrementVariantStock(ctx, id, variantDeltas[id], now); err != nil {
				return err
			}
		}
		for _, id := range slices.Sorted(maps.Keys(productDeltas)) {
			product, ok := products[id]
			if !ok {
				continue
			}
			if err := tx.SetProductSold(ctx, id, max(0, product.Sold-int64(productDeltas[id])), now); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled, now); err != nil {
			return err
		}

		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		cancelled = order
		return nil
	})
	if err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}

	s.notify(ctx, cancelled, "Order cancelled", fmt.Sprintf("Your order #%s has been cancelled successfully.", cancelled.ID))
	s.publish(ctx, OrderEventCancelled, cancelled)
	return cancelled, nil
}

func (s *orderService) Reorder(ctx context.Context, actor Actor, orderID string) (ReorderPayload, error) {
	order, err := s.Get(ctx, actor, orderID)
	if err != nil {
		return ReorderPayload{}, err
	}
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusCancelled {
		return ReorderPayload{}, failure(ErrInvalidTransition, "Only paid/cancelled orders can be reordered")
	}
	items := make([]ReorderItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, ReorderItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	return ReorderPayload{OrderID: order.ID, Items: items}, nil
}

func (s *orderService) UpdateShippingAddress(ctx context.Context, actor Actor, orderID string, address ShippingAddress) (Order, error) {
	order, err := s.Get(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, failure(ErrInvalidTransition, "Can only update address for pending orders")
	}
	address = trimShipping(address)
	if address.Street == "" || address.Province == "" {
		return Order{}, invalidField("shipping_address", "Street and province are required")
	}
	now := s.clock()
	if err := s.orders.UpdateShippingAddress(ctx, order.ID, address, now); err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}
	order.ShippingAddress = address
	order.UpdatedAt = now
	return order, nil
}

// UpdateStatus sets the status without touching counters and notifies the buyer. It is used by
// payment callbacks and the admin status endpoint.
func (s *orderService) UpdateStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidField("id", "Order id is required")
	}
	status = OrderStatus(strings.TrimSpace(string(status)))
	if !status.Valid() {
		return Order{}, invalidField("status", "Invalid status")
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}
	now := s.clock()
	if err := s.orders.UpdateStatus(ctx, orderID, status, now); err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}
	order.Status = status
	order.UpdatedAt = now

	title, message := statusNotification(order)
	s.notify(ctx, order, title, message)
	s.publish(ctx, OrderEventStatusChanged, order)
	return order, nil
}

func (s *orderService) AdminList(ctx context.Context, filter AdminOrderFilter) (AdminOrderPage, error) {
	listFilter := repositories.OrderListFilter{Page: filter.Page}
	switch status := strings.TrimSpace(filter.Status); status {
	case "", "all":
	default:
		if !OrderStatus(status).Valid() {
			return AdminOrderPage{}, invalidField("status", "Invalid status filter")
		}
		listFilter.Status = OrderStatus(status)
	}

	var result domain.PageResult[Order]
	query := strings.TrimSpace(filter.Query)
	switch {
	case query == "":
	case OrderStatus(query).Valid() && listFilter.Status == "":
		listFilter.Status = OrderStatus(query)
	default:
		order, err := s.orders.Get(ctx, query)
		switch {
		case err == nil:
			result.Items = []Order{}
			if listFilter.Status == "" || order.Status == listFilter.Status {
				result.Items = append(result.Items, order)
			}
			result.Total = len(result.Items)
		case isRepositoryNotFound(err):
			listFilter.UserID = query
		default:
			return AdminOrderPage{}, mapRepositoryError(err, "")
		}
	}

	if result.Items == nil {
		page, err := s.orders.List(ctx, listFilter)
		if err != nil {
			return AdminOrderPage{}, mapRepositoryError(err, "")
		}
		result = page
	}

	uids := make([]string, 0, len(result.Items))
	for _, order := range result.Items {
		uids = append(uids, order.UserID)
	}
	usernames := make(map[string]string, len(uids))
	if len(uids) > 0 {
		users, err := s.users.GetMany(ctx, uids)
		if err != nil {
			return AdminOrderPage{}, mapRepositoryError(err, "")
		}
		for _, uid := range uids {
			if user, ok := users[uid]; ok && user.Username != "" {
				usernames[uid] = user.Username
			} else {
				usernames[uid] = uid
			}
		}
	}
	return AdminOrderPage{Orders: result, Usernames: usernames}, nil
}

func (s *orderService) AdminUpdate(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, invalidField("id", "Order id is required")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}

	if cmd.Status != nil {
		status := OrderStatus(strings.TrimSpace(*cmd.Status))
		if !status.Valid() {
			return Order{}, invalidField("status", "Invalid status")
		}
		order.Status = status
	}
	if cmd.PaymentMethod != nil {
		order.PaymentMethod = strings.TrimSpace(*cmd.PaymentMethod)
	}
	if cmd.TotalAmount != nil {
		if *cmd.TotalAmount < 0 {
			return Order{}, invalidField("total_amount", "Total amount must not be negative")
		}
		order.TotalAmount = *cmd.TotalAmount
	}
	if cmd.ShippingAddress != nil {
		order.ShippingAddress = trimShipping(*cmd.ShippingAddress)
	}
	if cmd.Items != nil {
		if len(*cmd.Items) == 0 {
			return Order{}, invalidField("items", "Items are required")
		}
		for _, line := range *cmd.Items {
			if line.Quantity < 1 {
				return Order{}, invalidField("items", "Quantity must be at least 1")
			}
		}
		order.Items = slices.Clone(*cmd.Items)
	}
	order.UpdatedAt = s.clock()

	if err := s.orders.Save(ctx, order); err != nil {
		return Order{}, mapRepositoryError(err, "Order not found")
	}
	return order, nil
}

func (s *orderService) Delete(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return invalidField("id", "Order id is required")
	}
	return mapRepositoryError(s.orders.Delete(ctx, orderID), "Order not found")
}

func (s *orderService) notify(ctx context.Context, order Order, title, message string) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Notify(ctx, order.UserID, title, message); err != nil {
		s.logger(ctx, orderNotificationLog, map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) publish(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		OccurredAt:  s.clock(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, orderEventLog, map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}

func (a Actor) owns(order Order) bool {
	return a.Admin || (a.UserID != "" && a.UserID == order.UserID)
}

func statusNotification(order Order) (string, string) {
	switch order.Status {
	case domain.OrderStatusPaid:
		return "Payment successful", fmt.Sprintf("Your order #%s has been paid successfully.", order.ID)
	case domain.OrderStatusFailed:
		return "Payment failed", fmt.Sprintf("Payment failed for order #%s.", order.ID)
	case domain.OrderStatusCancelled:
		return "Order cancelled", fmt.Sprintf("Your order #%s has been cancelled.", order.ID)
	default:
		return "Order update", fmt.Sprintf("Your order #%s status updated to %s", order.ID, order.Status)
	}
}

// lineQuantities sums line quantities per variant and per product.
func lineQuantities(lines []OrderLine) (map[string]int, map[string]int) {
	variants := make(map[string]int, len(lines))
	products := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if line.VariantID != "" {
			variants[line.VariantID] += line.Quantity
		}
		if line.ProductID != "" {
			products[line.ProductID] += line.Quantity
		}
	}
	return variants, products
}

func trimShipping(a ShippingAddress) ShippingAddress {
	return ShippingAddress{
		Street:   strings.TrimSpace(a.Street),
		Ward:     strings.TrimSpace(a.Ward),
		District: strings.TrimSpace(a.District),
		Province: strings.TrimSpace(a.Province),
		Country:  strings.TrimSpace(a.Country),
	}
}
