package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hotelledger/internal/domain"
	"hotelledger/internal/events"
	"hotelledger/internal/keylock"
	"hotelledger/internal/metrics"
	"hotelledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InventoryService keeps per-hotel stock and the procurement order log.
// Receiving an order applies its stock delta at most once.
type InventoryService struct {
	repo     domain.InventoryRepository
	locks    *keylock.Locker
	eventBus domain.EventPublisher
	mirror   domain.MirrorQueue
	logger   *zerolog.Logger
}

func NewInventoryService(
	repo domain.InventoryRepository,
	locks *keylock.Locker,
	eventBus domain.EventPublisher,
	mirror domain.MirrorQueue,
	logger *zerolog.Logger,
) *InventoryService {
	return &InventoryService{
		repo:     repo,
		locks:    locks,
		eventBus: eventBus,
		mirror:   mirror,
		logger:   logger,
	}
}

// AddItem creates an item. Names may repeat within a hotel; each call is
// a distinct item.
func (s *InventoryService) AddItem(ctx context.Context, hotelID int64, name string, quantity int64, unitPrice decimal.Decimal) (*models.InventoryItem, error) {
	name = strings.TrimSpace(name)
	switch {
	case hotelID <= 0:
		return nil, fmt.Errorf("%w: hotel_id must be positive", models.ErrValidation)
	case name == "":
		return nil, fmt.Errorf("%w: item name is required", models.ErrValidation)
	case quantity < 0:
		return nil, fmt.Errorf("%w: initial quantity must not be negative", models.ErrValidation)
	case !unitPrice.IsPositive():
		return nil, fmt.Errorf("%w: unit price must be positive", models.ErrValidation)
	}

	item := &models.InventoryItem{HotelID: hotelID, Name: name, Quantity: quantity, UnitPrice: unitPrice}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		s.logger.Error().Err(err).Int64("hotel_id", hotelID).Msg("Failed to create inventory item")
		return nil, err
	}

	s.logger.Info().Int64("item_id", item.ID).Str("name", name).Msg("Inventory item added")
	s.publish(events.EventInventoryItemAdded, events.InventoryEventPayload{
		HotelID:  item.HotelID,
		ItemID:   item.ID,
		ItemName: item.Name,
		Quantity: item.Quantity,
	})
	return item, nil
}

// PlaceOrder creates a Pending transaction priced at the item's unit price.
// Stock is untouched until the order is received.
func (s *InventoryService) PlaceOrder(ctx context.Context, itemID, quantity int64) (*models.InventoryTransaction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: order quantity must be positive", models.ErrValidation)
	}

	unlock := s.locks.Lock(keylock.ItemKey(itemID))
	tx, err := s.repo.CreateTransaction(ctx, itemID, quantity)
	unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("transaction_id", tx.ID).
		Int64("item_id", itemID).
		Int64("quantity", quantity).
		Str("total_cost", tx.TotalCost.StringFixed(models.MoneyPlaces)).
		Msg("Order placed")
	s.afterTransaction(ctx, events.EventInventoryOrdered, tx)
	return tx, nil
}

// ReceiveOrder completes a Pending transaction and adds its quantity to the
// item. A second receipt returns models.ErrAlreadyCompleted.
func (s *InventoryService) ReceiveOrder(ctx context.Context, txID int64) (*models.InventoryTransaction, error) {
	unlockTx := s.locks.Lock(keylock.TxKey(txID))
	defer unlockTx()

	pending, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		metrics.IncInventoryReceipt("not_found")
		return nil, err
	}
	if !pending.IsPending() {
		metrics.IncInventoryReceipt("already_completed")
		return nil, fmt.Errorf("%w: transaction %d", models.ErrAlreadyCompleted, txID)
	}

	unlockItem := s.locks.Lock(keylock.ItemKey(pending.ItemID))
	defer unlockItem()

	completed, err := s.repo.CompleteTransaction(ctx, txID)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyCompleted) {
			metrics.IncInventoryReceipt("already_completed")
		} else {
			s.logger.Error().Err(err).Int64("transaction_id", txID).Msg("Failed to receive order")
		}
		return nil, err
	}
	unlockItem()
	unlockTx()

	metrics.IncInventoryReceipt("completed")
	s.logger.Info().Int64("transaction_id", txID).Int64("item_id", completed.ItemID).Msg("Order received")
	s.afterTransaction(ctx, events.EventInventoryReceived, completed)
	return completed, nil
}

// DeleteItem removes an item without Pending orders.
func (s *InventoryService) DeleteItem(ctx context.Context, itemID int64) error {
	unlock := s.locks.Lock(keylock.ItemKey(itemID))
	defer unlock()

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, models.ErrHasPendingOrders) {
			s.logger.Warn().Int64("item_id", itemID).Msg("Item has pending orders")
		}
		return err
	}
	unlock()

	s.logger.Info().Int64("item_id", itemID).Msg("Inventory item deleted")
	s.publish(events.EventInventoryDeleted, events.InventoryEventPayload{
		HotelID:  item.HotelID,
		ItemID:   item.ID,
		ItemName: item.Name,
		Quantity: item.Quantity,
	})
	return nil
}

func (s *InventoryService) GetItem(ctx context.Context, itemID int64) (*models.InventoryItem, error) {
	return s.repo.GetItem(ctx, itemID)
}

func (s *InventoryService) ListItems(ctx context.Context, hotelID int64) ([]*models.InventoryItem, error) {
	return s.repo.ListItemsByHotel(ctx, hotelID)
}

func (s *InventoryService) GetTransaction(ctx context.Context, txID int64) (*models.InventoryTransaction, error) {
	return s.repo.GetTransaction(ctx, txID)
}

// ListTransactions returns the order history, newest first.
func (s *InventoryService) ListTransactions(ctx context.Context, hotelID int64) ([]*models.InventoryTransaction, error) {
	return s.repo.ListTransactionsByHotel(ctx, hotelID)
}

func (s *InventoryService) publish(eventType string, payload events.InventoryEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func (s *InventoryService) afterTransaction(ctx context.Context, eventType string, tx *models.InventoryTransaction) {
	s.publish(eventType, events.InventoryEventPayload{
		HotelID:       tx.HotelID,
		ItemID:        tx.ItemID,
		ItemName:      tx.ItemName,
		TransactionID: tx.ID,
		Quantity:      tx.Quantity,
		TotalCost:     tx.TotalCost,
		Status:        tx.Status,
	})
	if s.mirror != nil {
		if err := s.mirror.EnqueueTransaction(ctx, tx); err != nil {
			s.logger.Error().Err(err).Int64("transaction_id", tx.ID).Msg("Failed to enqueue transaction mirror")
		}
	}
}
