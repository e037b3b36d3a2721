package workflow

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
)

const handlerShipDelivery = "delivery.ship"

type ShipDeliveryInput struct {
	models.NewDelivery
	MessageId string `json:"message_id"`
}

// ShipDelivery posts an outbound shipment, optionally consuming an active
// reservation. With a message id the posting is idempotent; a replayed
// message returns the delivery already written for that reservation, or
// nil for an unreferenced duplicate.
func ShipDelivery(ctx context.Context, input *ShipDeliveryInput) (*models.Delivery, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var delivery *models.Delivery
	shipTx := func(tx *gorm.DB) error {
		var txErr error
		delivery, txErr = models.ShipDeliveryTx(ctx, tx, &input.NewDelivery)
		return txErr
	}

	var err error
	if input.MessageId != "" {
		var skipped bool
		skipped, err = RunIdempotent(ctx, handlerShipDelivery, input.MessageId, shipTx)
		if err == nil && skipped {
			logger.WithFields(logrus.Fields{
				"handler":    handlerShipDelivery,
				"message_id": input.MessageId,
			}).Info("delivery.skip_duplicate")
			if input.ReservationId != nil {
				return deliveryForReservation(ctx, *input.ReservationId)
			}
			return nil, nil
		}
	} else {
		err = db.WithContext(ctx).Transaction(shipTx)
	}
	if err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ShipDelivery", "ship delivery", input, err)
		return nil, err
	}
	return delivery, nil
}

func deliveryForReservation(ctx context.Context, reservationId int) (*models.Delivery, error) {
	db := config.GetDB()
	var delivery models.Delivery
	err := db.WithContext(ctx).
		Where("reservation_id = ?", reservationId).
		Order("id DESC").
		First(&delivery).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &delivery, nil
}
