package monitor

import (
	"fmt"

	"github.com/akhouriprakhar/price-monitor-bot/internal/models"

	log "github.com/sirupsen/logrus"
)

// sendAlert formats and delivers a price alert. Delivery failures are logged
// and not retried; the price write-back has already happened and stands.
func (m *Monitor) sendAlert(product models.Product, oldPrice, newPrice float64, reason string) {
	text := formatAlert(product, oldPrice, newPrice, reason)

	if err := m.notifier.Send(product.UserID, text); err != nil {
		log.WithFields(log.Fields{
			"product": product.ID,
			"user":    product.UserID,
			"err":     err,
		}).Error("Failed to send price alert")
		return
	}

	log.WithFields(log.Fields{
		"product": product.ID,
		"user":    product.UserID,
		"reason":  reason,
	}).Info("Price alert sent")
}

func formatAlert(product models.Product, oldPrice, newPrice float64, reason string) string {
	emoji := "📈"
	if newPrice < oldPrice {
		emoji = "📉"
	}

	title := product.Title
	if title == "" {
		title = "Unknown Product"
	}

	return fmt.Sprintf(
		"%s Price Alert! %s\n\n"+
			"Product: %s\n"+
			"Old Price: ₹%.2f\n"+
			"New Price: ₹%.2f\n\n"+
			"The price has %s.\n\n"+
			"%s",
		emoji, emoji, title, oldPrice, newPrice, reason, product.URL,
	)
}
