package notify

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// supported lists the locales the catalog can render. Vietnamese first: it
// is the restaurant's house language and the fallback when matching fails.
var supported = []language.Tag{
	language.Vietnamese,
	language.English,
}

var matcher = language.NewMatcher(supported)

// Catalog renders user-facing messages in the locale negotiated at
// construction time. All methods are pure formatting; no I/O.
type Catalog struct {
	tag language.Tag
}

// NewCatalog negotiates the best supported locale for the given BCP 47
// preference string (e.g. "vi", "en-US", "en;q=0.9,vi;q=0.8"). An empty or
// unmatchable preference falls back to Vietnamese.
func NewCatalog(preference string) *Catalog {
	tag, _ := language.MatchStrings(matcher, preference)
	return &Catalog{tag: tag}
}

func (c *Catalog) vietnamese() bool {
	base, _ := c.tag.Base()
	vi, _ := language.Vietnamese.Base()
	return base == vi
}

// GenericFailure is the default message shown when a failure carries no
// message of its own.
func (c *Catalog) GenericFailure() string {
	if c.vietnamese() {
		return "Có lỗi xảy ra"
	}
	return "Something went wrong"
}

// StatusName returns the display name of an order status.
func (c *Catalog) StatusName(s domain.OrderStatus) string {
	if c.vietnamese() {
		switch s {
		case domain.OrderPending:
			return "Chờ xử lý"
		case domain.OrderProcessing:
			return "Đang chế biến"
		case domain.OrderDelivered:
			return "Đã phục vụ"
		case domain.OrderPaid:
			return "Đã thanh toán"
		case domain.OrderRejected:
			return "Đã từ chối"
		}
		return string(s)
	}
	return string(s)
}

// OrderUpdated renders the push message for a single order's status change.
func (c *Catalog) OrderUpdated(o domain.OrderLine) string {
	if c.vietnamese() {
		return fmt.Sprintf("Món %s (SL: %d) vừa được cập nhật sang trạng thái %q",
			o.DishSnapshot.Name, o.Quantity, c.StatusName(o.Status))
	}
	return fmt.Sprintf("%s (x%d) is now %q",
		o.DishSnapshot.Name, o.Quantity, c.StatusName(o.Status))
}

// PaymentCompleted renders the batch-settlement message: who paid, at which
// table, and how many orders were settled.
func (c *Catalog) PaymentCompleted(payer domain.Guest, count int) string {
	if c.vietnamese() {
		return fmt.Sprintf("%s tại bàn %d thanh toán thành công %d đơn",
			payer.Name, payer.TableNumber, count)
	}
	return fmt.Sprintf("%s at table %d paid %d orders",
		payer.Name, payer.TableNumber, count)
}
