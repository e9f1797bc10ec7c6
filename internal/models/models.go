// Package models defines the typed entities stored in the record store,
// their status enums, and the codecs between structs and store records.
// The json tags match the field names of the existing millo-database.json
// document exactly.
package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/millomarket/marketplace/internal/store"
)

// Typed ids for cross-table references. They are plain strings on disk; the
// newtypes keep a seller_id from being handed where a product_id belongs.
type (
	UserID         string
	ProductID      string
	OrderID        string
	SubscriptionID string
	PaymentID      string
	WithdrawalID   string
)

// Table names of the store document.
const (
	TableUsers         = "users"
	TableProducts      = "products"
	TableOrders        = "orders"
	TableSubscriptions = "subscriptions"
	TableWithdrawals   = "withdrawals"
	TableEtransfers    = "etransfer_payments"
	TablePaymentFaults = "payment_faults"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

const (
	UserActive    = "active"
	UserSuspended = "suspended"
)

// Product status values. A product is publicly visible iff its status is
// active AND its subscription_status is active.
const (
	ProductPending  = "pending"
	ProductActive   = "active"
	ProductInactive = "inactive"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderProgression = map[OrderStatus]int{
	OrderPending:    0,
	OrderProcessing: 1,
	OrderShipped:    2,
	OrderDelivered:  3,
	OrderCompleted:  4,
}

// CanTransition reports whether an order may move from s to next. The
// progression is forward-only; cancellation is allowed from any state that
// has not completed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next || s == OrderCancelled {
		return false
	}
	if next == OrderCancelled {
		return s != OrderCompleted
	}
	from, okFrom := orderProgression[s]
	to, okTo := orderProgression[next]
	return okFrom && okTo && to > from
}

type SubscriptionStatus string

const (
	SubPending   SubscriptionStatus = "pending"
	SubActive    SubscriptionStatus = "active"
	SubPastDue   SubscriptionStatus = "past_due"
	SubCancelled SubscriptionStatus = "cancelled"
	SubExpired   SubscriptionStatus = "expired"
)

var subTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubPending: {SubActive, SubCancelled, SubExpired},
	SubActive:  {SubPastDue, SubCancelled, SubExpired},
	SubPastDue: {SubActive, SubCancelled, SubExpired},
}

// CanTransition reports whether a subscription may move from s to next.
// cancelled and expired are terminal.
func (s SubscriptionStatus) CanTransition(next SubscriptionStatus) bool {
	for _, allowed := range subTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

type User struct {
	ID        UserID `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"password"` // bcrypt hash, never the raw credential
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Sanitized strips the credential hash for API responses.
func (u User) Sanitized() User {
	u.Password = ""
	return u
}

type Product struct {
	ID                 ProductID          `json:"id"`
	SellerID           UserID             `json:"seller_id"`
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	Price              float64            `json:"price"`
	Colors             []string           `json:"colors"`
	Images             []string           `json:"images,omitempty"`
	ImageURL           string             `json:"image_url,omitempty"`
	Category           string             `json:"category"`
	Stock              int                `json:"stock"`
	Status             string             `json:"status"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	PaymentConfirmed   bool               `json:"payment_confirmed"`
	CreatedAt          string             `json:"created_at"`
}

// Visible reports whether the product may appear in the public catalog.
func (p Product) Visible() bool {
	return p.Status == ProductActive && p.SubscriptionStatus == SubActive
}

// PrimaryImage returns the first image, falling back to the legacy
// image_url field of older records.
func (p Product) PrimaryImage() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return p.ImageURL
}

// HasColor reports whether the product is offered in the given color.
func (p Product) HasColor(color string) bool {
	for _, c := range p.Colors {
		if strings.EqualFold(c, color) {
			return true
		}
	}
	return false
}

type Order struct {
	ID              OrderID     `json:"id"`
	CustomerEmail   string      `json:"customer_email"`
	CustomerName    string      `json:"customer_name"`
	ProductID       ProductID   `json:"product_id"`
	ProductName     string      `json:"product_name"`
	Color           string      `json:"color"`
	Quantity        int         `json:"quantity"`
	Price           float64     `json:"price"`
	Total           float64     `json:"total"`
	SellerID        UserID      `json:"seller_id"`
	Commission      float64     `json:"commission"`
	SellerAmount    float64     `json:"seller_amount"`
	Status          OrderStatus `json:"status"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty"`
	PaymentStatus   string      `json:"payment_status,omitempty"`
	CreatedAt       string      `json:"created_at"`
}

type Subscription struct {
	ID                 SubscriptionID     `json:"id"`
	SellerID           UserID             `json:"seller_id"`
	ProductID          ProductID          `json:"product_id"`
	Amount             float64            `json:"amount"`
	Currency           string             `json:"currency,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	EtransferPaymentID PaymentID          `json:"etransfer_payment_id,omitempty"`
	StartDate          string             `json:"start_date"`
	NextBillingDate    string             `json:"next_billing_date"`
	CreatedAt          string             `json:"created_at"`
}

type Withdrawal struct {
	ID        WithdrawalID `json:"id"`
	AdminID   UserID       `json:"admin_id"`
	Amount    float64      `json:"amount"`
	Status    string       `json:"status"`
	CreatedAt string       `json:"created_at"`
}

type EtransferPayment struct {
	ID              PaymentID `json:"id"`
	SellerID        UserID    `json:"seller_id"`
	SellerEmail     string    `json:"seller_email"`
	ProductID       ProductID `json:"product_id"`
	ProductName     string    `json:"product_name"`
	ReferenceNumber string    `json:"reference_number"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	TransferDate    string    `json:"transfer_date"`
	Status          string    `json:"status"`
	ApprovedAt      string    `json:"approved_at,omitempty"`
	ApprovedBy      UserID    `json:"approved_by,omitempty"`
	RejectedAt      string    `json:"rejected_at,omitempty"`
	RejectedBy      UserID    `json:"rejected_by,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       string    `json:"created_at"`
}

// PaymentFault records a captured payment whose settlement failed, kept for
// manual reconciliation so a charge is never silently lost.
type PaymentFault struct {
	ID            string `json:"id"`
	PaymentRef    string `json:"payment_ref"`
	CustomerEmail string `json:"customer_email"`
	Detail        string `json:"detail"`
	CreatedAt     string `json:"created_at"`
}

// Schema declares every table and the fields its records may carry, so the
// store rejects unknown tables and fields at the boundary.
func Schema() store.Schema {
	return store.Schema{
		TableUsers:         jsonFields(User{}),
		TableProducts:      jsonFields(Product{}),
		TableOrders:        jsonFields(Order{}),
		TableSubscriptions: jsonFields(Subscription{}),
		TableWithdrawals:   jsonFields(Withdrawal{}),
		TableEtransfers:    jsonFields(EtransferPayment{}),
		TablePaymentFaults: jsonFields(PaymentFault{}),
	}
}

func jsonFields(v any) []string {
	t := reflect.TypeOf(v)
	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, name)
	}
	return fields
}

// ToRecord converts a typed entity into a store record.
func ToRecord(v any) (store.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// FromRecord decodes a store record into a typed entity. Fields the struct
// does not declare are ignored, matching how older documents carry
// historical extras.
func FromRecord(r store.Record, dst any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
