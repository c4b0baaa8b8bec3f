package domain

type PaymentMethod string

const (
	PaymentMethodCOD   PaymentMethod = "cod"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodGCash PaymentMethod = "gcash"
	PaymentMethodBank  PaymentMethod = "bank"
)

var paymentTitles = map[PaymentMethod]string{
	PaymentMethodCOD:   "Cash on Delivery",
	PaymentMethodCard:  "Credit/Debit Card",
	PaymentMethodGCash: "GCash",
	PaymentMethodBank:  "Bank Transfer",
}

func (m PaymentMethod) IsValid() bool {
	_, ok := paymentTitles[m]
	return ok
}

// RequiresProof is true for remote cash-free methods, where the buyer pays
// outside the storefront and attaches a reference to the transfer.
func (m PaymentMethod) RequiresProof() bool {
	return m == PaymentMethodGCash || m == PaymentMethodBank
}

// Title is the human readable name shown on receipts.
func (m PaymentMethod) Title() string {
	if t, ok := paymentTitles[m]; ok {
		return t
	}
	return "Unknown"
}

func (m PaymentMethod) String() string {
	return string(m)
}
