package cash

import (
	"fmt"
	"regexp"
	"strconv"
)

// orderRefPattern matches the order number that legacy remittance comments end with,
// e.g. "Versement pour la commande n°1234". The id must be the whole trailing number.
var orderRefPattern = regexp.MustCompile(`(?:n°|#)\s*(\d+)\s*$`)

// OrderRefFromComment extracts the order id a legacy comment refers to.
func OrderRefFromComment(comment string) (int64, bool) {
	m := orderRefPattern.FindStringSubmatch(comment)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// RemittanceComment is the comment written on the remittance created for a delivered order.
func RemittanceComment(orderID int64) string {
	return fmt.Sprintf("Versement pour la commande n°%d", orderID)
}
